package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// SessionPurger deletes sessions that expired or were revoked before cutoff.
type SessionPurger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// CodePurger deletes resume codes that expired before now or were used before usedBefore.
type CodePurger interface {
	Purge(ctx context.Context, now, usedBefore time.Time) (int64, error)
}

// Sweeper periodically removes dead sessions and stale resume codes.
type Sweeper struct {
	sessions  SessionPurger
	codes     CodePurger
	interval  time.Duration
	retention time.Duration
	codeTTL   time.Duration
	now       func() time.Time
}

// New creates a new Sweeper.
func New(sessions SessionPurger, codes CodePurger, interval, retention, codeTTL time.Duration) *Sweeper {
	return &Sweeper{
		sessions:  sessions,
		codes:     codes,
		interval:  interval,
		retention: retention,
		codeTTL:   codeTTL,
		now:       time.Now,
	}
}

// Start begins the sweep loop. It blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("sweeper started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one purge pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()

	if s.codes != nil {
		n, err := s.codes.Purge(ctx, now, now.Add(-s.codeTTL))
		if err != nil {
			slog.Error("sweeper: failed to purge resume codes", "error", err)
		} else if n > 0 {
			slog.Info("sweeper: purged resume codes", "count", n)
		}
	}

	if ctx.Err() != nil {
		return
	}

	if s.sessions != nil {
		n, err := s.sessions.Purge(ctx, now.Add(-s.retention))
		if err != nil {
			slog.Error("sweeper: failed to purge sessions", "error", err)
		} else if n > 0 {
			slog.Info("sweeper: purged sessions", "count", n)
		}
	}
}

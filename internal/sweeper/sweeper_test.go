package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (f *fakeSessions) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 2, f.err
}

func (f *fakeSessions) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

type fakeCodes struct {
	mu         sync.Mutex
	now        []time.Time
	usedBefore []time.Time
	err        error
}

func (f *fakeCodes) Purge(_ context.Context, now, usedBefore time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = append(f.now, now)
	f.usedBefore = append(f.usedBefore, usedBefore)
	return 1, f.err
}

func TestSweep_Cutoffs(t *testing.T) {
	sessions := &fakeSessions{}
	codes := &fakeCodes{}
	s := New(sessions, codes, time.Minute, 720*time.Hour, 10*time.Minute)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.Sweep(context.Background())

	require.Len(t, codes.now, 1)
	assert.Equal(t, fixed, codes.now[0])
	assert.Equal(t, fixed.Add(-10*time.Minute), codes.usedBefore[0])
	require.Len(t, sessions.cutoffs, 1)
	assert.Equal(t, fixed.Add(-720*time.Hour), sessions.cutoffs[0])
}

func TestSweep_CodeErrorDoesNotSkipSessions(t *testing.T) {
	sessions := &fakeSessions{}
	codes := &fakeCodes{err: errors.New("db down")}
	s := New(sessions, codes, time.Minute, time.Hour, time.Minute)

	s.Sweep(context.Background())

	assert.Equal(t, 1, sessions.calls())
}

func TestSweep_NilPurgers(t *testing.T) {
	s := New(nil, nil, time.Minute, time.Hour, time.Minute)
	assert.NotPanics(t, func() { s.Sweep(context.Background()) })
}

func TestStart_TicksAndStopsOnCancel(t *testing.T) {
	sessions := &fakeSessions{}
	s := New(sessions, &fakeCodes{}, 5*time.Millisecond, time.Hour, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sessions.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

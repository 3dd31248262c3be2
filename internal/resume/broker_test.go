package resume_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brinkadata/brinkadata-platform/internal/account"
	"github.com/brinkadata/brinkadata-platform/internal/auth"
	"github.com/brinkadata/brinkadata-platform/internal/auth/authtest"
	"github.com/brinkadata/brinkadata-platform/internal/resume"
)

// memoryCodes is an in-memory resume.Store. insertFn, when set, can inject failures.
type memoryCodes struct {
	mu       sync.Mutex
	rows     map[string]resume.Code
	insertFn func(c *resume.Code) error
}

func newMemoryCodes() *memoryCodes {
	return &memoryCodes{rows: make(map[string]resume.Code)}
}

func (m *memoryCodes) Insert(_ context.Context, c *resume.Code) error {
	if m.insertFn != nil {
		if err := m.insertFn(c); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[c.Code]; ok {
		return resume.ErrCodeCollision
	}
	m.rows[c.Code] = *c
	return nil
}

func (m *memoryCodes) Get(_ context.Context, code string) (*resume.Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[code]
	if !ok {
		return nil, resume.ErrCodeNotFound
	}
	return &c, nil
}

func (m *memoryCodes) MarkUsed(_ context.Context, code string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[code]
	if !ok || c.UsedAt != nil {
		return false, nil
	}
	c.UsedAt = &now
	m.rows[code] = c
	return true, nil
}

func (m *memoryCodes) Purge(context.Context, time.Time, time.Time) (int64, error) {
	return 0, nil
}

type mockUsers struct {
	users map[int64]*account.User
}

func (m *mockUsers) GetUserByID(_ context.Context, id int64) (*account.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, account.ErrUserNotFound
}

type brokerEnv struct {
	broker   *resume.Broker
	issuer   *auth.Issuer
	sessions *authtest.Sessions
	codes    *memoryCodes
	user     *account.User
	now      time.Time
}

func (e *brokerEnv) advance(d time.Duration) { e.now = e.now.Add(d) }

func newBrokerEnv(t *testing.T) *brokerEnv {
	t.Helper()
	env := &brokerEnv{
		sessions: authtest.NewSessions(),
		codes:    newMemoryCodes(),
		user:     &account.User{ID: 5, Email: "r@example.com", AccountID: 2, IsActive: true, Role: "owner"},
		now:      time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	env.issuer = auth.NewIssuer(env.sessions, auth.IssuerConfig{
		Secret:     "s",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, nil)
	env.issuer.SetClock(func() time.Time { return env.now })
	users := &mockUsers{users: map[int64]*account.User{env.user.ID: env.user}}
	env.broker = resume.NewBroker(env.codes, env.issuer, users, 10*time.Minute)
	return env
}

var codeFormat = regexp.MustCompile(`^[A-Z2-7]{4}-[A-Z2-7]{4}$`)

func TestRequestCode(t *testing.T) {
	env := newBrokerEnv(t)
	ctx := context.Background()

	pair, err := env.issuer.Issue(ctx, env.user)
	require.NoError(t, err)

	c, err := env.broker.RequestCode(ctx, pair.SessionID)
	require.NoError(t, err)
	assert.Regexp(t, codeFormat, c.Code)
	assert.Equal(t, pair.SessionID, c.SessionID)
	assert.Equal(t, auth.HashToken(pair.RefreshToken), c.RefreshTokenHash)
	assert.Equal(t, env.now.Add(10*time.Minute), c.ExpiresAt)
}

func TestRequestCode_NoSession(t *testing.T) {
	env := newBrokerEnv(t)
	ctx := context.Background()

	_, err := env.broker.RequestCode(ctx, uuid.Nil)
	assert.ErrorIs(t, err, resume.ErrNoActiveSession)

	pair, err := env.issuer.Issue(ctx, env.user)
	require.NoError(t, err)
	require.NoError(t, env.issuer.Revoke(ctx, pair.SessionID))
	_, err = env.broker.RequestCode(ctx, pair.SessionID)
	assert.ErrorIs(t, err, auth.ErrSessionInvalid)
}

func TestRequestCode_RetriesCollisions(t *testing.T) {
	env := newBrokerEnv(t)
	ctx := context.Background()
	pair, err := env.issuer.Issue(ctx, env.user)
	require.NoError(t, err)

	attempts := 0
	env.codes.insertFn = func(*resume.Code) error {
		attempts++
		if attempts < 3 {
			return resume.ErrCodeCollision
		}
		return nil
	}
	_, err = env.broker.RequestCode(ctx, pair.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	env.codes.insertFn = func(*resume.Code) error {
		attempts++
		return resume.ErrCodeCollision
	}
	_, err = env.broker.RequestCode(ctx, pair.SessionID)
	assert.ErrorIs(t, err, resume.ErrCodeCollision)
	assert.Equal(t, 5, attempts)

	env.codes.insertFn = func(*resume.Code) error { return errors.New("db down") }
	_, err = env.broker.RequestCode(ctx, pair.SessionID)
	assert.EqualError(t, err, "db down")
}

func TestRedeem_HappyPathThenReuse(t *testing.T) {
	env := newBrokerEnv(t)
	ctx := context.Background()

	pair, err := env.issuer.Issue(ctx, env.user)
	require.NoError(t, err)
	c, err := env.broker.RequestCode(ctx, pair.SessionID)
	require.NoError(t, err)

	lower := "  " + toLowerNoDash(c.Code) + " "
	res, err := env.broker.Redeem(ctx, lower)
	require.NoError(t, err)
	assert.Equal(t, pair.SessionID, res.SessionID)
	assert.Equal(t, env.user.ID, res.User.ID)

	// The old refresh token is rotated out.
	_, err = env.issuer.Refresh(ctx, pair.SessionID, pair.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrTokenMismatch)

	_, err = env.broker.Redeem(ctx, c.Code)
	assert.ErrorIs(t, err, resume.ErrAlreadyUsed)
}

func TestRedeem_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed and unknown", func(t *testing.T) {
		env := newBrokerEnv(t)
		for _, in := range []string{"", "ABC", "ABCD-EFG1", "ABCD-EFGHI"} {
			_, err := env.broker.Redeem(ctx, in)
			assert.ErrorIs(t, err, resume.ErrInvalidCode, in)
		}
		_, err := env.broker.Redeem(ctx, "AAAA-BBBB")
		assert.ErrorIs(t, err, resume.ErrInvalidCode)
	})

	t.Run("expired", func(t *testing.T) {
		env := newBrokerEnv(t)
		pair, err := env.issuer.Issue(ctx, env.user)
		require.NoError(t, err)
		c, err := env.broker.RequestCode(ctx, pair.SessionID)
		require.NoError(t, err)

		env.advance(10 * time.Minute)
		_, err = env.broker.Redeem(ctx, c.Code)
		assert.ErrorIs(t, err, resume.ErrExpired)
	})

	t.Run("session revoked after issue consumes the code", func(t *testing.T) {
		env := newBrokerEnv(t)
		pair, err := env.issuer.Issue(ctx, env.user)
		require.NoError(t, err)
		c, err := env.broker.RequestCode(ctx, pair.SessionID)
		require.NoError(t, err)
		require.NoError(t, env.issuer.Revoke(ctx, pair.SessionID))

		_, err = env.broker.Redeem(ctx, c.Code)
		assert.ErrorIs(t, err, resume.ErrSessionRevoked)

		_, err = env.broker.Redeem(ctx, c.Code)
		assert.ErrorIs(t, err, resume.ErrAlreadyUsed)
	})

	t.Run("refresh after issue invalidates the code", func(t *testing.T) {
		env := newBrokerEnv(t)
		pair, err := env.issuer.Issue(ctx, env.user)
		require.NoError(t, err)
		c, err := env.broker.RequestCode(ctx, pair.SessionID)
		require.NoError(t, err)

		_, err = env.issuer.Refresh(ctx, pair.SessionID, pair.RefreshToken)
		require.NoError(t, err)

		_, err = env.broker.Redeem(ctx, c.Code)
		assert.ErrorIs(t, err, auth.ErrTokenMismatch)
	})

	t.Run("inactive user", func(t *testing.T) {
		env := newBrokerEnv(t)
		pair, err := env.issuer.Issue(ctx, env.user)
		require.NoError(t, err)
		c, err := env.broker.RequestCode(ctx, pair.SessionID)
		require.NoError(t, err)
		env.user.IsActive = false

		_, err = env.broker.Redeem(ctx, c.Code)
		assert.ErrorIs(t, err, auth.ErrInactiveUser)
	})
}

func TestRedeem_ConcurrentSingleWinner(t *testing.T) {
	env := newBrokerEnv(t)
	ctx := context.Background()
	pair, err := env.issuer.Issue(ctx, env.user)
	require.NoError(t, err)
	c, err := env.broker.RequestCode(ctx, pair.SessionID)
	require.NoError(t, err)

	const n = 6
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.broker.Redeem(ctx, c.Code)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, resume.ErrAlreadyUsed)
	}
	assert.Equal(t, 1, wins)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"ABCD-EFGH", "ABCD-EFGH", true},
		{"abcdefgh", "ABCD-EFGH", true},
		{"  abcd-efgh\n", "ABCD-EFGH", true},
		{"ABCD-EFG0", "", false},
		{"ABCD", "", false},
	}
	for _, tt := range tests {
		got, ok := resume.Normalize(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func toLowerNoDash(code string) string {
	out := make([]byte, 0, len(code))
	for i := 0; i < len(code); i++ {
		ch := code[i]
		if ch == '-' {
			continue
		}
		if ch >= 'A' && ch <= 'Z' {
			ch += 'a' - 'A'
		}
		out = append(out, ch)
	}
	return string(out)
}

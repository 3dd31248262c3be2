package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/brinkadata/brinkadata-platform/internal/account"
	"github.com/brinkadata/brinkadata-platform/internal/auth"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
)

// mockAccounts implements account.Repository with function fields.
type mockAccounts struct {
	createWithOwnerFn func(ctx context.Context, a *account.Account, u *account.User) error
	getUserByEmailFn  func(ctx context.Context, email string) (*account.User, error)
	getUserByIDFn     func(ctx context.Context, id int64) (*account.User, error)
}

func (m *mockAccounts) CreateWithOwner(ctx context.Context, a *account.Account, u *account.User) error {
	if m.createWithOwnerFn != nil {
		return m.createWithOwnerFn(ctx, a, u)
	}
	return errors.New("not implemented")
}

func (m *mockAccounts) GetAccount(ctx context.Context, id int64) (*account.Account, error) {
	return nil, account.ErrAccountNotFound
}

func (m *mockAccounts) GetUserByID(ctx context.Context, id int64) (*account.User, error) {
	if m.getUserByIDFn != nil {
		return m.getUserByIDFn(ctx, id)
	}
	return nil, account.ErrUserNotFound
}

func (m *mockAccounts) GetUserByEmail(ctx context.Context, email string) (*account.User, error) {
	if m.getUserByEmailFn != nil {
		return m.getUserByEmailFn(ctx, email)
	}
	return nil, account.ErrUserNotFound
}

func (m *mockAccounts) SetUserRole(ctx context.Context, userID int64, role entitlements.Role) error {
	return nil
}

func (m *mockAccounts) ListAccounts(ctx context.Context) ([]account.Summary, error) {
	return []account.Summary{}, nil
}

func hashPassword(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func userWithPassword(t *testing.T, pw string) *account.User {
	u := activeUser()
	u.PasswordHash = hashPassword(t, pw)
	return u
}

func TestRegister(t *testing.T) {
	env := newIssuerEnv(t)
	var created *account.User
	repo := &mockAccounts{
		createWithOwnerFn: func(_ context.Context, a *account.Account, u *account.User) error {
			a.ID = 3
			u.ID = 30
			u.AccountID = a.ID
			u.Role = entitlements.RoleOwner
			u.IsActive = true
			created = u
			return nil
		},
	}
	svc := auth.NewService(repo, env.issuer, bcrypt.MinCost)

	res, err := svc.Register(context.Background(), "  New@Example.COM ", "password123", "")
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.Equal(t, "new@example.com", created.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("password123")))
	assert.Equal(t, int64(30), res.User.ID)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, 1, env.sessions.Len())
}

func TestRegister_EmailTaken(t *testing.T) {
	env := newIssuerEnv(t)
	repo := &mockAccounts{
		createWithOwnerFn: func(context.Context, *account.Account, *account.User) error {
			return account.ErrEmailTaken
		},
	}
	svc := auth.NewService(repo, env.issuer, bcrypt.MinCost)

	_, err := svc.Register(context.Background(), "dup@example.com", "password123", "Dup")
	assert.ErrorIs(t, err, account.ErrEmailTaken)
	assert.Equal(t, 0, env.sessions.Len())
}

func TestLogin(t *testing.T) {
	env := newIssuerEnv(t)
	user := userWithPassword(t, "correct-horse")
	repo := &mockAccounts{
		getUserByEmailFn: func(_ context.Context, email string) (*account.User, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, account.ErrUserNotFound
		},
	}
	svc := auth.NewService(repo, env.issuer, bcrypt.MinCost)
	ctx := context.Background()

	res, err := svc.Login(ctx, "A@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.User.ID)

	_, err = svc.Login(ctx, user.Email, "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	user.IsActive = false
	_, err = svc.Login(ctx, user.Email, "correct-horse")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLogout(t *testing.T) {
	env := newIssuerEnv(t)
	svc := auth.NewService(&mockAccounts{}, env.issuer, bcrypt.MinCost)
	ctx := context.Background()

	t.Run("mismatched token leaves session untouched", func(t *testing.T) {
		pair, err := env.issuer.Issue(ctx, activeUser())
		require.NoError(t, err)

		err = svc.Logout(ctx, pair.SessionID, "stale-token")
		assert.ErrorIs(t, err, auth.ErrTokenMismatch)

		_, err = env.issuer.ActiveSession(ctx, pair.SessionID)
		assert.NoError(t, err)
	})

	t.Run("matching token revokes", func(t *testing.T) {
		pair, err := env.issuer.Issue(ctx, activeUser())
		require.NoError(t, err)

		require.NoError(t, svc.Logout(ctx, pair.SessionID, pair.RefreshToken))
		_, err = env.issuer.ActiveSession(ctx, pair.SessionID)
		assert.ErrorIs(t, err, auth.ErrSessionInvalid)

		assert.NoError(t, svc.Logout(ctx, pair.SessionID, ""), "logout is idempotent")
	})

	t.Run("no token revokes", func(t *testing.T) {
		pair, err := env.issuer.Issue(ctx, activeUser())
		require.NoError(t, err)
		require.NoError(t, svc.Logout(ctx, pair.SessionID, ""))
		_, err = env.issuer.ActiveSession(ctx, pair.SessionID)
		assert.ErrorIs(t, err, auth.ErrSessionInvalid)
	})

	t.Run("unknown session is silent", func(t *testing.T) {
		pair, err := env.issuer.Issue(ctx, activeUser())
		require.NoError(t, err)
		assert.NoError(t, svc.Logout(ctx, uuid.New(), pair.RefreshToken))
	})
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/brinkadata/brinkadata-platform/internal/account"
)

// ErrInvalidCredentials is returned for any login failure: unknown email, wrong
// password or inactive user.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Service provides registration, login and logout.
type Service struct {
	accounts   account.Repository
	issuer     *Issuer
	bcryptCost int
	dummyHash  []byte
}

// NewService creates a new auth Service.
func NewService(accounts account.Repository, issuer *Issuer, bcryptCost int) *Service {
	// Compared against on unknown emails so both failure paths pay for one bcrypt.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("brinkadata-dummy-password"), bcryptCost)
	return &Service{
		accounts:   accounts,
		issuer:     issuer,
		bcryptCost: bcryptCost,
		dummyHash:  dummy,
	}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account owned by a new user and logs the user in.
// accountName defaults to the email address.
func (s *Service) Register(ctx context.Context, email, password, accountName string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	accountName = strings.TrimSpace(accountName)
	if accountName == "" {
		accountName = email
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	a := &account.Account{Name: accountName}
	u := &account.User{Email: email, PasswordHash: string(hash)}
	if err := s.accounts.CreateWithOwner(ctx, a, u); err != nil {
		return nil, err
	}

	pair, err := s.issuer.Issue(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("issuing session: %w", err)
	}
	return &LoginResult{TokenPair: *pair, User: u}, nil
}

// Login verifies credentials and issues a new session.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.accounts.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, account.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issuer.Issue(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("issuing session: %w", err)
	}
	return &LoginResult{TokenPair: *pair, User: u}, nil
}

// Refresh rotates the session's refresh token.
func (s *Service) Refresh(ctx context.Context, sessionID uuid.UUID, refreshToken string) (*TokenPair, error) {
	return s.issuer.Refresh(ctx, sessionID, refreshToken)
}

// Logout revokes a session. An unknown session is a silent success. When a refresh
// token is supplied it must match the session's current token, otherwise the session
// is left untouched and ErrTokenMismatch is returned.
func (s *Service) Logout(ctx context.Context, sessionID uuid.UUID, refreshToken string) error {
	sess, err := s.issuer.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("loading session: %w", err)
	}

	if refreshToken != "" && !TokenMatches(refreshToken, sess.RefreshTokenHash) {
		return ErrTokenMismatch
	}
	return s.issuer.Revoke(ctx, sessionID)
}

// Package client talks to the platform HTTP API on behalf of a UI session. Every
// call that changes who is logged in or where the user should land stages a pending
// action instead of mutating the session state directly; Render applies them at the
// top of the next pass.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brinkadata/brinkadata-platform/internal/api/response"
	"github.com/brinkadata/brinkadata-platform/internal/pending"
)

const defaultHTTPTimeout = 15 * time.Second

// Pages staged for navigation.
const (
	PageLogin    = "Login"
	PageAnalyzer = "Analyzer"
)

// ErrNotLoggedIn is returned by calls that need a session the state does not hold.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Code returns the envelope error code of err, or "" when err is not an APIError.
func Code(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// Client is a thin JSON client for the platform API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client. A nil httpClient gets a default with a timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *response.Error `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= 300 || env.Error != nil {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding %s %s data: %w", method, path, err)
		}
	}
	return nil
}

// LoginResponse is the body of login, register and resume.
type LoginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	SessionID    string       `json:"session_id"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	User         pending.User `json:"user"`
}

// TokenPair is the body of refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
	ExpiresIn    int    `json:"expires_in"`
}

// ResumeCode is the body of a resume code request.
type ResumeCode struct {
	ResumeCode string    `json:"resume_code"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Session binds a Client to the per-user UI state.
type Session struct {
	client *Client
	State  pending.State
}

// NewSession creates an empty, logged-out session.
func NewSession(c *Client) *Session {
	return &Session{client: c}
}

// Login authenticates and stages the login for the next render.
func (s *Session) Login(ctx context.Context, email, password string) error {
	var out LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := s.client.do(ctx, http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return err
	}
	return s.stageLogin(&out)
}

// Register creates an account and stages the login for the next render.
func (s *Session) Register(ctx context.Context, email, password, accountName string) error {
	var out LoginResponse
	body := map[string]string{"email": email, "password": password}
	if accountName != "" {
		body["account_name"] = accountName
	}
	if err := s.client.do(ctx, http.MethodPost, "/auth/register", "", body, &out); err != nil {
		return err
	}
	return s.stageLogin(&out)
}

// Resume redeems a resume code and stages the restored login.
func (s *Session) Resume(ctx context.Context, code string) error {
	var out LoginResponse
	body := map[string]string{"resume_code": code}
	if err := s.client.do(ctx, http.MethodPost, "/auth/resume", "", body, &out); err != nil {
		return err
	}
	return s.stageLogin(&out)
}

// RequestResume asks for a resume code bound to the current session.
func (s *Session) RequestResume(ctx context.Context) (*ResumeCode, error) {
	if s.State.AccessToken == "" {
		return nil, ErrNotLoggedIn
	}
	var out ResumeCode
	if err := s.client.do(ctx, http.MethodPost, "/auth/resume/request", s.State.AccessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh rotates the token pair and stages the new tokens.
func (s *Session) Refresh(ctx context.Context) error {
	if s.State.SessionID == "" || s.State.RefreshToken == "" {
		return ErrNotLoggedIn
	}
	var out TokenPair
	body := map[string]string{"session_id": s.State.SessionID, "refresh_token": s.State.RefreshToken}
	if err := s.client.do(ctx, http.MethodPost, "/auth/refresh", "", body, &out); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{
		"access_token":  out.AccessToken,
		"refresh_token": out.RefreshToken,
		"session_id":    out.SessionID,
	})
	if err != nil {
		return err
	}
	s.State.Pending.Auth = payload
	return nil
}

// Logout revokes the session server-side and stages a cleared login. The local
// logout is staged even when the server call fails.
func (s *Session) Logout(ctx context.Context) error {
	var err error
	if s.State.SessionID != "" {
		body := map[string]string{"session_id": s.State.SessionID, "refresh_token": s.State.RefreshToken}
		err = s.client.do(ctx, http.MethodPost, "/auth/logout", "", body, nil)
	}

	s.State.Pending.Auth = json.RawMessage(`{"access_token":null,"refresh_token":null,"session_id":null,"current_user":null}`)
	s.State.Pending.Nav = PageLogin
	return err
}

// Capabilities fetches the caller's entitlements and caches them in the state.
func (s *Session) Capabilities(ctx context.Context) (*pending.Capabilities, error) {
	if s.State.AccessToken == "" {
		return nil, ErrNotLoggedIn
	}
	var out pending.Capabilities
	if err := s.client.do(ctx, http.MethodGet, "/auth/capabilities", s.State.AccessToken, nil, &out); err != nil {
		return nil, err
	}
	s.State.Capabilities = &out
	return &out, nil
}

// Render applies staged actions once. The caller renders another pass when
// needsRerun is true; errs carries payload problems to show the user.
func (s *Session) Render() (needsRerun bool, errs []error) {
	s.State, needsRerun, errs = pending.Apply(s.State)
	return needsRerun, errs
}

func (s *Session) stageLogin(out *LoginResponse) error {
	payload, err := json.Marshal(struct {
		AccessToken  string       `json:"access_token"`
		RefreshToken string       `json:"refresh_token"`
		SessionID    string       `json:"session_id"`
		CurrentUser  pending.User `json:"current_user"`
	}{out.AccessToken, out.RefreshToken, out.SessionID, out.User})
	if err != nil {
		return err
	}
	s.State.Pending.Auth = payload
	s.State.Pending.Nav = PageAnalyzer
	return nil
}

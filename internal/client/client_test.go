package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brinkadata/brinkadata-platform/internal/api/response"
	"github.com/brinkadata/brinkadata-platform/internal/pending"
)

func loginBody() map[string]any {
	return map[string]any{
		"access_token":  "access-1",
		"refresh_token": "refresh-1",
		"session_id":    "6f1c1d5e-8f52-4b7e-9a51-0d0c6b2f8a11",
		"token_type":    "bearer",
		"expires_in":    900,
		"user": map[string]any{
			"id":         11,
			"email":      "owner@example.com",
			"account_id": 7,
			"role":       "owner",
		},
	}
}

type fakeAPI struct {
	lastAuth   string
	lastBody   map[string]string
	logoutCode int
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	record := func(r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		f.lastBody = nil
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
	}

	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if f.lastBody["password"] != "correct horse" {
			response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, "Invalid email or password", "")
			return
		}
		response.Success(w, http.StatusOK, loginBody(), "")
	})
	r.Post("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		response.Success(w, http.StatusCreated, loginBody(), "")
	})
	r.Post("/auth/resume", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if f.lastBody["resume_code"] != "ABCD2345" {
			response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, "Please log in again", "")
			return
		}
		response.Success(w, http.StatusOK, loginBody(), "")
	})
	r.Post("/auth/resume/request", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		response.Success(w, http.StatusCreated, map[string]any{
			"resume_code": "ABCD2345",
			"expires_at":  "2026-03-01T12:10:00Z",
		}, "")
	})
	r.Post("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		response.Success(w, http.StatusOK, map[string]any{
			"access_token":  "access-2",
			"refresh_token": "refresh-2",
			"session_id":    f.lastBody["session_id"],
			"token_type":    "bearer",
			"expires_in":    900,
		}, "")
	})
	r.Post("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if f.logoutCode != 0 {
			response.Err(w, f.logoutCode, response.CodeInternal, "An internal error occurred", "")
			return
		}
		response.NoContent(w)
	})
	r.Get("/auth/capabilities", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		response.Success(w, http.StatusOK, map[string]any{
			"plan":                "pro",
			"effective_plan":      "pro",
			"role":                "owner",
			"subscription_status": "active",
			"capabilities":        []string{"asset:view", "asset:manage"},
			"limits":              map[string]any{"saved_deals": 250},
		}, "")
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newSession(t *testing.T) (*Session, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := api.server(t)
	return NewSession(New(srv.URL+"/", srv.Client())), api
}

func loggedIn(t *testing.T) (*Session, *fakeAPI) {
	t.Helper()
	s, api := newSession(t)
	require.NoError(t, s.Login(context.Background(), "owner@example.com", "correct horse"))
	rerun, errs := s.Render()
	require.True(t, rerun)
	require.Empty(t, errs)
	return s, api
}

func TestLogin_StagesThenApplies(t *testing.T) {
	s, _ := newSession(t)

	require.NoError(t, s.Login(context.Background(), "owner@example.com", "correct horse"))

	assert.False(t, s.State.Authenticated, "login must not apply before render")
	assert.NotEmpty(t, s.State.Pending.Auth)
	assert.Equal(t, PageAnalyzer, s.State.Pending.Nav)

	rerun, errs := s.Render()
	assert.True(t, rerun)
	assert.Empty(t, errs)
	assert.True(t, s.State.Authenticated)
	assert.Equal(t, "access-1", s.State.AccessToken)
	assert.Equal(t, "refresh-1", s.State.RefreshToken)
	require.NotNil(t, s.State.User)
	assert.Equal(t, "owner@example.com", s.State.User.Email)
	require.NotNil(t, s.State.AccountID)
	assert.Equal(t, int64(7), *s.State.AccountID)
	assert.Equal(t, "owner", s.State.Role)
	assert.Equal(t, PageAnalyzer, s.State.NavPage)
	assert.True(t, s.State.Pending.Empty())

	rerun, _ = s.Render()
	assert.False(t, rerun, "second pass has nothing to apply")
}

func TestLogin_BadCredentials(t *testing.T) {
	s, _ := newSession(t)

	err := s.Login(context.Background(), "owner@example.com", "wrong")

	require.Error(t, err)
	assert.Equal(t, response.CodeUnauthorized, Code(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
	assert.True(t, s.State.Pending.Empty())
}

func TestRegister_SendsAccountName(t *testing.T) {
	s, api := newSession(t)

	require.NoError(t, s.Register(context.Background(), "new@example.com", "correct horse", "Acme"))

	assert.Equal(t, "Acme", api.lastBody["account_name"])
	assert.Equal(t, PageAnalyzer, s.State.Pending.Nav)
}

func TestRegister_OmitsEmptyAccountName(t *testing.T) {
	s, api := newSession(t)

	require.NoError(t, s.Register(context.Background(), "new@example.com", "correct horse", ""))

	_, ok := api.lastBody["account_name"]
	assert.False(t, ok)
}

func TestResume(t *testing.T) {
	s, _ := newSession(t)

	require.NoError(t, s.Resume(context.Background(), "ABCD2345"))
	s.Render()
	assert.True(t, s.State.Authenticated)

	s2, _ := newSession(t)
	err := s2.Resume(context.Background(), "nope")
	assert.Equal(t, response.CodeUnauthorized, Code(err))
}

func TestRequestResume_UsesBearer(t *testing.T) {
	s, api := loggedIn(t)

	code, err := s.RequestResume(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "ABCD2345", code.ResumeCode)
	assert.Equal(t, "Bearer access-1", api.lastAuth)
}

func TestRefresh_StagesPartialAuth(t *testing.T) {
	s, api := loggedIn(t)
	user := s.State.User

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, "refresh-1", api.lastBody["refresh_token"])
	assert.Equal(t, "access-1", s.State.AccessToken, "refresh applies on render")

	rerun, errs := s.Render()
	assert.True(t, rerun)
	assert.Empty(t, errs)
	assert.Equal(t, "access-2", s.State.AccessToken)
	assert.Equal(t, "refresh-2", s.State.RefreshToken)
	assert.Equal(t, user, s.State.User)
	assert.True(t, s.State.Authenticated)
}

func TestLogout_ClearsOnRender(t *testing.T) {
	s, api := loggedIn(t)
	_, err := s.Capabilities(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Logout(context.Background()))
	assert.Equal(t, "refresh-1", api.lastBody["refresh_token"])

	s.Render()
	assert.False(t, s.State.Authenticated)
	assert.Empty(t, s.State.AccessToken)
	assert.Empty(t, s.State.SessionID)
	assert.Nil(t, s.State.User)
	assert.Nil(t, s.State.AccountID)
	assert.Nil(t, s.State.Capabilities)
	assert.Empty(t, s.State.Plan)
	assert.Equal(t, PageLogin, s.State.NavPage)
}

func TestLogout_ServerErrorStillStagesLocalLogout(t *testing.T) {
	s, api := loggedIn(t)
	api.logoutCode = http.StatusInternalServerError

	err := s.Logout(context.Background())

	assert.Equal(t, response.CodeInternal, Code(err))
	assert.Equal(t, PageLogin, s.State.Pending.Nav)
	s.Render()
	assert.False(t, s.State.Authenticated)
}

func TestCapabilities_Cached(t *testing.T) {
	s, api := loggedIn(t)

	caps, err := s.Capabilities(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Bearer access-1", api.lastAuth)
	assert.Equal(t, "pro", caps.Plan)
	assert.True(t, s.State.Capabilities.Has("asset:manage"))

	s.Render()
	assert.Equal(t, "pro", s.State.Plan)
}

func TestNotLoggedIn(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	_, err := s.Capabilities(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = s.RequestResume(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.ErrorIs(t, s.Refresh(ctx), ErrNotLoggedIn)
}

func TestRender_MalformedStagedPayload(t *testing.T) {
	s, _ := newSession(t)
	s.State.Pending = pending.Pending{Auth: json.RawMessage(`[1,2]`)}

	rerun, errs := s.Render()

	assert.True(t, rerun)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], pending.ErrMalformedPayload)
	assert.True(t, s.State.Pending.Empty())
}

func TestCode_NonAPIError(t *testing.T) {
	assert.Equal(t, "", Code(ErrNotLoggedIn))
}

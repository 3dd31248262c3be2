package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brinkadata/brinkadata-platform/internal/account"
	"github.com/brinkadata/brinkadata-platform/internal/api/middleware"
	"github.com/brinkadata/brinkadata-platform/internal/api/response"
	"github.com/brinkadata/brinkadata-platform/internal/api/validation"
	"github.com/brinkadata/brinkadata-platform/internal/auth"
	"github.com/brinkadata/brinkadata-platform/internal/resume"
)

const maxBodyBytes = 1 << 20

// AuthService is the subset of auth.Service used by AuthHandler.
type AuthService interface {
	Register(ctx context.Context, email, password, accountName string) (*auth.LoginResult, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Refresh(ctx context.Context, sessionID uuid.UUID, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, sessionID uuid.UUID, refreshToken string) error
}

// ResumeBroker is the subset of resume.Broker used by AuthHandler.
type ResumeBroker interface {
	RequestCode(ctx context.Context, sessionID uuid.UUID) (*resume.Code, error)
	Redeem(ctx context.Context, code string) (*auth.LoginResult, error)
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	AccountName string `json:"account_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionRequest struct {
	SessionID    string `json:"session_id"`
	RefreshToken string `json:"refresh_token"`
}

type resumeRequest struct {
	ResumeCode string `json:"resume_code"`
}

type userResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	AccountID int64  `json:"account_id"`
	Role      string `json:"role"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	SessionID        string    `json:"session_id"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int       `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type loginResponse struct {
	tokenResponse
	User userResponse `json:"user"`
}

type resumeCodeResponse struct {
	ResumeCode string    `json:"resume_code"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func toUserResponse(u *account.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		AccountID: u.AccountID,
		Role:      string(u.Role),
	}
}

func toTokenResponse(p *auth.TokenPair, now time.Time) tokenResponse {
	return tokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		SessionID:        p.SessionID.String(),
		TokenType:        "bearer",
		ExpiresIn:        int(p.AccessExpiresAt.Sub(now).Seconds()),
		RefreshExpiresAt: p.RefreshExpiresAt.UTC(),
	}
}

func toLoginResponse(res *auth.LoginResult, now time.Time) loginResponse {
	return loginResponse{
		tokenResponse: toTokenResponse(&res.TokenPair, now),
		User:          toUserResponse(res.User),
	}
}

// AuthHandler handles the /auth endpoints.
type AuthHandler struct {
	svc    AuthService
	broker ResumeBroker
	now    func() time.Time
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc AuthService, broker ResumeBroker) *AuthHandler {
	return &AuthHandler{svc: svc, broker: broker, now: time.Now}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.AccountName = strings.TrimSpace(req.AccountName)

	if errs := validation.ValidateRegister(validation.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		AccountName: req.AccountName,
	}); len(errs) > 0 {
		validationFailed(w, errs, requestID)
		return
	}

	res, err := h.svc.Register(r.Context(), req.Email, req.Password, req.AccountName)
	if err != nil {
		writeError(w, r, err, "register user")
		return
	}

	response.Success(w, http.StatusCreated, toLoginResponse(res, h.now()), requestID)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	if errs := validation.ValidateLogin(req.Email, req.Password); len(errs) > 0 {
		validationFailed(w, errs, requestID)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err, "log in")
		return
	}

	response.Success(w, http.StatusOK, toLoginResponse(res, h.now()), requestID)
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	sessionID, req, ok := h.decodeSessionRequest(w, r, true)
	if !ok {
		return
	}

	pair, err := h.svc.Refresh(r.Context(), sessionID, req.RefreshToken)
	if err != nil {
		writeError(w, r, err, "refresh session")
		return
	}

	response.Success(w, http.StatusOK, toTokenResponse(pair, h.now()), requestID)
}

// Logout handles POST /auth/logout. Logging out an unknown session succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, req, ok := h.decodeSessionRequest(w, r, false)
	if !ok {
		return
	}

	if err := h.svc.Logout(r.Context(), sessionID, req.RefreshToken); err != nil {
		writeError(w, r, err, "log out")
		return
	}

	response.NoContent(w)
}

// RequestResume handles POST /auth/resume/request for the caller's session.
func (h *AuthHandler) RequestResume(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}

	code, err := h.broker.RequestCode(r.Context(), identity.SessionID)
	if err != nil {
		writeError(w, r, err, "issue resume code")
		return
	}

	response.Success(w, http.StatusCreated, resumeCodeResponse{
		ResumeCode: code.Code,
		ExpiresAt:  code.ExpiresAt.UTC(),
	}, middleware.GetRequestID(r.Context()))
}

// Resume handles POST /auth/resume.
func (h *AuthHandler) Resume(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req resumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ResumeCode) == "" {
		validationFailed(w, []validation.FieldError{{Field: "resume_code", Message: "resume_code is required"}}, requestID)
		return
	}

	res, err := h.broker.Redeem(r.Context(), req.ResumeCode)
	if err != nil {
		// A code holder is not yet authenticated, so account state stays hidden.
		if errors.Is(err, auth.ErrInactiveUser) {
			slog.Info("authentication rejected", "action", "redeem resume code", "reason", err.Error(), "requestId", requestID)
			response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, middleware.MsgLoginAgain, requestID)
			return
		}
		writeError(w, r, err, "redeem resume code")
		return
	}

	response.Success(w, http.StatusOK, toLoginResponse(res, h.now()), requestID)
}

func (h *AuthHandler) decodeSessionRequest(w http.ResponseWriter, r *http.Request, tokenRequired bool) (uuid.UUID, sessionRequest, bool) {
	requestID := middleware.GetRequestID(r.Context())

	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return uuid.Nil, req, false
	}
	req.SessionID = strings.TrimSpace(req.SessionID)

	if errs := validation.ValidateSessionRequest(req.SessionID, req.RefreshToken, tokenRequired); len(errs) > 0 {
		validationFailed(w, errs, requestID)
		return uuid.Nil, req, false
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidID, "session_id must be a valid UUID", requestID)
		return uuid.Nil, req, false
	}
	return sessionID, req, true
}

// decodeBody decodes a JSON request body into dst, writing 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidJSON, "Request body must be valid JSON", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

func validationFailed(w http.ResponseWriter, errs []validation.FieldError, requestID string) {
	response.ErrWithDetails(w, http.StatusBadRequest, response.CodeValidation, "Input validation failed", errs, requestID)
}

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/brinkadata/brinkadata-platform/internal/account"
	"github.com/brinkadata/brinkadata-platform/internal/api/middleware"
	"github.com/brinkadata/brinkadata-platform/internal/asset"
	"github.com/brinkadata/brinkadata-platform/internal/auth"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
	"github.com/brinkadata/brinkadata-platform/internal/resume"
	"github.com/brinkadata/brinkadata-platform/internal/scenario"
	"github.com/brinkadata/brinkadata-platform/internal/subscription"
)

var errNotImplemented = errors.New("not implemented")

type mockAuthService struct {
	registerFn func(ctx context.Context, email, password, accountName string) (*auth.LoginResult, error)
	loginFn    func(ctx context.Context, email, password string) (*auth.LoginResult, error)
	refreshFn  func(ctx context.Context, sessionID uuid.UUID, refreshToken string) (*auth.TokenPair, error)
	logoutFn   func(ctx context.Context, sessionID uuid.UUID, refreshToken string) error
}

func (m *mockAuthService) Register(ctx context.Context, email, password, accountName string) (*auth.LoginResult, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, password, accountName)
	}
	return nil, errNotImplemented
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, errNotImplemented
}

func (m *mockAuthService) Refresh(ctx context.Context, sessionID uuid.UUID, refreshToken string) (*auth.TokenPair, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, sessionID, refreshToken)
	}
	return nil, errNotImplemented
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID uuid.UUID, refreshToken string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID, refreshToken)
	}
	return errNotImplemented
}

type mockBroker struct {
	requestCodeFn func(ctx context.Context, sessionID uuid.UUID) (*resume.Code, error)
	redeemFn      func(ctx context.Context, code string) (*auth.LoginResult, error)
}

func (m *mockBroker) RequestCode(ctx context.Context, sessionID uuid.UUID) (*resume.Code, error) {
	if m.requestCodeFn != nil {
		return m.requestCodeFn(ctx, sessionID)
	}
	return nil, errNotImplemented
}

func (m *mockBroker) Redeem(ctx context.Context, code string) (*auth.LoginResult, error) {
	if m.redeemFn != nil {
		return m.redeemFn(ctx, code)
	}
	return nil, errNotImplemented
}

type mockAccounts struct {
	getAccountFn   func(ctx context.Context, id int64) (*account.Account, error)
	setUserRoleFn  func(ctx context.Context, userID int64, role entitlements.Role) error
	listAccountsFn func(ctx context.Context) ([]account.Summary, error)
}

func (m *mockAccounts) GetAccount(ctx context.Context, id int64) (*account.Account, error) {
	if m.getAccountFn != nil {
		return m.getAccountFn(ctx, id)
	}
	return nil, account.ErrAccountNotFound
}

func (m *mockAccounts) SetUserRole(ctx context.Context, userID int64, role entitlements.Role) error {
	if m.setUserRoleFn != nil {
		return m.setUserRoleFn(ctx, userID, role)
	}
	return errNotImplemented
}

func (m *mockAccounts) ListAccounts(ctx context.Context) ([]account.Summary, error) {
	if m.listAccountsFn != nil {
		return m.listAccountsFn(ctx)
	}
	return nil, errNotImplemented
}

type mockSubscriptions struct {
	setPlanFn   func(ctx context.Context, accountID int64, plan entitlements.Plan) (*subscription.Subscription, error)
	setStatusFn func(ctx context.Context, accountID int64, status entitlements.Status) (*subscription.Subscription, error)
}

func (m *mockSubscriptions) SetPlan(ctx context.Context, accountID int64, plan entitlements.Plan) (*subscription.Subscription, error) {
	if m.setPlanFn != nil {
		return m.setPlanFn(ctx, accountID, plan)
	}
	return nil, errNotImplemented
}

func (m *mockSubscriptions) SetStatus(ctx context.Context, accountID int64, status entitlements.Status) (*subscription.Subscription, error) {
	if m.setStatusFn != nil {
		return m.setStatusFn(ctx, accountID, status)
	}
	return nil, errNotImplemented
}

// mockAssets implements asset.Repository with function fields.
type mockAssets struct {
	createFn  func(ctx context.Context, accountID int64, a *asset.Asset) error
	getFn     func(ctx context.Context, accountID, id int64) (*asset.Asset, error)
	listFn    func(ctx context.Context, accountID int64, filter asset.ListFilter) (*asset.ListResult, error)
	countFn   func(ctx context.Context, accountID int64) (int, error)
	updateFn  func(ctx context.Context, accountID, id int64, fields asset.UpdateFields) (*asset.Asset, error)
	deleteFn  func(ctx context.Context, accountID, id int64) error
	trashFn   func(ctx context.Context, accountID int64) ([]asset.Asset, error)
	restoreFn func(ctx context.Context, accountID, id int64) (*asset.Asset, error)
}

func (m *mockAssets) Create(ctx context.Context, accountID int64, a *asset.Asset) error {
	if m.createFn != nil {
		return m.createFn(ctx, accountID, a)
	}
	return errNotImplemented
}

func (m *mockAssets) Get(ctx context.Context, accountID, id int64) (*asset.Asset, error) {
	if m.getFn != nil {
		return m.getFn(ctx, accountID, id)
	}
	return nil, asset.ErrNotFound
}

func (m *mockAssets) List(ctx context.Context, accountID int64, filter asset.ListFilter) (*asset.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, accountID, filter)
	}
	return &asset.ListResult{Assets: []asset.Asset{}, Limit: asset.DefaultLimit}, nil
}

func (m *mockAssets) Count(ctx context.Context, accountID int64) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, accountID)
	}
	return 0, nil
}

func (m *mockAssets) Update(ctx context.Context, accountID, id int64, fields asset.UpdateFields) (*asset.Asset, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, accountID, id, fields)
	}
	return nil, asset.ErrNotFound
}

func (m *mockAssets) Delete(ctx context.Context, accountID, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, accountID, id)
	}
	return asset.ErrNotFound
}

func (m *mockAssets) ListTrash(ctx context.Context, accountID int64) ([]asset.Asset, error) {
	if m.trashFn != nil {
		return m.trashFn(ctx, accountID)
	}
	return []asset.Asset{}, nil
}

func (m *mockAssets) Restore(ctx context.Context, accountID, id int64) (*asset.Asset, error) {
	if m.restoreFn != nil {
		return m.restoreFn(ctx, accountID, id)
	}
	return nil, asset.ErrNotFound
}

// mockScenarios implements scenario.Repository with function fields.
type mockScenarios struct {
	saveFn  func(ctx context.Context, accountID int64, s *scenario.Scenario) (bool, error)
	listFn  func(ctx context.Context, accountID, assetID int64) ([]scenario.Scenario, error)
	clearFn func(ctx context.Context, accountID, assetID int64, slot string) error
	countFn func(ctx context.Context, accountID int64) (int, error)
}

func (m *mockScenarios) Save(ctx context.Context, accountID int64, s *scenario.Scenario) (bool, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, accountID, s)
	}
	return false, errNotImplemented
}

func (m *mockScenarios) List(ctx context.Context, accountID, assetID int64) ([]scenario.Scenario, error) {
	if m.listFn != nil {
		return m.listFn(ctx, accountID, assetID)
	}
	return []scenario.Scenario{}, nil
}

func (m *mockScenarios) Clear(ctx context.Context, accountID, assetID int64, slot string) error {
	if m.clearFn != nil {
		return m.clearFn(ctx, accountID, assetID, slot)
	}
	return nil
}

func (m *mockScenarios) Count(ctx context.Context, accountID int64) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, accountID)
	}
	return 0, nil
}

// --- helpers ---

func testIdentity(role entitlements.Role, plan entitlements.Plan, status entitlements.Status) *auth.Identity {
	sub := entitlements.Subscription{Status: status, PlanName: plan}
	effective := entitlements.EffectivePlan(sub)
	return &auth.Identity{
		UserID:    11,
		Email:     "owner@example.com",
		AccountID: 7,
		Role:      role,
		SessionID: uuid.New(),
		Entitlements: &entitlements.Entitlements{
			Role:          role,
			Status:        status,
			Plan:          plan,
			EffectivePlan: effective,
			Capabilities:  entitlements.Capabilities(role, sub),
			Limits:        entitlements.LimitsFor(effective),
		},
	}
}

func proOwner() *auth.Identity {
	return testIdentity(entitlements.RoleOwner, entitlements.PlanPro, entitlements.StatusActive)
}

func newRequest(t *testing.T, method, target string, body any, identity *auth.Identity) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if identity != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), identity))
	}
	return req
}

func parseEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	return env
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	data, ok := parseEnvelope(t, w)["data"].(map[string]any)
	require.True(t, ok, "response data should be an object: %s", w.Body.String())
	return data
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) (code, message string) {
	t.Helper()
	errObj, ok := parseEnvelope(t, w)["error"].(map[string]any)
	require.True(t, ok, "response should carry an error object: %s", w.Body.String())
	return errObj["code"].(string), errObj["message"].(string)
}

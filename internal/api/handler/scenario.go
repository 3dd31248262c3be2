package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brinkadata/brinkadata-platform/internal/api/middleware"
	"github.com/brinkadata/brinkadata-platform/internal/api/response"
	"github.com/brinkadata/brinkadata-platform/internal/api/validation"
	"github.com/brinkadata/brinkadata-platform/internal/asset"
	"github.com/brinkadata/brinkadata-platform/internal/auth"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
	"github.com/brinkadata/brinkadata-platform/internal/scenario"
)

// AssetGetter loads one asset of an account.
type AssetGetter interface {
	Get(ctx context.Context, accountID, id int64) (*asset.Asset, error)
}

type scenarioRequest struct {
	Label   string          `json:"label"`
	Metrics json.RawMessage `json:"metrics"`
}

type scenarioResponse struct {
	ID        int64           `json:"id"`
	AssetID   int64           `json:"asset_id"`
	Slot      string          `json:"slot"`
	Label     string          `json:"label"`
	Metrics   json.RawMessage `json:"metrics"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

func toScenarioResponse(s *scenario.Scenario) scenarioResponse {
	metrics := s.Metrics
	if len(metrics) == 0 {
		metrics = json.RawMessage("{}")
	}
	return scenarioResponse{
		ID:        s.ID,
		AssetID:   s.AssetID,
		Slot:      s.Slot,
		Label:     s.Label,
		Metrics:   metrics,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ScenarioHandler handles /assets/{id}/scenarios. The asset must be visible to the
// caller; scenarios of trashed or foreign assets are reported as not found.
type ScenarioHandler struct {
	assets    AssetGetter
	scenarios scenario.Repository
}

// NewScenarioHandler creates a new ScenarioHandler.
func NewScenarioHandler(assets AssetGetter, scenarios scenario.Repository) *ScenarioHandler {
	return &ScenarioHandler{assets: assets, scenarios: scenarios}
}

// List handles GET /assets/{id}/scenarios.
func (h *ScenarioHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, assetID, ok := h.ownedAsset(w, r)
	if !ok {
		return
	}

	scenarios, err := h.scenarios.List(r.Context(), identity.AccountID, assetID)
	if err != nil {
		writeError(w, r, err, "list scenarios")
		return
	}

	items := make([]scenarioResponse, 0, len(scenarios))
	for i := range scenarios {
		items = append(items, toScenarioResponse(&scenarios[i]))
	}

	response.SuccessList(w, http.StatusOK, items, len(items), len(scenario.Slots), 0, middleware.GetRequestID(r.Context()))
}

// Save handles PUT /assets/{id}/scenarios/{slot}. Filling an empty slot counts
// against the scenarios quota; replacing a filled one does not.
func (h *ScenarioHandler) Save(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	slot, ok := parseSlot(w, r)
	if !ok {
		return
	}

	var req scenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Label = strings.TrimSpace(req.Label)
	if errs := validation.ValidateScenario(req.Label, req.Metrics); len(errs) > 0 {
		validationFailed(w, errs, requestID)
		return
	}

	identity, assetID, ok := h.ownedAsset(w, r)
	if !ok {
		return
	}

	existing, err := h.scenarios.List(r.Context(), identity.AccountID, assetID)
	if err != nil {
		writeError(w, r, err, "list scenarios")
		return
	}
	if !hasSlot(existing, slot) {
		count, err := h.scenarios.Count(r.Context(), identity.AccountID)
		if err != nil {
			writeError(w, r, err, "count scenarios")
			return
		}
		if err := identity.Entitlements.CheckQuota(entitlements.LimitScenarios, count); err != nil {
			writeError(w, r, err, "save scenario")
			return
		}
	}

	s := &scenario.Scenario{
		AssetID: assetID,
		Slot:    slot,
		Label:   req.Label,
		Metrics: req.Metrics,
	}
	created, err := h.scenarios.Save(r.Context(), identity.AccountID, s)
	if err != nil {
		writeError(w, r, err, "save scenario")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(w, status, toScenarioResponse(s), requestID)
}

// Clear handles DELETE /assets/{id}/scenarios/{slot}.
func (h *ScenarioHandler) Clear(w http.ResponseWriter, r *http.Request) {
	slot, ok := parseSlot(w, r)
	if !ok {
		return
	}
	identity, assetID, ok := h.ownedAsset(w, r)
	if !ok {
		return
	}

	if err := h.scenarios.Clear(r.Context(), identity.AccountID, assetID, slot); err != nil {
		writeError(w, r, err, "clear scenario")
		return
	}

	response.NoContent(w)
}

// ownedAsset resolves the caller and checks the {id} asset is visible to them.
func (h *ScenarioHandler) ownedAsset(w http.ResponseWriter, r *http.Request) (*auth.Identity, int64, bool) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return nil, 0, false
	}
	assetID, ok := parseAssetID(w, r)
	if !ok {
		return nil, 0, false
	}

	if _, err := h.assets.Get(r.Context(), identity.AccountID, assetID); err != nil {
		writeError(w, r, err, "get asset")
		return nil, 0, false
	}
	return identity, assetID, true
}

func parseSlot(w http.ResponseWriter, r *http.Request) (string, bool) {
	slot, ok := scenario.NormalizeSlot(chi.URLParam(r, "slot"))
	if !ok {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidParam, "slot must be one of A, B, C", middleware.GetRequestID(r.Context()))
		return "", false
	}
	return slot, true
}

func hasSlot(scenarios []scenario.Scenario, slot string) bool {
	for _, s := range scenarios {
		if s.Slot == slot {
			return true
		}
	}
	return false
}

package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brinkadata/brinkadata-platform/internal/api/middleware"
	"github.com/brinkadata/brinkadata-platform/internal/api/response"
	"github.com/brinkadata/brinkadata-platform/internal/api/validation"
	"github.com/brinkadata/brinkadata-platform/internal/asset"
	"github.com/brinkadata/brinkadata-platform/internal/entitlements"
)

// assetRequest is the request body for POST /assets and PATCH /assets/{id}.
type assetRequest struct {
	Name         *string         `json:"name"`
	AddressLine1 *string         `json:"address_line1"`
	AddressLine2 *string         `json:"address_line2"`
	City         *string         `json:"city"`
	State        *string         `json:"state"`
	PostalCode   *string         `json:"postal_code"`
	Country      *string         `json:"country"`
	Source       *string         `json:"source"`
	SourceRef    *string         `json:"source_ref"`
	PropertyData json.RawMessage `json:"property_data"`
}

func (req assetRequest) validationRequest() validation.AssetRequest {
	return validation.AssetRequest{
		Name:         req.Name,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		Country:      req.Country,
		Source:       req.Source,
		SourceRef:    req.SourceRef,
		PropertyData: req.PropertyData,
	}
}

// assetResponse is the API representation of an asset.
type assetResponse struct {
	ID           int64           `json:"id"`
	AccountID    int64           `json:"account_id"`
	CreatedBy    *int64          `json:"created_by"`
	Name         string          `json:"name"`
	AddressLine1 *string         `json:"address_line1"`
	AddressLine2 *string         `json:"address_line2"`
	City         *string         `json:"city"`
	State        *string         `json:"state"`
	PostalCode   *string         `json:"postal_code"`
	Country      string          `json:"country"`
	Source       string          `json:"source"`
	SourceRef    *string         `json:"source_ref"`
	PropertyData json.RawMessage `json:"property_data"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	DeletedAt    *string         `json:"deleted_at,omitempty"`
}

func toAssetResponse(a *asset.Asset) assetResponse {
	data := a.PropertyData
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	resp := assetResponse{
		ID:           a.ID,
		AccountID:    a.AccountID,
		CreatedBy:    a.CreatedBy,
		Name:         a.Name,
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2,
		City:         a.City,
		State:        a.State,
		PostalCode:   a.PostalCode,
		Country:      a.Country,
		Source:       a.Source,
		SourceRef:    a.SourceRef,
		PropertyData: data,
		CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if a.DeletedAt != nil {
		deleted := a.DeletedAt.UTC().Format(time.RFC3339)
		resp.DeletedAt = &deleted
	}
	return resp
}

// AssetHandler handles the /assets endpoints. Every call is scoped to the
// caller's account; assets of other accounts are reported as not found.
type AssetHandler struct {
	repo asset.Repository
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(repo asset.Repository) *AssetHandler {
	return &AssetHandler{repo: repo}
}

// Create handles POST /assets. It enforces the saved_deals quota of the
// effective plan before inserting.
func (h *AssetHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var req assetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	trimAssetRequest(&req)

	if errs := validation.ValidateCreateAsset(req.validationRequest()); len(errs) > 0 {
		validationFailed(w, errs, requestID)
		return
	}

	count, err := h.repo.Count(r.Context(), identity.AccountID)
	if err != nil {
		writeError(w, r, err, "count assets")
		return
	}
	if err := identity.Entitlements.CheckQuota(entitlements.LimitSavedDeals, count); err != nil {
		writeError(w, r, err, "create asset")
		return
	}

	userID := identity.UserID
	a := &asset.Asset{
		CreatedBy:    &userID,
		Name:         *req.Name,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		SourceRef:    req.SourceRef,
		PropertyData: req.PropertyData,
	}
	if req.Country != nil {
		a.Country = strings.ToUpper(*req.Country)
	}
	if req.Source != nil {
		a.Source = *req.Source
	}

	if err := h.repo.Create(r.Context(), identity.AccountID, a); err != nil {
		writeError(w, r, err, "create asset")
		return
	}

	response.Success(w, http.StatusCreated, toAssetResponse(a), requestID)
}

// List handles GET /assets.
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	filter := asset.ListFilter{}
	if v := strings.TrimSpace(r.URL.Query().Get("q")); v != "" {
		filter.Query = &v
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > asset.MaxLimit {
			response.Err(w, http.StatusBadRequest, response.CodeInvalidParam, "limit must be an integer between 1 and 200", requestID)
			return
		}
		filter.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 || offset > asset.MaxOffset {
			response.Err(w, http.StatusBadRequest, response.CodeInvalidParam, "offset must be an integer between 0 and 5000", requestID)
			return
		}
		filter.Offset = offset
	}

	result, err := h.repo.List(r.Context(), identity.AccountID, filter)
	if err != nil {
		writeError(w, r, err, "list assets")
		return
	}

	items := make([]assetResponse, 0, len(result.Assets))
	for i := range result.Assets {
		items = append(items, toAssetResponse(&result.Assets[i]))
	}

	response.SuccessList(w, http.StatusOK, items, result.Total, result.Limit, result.Offset, requestID)
}

// GetByID handles GET /assets/{id}.
func (h *AssetHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := parseAssetID(w, r)
	if !ok {
		return
	}

	a, err := h.repo.Get(r.Context(), identity.AccountID, id)
	if err != nil {
		writeError(w, r, err, "get asset")
		return
	}

	response.Success(w, http.StatusOK, toAssetResponse(a), middleware.GetRequestID(r.Context()))
}

// Update handles PATCH /assets/{id}.
func (h *AssetHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := parseAssetID(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var req assetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	trimAssetRequest(&req)

	if errs := validation.ValidateUpdateAsset(req.validationRequest()); len(errs) > 0 {
		validationFailed(w, errs, requestID)
		return
	}

	fields := asset.UpdateFields{
		Name:         req.Name,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		SourceRef:    req.SourceRef,
		PropertyData: req.PropertyData,
	}
	if req.Country != nil {
		country := strings.ToUpper(*req.Country)
		fields.Country = &country
	}

	a, err := h.repo.Update(r.Context(), identity.AccountID, id, fields)
	if err != nil {
		writeError(w, r, err, "update asset")
		return
	}

	response.Success(w, http.StatusOK, toAssetResponse(a), requestID)
}

// Delete handles DELETE /assets/{id}. The asset moves to the trash.
func (h *AssetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := parseAssetID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), identity.AccountID, id); err != nil {
		writeError(w, r, err, "delete asset")
		return
	}

	response.NoContent(w)
}

// Trash handles GET /assets/trash.
func (h *AssetHandler) Trash(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}

	assets, err := h.repo.ListTrash(r.Context(), identity.AccountID)
	if err != nil {
		writeError(w, r, err, "list trash")
		return
	}

	items := make([]assetResponse, 0, len(assets))
	for i := range assets {
		items = append(items, toAssetResponse(&assets[i]))
	}

	response.SuccessList(w, http.StatusOK, items, len(items), len(items), 0, middleware.GetRequestID(r.Context()))
}

// Restore handles POST /assets/{id}/restore. A restored asset counts against the
// saved_deals quota again, so the quota is checked first.
func (h *AssetHandler) Restore(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	id, ok := parseAssetID(w, r)
	if !ok {
		return
	}

	count, err := h.repo.Count(r.Context(), identity.AccountID)
	if err != nil {
		writeError(w, r, err, "count assets")
		return
	}
	if err := identity.Entitlements.CheckQuota(entitlements.LimitSavedDeals, count); err != nil {
		writeError(w, r, err, "restore asset")
		return
	}

	a, err := h.repo.Restore(r.Context(), identity.AccountID, id)
	if err != nil {
		writeError(w, r, err, "restore asset")
		return
	}

	response.Success(w, http.StatusOK, toAssetResponse(a), middleware.GetRequestID(r.Context()))
}

func parseAssetID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidID, "id must be a positive integer", middleware.GetRequestID(r.Context()))
		return 0, false
	}
	return id, true
}

func trimAssetRequest(req *assetRequest) {
	for _, p := range []*string{req.Name, req.City, req.State, req.PostalCode, req.Country, req.Source, req.SourceRef} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
}

package asset

import (
	"encoding/json"
	"time"
)

// Asset represents a row in the assets table: one saved property of an account.
type Asset struct {
	ID           int64
	AccountID    int64
	CreatedBy    *int64
	Name         string
	AddressLine1 *string
	AddressLine2 *string
	City         *string
	State        *string
	PostalCode   *string
	Country      string
	Source       string
	SourceRef    *string
	PropertyData json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time // set while the asset sits in the trash
}

// ScopeAccountID implements tenant.Scoped.
func (a Asset) ScopeAccountID() int64 { return a.AccountID }

// ListFilter holds the optional search term and pagination for listing assets.
type ListFilter struct {
	Query  *string // partial match on name, address_line1 and city (ILIKE)
	Limit  int     // default 50, max 200
	Offset int     // max 5000
}

// ListResult holds one page of assets and the total matching count.
type ListResult struct {
	Assets []Asset
	Total  int
	Limit  int
	Offset int
}

// UpdateFields holds user-updatable fields on an asset. Nil fields are not updated.
type UpdateFields struct {
	Name         *string
	AddressLine1 *string
	AddressLine2 *string
	City         *string
	State        *string
	PostalCode   *string
	Country      *string
	SourceRef    *string
	PropertyData json.RawMessage
}

package validation

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const (
	maxAssetNameLen  = 200
	maxAddressLen    = 300
	maxSourceLen     = 50
	maxSourceRefLen  = 200
	maxPropertyBytes = 256 << 10
)

// AssetRequest mirrors the fields of a create or update asset request. Nil means
// the field was not sent.
type AssetRequest struct {
	Name         *string
	AddressLine1 *string
	AddressLine2 *string
	City         *string
	State        *string
	PostalCode   *string
	Country      *string
	Source       *string
	SourceRef    *string
	PropertyData json.RawMessage
}

// ValidateCreateAsset validates a create request; name is required.
func ValidateCreateAsset(req AssetRequest) []FieldError {
	if req.Name == nil {
		return append([]FieldError{{Field: "name", Message: "name is required"}}, validateAsset(req)...)
	}
	return validateAsset(req)
}

// ValidateUpdateAsset validates a partial update; only present fields are checked.
func ValidateUpdateAsset(req AssetRequest) []FieldError {
	return validateAsset(req)
}

func validateAsset(req AssetRequest) []FieldError {
	var errs []FieldError

	if req.Name != nil {
		n := utf8.RuneCountInString(strings.TrimSpace(*req.Name))
		if n == 0 || n > maxAssetNameLen {
			errs = append(errs, FieldError{Field: "name", Message: "name must be 1-200 characters"})
		}
	}

	for _, f := range []struct {
		name  string
		value *string
	}{
		{"address_line1", req.AddressLine1},
		{"address_line2", req.AddressLine2},
		{"city", req.City},
		{"state", req.State},
		{"postal_code", req.PostalCode},
	} {
		if f.value != nil && utf8.RuneCountInString(*f.value) > maxAddressLen {
			errs = append(errs, FieldError{Field: f.name, Message: f.name + " must be at most 300 characters"})
		}
	}

	if req.Country != nil && !isCountryCode(*req.Country) {
		errs = append(errs, FieldError{Field: "country", Message: "country must be a 2-letter code"})
	}

	if req.Source != nil && utf8.RuneCountInString(*req.Source) > maxSourceLen {
		errs = append(errs, FieldError{Field: "source", Message: "source must be at most 50 characters"})
	}

	if req.SourceRef != nil && utf8.RuneCountInString(*req.SourceRef) > maxSourceRefLen {
		errs = append(errs, FieldError{Field: "source_ref", Message: "source_ref must be at most 200 characters"})
	}

	if req.PropertyData != nil {
		trimmed := bytes.TrimSpace(req.PropertyData)
		switch {
		case len(trimmed) > maxPropertyBytes:
			errs = append(errs, FieldError{Field: "property_data", Message: "property_data is too large"})
		case len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed):
			errs = append(errs, FieldError{Field: "property_data", Message: "property_data must be a JSON object"})
		}
	}

	return errs
}

func isCountryCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		c := s[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

// Package validation checks request bodies before they reach the domain layer.
// Each Validate function returns every field error at once; an empty slice means valid.
package validation

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

package validation

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"
)

const (
	maxScenarioLabelLen = 100
	maxMetricsBytes     = 64 << 10
)

// ValidateScenario checks a scenario label and its metrics object. Metrics may be omitted.
func ValidateScenario(label string, metrics json.RawMessage) []FieldError {
	var errs []FieldError

	if utf8.RuneCountInString(label) > maxScenarioLabelLen {
		errs = append(errs, FieldError{Field: "label", Message: "label must be at most 100 characters"})
	}

	if metrics != nil {
		trimmed := bytes.TrimSpace(metrics)
		switch {
		case len(trimmed) > maxMetricsBytes:
			errs = append(errs, FieldError{Field: "metrics", Message: "metrics is too large"})
		case len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed):
			errs = append(errs, FieldError{Field: "metrics", Message: "metrics must be a JSON object"})
		}
	}

	return errs
}

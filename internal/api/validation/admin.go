package validation

import "github.com/brinkadata/brinkadata-platform/internal/entitlements"

// ValidatePlan checks that plan is a known plan name.
func ValidatePlan(plan string) []FieldError {
	if !entitlements.Plan(plan).Valid() {
		return []FieldError{{Field: "plan", Message: "plan must be one of free, pro, team, enterprise"}}
	}
	return nil
}

// ValidateRole checks that role is a known role.
func ValidateRole(role string) []FieldError {
	if !entitlements.Role(role).Valid() {
		return []FieldError{{Field: "role", Message: "role must be one of owner, admin, member, read_only, affiliate"}}
	}
	return nil
}

// ValidateStatus checks that status is a known subscription status.
func ValidateStatus(status string) []FieldError {
	if !entitlements.Status(status).Valid() {
		return []FieldError{{Field: "status", Message: "status must be one of trialing, active, past_due, canceled"}}
	}
	return nil
}

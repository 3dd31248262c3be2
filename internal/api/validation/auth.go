package validation

import (
	"strings"
	"unicode/utf8"
)

const (
	maxEmailLen       = 254
	minPasswordLen    = 8
	maxPasswordLen    = 128
	maxAccountNameLen = 200
)

// RegisterRequest mirrors the fields needed for register validation.
type RegisterRequest struct {
	Email       string
	Password    string
	AccountName string
}

// ValidateRegister validates a registration request.
func ValidateRegister(req RegisterRequest) []FieldError {
	errs := validateEmail(req.Email)

	n := utf8.RuneCountInString(req.Password)
	switch {
	case n == 0:
		errs = append(errs, FieldError{Field: "password", Message: "password is required"})
	case n < minPasswordLen || n > maxPasswordLen:
		errs = append(errs, FieldError{Field: "password", Message: "password must be 8-128 characters"})
	}

	if utf8.RuneCountInString(req.AccountName) > maxAccountNameLen {
		errs = append(errs, FieldError{Field: "account_name", Message: "account_name must be at most 200 characters"})
	}
	return errs
}

// ValidateLogin validates a login request. Password length is not checked so that
// accounts created under older rules can still log in.
func ValidateLogin(email, password string) []FieldError {
	errs := validateEmail(email)
	if password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "password is required"})
	}
	return errs
}

// ValidateSessionRequest validates the body of refresh and logout.
func ValidateSessionRequest(sessionID, refreshToken string, tokenRequired bool) []FieldError {
	var errs []FieldError
	if sessionID == "" {
		errs = append(errs, FieldError{Field: "session_id", Message: "session_id is required"})
	}
	if tokenRequired && refreshToken == "" {
		errs = append(errs, FieldError{Field: "refresh_token", Message: "refresh_token is required"})
	}
	return errs
}

func validateEmail(email string) []FieldError {
	switch {
	case email == "":
		return []FieldError{{Field: "email", Message: "email is required"}}
	case len(email) > maxEmailLen:
		return []FieldError{{Field: "email", Message: "email must be at most 254 characters"}}
	case !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@"):
		return []FieldError{{Field: "email", Message: "email must be a valid address"}}
	}
	return nil
}

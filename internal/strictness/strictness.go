// Package strictness decides what happens when the server detects its own defect:
// fail the request, or log it and carry on.
package strictness

import (
	"context"
	"log/slog"
)

// Policy is injected into components that guard against server-side defects.
type Policy interface {
	// Violation reports a detected defect. Strict returns err unchanged; Permissive
	// logs it and returns nil so the caller can continue with a fallback.
	Violation(ctx context.Context, err error, attrs ...any) error
	Strict() bool
	Name() string
}

// ForEnv returns Permissive for "dev" and Strict for anything else.
func ForEnv(env string) Policy {
	if env == "dev" {
		return Permissive{}
	}
	return Strict{}
}

// Strict fails fast.
type Strict struct{}

func (Strict) Violation(ctx context.Context, err error, attrs ...any) error {
	slog.ErrorContext(ctx, err.Error(), attrs...)
	return err
}

func (Strict) Strict() bool { return true }

func (Strict) Name() string { return "strict" }

// Permissive logs the defect at warn level and lets the request proceed.
type Permissive struct{}

func (Permissive) Violation(ctx context.Context, err error, attrs ...any) error {
	slog.WarnContext(ctx, err.Error(), attrs...)
	return nil
}

func (Permissive) Strict() bool { return false }

func (Permissive) Name() string { return "permissive" }

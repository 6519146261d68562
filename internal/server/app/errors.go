package app

import (
	"errors"
	"fmt"
)

// Sentinels shared by the service layer and the HTTP transport. Callers
// match them with errors.Is.
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input from the caller.
	ErrValidation = errors.New("validation error")

	// ErrUnavailable indicates a required dependency is not configured.
	ErrUnavailable = errors.New("service unavailable")

	// ErrConflict indicates the session is in the wrong state for the request.
	ErrConflict = errors.New("conflict")
)

func NotFoundError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrNotFound)
}

func ValidationError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrValidation)
}

// UnavailableError wraps ErrUnavailable, keeping cause in the chain when set.
func UnavailableError(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", msg, ErrUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", msg, ErrUnavailable, cause)
}

func ConflictError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrConflict)
}

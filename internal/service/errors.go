package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFoundOrForbidden deliberately conflates missing resources with
	// resources owned by someone else.
	ErrNotFoundOrForbidden = errors.New("not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserSuspended       = errors.New("user suspended")
	ErrEmailTaken          = errors.New("email already registered")
)

// ValidationError carries field-level details for malformed input.
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Details)
}

func invalidField(field, message string) *ValidationError {
	return &ValidationError{Details: map[string]string{field: message}}
}

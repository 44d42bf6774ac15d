// Package shared provides shared domain types and utilities.
package shared

import (
	"errors"
	"fmt"
)

// Domain errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("conflict")
	ErrForbidden     = errors.New("forbidden")

	// ErrConfiguration is returned when a tenant is missing a required
	// service or database assignment. Fatal to the single operation only.
	ErrConfiguration = errors.New("configuration error")

	// ErrExternalService is returned for non-2xx responses and network
	// failures from the scanning service gateway.
	ErrExternalService = errors.New("external service error")

	// ErrAuthExpired is returned when the scanning service rejects the
	// cached session token. The cache entry has already been evicted when
	// this error is observed; callers may retry once.
	ErrAuthExpired = errors.New("authentication expired")
)

// DomainError represents a domain-specific error.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError.
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConfiguration checks if the error is a tenant configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsAuthExpired checks if the error is an expired-session error.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

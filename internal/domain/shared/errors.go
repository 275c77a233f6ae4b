// Package shared contains common domain types, errors and value objects
// that are used across all domain packages.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Input errors
	ErrValidation = errors.New("validation error")

	// Entity errors
	ErrNotFound = errors.New("entity not found")

	// State errors: the request is well formed but cannot be applied
	// to the current state of the entity.
	ErrConflict = errors.New("conflict")

	// Quota errors
	ErrRateLimited = errors.New("rate limited")

	// Backing store failures
	ErrStore = errors.New("store failure")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string         // e.g., "tuition", "student", "ratelimit"
	Op      string         // Operation that failed, e.g., "Upsert", "ApplyPayment"
	Kind    error          // Base error type for errors.Is() checking
	Code    string         // Stable machine-readable code, e.g. "TUITION_NOT_FOUND"
	Message string         // Human-readable message
	Details map[string]any // Context the caller needs to correct and resubmit
	Err     error          // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching. Two domain errors with the same
// non-empty Code match, so copies carrying details still match their sentinel.
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok && e.Code != "" && e.Code == t.Code {
		return true
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// WithDetails returns a copy of the error carrying the given details.
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithMessage returns a copy of the error with a different message.
func (e *DomainError) WithMessage(message string) *DomainError {
	cp := *e
	cp.Message = message
	return &cp
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, code, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// StoreError wraps a backing store failure.
func StoreError(domain, op string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    ErrStore,
		Code:    "STORE_ERROR",
		Message: "store operation failed",
		Err:     err,
	}
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict checks if the error is a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRateLimited checks if the error is a quota denial.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsStore checks if the error comes from the backing store.
func IsStore(err error) bool {
	return errors.Is(err, ErrStore)
}

// AsDomainError extracts the outermost DomainError from the chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the error code of the first DomainError in the chain,
// or an empty string.
func CodeOf(err error) string {
	if de, ok := AsDomainError(err); ok {
		return de.Code
	}
	return ""
}

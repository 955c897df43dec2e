// LOCATION: internal/errors/errors.go
//
// This file provides:
// - Sentinel errors for the ingest, store and window paths
// - Error category checking functions
// - Error wrapping utilities
// - A collector for configuration validation errors

package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Record validation errors. These reject a single record and never
	// crash the invocation.
	ErrInvalidRecord = errors.New("invalid record")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidValue  = errors.New("invalid value")
	ErrInvalidTopic  = errors.New("invalid topic")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")

	// Backing service errors. These abort the invocation; retries belong to
	// the transport.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrTimeout          = errors.New("timeout")
	ErrConnectionFailed = errors.New("connection failed")

	// Lifecycle errors
	ErrClosed = errors.New("closed")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsValidation returns true if err rejects a record or configuration.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRecord) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrInvalidTopic) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsUnavailable returns true if err means the backing store could not serve
// the request.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrTimeout)
}

// IsRetriable returns true if the error is potentially retriable by the
// transport. Validation errors never are.
func IsRetriable(err error) bool {
	if IsValidation(err) {
		return false
	}
	return IsUnavailable(err)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Unavailable marks err as a store availability failure while keeping the
// original cause in the chain.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewMissingField creates a missing field error for a record.
func NewMissingField(field string) error {
	return fmt.Errorf("%w: %s: %w", ErrInvalidRecord, field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error for a record field.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("%w: %s '%v': %s: %w", ErrInvalidRecord, field, value, reason, ErrInvalidValue)
}

// NewInvalidConfig creates a configuration validation error.
func NewInvalidConfig(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewInvalidConfig(field, reason))
}

// HasErrors returns true if any errors were collected.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}
	msgs := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(v.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}

// ErrOrNil returns nil when nothing was collected, otherwise the collector.
func (v *ValidationErrors) ErrOrNil() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

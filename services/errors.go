package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeInternal    ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	// ErrInvalidProvider is the cause of errors rejecting an unregistered provider name
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrSettingsUnavailable is the cause of errors raised when the settings store cannot be read
	ErrSettingsUnavailable = errors.New("settings store unavailable")
)

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsUnavailableError checks if an error reports a backing store that could not be reached
func IsUnavailableError(err error) bool { return hasType(err, ErrorTypeUnavailable) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// NewValidationError builds a validation error carrying the offending field
func NewValidationError(field, message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil).WithDetail("field", field)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// NewInvalidProviderError rejects a provider name that is not registered
func NewInvalidProviderError(name string) *DomainError {
	return NewDomainError(ErrorTypeValidation, fmt.Sprintf("unknown provider %q", name), ErrInvalidProvider).
		WithDetail("field", "provider")
}

// WrapSettingsUnavailable marks a settings store failure as unavailable
func WrapSettingsUnavailable(message string, err error) error {
	return NewDomainError(ErrorTypeUnavailable, message, fmt.Errorf("%w: %w", ErrSettingsUnavailable, err))
}

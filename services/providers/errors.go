package providers

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrProviderNotConfigured matches *UnconfiguredProviderError via errors.Is
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrUnknownProvider is returned when no builder is registered for a name
	ErrUnknownProvider = errors.New("unknown provider")
)

// UnconfiguredProviderError is returned when a provider is requested without an API key
type UnconfiguredProviderError struct {
	Provider string
}

func (e *UnconfiguredProviderError) Error() string {
	return fmt.Sprintf("AI provider %q is not configured: missing API key", e.Provider)
}

// Is lets errors.Is match ErrProviderNotConfigured
func (e *UnconfiguredProviderError) Is(target error) bool {
	return target == ErrProviderNotConfigured
}

// NewUnconfiguredProviderError creates an UnconfiguredProviderError
func NewUnconfiguredProviderError(provider string) *UnconfiguredProviderError {
	return &UnconfiguredProviderError{Provider: provider}
}

// ProviderError represents a failed vendor call: transport failure, timeout or non-2xx status
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the vendor error code or a local classification
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (0 when no response was received)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := e.Message
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsAuthError reports whether the vendor rejected the credentials
func (e *ProviderError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// ResponseParseError is returned when model output cannot be turned into the expected structure
type ResponseParseError struct {
	Reason string
	Cause  error
}

func (e *ResponseParseError) Error() string {
	if e.Cause != nil {
		return "failed to parse AI response: " + e.Reason + ": " + e.Cause.Error()
	}
	return "failed to parse AI response: " + e.Reason
}

func (e *ResponseParseError) Unwrap() error {
	return e.Cause
}

// IsProviderError reports whether err wraps a *ProviderError
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsUnconfigured reports whether err signals a missing API key
func IsUnconfigured(err error) bool {
	return errors.Is(err, ErrProviderNotConfigured)
}

package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeUnavailable, "settings store unavailable", baseErr)

	assert.Equal(t, ErrorTypeUnavailable, domainErr.Type)
	assert.Equal(t, "settings store unavailable", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name:    "error with wrapped error",
			err:     &DomainError{Type: ErrorTypeInternal, Message: "settings store unavailable", Err: errors.New("db error")},
			wantMsg: "internal: settings store unavailable (db error)",
		},
		{
			name:    "error without wrapped error",
			err:     &DomainError{Type: ErrorTypeValidation, Message: "invalid input"},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_IsAndUnwrap(t *testing.T) {
	baseErr := errors.New("base error")
	wrapped := fmt.Errorf("saving settings: %w", WrapInternal("write failed", baseErr))

	assert.ErrorIs(t, wrapped, baseErr)
	assert.ErrorIs(t, wrapped, NewDomainError(ErrorTypeInternal, "transaction failed", nil), "same type matches")
	assert.NotErrorIs(t, wrapped, NewValidationError("provider", "invalid input"))
}

func TestNewInvalidProviderError(t *testing.T) {
	err := fmt.Errorf("updating settings: %w", NewInvalidProviderError("mistral"))

	assert.True(t, IsValidationError(err))
	assert.ErrorIs(t, err, ErrInvalidProvider)
	assert.Contains(t, err.Error(), `unknown provider "mistral"`)
	assert.Equal(t, "provider", GetErrorDetails(err)["field"])
}

func TestWrapSettingsUnavailable(t *testing.T) {
	baseErr := errors.New("connection refused")
	err := WrapSettingsUnavailable("failed to load AI settings", baseErr)

	assert.True(t, IsUnavailableError(err))
	assert.ErrorIs(t, err, ErrSettingsUnavailable)
	assert.ErrorIs(t, err, baseErr)
	assert.False(t, IsValidationError(err))
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"validation", NewValidationError("provider", "unknown provider"), IsValidationError, true},
		{"unavailable", NewDomainError(ErrorTypeUnavailable, "store down", nil), IsUnavailableError, true},
		{"internal is not unavailable", WrapInternal("write failed", errors.New("db")), IsUnavailableError, false},
		{"plain error", errors.New("plain"), IsValidationError, false},
		{"nil", nil, IsUnavailableError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestGetErrorTypeAndDetails(t *testing.T) {
	err := NewValidationError("api_key", "api_key is required")

	assert.Equal(t, ErrorTypeValidation, GetErrorType(err))
	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "api_key", details["field"])

	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("x")))
	assert.Nil(t, GetErrorDetails(errors.New("x")))
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/taskflow/ai-backend/services"
	"github.com/taskflow/ai-backend/services/providers"
	"github.com/taskflow/ai-backend/utils"
	"go.uber.org/zap"
)

// Error codes returned to clients for provider failures
const (
	ErrCodeProviderNotConfigured = "provider_not_configured"
	ErrCodeProviderError         = "provider_error"
)

// HandleServiceError maps service and provider errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var (
		unconfigured *providers.UnconfiguredProviderError
		providerErr  *providers.ProviderError
		parseErr     *providers.ResponseParseError
		writeErr     error
	)

	switch {
	case utils.IsMalformedRequest(err):
		writeErr = utils.WriteBadRequest(w, err.Error(), nil)

	case utils.IsValidationError(err):
		writeErr = utils.WriteUnprocessableEntity(w, "", utils.GetValidationFields(err))

	case services.IsValidationError(err):
		writeErr = utils.WriteJSON(w, http.StatusUnprocessableEntity, utils.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
			Details: services.GetErrorDetails(err),
		})

	case errors.Is(err, providers.ErrUnknownProvider):
		writeErr = utils.WriteUnprocessableEntity(w, err.Error(), map[string]string{"provider": err.Error()})

	case errors.As(err, &unconfigured):
		writeErr = utils.WriteErrorCode(w, http.StatusServiceUnavailable, ErrCodeProviderNotConfigured,
			unconfigured.Error(), map[string]interface{}{"provider": unconfigured.Provider})

	case errors.As(err, &providerErr):
		logger.Warn("AI provider request failed",
			zap.String("provider", providerErr.Provider),
			zap.String("code", providerErr.Code),
			zap.Int("status_code", providerErr.StatusCode),
			zap.Error(err))
		details := map[string]interface{}{
			"provider": providerErr.Provider,
			"code":     providerErr.Code,
		}
		if providerErr.StatusCode > 0 {
			details["status_code"] = providerErr.StatusCode
		}
		writeErr = utils.WriteErrorCode(w, http.StatusBadGateway, ErrCodeProviderError, providerErr.Message, details)

	case errors.As(err, &parseErr):
		logger.Warn("AI provider returned an unusable response", zap.Error(err))
		writeErr = utils.WriteErrorCode(w, http.StatusBadGateway, ErrCodeProviderError, err.Error(), nil)

	case services.IsUnavailableError(err):
		logger.Error("backing store unavailable", zap.Error(err))
		writeErr = utils.WriteError(w, http.StatusServiceUnavailable, "Settings are temporarily unavailable", nil)

	default:
		logger.Error("internal server error",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

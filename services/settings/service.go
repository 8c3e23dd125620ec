// Package settings persists the AI configuration edited from the settings page.
package settings

import (
	"context"
	"strings"

	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/repositories"
	"github.com/taskflow/ai-backend/services"
	"github.com/taskflow/ai-backend/services/providers"
	"go.uber.org/zap"
)

// Setting keys outside the per-provider namespace
const (
	KeyActiveProvider  = "ai.provider"
	KeyDefaultProvider = "ai.default.provider"
	KeyDefaultModel    = "ai.default.model"
	KeyDefaultAPIKey   = "ai.default.api_key"
	KeyDefaultBaseURL  = "ai.default.base_url"
)

// ProviderKey returns the setting key for one provider field, e.g. ai.openai.api_key
func ProviderKey(provider, field string) string {
	return "ai." + provider + "." + field
}

// ProviderFields holds the editable values for one provider. Empty fields are left untouched.
type ProviderFields struct {
	APIKey  string
	BaseURL string
	Model   string
}

// AISettingsUpdate selects the active provider and optionally updates provider fields
type AISettingsUpdate struct {
	Provider  string
	Providers map[string]ProviderFields
}

// DefaultAISettingsUpdate sets the configuration used for new projects
type DefaultAISettingsUpdate struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// Service writes AI settings through the settings repository
type Service struct {
	repo   repositories.SettingsRepository
	txMgr  repositories.TransactionManager
	logger *zap.Logger
}

// NewService creates a settings service
func NewService(repo repositories.SettingsRepository, txMgr repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		txMgr:  txMgr,
		logger: logger,
	}
}

// UpdateAISettings stores ai.provider and every non-empty provider field in one transaction
func (s *Service) UpdateAISettings(ctx context.Context, update AISettingsUpdate) error {
	if _, ok := providers.Lookup(update.Provider); !ok {
		return services.NewInvalidProviderError(update.Provider)
	}
	for name := range update.Providers {
		if _, ok := providers.Lookup(name); !ok {
			return services.NewInvalidProviderError(name)
		}
	}

	err := services.WithTransaction(ctx, s.txMgr, func(ctx context.Context, _ repositories.Transaction) error {
		if err := s.repo.Set(ctx, KeyActiveProvider, update.Provider, models.SettingTypeString, "Active AI provider"); err != nil {
			return err
		}
		for _, name := range providers.Names() {
			fields, ok := update.Providers[name]
			if !ok {
				continue
			}
			if err := s.writeProviderFields(ctx, name, fields); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return services.WrapInternal("failed to save AI settings", err)
	}

	s.logger.Info("AI settings updated", zap.String("provider", update.Provider))
	return nil
}

func (s *Service) writeProviderFields(ctx context.Context, name string, fields ProviderFields) error {
	display := providers.DisplayName(name)
	writes := []struct {
		field, value, desc string
		typ                models.SettingType
	}{
		{providers.FieldAPIKey, fields.APIKey, display + " API key", models.SettingTypeSecret},
		{providers.FieldBaseURL, fields.BaseURL, display + " base URL", models.SettingTypeString},
		{providers.FieldModel, fields.Model, display + " model", models.SettingTypeString},
	}
	for _, w := range writes {
		value := strings.TrimSpace(w.value)
		if value == "" {
			continue
		}
		if err := s.repo.Set(ctx, ProviderKey(name, w.field), value, w.typ, w.desc); err != nil {
			return err
		}
	}
	return nil
}

// UpdateDefaultAISettings stores the ai.default.* values. API key and base URL are optional.
func (s *Service) UpdateDefaultAISettings(ctx context.Context, update DefaultAISettingsUpdate) error {
	if _, ok := providers.Lookup(update.Provider); !ok {
		return services.NewInvalidProviderError(update.Provider)
	}
	if strings.TrimSpace(update.Model) == "" {
		return services.NewValidationError("model", "model is required")
	}

	err := services.WithTransaction(ctx, s.txMgr, func(ctx context.Context, _ repositories.Transaction) error {
		if err := s.repo.Set(ctx, KeyDefaultProvider, update.Provider, models.SettingTypeString, "Default AI provider for new projects"); err != nil {
			return err
		}
		if err := s.repo.Set(ctx, KeyDefaultModel, strings.TrimSpace(update.Model), models.SettingTypeString, "Default AI model for new projects"); err != nil {
			return err
		}
		if key := strings.TrimSpace(update.APIKey); key != "" {
			if err := s.repo.Set(ctx, KeyDefaultAPIKey, key, models.SettingTypeSecret, "Default AI API key"); err != nil {
				return err
			}
		}
		if baseURL := strings.TrimSpace(update.BaseURL); baseURL != "" {
			if err := s.repo.Set(ctx, KeyDefaultBaseURL, baseURL, models.SettingTypeString, "Default AI base URL"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return services.WrapInternal("failed to save default AI settings", err)
	}

	s.logger.Info("default AI settings updated",
		zap.String("provider", update.Provider),
		zap.String("model", update.Model),
	)
	return nil
}

// AISettings returns every stored ai.* setting
func (s *Service) AISettings(ctx context.Context) (map[string]string, error) {
	values, err := s.repo.GetByPrefix(ctx, "ai.")
	if err != nil {
		return nil, services.WrapSettingsUnavailable("failed to load AI settings", err)
	}
	return values, nil
}

// MaskSecret keeps the last four characters of a secret. Short secrets are fully masked.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", 8) + secret[len(secret)-4:]
}

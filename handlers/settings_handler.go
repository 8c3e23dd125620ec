package handlers

import (
	"net/http"

	"github.com/taskflow/ai-backend/internal/observability"
	"github.com/taskflow/ai-backend/services/ai"
	"github.com/taskflow/ai-backend/services/providers"
	"github.com/taskflow/ai-backend/services/settings"
	"github.com/taskflow/ai-backend/utils"
	"go.uber.org/zap"
)

// ProviderSettingsView is one provider on the settings page. The API key is masked.
type ProviderSettingsView struct {
	DisplayName  string                `json:"display_name"`
	APIKey       string                `json:"api_key"`
	BaseURL      string                `json:"base_url"`
	Model        string                `json:"model"`
	Configured   bool                  `json:"configured"`
	Models       []providers.ModelInfo `json:"models"`
	DefaultModel string                `json:"default_model"`
}

// DefaultSettingsView is the ai.default.* block of the settings page
type DefaultSettingsView struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url,omitempty"`
}

// AISettingsView is the body of GET /api/v1/settings/ai
type AISettingsView struct {
	ActiveProvider string                          `json:"active_provider"`
	Default        DefaultSettingsView             `json:"default"`
	Providers      map[string]ProviderSettingsView `json:"providers"`
}

// TestConnectionFailure is written when the test cannot run at all
type TestConnectionFailure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SettingsHandler serves the AI settings endpoints
type SettingsHandler struct {
	manager  *ai.Manager
	settings *settings.Service
	logger   *zap.Logger
}

// NewSettingsHandler creates a new SettingsHandler
func NewSettingsHandler(manager *ai.Manager, settingsService *settings.Service, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		manager:  manager,
		settings: settingsService,
		logger:   logger,
	}
}

// HandleShow handles GET /api/v1/settings/ai
func (h *SettingsHandler) HandleShow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	configs, err := h.manager.ProviderConfigs(ctx)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	defaults, err := h.manager.DefaultConfig(ctx)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	view := AISettingsView{
		ActiveProvider: h.manager.ActiveProvider(ctx),
		Default: DefaultSettingsView{
			Provider: defaults.Provider,
			Model:    defaults.Model,
			APIKey:   settings.MaskSecret(defaults.APIKey),
			BaseURL:  defaults.BaseURL,
		},
		Providers: make(map[string]ProviderSettingsView, len(configs)),
	}
	for name, cfg := range configs {
		entry, _ := providers.Lookup(name)
		view.Providers[name] = ProviderSettingsView{
			DisplayName:  providers.DisplayName(name),
			APIKey:       settings.MaskSecret(cfg.APIKey),
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			Configured:   cfg.IsConfigured(),
			Models:       entry.Models,
			DefaultModel: entry.DefaultModel,
		}
	}

	_ = utils.WriteOK(w, view)
}

// HandleUpdate handles POST /api/v1/settings/ai
func (h *SettingsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateAISettingsRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.settings.UpdateAISettings(r.Context(), req.ToUpdate()); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOKMessage(w, "AI settings updated successfully", map[string]string{"provider": req.Provider})
}

// HandleUpdateDefault handles POST /api/v1/settings/ai/default
func (h *SettingsHandler) HandleUpdateDefault(w http.ResponseWriter, r *http.Request) {
	var req UpdateDefaultAISettingsRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.settings.UpdateDefaultAISettings(r.Context(), settings.DefaultAISettingsUpdate{
		Provider: req.Provider,
		Model:    req.Model,
		APIKey:   req.APIKey,
		BaseURL:  req.BaseURL,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOKMessage(w, "Default AI settings updated successfully", map[string]string{
		"provider": req.Provider,
		"model":    req.Model,
	})
}

// HandleTest handles POST /api/v1/settings/ai/test.
// Vendor failures are 200 with success=false; only unexpected failures are 500.
func (h *SettingsHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	var req TestAIConnectionRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.manager.TestProvider(r.Context(), req.Provider, &providers.ProviderConfig{
		Name:    req.Provider,
		APIKey:  req.APIKey,
		BaseURL: req.BaseURL,
		Model:   req.Model,
	})
	if err != nil {
		observability.WithContext(r.Context(), h.logger).Error("AI connection test failed unexpectedly",
			zap.String("provider", req.Provider),
			zap.Error(err))
		_ = utils.WriteJSON(w, http.StatusInternalServerError, TestConnectionFailure{
			Success: false,
			Message: "Connection test failed: " + err.Error(),
		})
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, result)
}

// decode reads and validates the body, writing 400 or 422 on failure
func (h *SettingsHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := utils.DecodeJSON(r, dst); err != nil {
		HandleServiceError(w, err, h.logger)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		HandleServiceError(w, err, h.logger)
		return false
	}
	return true
}

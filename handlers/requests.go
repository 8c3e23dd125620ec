package handlers

import (
	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/services/providers"
	"github.com/taskflow/ai-backend/services/settings"
)

// UpdateAISettingsRequest is the body of POST /api/v1/settings/ai.
// Empty provider fields leave the stored value unchanged.
type UpdateAISettingsRequest struct {
	Provider string `json:"provider" validate:"required,oneof=cerebrus openai anthropic"`

	CerebrusAPIKey  string `json:"cerebrus_api_key"`
	CerebrusBaseURL string `json:"cerebrus_base_url" validate:"omitempty,url"`
	CerebrusModel   string `json:"cerebrus_model"`

	OpenAIAPIKey  string `json:"openai_api_key"`
	OpenAIBaseURL string `json:"openai_base_url" validate:"omitempty,url"`
	OpenAIModel   string `json:"openai_model"`

	AnthropicAPIKey  string `json:"anthropic_api_key"`
	AnthropicBaseURL string `json:"anthropic_base_url" validate:"omitempty,url"`
	AnthropicModel   string `json:"anthropic_model"`
}

// ToUpdate converts the request into a settings update
func (r UpdateAISettingsRequest) ToUpdate() settings.AISettingsUpdate {
	return settings.AISettingsUpdate{
		Provider: r.Provider,
		Providers: map[string]settings.ProviderFields{
			providers.Cerebras:  {APIKey: r.CerebrusAPIKey, BaseURL: r.CerebrusBaseURL, Model: r.CerebrusModel},
			providers.OpenAI:    {APIKey: r.OpenAIAPIKey, BaseURL: r.OpenAIBaseURL, Model: r.OpenAIModel},
			providers.Anthropic: {APIKey: r.AnthropicAPIKey, BaseURL: r.AnthropicBaseURL, Model: r.AnthropicModel},
		},
	}
}

// UpdateDefaultAISettingsRequest is the body of POST /api/v1/settings/ai/default
type UpdateDefaultAISettingsRequest struct {
	Provider string `json:"provider" validate:"required,oneof=cerebrus openai anthropic"`
	Model    string `json:"model" validate:"required"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url" validate:"omitempty,url"`
}

// TestAIConnectionRequest is the body of POST /api/v1/settings/ai/test
type TestAIConnectionRequest struct {
	Provider string `json:"provider" validate:"required,oneof=cerebrus openai anthropic"`
	APIKey   string `json:"api_key" validate:"required"`
	BaseURL  string `json:"base_url" validate:"required,url"`
	Model    string `json:"model" validate:"required"`
}

// ChatRequest is the body of POST /api/v1/ai/chat
type ChatRequest struct {
	Provider     string              `json:"provider" validate:"omitempty,oneof=cerebrus openai anthropic"`
	Messages     []providers.Message `json:"messages" validate:"required,min=1,dive"`
	Model        string              `json:"model"`
	MaxTokens    int                 `json:"max_tokens" validate:"gte=0,lte=32768"`
	Temperature  *float64            `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	SystemPrompt string              `json:"system_prompt"`
}

// Options returns the chat options carried by the request
func (r ChatRequest) Options() providers.ChatOptions {
	return providers.ChatOptions{
		Model:        r.Model,
		MaxTokens:    r.MaxTokens,
		Temperature:  r.Temperature,
		SystemPrompt: r.SystemPrompt,
	}
}

// GenerateTasksRequest is the body of POST /api/v1/ai/tasks/generate
type GenerateTasksRequest struct {
	Provider     string `json:"provider" validate:"omitempty,oneof=cerebrus openai anthropic"`
	Description  string `json:"description" validate:"required"`
	ProjectTitle string `json:"project_title"`
	MaxTasks     int    `json:"max_tasks" validate:"gte=0,lte=100"`
	Model        string `json:"model"`
}

// AnalyzeProjectRequest is the body of POST /api/v1/ai/projects/analyze
type AnalyzeProjectRequest struct {
	Provider      string                  `json:"provider" validate:"omitempty,oneof=cerebrus openai anthropic"`
	Description   string                  `json:"description" validate:"required"`
	ExistingTasks []models.TaskDescriptor `json:"existing_tasks" validate:"omitempty,dive"`
	Model         string                  `json:"model"`
}

// SuggestImprovementsRequest is the body of POST /api/v1/ai/tasks/suggestions
type SuggestImprovementsRequest struct {
	Provider string                  `json:"provider" validate:"omitempty,oneof=cerebrus openai anthropic"`
	Tasks    []models.TaskDescriptor `json:"tasks" validate:"required,min=1,dive"`
	Model    string                  `json:"model"`
}

package ai

import "github.com/taskflow/ai-backend/services/providers"

// TestPrompt is sent by TestProvider
const TestPrompt = "This is a connection test. Reply with the words: Connection successful"

// TestResult reports the outcome of a connectivity test.
// Vendor failures are reported here with Success=false, never as an error.
type TestResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// ProviderDescriptor describes a provider on the settings page
type ProviderDescriptor struct {
	Name         string                `json:"name"`
	DisplayName  string                `json:"display_name"`
	DefaultModel string                `json:"default_model"`
	Models       []providers.ModelInfo `json:"models"`
	Configured   bool                  `json:"configured"`
	Active       bool                  `json:"active"`
}

// DefaultConfig is the ai.default.* configuration applied to new projects
type DefaultConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"-"`
	BaseURL  string `json:"base_url,omitempty"`
}

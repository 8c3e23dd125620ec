package providers

import (
	"context"
	"time"

	"github.com/taskflow/ai-backend/models"
)

// Provider represents a single AI vendor behind a uniform interface
type Provider interface {
	// Name returns the provider key (e.g., "cerebrus", "openai", "anthropic")
	Name() string

	// Chat sends a conversation and returns the normalized reply.
	// Transport and vendor failures are returned as *ProviderError.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*models.AIResponse, error)

	// GenerateTasks asks the model for a task breakdown of a project description.
	// It never fails with an error value: problems are reported through the failed variant.
	GenerateTasks(ctx context.Context, description string, opts TaskOptions) *models.AITaskResponse

	// AnalyzeProject returns a free-form analysis of a project and its current tasks
	AnalyzeProject(ctx context.Context, description string, existingTasks []models.TaskDescriptor, opts ChatOptions) (string, error)

	// SuggestTaskImprovements returns suggestions for improving the given tasks
	SuggestTaskImprovements(ctx context.Context, tasks []models.TaskDescriptor, opts ChatOptions) ([]string, error)

	// IsConfigured reports whether the provider has credentials
	IsConfigured() bool

	// Config returns a copy of the provider configuration
	Config() ProviderConfig
}

// UsageReporter is implemented by providers that can report account usage or quota
type UsageReporter interface {
	FetchUsage(ctx context.Context) (*models.RemoteUsage, error)
}

// Chatter is the part of Provider the shared task workflow depends on
type Chatter interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*models.AIResponse, error)
}

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role" validate:"required,oneof=system user assistant"`

	// Content is the message text
	Content string `json:"content" validate:"required"`
}

// ChatOptions tunes a single chat call. Zero values fall back to provider defaults.
type ChatOptions struct {
	// Model overrides the configured model
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature controls randomness; nil leaves the vendor default
	Temperature *float64

	// SystemPrompt is prepended as a system message
	SystemPrompt string
}

// TaskOptions tunes task generation
type TaskOptions struct {
	ChatOptions

	// MaxTasks truncates the generated list when positive
	MaxTasks int

	// ProjectTitle gives the model context about the project
	ProjectTitle string
}

// ProviderConfig holds the configuration for one provider instance
type ProviderConfig struct {
	// Name is the provider key
	Name string `json:"name"`

	// APIKey for authentication
	APIKey string `json:"-"`

	// BaseURL for the API
	BaseURL string `json:"base_url"`

	// Model is the default model for calls that do not override it
	Model string `json:"model"`

	// Timeout for outbound requests
	Timeout time.Duration `json:"timeout"`
}

// DefaultTimeout applies when a config carries no timeout
const DefaultTimeout = 30 * time.Second

// WithDefaults returns a copy with base URL, model and timeout filled from the catalog
func (c ProviderConfig) WithDefaults() ProviderConfig {
	if entry, ok := Lookup(c.Name); ok {
		if c.BaseURL == "" {
			c.BaseURL = entry.DefaultBaseURL
		}
		if c.Model == "" {
			c.Model = entry.DefaultModel
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// IsConfigured reports whether the config carries an API key
func (c ProviderConfig) IsConfigured() bool {
	return c.APIKey != ""
}

// ResolveModel picks the per-call model, falling back to the configured one
func (c ProviderConfig) ResolveModel(opts ChatOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.Model
}

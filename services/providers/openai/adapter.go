package openai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/services/providers"
)

// OpenAIAdapter implements the Provider interface for OpenAI using the official SDK
type OpenAIAdapter struct {
	config providers.ProviderConfig
	client openai.Client
}

var _ providers.Provider = (*OpenAIAdapter)(nil)

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
	config.Name = providers.OpenAI
	config = config.WithDefaults()

	client := openai.NewClient(
		option.WithBaseURL(config.BaseURL),
		option.WithAPIKey(config.APIKey),
		option.WithRequestTimeout(config.Timeout),
		option.WithMaxRetries(0),
	)

	return &OpenAIAdapter{
		config: config,
		client: client,
	}
}

// Build is the registry builder for OpenAI
func Build(config providers.ProviderConfig) (providers.Provider, error) {
	return NewOpenAIAdapter(config), nil
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return providers.OpenAI
}

// IsConfigured reports whether an API key is present
func (a *OpenAIAdapter) IsConfigured() bool {
	return a.config.IsConfigured()
}

// Config returns a copy of the adapter configuration
func (a *OpenAIAdapter) Config() providers.ProviderConfig {
	return a.config
}

// Chat performs a chat completion request
func (a *OpenAIAdapter) Chat(ctx context.Context, messages []providers.Message, opts providers.ChatOptions) (*models.AIResponse, error) {
	startTime := time.Now()
	model := a.config.ResolveModel(opts)

	completion, err := a.client.Chat.Completions.New(ctx, a.buildParams(messages, opts, model))
	if err != nil {
		return nil, a.handleError(err)
	}

	result := providers.Completion{
		Provider: a.Name(),
		Model:    completion.Model,
		ID:       completion.ID,
		Elapsed:  time.Since(startTime),
	}
	if result.Model == "" {
		result.Model = model
	}
	if len(completion.Choices) > 0 {
		result.Content = completion.Choices[0].Message.Content
		result.FinishReason = string(completion.Choices[0].FinishReason)
	}
	if completion.Usage.TotalTokens > 0 || completion.Usage.PromptTokens > 0 {
		result.UsageReported = true
		result.PromptTokens = int(completion.Usage.PromptTokens)
		result.CompletionTokens = int(completion.Usage.CompletionTokens)
		result.TotalTokens = int(completion.Usage.TotalTokens)
	}

	resp, err := result.ToAIResponse()
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "INVALID_RESPONSE", "vendor reported invalid usage", 0, err)
	}
	return resp, nil
}

// GenerateTasks asks the model for a task breakdown
func (a *OpenAIAdapter) GenerateTasks(ctx context.Context, description string, opts providers.TaskOptions) *models.AITaskResponse {
	return providers.RunTaskGeneration(ctx, a, description, opts)
}

// AnalyzeProject returns a prose analysis of the project
func (a *OpenAIAdapter) AnalyzeProject(ctx context.Context, description string, existingTasks []models.TaskDescriptor, opts providers.ChatOptions) (string, error) {
	return providers.RunProjectAnalysis(ctx, a, description, existingTasks, opts)
}

// SuggestTaskImprovements returns improvement suggestions for tasks
func (a *OpenAIAdapter) SuggestTaskImprovements(ctx context.Context, tasks []models.TaskDescriptor, opts providers.ChatOptions) ([]string, error) {
	return providers.RunTaskImprovements(ctx, a, tasks, opts)
}

// buildParams converts unified messages to SDK parameters
func (a *OpenAIAdapter) buildParams(messages []providers.Message, opts providers.ChatOptions, model string) openai.ChatCompletionNewParams {
	all := providers.WithSystemPrompt(messages, opts.SystemPrompt)

	converted := make([]openai.ChatCompletionMessageParamUnion, len(all))
	for i, msg := range all {
		switch msg.Role {
		case providers.RoleSystem:
			converted[i] = openai.SystemMessage(msg.Content)
		case providers.RoleAssistant:
			converted[i] = openai.AssistantMessage(msg.Content)
		default:
			converted[i] = openai.UserMessage(msg.Content)
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: converted,
		Model:    openai.ChatModel(model),
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	return params
}

// handleError maps SDK errors onto ProviderError
func (a *OpenAIAdapter) handleError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code := apiErr.Code
		if code == "" {
			code = apiErr.Type
		}
		if code == "" {
			code = "HTTP_ERROR"
		}
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return providers.NewProviderError(a.Name(), code, msg, apiErr.StatusCode, err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return providers.NewProviderError(a.Name(), "TIMEOUT", "request timed out after "+a.config.Timeout.String(), 0, err)
	}
	return providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed: "+strings.TrimSpace(err.Error()), 0, err)
}

package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/services/providers"
)

// DefaultMaxTokens is sent when the caller does not limit the reply.
// The Messages API requires max_tokens on every request.
const DefaultMaxTokens = 4096

// Adapter implements the Provider interface for Anthropic Claude
type Adapter struct {
	config providers.ProviderConfig
	client anthropic.Client
}

var _ providers.Provider = (*Adapter)(nil)

// NewAdapter creates a new Anthropic adapter
func NewAdapter(config providers.ProviderConfig) *Adapter {
	config.Name = providers.Anthropic
	config = config.WithDefaults()

	client := anthropic.NewClient(
		option.WithBaseURL(config.BaseURL),
		option.WithAPIKey(config.APIKey),
		option.WithRequestTimeout(config.Timeout),
		option.WithMaxRetries(0),
	)

	return &Adapter{
		config: config,
		client: client,
	}
}

// Build is the registry builder for Anthropic
func Build(config providers.ProviderConfig) (providers.Provider, error) {
	return NewAdapter(config), nil
}

func (a *Adapter) Name() string {
	return providers.Anthropic
}

func (a *Adapter) IsConfigured() bool {
	return a.config.IsConfigured()
}

func (a *Adapter) Config() providers.ProviderConfig {
	return a.config
}

// Chat sends the conversation to the Messages API
func (a *Adapter) Chat(ctx context.Context, messages []providers.Message, opts providers.ChatOptions) (*models.AIResponse, error) {
	startTime := time.Now()
	model := a.config.ResolveModel(opts)

	msg, err := a.client.Messages.New(ctx, a.buildParams(messages, opts, model))
	if err != nil {
		return nil, a.handleError(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result := providers.Completion{
		Provider:     a.Name(),
		Model:        string(msg.Model),
		ID:           msg.ID,
		Content:      text.String(),
		FinishReason: string(msg.StopReason),
		Elapsed:      time.Since(startTime),
	}
	if result.Model == "" {
		result.Model = model
	}
	if msg.Usage.InputTokens > 0 || msg.Usage.OutputTokens > 0 {
		result.UsageReported = true
		result.PromptTokens = int(msg.Usage.InputTokens)
		result.CompletionTokens = int(msg.Usage.OutputTokens)
		result.TotalTokens = result.PromptTokens + result.CompletionTokens
	}

	resp, err := result.ToAIResponse()
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "INVALID_RESPONSE", "vendor reported invalid usage", 0, err)
	}
	return resp, nil
}

func (a *Adapter) GenerateTasks(ctx context.Context, description string, opts providers.TaskOptions) *models.AITaskResponse {
	return providers.RunTaskGeneration(ctx, a, description, opts)
}

func (a *Adapter) AnalyzeProject(ctx context.Context, description string, existingTasks []models.TaskDescriptor, opts providers.ChatOptions) (string, error) {
	return providers.RunProjectAnalysis(ctx, a, description, existingTasks, opts)
}

func (a *Adapter) SuggestTaskImprovements(ctx context.Context, tasks []models.TaskDescriptor, opts providers.ChatOptions) ([]string, error) {
	return providers.RunTaskImprovements(ctx, a, tasks, opts)
}

// buildParams splits system messages out of the conversation since the
// Messages API carries them in a separate field.
func (a *Adapter) buildParams(messages []providers.Message, opts providers.ChatOptions, model string) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	converted := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range providers.WithSystemPrompt(messages, opts.SystemPrompt) {
		switch msg.Role {
		case providers.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case providers.RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	maxTokens := int64(DefaultMaxTokens)
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  converted,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}
	return params
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) handleError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		code, msg := parseErrorBody(apiErr.RawJSON())
		if code == "" {
			code = "HTTP_ERROR"
		}
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

// parseErrorBody pulls type and message out of the raw API error body
func parseErrorBody(raw string) (code, message string) {
	var env errorEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return "", ""
	}
	return env.Error.Type, env.Error.Message
}

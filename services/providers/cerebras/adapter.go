package cerebras

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/services/providers"
)

// Adapter implements the Provider interface for the Cerebras inference API.
// Cerebras exposes an OpenAI-compatible REST surface, so requests are built by hand.
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client

	mu        sync.Mutex
	lastQuota *models.QuotaInfo
}

var (
	_ providers.Provider      = (*Adapter)(nil)
	_ providers.UsageReporter = (*Adapter)(nil)
)

// NewAdapter creates a new Cerebras adapter
func NewAdapter(config providers.ProviderConfig) *Adapter {
	config.Name = providers.Cerebras
	config = config.WithDefaults()
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Adapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Build is the registry builder for Cerebras
func Build(config providers.ProviderConfig) (providers.Provider, error) {
	return NewAdapter(config), nil
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providers.Cerebras
}

// IsConfigured reports whether an API key is present
func (a *Adapter) IsConfigured() bool {
	return a.config.IsConfigured()
}

// Config returns a copy of the adapter configuration
func (a *Adapter) Config() providers.ProviderConfig {
	return a.config
}

// Chat performs a chat completion request
func (a *Adapter) Chat(ctx context.Context, messages []providers.Message, opts providers.ChatOptions) (*models.AIResponse, error) {
	startTime := time.Now()
	model := a.config.ResolveModel(opts)

	reqBody, err := json.Marshal(a.buildChatRequest(messages, opts, model))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "failed to create request", 0, err)
	}
	a.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, a.transportError(err)
	}
	defer httpResp.Body.Close()

	a.recordQuota(httpResp.Header)

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "READ_ERROR", "failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, err)
	}

	return a.convertToAIResponse(&chatResp, model, time.Since(startTime))
}

// GenerateTasks asks the model for a task breakdown
func (a *Adapter) GenerateTasks(ctx context.Context, description string, opts providers.TaskOptions) *models.AITaskResponse {
	return providers.RunTaskGeneration(ctx, a, description, opts)
}

// AnalyzeProject returns a prose analysis of the project
func (a *Adapter) AnalyzeProject(ctx context.Context, description string, existingTasks []models.TaskDescriptor, opts providers.ChatOptions) (string, error) {
	return providers.RunProjectAnalysis(ctx, a, description, existingTasks, opts)
}

// SuggestTaskImprovements returns improvement suggestions for tasks
func (a *Adapter) SuggestTaskImprovements(ctx context.Context, tasks []models.TaskDescriptor, opts providers.ChatOptions) ([]string, error) {
	return providers.RunTaskImprovements(ctx, a, tasks, opts)
}

// FetchUsage reads the account rate limits. Cerebras reports quota only through
// x-ratelimit-* headers, so a cheap GET /models is issued and its headers parsed.
func (a *Adapter) FetchUsage(ctx context.Context) (*models.RemoteUsage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/models", nil)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "failed to create request", 0, err)
	}
	a.setHeaders(httpReq)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, a.transportError(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "READ_ERROR", "failed to read response", httpResp.StatusCode, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	quota := a.recordQuota(httpResp.Header)
	if quota == nil {
		quota = a.LastQuota()
	}

	usage := map[string]any{}
	var list ModelList
	if err := json.Unmarshal(respBody, &list); err == nil {
		usage["models_available"] = len(list.Data)
	}
	if quota != nil {
		if quota.RequestsLimit != nil && quota.RequestsRemaining != nil {
			usage["requests_used_today"] = *quota.RequestsLimit - *quota.RequestsRemaining
		}
		if quota.TokensLimit != nil && quota.TokensRemaining != nil {
			usage["tokens_used_this_minute"] = *quota.TokensLimit - *quota.TokensRemaining
		}
	}

	return &models.RemoteUsage{Usage: usage, Quota: quota}, nil
}

// LastQuota returns the rate limits seen on the most recent response, if any
func (a *Adapter) LastQuota() *models.QuotaInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastQuota == nil {
		return nil
	}
	q := *a.lastQuota
	return &q
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	req.Header.Set("Accept", "application/json")
}

// recordQuota parses rate limit headers and remembers them. Returns nil when none are present.
func (a *Adapter) recordQuota(h http.Header) *models.QuotaInfo {
	q := parseQuotaHeaders(h)
	if q == nil {
		return nil
	}
	a.mu.Lock()
	a.lastQuota = q
	a.mu.Unlock()
	c := *q
	return &c
}

func parseQuotaHeaders(h http.Header) *models.QuotaInfo {
	q := &models.QuotaInfo{
		RequestsLimit:     headerInt(h, "x-ratelimit-limit-requests-day"),
		RequestsRemaining: headerInt(h, "x-ratelimit-remaining-requests-day"),
		RequestsReset:     h.Get("x-ratelimit-reset-requests-day"),
		TokensLimit:       headerInt(h, "x-ratelimit-limit-tokens-minute"),
		TokensRemaining:   headerInt(h, "x-ratelimit-remaining-tokens-minute"),
		TokensReset:       h.Get("x-ratelimit-reset-tokens-minute"),
	}
	if q.RequestsLimit == nil && q.RequestsRemaining == nil && q.TokensLimit == nil && q.TokensRemaining == nil {
		return nil
	}
	return q
}

func headerInt(h http.Header, key string) *int {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	n := int(f)
	return &n
}

// buildChatRequest converts unified messages to the Cerebras format
func (a *Adapter) buildChatRequest(messages []providers.Message, opts providers.ChatOptions, model string) *ChatRequest {
	all := providers.WithSystemPrompt(messages, opts.SystemPrompt)

	req := &ChatRequest{
		Model:    model,
		Messages: make([]ChatMessage, len(all)),
	}
	for i, msg := range all {
		req.Messages[i] = ChatMessage{Role: msg.Role, Content: msg.Content}
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = &opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = opts.Temperature
	}
	return req
}

// convertToAIResponse converts a Cerebras response to the normalized form
func (a *Adapter) convertToAIResponse(resp *ChatResponse, requestedModel string, latency time.Duration) (*models.AIResponse, error) {
	completion := providers.Completion{
		Provider: a.Name(),
		Model:    resp.Model,
		ID:       resp.ID,
		Elapsed:  latency,
	}
	if completion.Model == "" {
		completion.Model = requestedModel
	}
	if len(resp.Choices) > 0 {
		completion.Content = resp.Choices[0].Message.Content
		completion.FinishReason = resp.Choices[0].FinishReason
	}
	if resp.Usage != nil {
		completion.UsageReported = true
		completion.PromptTokens = resp.Usage.PromptTokens
		completion.CompletionTokens = resp.Usage.CompletionTokens
		completion.TotalTokens = resp.Usage.TotalTokens
	}
	if resp.TimeInfo != nil {
		completion.Extra = map[string]any{"total_time": resp.TimeInfo.TotalTime}
	}

	aiResp, err := completion.ToAIResponse()
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "INVALID_RESPONSE", "vendor reported invalid usage", 0, err)
	}
	return aiResp, nil
}

// handleErrorResponse handles Cerebras error responses. Both the flat
// {"message","type","code"} shape and the nested {"error": {...}} shape are accepted.
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", msg, statusCode, nil)
	}

	detail := errResp.ErrorDetail
	if errResp.Error != nil {
		detail = *errResp.Error
	}
	if detail.Message == "" {
		detail.Message = http.StatusText(statusCode)
	}
	code := detail.Code
	if code == "" {
		code = detail.Type
	}

	return providers.NewProviderError(a.Name(), code, detail.Message, statusCode, errors.New(detail.Message))
}

func (a *Adapter) transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return providers.NewProviderError(a.Name(), "TIMEOUT", fmt.Sprintf("request timed out after %s", a.config.Timeout), 0, err)
	}
	return providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, err)
}

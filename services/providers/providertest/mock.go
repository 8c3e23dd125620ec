// Package providertest provides a scriptable providers.Provider for tests.
package providertest

import (
	"context"
	"sync"

	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/services/providers"
)

// Provider is a providers.Provider whose behavior is set through function fields.
// Nil functions fall back to the shared workflow helpers or zero values.
type Provider struct {
	Cfg providers.ProviderConfig

	ChatFunc    func(ctx context.Context, messages []providers.Message, opts providers.ChatOptions) (*models.AIResponse, error)
	AnalyzeFunc func(ctx context.Context, description string, existing []models.TaskDescriptor, opts providers.ChatOptions) (string, error)
	SuggestFunc func(ctx context.Context, tasks []models.TaskDescriptor, opts providers.ChatOptions) ([]string, error)
	TasksFunc   func(ctx context.Context, description string, opts providers.TaskOptions) *models.AITaskResponse

	mu           sync.Mutex
	chatRequests [][]providers.Message
}

// New returns a mock configured with cfg
func New(cfg providers.ProviderConfig) *Provider {
	return &Provider{Cfg: cfg}
}

// Reply returns a ChatFunc that always answers with content
func Reply(content string, tokens int) func(context.Context, []providers.Message, providers.ChatOptions) (*models.AIResponse, error) {
	return func(context.Context, []providers.Message, providers.ChatOptions) (*models.AIResponse, error) {
		params := models.AIResponseParams{Content: content, Model: "mock-model"}
		if tokens > 0 {
			params.TokensUsed = &tokens
		}
		return models.NewAIResponse(params)
	}
}

// Fail returns a ChatFunc that always fails with err
func Fail(err error) func(context.Context, []providers.Message, providers.ChatOptions) (*models.AIResponse, error) {
	return func(context.Context, []providers.Message, providers.ChatOptions) (*models.AIResponse, error) {
		return nil, err
	}
}

func (p *Provider) Name() string                     { return p.Cfg.Name }
func (p *Provider) IsConfigured() bool                { return p.Cfg.IsConfigured() }
func (p *Provider) Config() providers.ProviderConfig { return p.Cfg }

// ChatCalls returns the number of Chat invocations so far
func (p *Provider) ChatCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chatRequests)
}

// LastMessages returns the messages of the most recent Chat call
func (p *Provider) LastMessages() []providers.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.chatRequests) == 0 {
		return nil
	}
	return p.chatRequests[len(p.chatRequests)-1]
}

func (p *Provider) Chat(ctx context.Context, messages []providers.Message, opts providers.ChatOptions) (*models.AIResponse, error) {
	p.mu.Lock()
	p.chatRequests = append(p.chatRequests, append([]providers.Message(nil), messages...))
	p.mu.Unlock()

	if p.ChatFunc == nil {
		return models.NewAIResponse(models.AIResponseParams{Content: "ok", Model: p.Cfg.Model})
	}
	return p.ChatFunc(ctx, messages, opts)
}

func (p *Provider) GenerateTasks(ctx context.Context, description string, opts providers.TaskOptions) *models.AITaskResponse {
	if p.TasksFunc != nil {
		return p.TasksFunc(ctx, description, opts)
	}
	return providers.RunTaskGeneration(ctx, p, description, opts)
}

func (p *Provider) AnalyzeProject(ctx context.Context, description string, existing []models.TaskDescriptor, opts providers.ChatOptions) (string, error) {
	if p.AnalyzeFunc != nil {
		return p.AnalyzeFunc(ctx, description, existing, opts)
	}
	return providers.RunProjectAnalysis(ctx, p, description, existing, opts)
}

func (p *Provider) SuggestTaskImprovements(ctx context.Context, tasks []models.TaskDescriptor, opts providers.ChatOptions) ([]string, error) {
	if p.SuggestFunc != nil {
		return p.SuggestFunc(ctx, tasks, opts)
	}
	return providers.RunTaskImprovements(ctx, p, tasks, opts)
}

// ReportingProvider adds providers.UsageReporter to Provider
type ReportingProvider struct {
	*Provider
	FetchUsageFunc func(ctx context.Context) (*models.RemoteUsage, error)
}

func (p *ReportingProvider) FetchUsage(ctx context.Context) (*models.RemoteUsage, error) {
	if p.FetchUsageFunc == nil {
		return &models.RemoteUsage{}, nil
	}
	return p.FetchUsageFunc(ctx)
}

// Package ai routes AI requests to the configured provider.
//
// The Manager resolves a provider name to a configuration (persisted
// settings, then environment defaults, then catalog defaults), keeps one
// instance per provider and exposes the provider operations with usage
// tracking, metrics and tracing around every call.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/taskflow/ai-backend/config"
	"github.com/taskflow/ai-backend/internal/observability"
	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/repositories"
	"github.com/taskflow/ai-backend/services"
	"github.com/taskflow/ai-backend/services/providers"
	"github.com/taskflow/ai-backend/services/settings"
	"github.com/taskflow/ai-backend/services/usage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Operation labels used for metrics and spans
const (
	OpChat    = "chat"
	OpTasks   = "generate_tasks"
	OpAnalyze = "analyze_project"
	OpSuggest = "suggest_improvements"
	OpTest    = "test"
)

const (
	statusOK   = "success"
	statusFail = "error"
)

// ManagerDeps holds the collaborators of a Manager
type ManagerDeps struct {
	Registry *providers.Registry
	Settings repositories.SettingsRepository
	Tracker  *usage.Tracker
	Config   config.AIConfig
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

type cachedProvider struct {
	config   providers.ProviderConfig
	provider providers.Provider
}

// Manager is safe for concurrent use
type Manager struct {
	registry *providers.Registry
	settings repositories.SettingsRepository
	tracker  *usage.Tracker
	cfg      config.AIConfig
	metrics  *observability.Metrics
	logger   *zap.Logger
	tracer   trace.Tracer

	mu        sync.Mutex
	instances map[string]cachedProvider
}

// NewManager creates a manager
func NewManager(deps ManagerDeps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		registry:  deps.Registry,
		settings:  deps.Settings,
		tracker:   deps.Tracker,
		cfg:       deps.Config,
		metrics:   deps.Metrics,
		logger:    logger,
		tracer:    observability.Tracer("services/ai"),
		instances: make(map[string]cachedProvider),
	}
}

// ActiveProvider returns the provider name used when a caller names none
func (m *Manager) ActiveProvider(ctx context.Context) string {
	fallback := m.cfg.DefaultProvider
	if fallback == "" {
		fallback = providers.Cerebras
	}
	name, err := m.settings.Get(ctx, settings.KeyActiveProvider, fallback)
	if err != nil {
		m.logger.Warn("failed to read active provider, using default",
			zap.Error(err),
			zap.String("default", fallback),
		)
		return fallback
	}
	if name == "" {
		return fallback
	}
	return name
}

func (m *Manager) resolveName(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = m.ActiveProvider(ctx)
	}
	if !m.registry.Has(name) {
		return "", fmt.Errorf("%w: %s", providers.ErrUnknownProvider, name)
	}
	return name, nil
}

// ResolveConfig builds the effective configuration of a provider.
// Catalog defaults are applied last by the registry.
func (m *Manager) ResolveConfig(ctx context.Context, name string) (providers.ProviderConfig, error) {
	stored, err := m.settings.GetByPrefix(ctx, "ai."+name+".")
	if err != nil {
		return providers.ProviderConfig{}, services.WrapSettingsUnavailable("failed to load settings for "+name, err)
	}
	env := m.cfg.Providers[name]

	pick := func(field, envValue string) string {
		if v := stored[settings.ProviderKey(name, field)]; v != "" {
			return v
		}
		return envValue
	}

	cfg := providers.ProviderConfig{
		Name:    name,
		APIKey:  pick(providers.FieldAPIKey, env.APIKey),
		BaseURL: pick(providers.FieldBaseURL, env.BaseURL),
		Model:   pick(providers.FieldModel, env.Model),
		Timeout: m.cfg.RequestTimeout,
	}
	return cfg.WithDefaults(), nil
}

// Provider returns the instance for name, or for the active provider when name is empty.
// It fails with *providers.UnconfiguredProviderError when no API key is available.
func (m *Manager) Provider(ctx context.Context, name string) (providers.Provider, error) {
	name, err := m.resolveName(ctx, name)
	if err != nil {
		return nil, err
	}

	cfg, err := m.ResolveConfig(ctx, name)
	if err != nil {
		return nil, err
	}
	if !cfg.IsConfigured() {
		return nil, providers.NewUnconfiguredProviderError(name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, ok := m.instances[name]; ok && cached.config == cfg {
		return cached.provider, nil
	}

	p, err := m.registry.Build(cfg)
	if err != nil {
		return nil, err
	}
	m.instances[name] = cachedProvider{config: cfg, provider: p}
	m.logger.Debug("provider instance created",
		zap.String("provider", name),
		zap.String("model", cfg.Model),
	)
	return p, nil
}

// HasConfiguredProvider reports whether any registered provider has an API key
func (m *Manager) HasConfiguredProvider(ctx context.Context) bool {
	for _, name := range m.registry.Names() {
		cfg, err := m.ResolveConfig(ctx, name)
		if err != nil {
			m.logger.Warn("failed to resolve provider config", zap.String("provider", name), zap.Error(err))
			continue
		}
		if cfg.IsConfigured() {
			return true
		}
	}
	return false
}

// AvailableProviders describes every registered provider that has a catalog entry
func (m *Manager) AvailableProviders(ctx context.Context) map[string]ProviderDescriptor {
	active := m.ActiveProvider(ctx)
	out := make(map[string]ProviderDescriptor)
	for _, name := range m.registry.Names() {
		entry, ok := providers.Lookup(name)
		if !ok {
			continue
		}
		configured := false
		if cfg, err := m.ResolveConfig(ctx, name); err == nil {
			configured = cfg.IsConfigured()
		}
		out[name] = ProviderDescriptor{
			Name:         name,
			DisplayName:  entry.DisplayName,
			DefaultModel: entry.DefaultModel,
			Models:       entry.Models,
			Configured:   configured,
			Active:       name == active,
		}
	}
	return out
}

// ProviderConfigs returns the effective configuration of every registered provider
func (m *Manager) ProviderConfigs(ctx context.Context) (map[string]providers.ProviderConfig, error) {
	out := make(map[string]providers.ProviderConfig)
	for _, name := range m.registry.Names() {
		cfg, err := m.ResolveConfig(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = cfg
	}
	return out, nil
}

// DefaultConfig returns the ai.default.* values. Unset values fall back to the active provider's catalog entry.
func (m *Manager) DefaultConfig(ctx context.Context) (DefaultConfig, error) {
	stored, err := m.settings.GetByPrefix(ctx, "ai.default.")
	if err != nil {
		return DefaultConfig{}, services.WrapSettingsUnavailable("failed to load default AI settings", err)
	}

	dc := DefaultConfig{
		Provider: stored[settings.KeyDefaultProvider],
		Model:    stored[settings.KeyDefaultModel],
		APIKey:   stored[settings.KeyDefaultAPIKey],
		BaseURL:  stored[settings.KeyDefaultBaseURL],
	}
	if dc.Provider == "" {
		dc.Provider = m.ActiveProvider(ctx)
	}
	if dc.Model == "" {
		if entry, ok := providers.Lookup(dc.Provider); ok {
			dc.Model = entry.DefaultModel
		}
	}
	return dc, nil
}

// TestProvider sends TestPrompt with the given configuration. A nil override tests the
// stored configuration. The override is used for this call only and never cached.
func (m *Manager) TestProvider(ctx context.Context, name string, override *providers.ProviderConfig) (*TestResult, error) {
	name, err := m.resolveName(ctx, name)
	if err != nil {
		return nil, err
	}

	var cfg providers.ProviderConfig
	if override != nil {
		cfg = *override
		cfg.Name = name
		if cfg.Timeout <= 0 {
			cfg.Timeout = m.cfg.RequestTimeout
		}
	} else {
		cfg, err = m.ResolveConfig(ctx, name)
		if err != nil {
			return nil, err
		}
	}

	details := map[string]any{"provider": name}
	if !cfg.IsConfigured() {
		return &TestResult{
			Success: false,
			Message: fmt.Sprintf("%s is not configured: missing API key", providers.DisplayName(name)),
			Details: details,
		}, nil
	}

	p, err := m.registry.Build(cfg)
	if err != nil {
		return nil, err
	}
	details["model"] = p.Config().Model

	ctx, span := m.startSpan(ctx, OpTest, name)
	defer span.End()

	start := time.Now()
	resp, err := p.Chat(ctx, []providers.Message{{Role: providers.RoleUser, Content: TestPrompt}}, providers.ChatOptions{MaxTokens: 20})
	elapsed := time.Since(start)

	if err != nil {
		m.finish(span, name, OpTest, elapsed, err)
		m.logger.Info("provider connection test failed",
			append(observability.ContextFields(ctx), zap.String("provider", name), zap.Error(err))...,
		)
		var pe *providers.ProviderError
		if errors.As(err, &pe) && pe.StatusCode > 0 {
			details["status_code"] = pe.StatusCode
		}
		return &TestResult{
			Success: false,
			Message: "Connection failed: " + err.Error(),
			Details: details,
		}, nil
	}
	m.finish(span, name, OpTest, elapsed, nil)

	if !resp.IsSuccessful() {
		return &TestResult{
			Success: false,
			Message: "Connection failed: the provider returned an empty response",
			Details: details,
		}, nil
	}

	details["response"] = resp.Content()
	details["response_time"] = elapsed.Seconds()
	if tokens, ok := resp.TokensUsed(); ok {
		details["tokens_used"] = tokens
	}
	return &TestResult{
		Success: true,
		Message: fmt.Sprintf("Successfully connected to %s", providers.DisplayName(name)),
		Details: details,
	}, nil
}

// Chat sends messages to the named provider
func (m *Manager) Chat(ctx context.Context, name string, messages []providers.Message, opts providers.ChatOptions) (*models.AIResponse, error) {
	p, err := m.Provider(ctx, name)
	if err != nil {
		return nil, err
	}
	model := p.Config().ResolveModel(opts)

	ctx, span := m.startSpan(ctx, OpChat, p.Name())
	defer span.End()

	start := time.Now()
	resp, err := p.Chat(ctx, messages, opts)
	m.finish(span, p.Name(), OpChat, time.Since(start), err)
	if err != nil {
		m.tracker.LogError(ctx, p.Name(), model, err.Error())
		return nil, err
	}

	m.logResponse(ctx, p.Name(), model, resp, promptText(messages))
	return resp, nil
}

// GenerateTasks asks the named provider for a task breakdown.
// Provider failures are reported through the failed variant; only resolution errors are returned.
func (m *Manager) GenerateTasks(ctx context.Context, name, description string, opts providers.TaskOptions) (*models.AITaskResponse, error) {
	p, err := m.Provider(ctx, name)
	if err != nil {
		return nil, err
	}
	model := p.Config().ResolveModel(opts.ChatOptions)

	ctx, span := m.startSpan(ctx, OpTasks, p.Name())
	defer span.End()

	start := time.Now()
	result := p.GenerateTasks(ctx, description, opts)

	if !result.IsSuccess() {
		failure := errors.New(result.ErrorMessage())
		m.finish(span, p.Name(), OpTasks, time.Since(start), failure)
		m.tracker.LogError(ctx, p.Name(), model, result.ErrorMessage())
		return result, nil
	}
	m.finish(span, p.Name(), OpTasks, time.Since(start), nil)
	span.SetAttributes(attribute.Int("ai.task_count", result.TaskCount()))

	if raw := result.RawResponse(); raw != nil {
		m.logResponse(ctx, p.Name(), model, raw, description)
	} else {
		m.logEstimated(ctx, p.Name(), model, description, "")
	}
	return result, nil
}

// AnalyzeProject returns the named provider's analysis of a project
func (m *Manager) AnalyzeProject(ctx context.Context, name, description string, existing []models.TaskDescriptor, opts providers.ChatOptions) (string, error) {
	p, err := m.Provider(ctx, name)
	if err != nil {
		return "", err
	}
	model := p.Config().ResolveModel(opts)

	ctx, span := m.startSpan(ctx, OpAnalyze, p.Name())
	defer span.End()

	start := time.Now()
	analysis, err := p.AnalyzeProject(ctx, description, existing, opts)
	m.finish(span, p.Name(), OpAnalyze, time.Since(start), err)
	if err != nil {
		m.tracker.LogError(ctx, p.Name(), model, err.Error())
		return "", err
	}

	m.logEstimated(ctx, p.Name(), model, description, analysis)
	return analysis, nil
}

// SuggestTaskImprovements returns the named provider's suggestions for tasks
func (m *Manager) SuggestTaskImprovements(ctx context.Context, name string, tasks []models.TaskDescriptor, opts providers.ChatOptions) ([]string, error) {
	p, err := m.Provider(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return []string{}, nil
	}
	model := p.Config().ResolveModel(opts)

	ctx, span := m.startSpan(ctx, OpSuggest, p.Name())
	defer span.End()

	start := time.Now()
	suggestions, err := p.SuggestTaskImprovements(ctx, tasks, opts)
	m.finish(span, p.Name(), OpSuggest, time.Since(start), err)
	if err != nil {
		m.tracker.LogError(ctx, p.Name(), model, err.Error())
		return nil, err
	}

	var prompt strings.Builder
	for _, t := range tasks {
		prompt.WriteString(t.Title)
		prompt.WriteString(t.Description)
	}
	m.logEstimated(ctx, p.Name(), model, prompt.String(), strings.Join(suggestions, ""))
	return suggestions, nil
}

// UsageMetrics reports usage for the active provider.
// Remote usage is included when that provider is configured and can report it.
func (m *Manager) UsageMetrics(ctx context.Context) *models.UsageMetrics {
	name := m.ActiveProvider(ctx)

	var reporter providers.UsageReporter
	if p, err := m.Provider(ctx, name); err == nil {
		if r, ok := p.(providers.UsageReporter); ok {
			reporter = r
		}
	} else if !providers.IsUnconfigured(err) {
		m.logger.Warn("failed to resolve provider for usage metrics", zap.String("provider", name), zap.Error(err))
	}

	return m.tracker.GetUsageMetrics(ctx, name, reporter)
}

// logResponse records usage from the vendor figures, estimating tokens when none were reported
func (m *Manager) logResponse(ctx context.Context, provider, model string, resp *models.AIResponse, prompt string) {
	if resp.Model() != "" {
		model = resp.Model()
	}
	tokens, ok := resp.TokensUsed()
	if !ok {
		tokens = providers.EstimateTokens(prompt) + providers.EstimateTokens(resp.Content())
	}
	cost, _ := resp.Cost()

	m.tracker.LogUsage(ctx, provider, model, tokens, cost)
	m.metrics.RecordUsage(provider, model, tokens, cost)
}

// logEstimated records usage for calls whose vendor response is not exposed.
// Prompt and completion tokens are priced at their own rates.
func (m *Manager) logEstimated(ctx context.Context, provider, model, prompt, completion string) {
	promptTokens := providers.EstimateTokens(prompt)
	completionTokens := providers.EstimateTokens(completion)
	cost, _ := providers.EstimateCost(provider, model, promptTokens, completionTokens)
	tokens := promptTokens + completionTokens
	m.tracker.LogUsage(ctx, provider, model, tokens, cost)
	m.metrics.RecordUsage(provider, model, tokens, cost)
}

func (m *Manager) startSpan(ctx context.Context, op, provider string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "ai."+op, trace.WithAttributes(
		attribute.String("ai.provider", provider),
		attribute.String("ai.operation", op),
	))
}

func (m *Manager) finish(span trace.Span, provider, op string, elapsed time.Duration, err error) {
	status := statusOK
	if err != nil {
		status = statusFail
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	m.metrics.RecordProviderCall(provider, op, status, elapsed)
}

func promptText(messages []providers.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(msg.Content)
	}
	return b.String()
}

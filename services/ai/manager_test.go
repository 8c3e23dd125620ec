package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskflow/ai-backend/config"
	"github.com/taskflow/ai-backend/internal/observability"
	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/repositories/memory"
	"github.com/taskflow/ai-backend/services"
	"github.com/taskflow/ai-backend/services/providers"
	"github.com/taskflow/ai-backend/services/providers/providertest"
	"github.com/taskflow/ai-backend/services/usage"
	"go.uber.org/zap"
)

type fixture struct {
	manager  *Manager
	settings *memory.SettingsRepository
	usage    *memory.UsageRepository
	metrics  *observability.Metrics

	mu     sync.Mutex
	builds map[string]int
	chat   func(context.Context, []providers.Message, providers.ChatOptions) (*models.AIResponse, error)
	last   map[string]*providertest.Provider
}

func newFixture(t *testing.T, env map[string]config.ProviderDefaults) *fixture {
	t.Helper()

	f := &fixture{
		settings: memory.NewSettingsRepository(),
		usage:    memory.NewUsageRepository(30),
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
		builds:   make(map[string]int),
		last:     make(map[string]*providertest.Provider),
		chat:     providertest.Reply("Connection successful", 12),
	}

	builder := func(cfg providers.ProviderConfig) (providers.Provider, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.builds[cfg.Name]++
		p := providertest.New(cfg)
		p.ChatFunc = func(ctx context.Context, msgs []providers.Message, opts providers.ChatOptions) (*models.AIResponse, error) {
			return f.chat(ctx, msgs, opts)
		}
		f.last[cfg.Name] = p
		return p, nil
	}

	registry := providers.NewRegistry().
		WithBuilder(providers.Cerebras, builder).
		WithBuilder(providers.OpenAI, builder).
		WithBuilder(providers.Anthropic, builder)

	f.manager = NewManager(ManagerDeps{
		Registry: registry,
		Settings: f.settings,
		Tracker:  usage.NewTracker(f.usage, zap.NewNop()),
		Config: config.AIConfig{
			DefaultProvider: providers.Cerebras,
			RequestTimeout:  5 * time.Second,
			Providers:       env,
		},
		Metrics: f.metrics,
		Logger:  zap.NewNop(),
	})
	return f
}

func (f *fixture) set(t *testing.T, key, value string) {
	t.Helper()
	require.NoError(t, f.settings.Set(context.Background(), key, value, models.SettingTypeString, ""))
}

func (f *fixture) buildCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds[name]
}

func TestProvider_ResolvesActiveProvider(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.set(t, "ai.cerebrus.api_key", "csk")

	p, err := f.manager.Provider(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, providers.Cerebras, p.Name())
	assert.Equal(t, "llama-3.3-70b", p.Config().Model)
	assert.Equal(t, "https://api.cerebras.ai/v1", p.Config().BaseURL)
	assert.Equal(t, 5*time.Second, p.Config().Timeout)

	f.set(t, "ai.provider", "openai")
	_, err = f.manager.Provider(ctx, "")
	assert.True(t, providers.IsUnconfigured(err))

	var unconfigured *providers.UnconfiguredProviderError
	require.ErrorAs(t, err, &unconfigured)
	assert.Equal(t, "openai", unconfigured.Provider)
}

func TestProvider_SettingsOverrideEnvironment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]config.ProviderDefaults{
		"openai": {APIKey: "sk-env", Model: "gpt-4o"},
	})

	p, err := f.manager.Provider(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", p.Config().APIKey)
	assert.Equal(t, "gpt-4o", p.Config().Model)

	f.set(t, "ai.openai.model", "gpt-4-turbo")
	p, err = f.manager.Provider(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", p.Config().APIKey)
	assert.Equal(t, "gpt-4-turbo", p.Config().Model)
}

func TestProvider_CachesUntilConfigChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.set(t, "ai.anthropic.api_key", "sk-ant-1")

	first, err := f.manager.Provider(ctx, "anthropic")
	require.NoError(t, err)
	second, err := f.manager.Provider(ctx, "anthropic")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, f.buildCount("anthropic"))

	f.set(t, "ai.anthropic.api_key", "sk-ant-2")
	third, err := f.manager.Provider(ctx, "anthropic")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, "sk-ant-2", third.Config().APIKey)
	assert.Equal(t, 2, f.buildCount("anthropic"))
}

func TestProvider_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.set(t, "ai.openai.api_key", "sk")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.Provider(ctx, "openai")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, f.buildCount("openai"))
}

func TestProvider_UnknownName(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.manager.Provider(context.Background(), "mistral")
	assert.ErrorIs(t, err, providers.ErrUnknownProvider)
}

type unreachableSettings struct {
	*memory.SettingsRepository
}

func (unreachableSettings) GetByPrefix(context.Context, string) (map[string]string, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestResolveConfig_SettingsStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ManagerDeps{
		Registry: providers.NewRegistry(),
		Settings: unreachableSettings{memory.NewSettingsRepository()},
		Tracker:  usage.NewTracker(memory.NewUsageRepository(30), zap.NewNop()),
		Config:   config.AIConfig{DefaultProvider: providers.OpenAI, RequestTimeout: time.Second},
		Metrics:  observability.NewMetrics(prometheus.NewRegistry()),
		Logger:   zap.NewNop(),
	})

	_, err := m.ResolveConfig(ctx, providers.OpenAI)
	require.Error(t, err)
	assert.True(t, services.IsUnavailableError(err))
	assert.ErrorIs(t, err, services.ErrSettingsUnavailable)
	assert.Contains(t, err.Error(), "connection refused")

	_, err = m.DefaultConfig(ctx)
	assert.True(t, services.IsUnavailableError(err))
}

func TestHasConfiguredProvider(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		env      map[string]config.ProviderDefaults
		settings map[string]string
		want     bool
	}{
		{name: "nothing configured", want: false},
		{name: "only base url and model", settings: map[string]string{"ai.openai.base_url": "http://x", "ai.openai.model": "gpt-4o"}, want: false},
		{name: "key in settings", settings: map[string]string{"ai.anthropic.api_key": "sk-ant"}, want: true},
		{name: "key in environment", env: map[string]config.ProviderDefaults{"cerebrus": {APIKey: "csk"}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.env)
			for k, v := range tt.settings {
				f.set(t, k, v)
			}
			assert.Equal(t, tt.want, f.manager.HasConfiguredProvider(ctx))
		})
	}
}

func TestAvailableProviders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.set(t, "ai.provider", "openai")
	f.set(t, "ai.openai.api_key", "sk")

	available := f.manager.AvailableProviders(ctx)
	require.Len(t, available, 3)

	assert.True(t, available["openai"].Configured)
	assert.True(t, available["openai"].Active)
	assert.False(t, available["cerebrus"].Configured)
	assert.False(t, available["cerebrus"].Active)
	assert.Equal(t, "Anthropic", available["anthropic"].DisplayName)
	assert.NotEmpty(t, available["anthropic"].Models)
}

func TestDefaultConfig(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	dc, err := f.manager.DefaultConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig{Provider: "cerebrus", Model: "llama-3.3-70b"}, dc)

	f.set(t, "ai.default.provider", "anthropic")
	f.set(t, "ai.default.model", "claude-3-5-haiku-20241022")
	f.set(t, "ai.openai.model", "gpt-4o")

	dc, err = f.manager.DefaultConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", dc.Provider)
	assert.Equal(t, "claude-3-5-haiku-20241022", dc.Model)
}

func TestTestProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("success with override does not touch the cache", func(t *testing.T) {
		f := newFixture(t, nil)

		result, err := f.manager.TestProvider(ctx, "openai", &providers.ProviderConfig{
			APIKey:  "sk-test",
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4",
		})
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "Successfully connected to OpenAI", result.Message)
		assert.Equal(t, "gpt-4", result.Details["model"])
		assert.Equal(t, 12, result.Details["tokens_used"])
		assert.Equal(t, TestPrompt, f.last["openai"].LastMessages()[0].Content)

		_, err = f.manager.Provider(ctx, "openai")
		assert.True(t, providers.IsUnconfigured(err), "override must not leak into stored config")
	})

	t.Run("vendor failure is reported, not returned", func(t *testing.T) {
		f := newFixture(t, nil)
		f.chat = providertest.Fail(providers.NewProviderError("openai", "invalid_api_key", "Incorrect API key provided", 401, nil))

		result, err := f.manager.TestProvider(ctx, "openai", &providers.ProviderConfig{APIKey: "bad"})
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "Incorrect API key provided")
		assert.Equal(t, 401, result.Details["status_code"])
	})

	t.Run("missing key fails without a call", func(t *testing.T) {
		f := newFixture(t, nil)

		result, err := f.manager.TestProvider(ctx, "anthropic", nil)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Message)
		assert.Equal(t, 0, f.buildCount("anthropic"))
	})

	t.Run("empty reply is a failure", func(t *testing.T) {
		f := newFixture(t, nil)
		f.chat = providertest.Reply("   ", 0)

		result, err := f.manager.TestProvider(ctx, "cerebrus", &providers.ProviderConfig{APIKey: "csk"})
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Message)
	})

	t.Run("unknown provider is an error", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.manager.TestProvider(ctx, "mistral", &providers.ProviderConfig{APIKey: "x"})
		assert.ErrorIs(t, err, providers.ErrUnknownProvider)
	})
}

func TestChat_RecordsUsageAndMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.set(t, "ai.cerebrus.api_key", "csk")

	resp, err := f.manager.Chat(ctx, "", []providers.Message{{Role: "user", Content: "hello"}}, providers.ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Connection successful", resp.Content())

	summary, err := f.usage.Summarize(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Today.Requests)
	assert.Equal(t, 1, summary.Today.Successful)
	assert.Equal(t, 12, summary.Today.EstimatedTokens)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ProviderCalls.WithLabelValues("cerebrus", OpChat, "success")))
	assert.Equal(t, 12.0, testutil.ToFloat64(f.metrics.ProviderTokens.WithLabelValues("cerebrus", "mock-model")))
}

func TestChat_RecordsErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.set(t, "ai.openai.api_key", "sk")
	f.chat = providertest.Fail(providers.NewProviderError("openai", "TIMEOUT", "request timed out", 0, context.DeadlineExceeded))

	_, err := f.manager.Chat(ctx, "openai", []providers.Message{{Role: "user", Content: "hi"}}, providers.ChatOptions{})
	require.Error(t, err)
	assert.True(t, providers.IsProviderError(err))

	summary, err := f.usage.Summarize(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Today.Failed)
	assert.Equal(t, 0, summary.Today.Successful)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ProviderCalls.WithLabelValues("openai", OpChat, "error")))
}

func TestChat_UnconfiguredRecordsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.manager.Chat(ctx, "", []providers.Message{{Role: "user", Content: "hi"}}, providers.ChatOptions{})
	assert.ErrorIs(t, err, providers.ErrProviderNotConfigured)

	summary, _ := f.usage.Summarize(ctx, time.Now())
	assert.Equal(t, 0, summary.Today.Requests)
}

func TestGenerateTasks(t *testing.T) {
	ctx := context.Background()

	t.Run("success logs usage from the raw response", func(t *testing.T) {
		f := newFixture(t, nil)
		f.set(t, "ai.cerebrus.api_key", "csk")
		f.chat = providertest.Reply(`{"tasks":[{"title":"Design schema","priority":"high"},{"title":"Write API"}],"notes":"Scope is small"}`, 40)

		result, err := f.manager.GenerateTasks(ctx, "", "Build a todo app", providers.TaskOptions{})
		require.NoError(t, err)
		require.True(t, result.IsSuccess())
		assert.Equal(t, 2, result.TaskCount())
		assert.Equal(t, []string{"Scope is small"}, result.Notes())

		summary, _ := f.usage.Summarize(ctx, time.Now())
		assert.Equal(t, 1, summary.Today.Successful)
		assert.Equal(t, 40, summary.Today.EstimatedTokens)
	})

	t.Run("failure variant is returned and logged", func(t *testing.T) {
		f := newFixture(t, nil)
		f.set(t, "ai.cerebrus.api_key", "csk")
		f.chat = providertest.Fail(errors.New("connection refused"))

		result, err := f.manager.GenerateTasks(ctx, "", "Build a todo app", providers.TaskOptions{})
		require.NoError(t, err)
		assert.False(t, result.IsSuccess())
		assert.Contains(t, result.ErrorMessage(), "connection refused")

		summary, _ := f.usage.Summarize(ctx, time.Now())
		assert.Equal(t, 1, summary.Today.Failed)
	})
}

func TestAnalyzeAndSuggest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.set(t, "ai.openai.api_key", "sk")
	f.set(t, "ai.provider", "openai")

	f.chat = providertest.Reply("  The plan covers the backend but lacks tests.  ", 0)
	analysis, err := f.manager.AnalyzeProject(ctx, "", "Build a todo app", nil, providers.ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "The plan covers the backend but lacks tests.", analysis)

	f.chat = providertest.Reply("- Split the API task\n- Add acceptance criteria", 0)
	suggestions, err := f.manager.SuggestTaskImprovements(ctx, "", []models.TaskDescriptor{{Title: "Write API"}}, providers.ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Split the API task", "Add acceptance criteria"}, suggestions)

	empty, err := f.manager.SuggestTaskImprovements(ctx, "", nil, providers.ChatOptions{})
	require.NoError(t, err)
	assert.Empty(t, empty)

	summary, _ := f.usage.Summarize(ctx, time.Now())
	assert.Equal(t, 2, summary.Today.Successful)
	assert.Positive(t, summary.Today.EstimatedTokens)
}

func TestAnalyzeProject_PricesCompletionSeparately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.set(t, "ai.openai.api_key", "sk")
	f.set(t, "ai.provider", "openai")

	description := "Build a todo app with offline sync"
	analysis := "The scope is reasonable but the sync conflict rules need a dedicated task before any UI work."
	f.chat = providertest.Reply(analysis, 0)

	_, err := f.manager.AnalyzeProject(ctx, "", description, nil, providers.ChatOptions{})
	require.NoError(t, err)

	promptTokens := providers.EstimateTokens(description)
	completionTokens := providers.EstimateTokens(analysis)
	want, ok := providers.EstimateCost(providers.OpenAI, "gpt-4o-mini", promptTokens, completionTokens)
	require.True(t, ok)
	allPrompt, _ := providers.EstimateCost(providers.OpenAI, "gpt-4o-mini", promptTokens+completionTokens, 0)

	summary, _ := f.usage.Summarize(ctx, time.Now())
	assert.Equal(t, promptTokens+completionTokens, summary.Today.EstimatedTokens)
	assert.InDelta(t, want, summary.Today.EstimatedCost, 1e-12)
	assert.Greater(t, summary.Today.EstimatedCost, allPrompt)
}

func TestUsageMetrics(t *testing.T) {
	ctx := context.Background()

	t.Run("local only when the provider cannot report", func(t *testing.T) {
		f := newFixture(t, nil)
		f.set(t, "ai.cerebrus.api_key", "csk")

		metrics := f.manager.UsageMetrics(ctx)
		assert.Equal(t, models.UsageStatusLocalOnly, metrics.Status)
		assert.Equal(t, "cerebrus", metrics.Provider)
	})

	t.Run("success when the provider reports usage", func(t *testing.T) {
		limit := 1000
		reporter := func(cfg providers.ProviderConfig) (providers.Provider, error) {
			return &providertest.ReportingProvider{
				Provider: providertest.New(cfg),
				FetchUsageFunc: func(context.Context) (*models.RemoteUsage, error) {
					return &models.RemoteUsage{Quota: &models.QuotaInfo{RequestsLimit: &limit}}, nil
				},
			}, nil
		}
		settingsRepo := memory.NewSettingsRepository()
		require.NoError(t, settingsRepo.Set(ctx, "ai.cerebrus.api_key", "csk", models.SettingTypeSecret, ""))

		m := NewManager(ManagerDeps{
			Registry: providers.NewRegistry().WithBuilder(providers.Cerebras, reporter),
			Settings: settingsRepo,
			Tracker:  usage.NewTracker(memory.NewUsageRepository(30), zap.NewNop()),
			Config:   config.AIConfig{DefaultProvider: providers.Cerebras, RequestTimeout: time.Second},
		})

		metrics := m.UsageMetrics(ctx)
		assert.Equal(t, models.UsageStatusSuccess, metrics.Status)
		require.NotNil(t, metrics.QuotaInfo)
		assert.Equal(t, 1000, *metrics.QuotaInfo.RequestsLimit)
	})
}

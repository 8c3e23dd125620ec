package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/taskflow/ai-backend/config"
	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/repositories/memory"
	"github.com/taskflow/ai-backend/services/ai"
	"github.com/taskflow/ai-backend/services/providers"
	"github.com/taskflow/ai-backend/services/providers/providertest"
	"github.com/taskflow/ai-backend/services/settings"
	"github.com/taskflow/ai-backend/services/usage"
	"go.uber.org/zap"
)

type chatFunc func(context.Context, []providers.Message, providers.ChatOptions) (*models.AIResponse, error)

// testEnv wires a Manager over mock providers and in-memory stores
type testEnv struct {
	manager  *ai.Manager
	settings *settings.Service
	repo     *memory.SettingsRepository

	mu       sync.Mutex
	chat     chatFunc
	calls    int
	buildErr error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		repo: memory.NewSettingsRepository(),
		chat: providertest.Reply("Connection successful", 7),
	}

	builder := func(cfg providers.ProviderConfig) (providers.Provider, error) {
		env.mu.Lock()
		buildErr := env.buildErr
		env.mu.Unlock()
		if buildErr != nil {
			return nil, buildErr
		}

		p := providertest.New(cfg)
		p.ChatFunc = func(ctx context.Context, msgs []providers.Message, opts providers.ChatOptions) (*models.AIResponse, error) {
			env.mu.Lock()
			env.calls++
			fn := env.chat
			env.mu.Unlock()
			return fn(ctx, msgs, opts)
		}
		return p, nil
	}

	registry := providers.NewRegistry().
		WithBuilder(providers.Cerebras, builder).
		WithBuilder(providers.OpenAI, builder).
		WithBuilder(providers.Anthropic, builder)

	env.manager = ai.NewManager(ai.ManagerDeps{
		Registry: registry,
		Settings: env.repo,
		Tracker:  usage.NewTracker(memory.NewUsageRepository(30), zap.NewNop()),
		Config: config.AIConfig{
			DefaultProvider: providers.Cerebras,
			RequestTimeout:  time.Second,
		},
		Logger: zap.NewNop(),
	})
	env.settings = settings.NewService(env.repo, memory.NewTransactionManager(), zap.NewNop())
	return env
}

func (e *testEnv) failBuilds(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buildErr = err
}

func (e *testEnv) reply(fn chatFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chat = fn
}

func (e *testEnv) chatCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *testEnv) set(t *testing.T, key, value string) {
	t.Helper()
	require.NoError(t, e.repo.Set(context.Background(), key, value, models.SettingTypeString, ""))
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

package cerebras

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taskflow/ai-backend/services/providers"
)

const chatOK = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "llama-3.3-70b",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "Connection successful"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 20, "completion_tokens": 3, "total_tokens": 23},
	"time_info": {"total_time": 0.05}
}`

func newTestAdapter(serverURL string) *Adapter {
	return NewAdapter(providers.ProviderConfig{
		APIKey:  "csk-test",
		BaseURL: serverURL + "/",
	})
}

func TestNewAdapter(t *testing.T) {
	adapter := NewAdapter(providers.ProviderConfig{APIKey: "test-key"})

	if adapter.Name() != "cerebrus" {
		t.Errorf("Name() = %s, want cerebrus", adapter.Name())
	}
	if adapter.Config().BaseURL != "https://api.cerebras.ai/v1" {
		t.Errorf("BaseURL = %s, want catalog default", adapter.Config().BaseURL)
	}
	if adapter.Config().Model != "llama-3.3-70b" {
		t.Errorf("Model = %s, want llama-3.3-70b", adapter.Config().Model)
	}
	if adapter.httpClient.Timeout != providers.DefaultTimeout {
		t.Errorf("client timeout = %v, want %v", adapter.httpClient.Timeout, providers.DefaultTimeout)
	}
	if !adapter.IsConfigured() {
		t.Error("adapter with a key should be configured")
	}
	if NewAdapter(providers.ProviderConfig{}).IsConfigured() {
		t.Error("adapter without a key should not be configured")
	}
}

func TestAdapter_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer csk-test" {
			t.Errorf("Authorization = %s", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var req ChatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("invalid request body: %v", err)
			return
		}
		if req.Model != "llama3.1-8b" {
			t.Errorf("model = %s, want llama3.1-8b", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("expected system prompt to be prepended, got %+v", req.Messages)
		}
		if req.MaxCompletionTokens == nil || *req.MaxCompletionTokens != 20 {
			t.Errorf("max_completion_tokens = %v, want 20", req.MaxCompletionTokens)
		}

		w.Header().Set("x-ratelimit-limit-requests-day", "14400")
		w.Header().Set("x-ratelimit-remaining-requests-day", "14390")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatOK)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	resp, err := adapter.Chat(context.Background(), []providers.Message{
		{Role: providers.RoleUser, Content: "hello"},
	}, providers.ChatOptions{Model: "llama3.1-8b", MaxTokens: 20, SystemPrompt: "be brief"})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if resp.Content() != "Connection successful" {
		t.Errorf("Content() = %q", resp.Content())
	}
	if tokens, ok := resp.TokensUsed(); !ok || tokens != 23 {
		t.Errorf("TokensUsed() = %d, %v; want 23, true", tokens, ok)
	}
	if _, ok := resp.Cost(); !ok {
		t.Error("cost should be priced for catalog models")
	}
	if _, ok := resp.ResponseTime(); !ok {
		t.Error("response time should be measured")
	}
	if resp.Metadata()["finish_reason"] != "stop" {
		t.Errorf("metadata = %v", resp.Metadata())
	}

	quota := adapter.LastQuota()
	if quota == nil || *quota.RequestsRemaining != 14390 {
		t.Errorf("LastQuota() = %+v, want remaining 14390", quota)
	}
}

func TestAdapter_Chat_NoUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"model": "llama-3.3-70b", "choices": [{"message": {"role": "assistant", "content": "hi"}}]}`)
	}))
	defer server.Close()

	resp, err := newTestAdapter(server.URL).Chat(context.Background(), []providers.Message{{Role: "user", Content: "x"}}, providers.ChatOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if _, ok := resp.TokensUsed(); ok {
		t.Error("tokens should be absent when the vendor sends no usage")
	}
	if _, ok := resp.Cost(); ok {
		t.Error("cost should be absent when the vendor sends no usage")
	}
}

func TestAdapter_Chat_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCode   string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "flat error body",
			status:     http.StatusUnauthorized,
			body:       `{"message": "Wrong API Key", "type": "invalid_request_error", "param": "api_key", "code": "wrong_api_key"}`,
			wantCode:   "wrong_api_key",
			wantStatus: 401,
			wantMsg:    "Wrong API Key",
		},
		{
			name:       "nested error body",
			status:     http.StatusTooManyRequests,
			body:       `{"error": {"message": "Rate limit exceeded", "type": "rate_limit_error"}}`,
			wantCode:   "rate_limit_error",
			wantStatus: 429,
			wantMsg:    "Rate limit exceeded",
		},
		{
			name:       "non json body",
			status:     http.StatusBadGateway,
			body:       "upstream unavailable",
			wantCode:   "UNKNOWN_ERROR",
			wantStatus: 502,
			wantMsg:    "upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := newTestAdapter(server.URL).Chat(context.Background(), []providers.Message{{Role: "user", Content: "x"}}, providers.ChatOptions{})

			var provErr *providers.ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("expected *ProviderError, got %T: %v", err, err)
			}
			if provErr.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", provErr.Code, tt.wantCode)
			}
			if provErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, tt.wantStatus)
			}
			if !strings.Contains(provErr.Error(), tt.wantMsg) {
				t.Errorf("Error() = %q, want it to contain %q", provErr.Error(), tt.wantMsg)
			}
		})
	}
}

func TestAdapter_Chat_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		io.WriteString(w, chatOK)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.ProviderConfig{
		APIKey:  "csk-test",
		BaseURL: server.URL,
		Timeout: 20 * time.Millisecond,
	})

	_, err := adapter.Chat(context.Background(), []providers.Message{{Role: "user", Content: "x"}}, providers.ChatOptions{})
	var provErr *providers.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if provErr.Code != "TIMEOUT" {
		t.Errorf("Code = %s, want TIMEOUT", provErr.Code)
	}
}

func TestAdapter_GenerateTasks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := "```json\n{\"tasks\": [{\"title\": \"Draft schema\"}], \"suggestions\": \"add tests\"}\n```"
		resp := map[string]any{
			"model":   "llama-3.3-70b",
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	result := newTestAdapter(server.URL).GenerateTasks(context.Background(), "Build a data pipeline", providers.TaskOptions{})
	if !result.IsSuccess() {
		t.Fatalf("GenerateTasks() failed: %s", result.ErrorMessage())
	}
	if result.TaskCount() != 1 || result.Tasks()[0].Title != "Draft schema" {
		t.Errorf("Tasks() = %+v", result.Tasks())
	}
	if !result.HasSuggestions() {
		t.Error("scalar suggestion should be normalized into a list")
	}
}

func TestAdapter_FetchUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("x-ratelimit-limit-requests-day", "1000")
		w.Header().Set("x-ratelimit-remaining-requests-day", "990")
		w.Header().Set("x-ratelimit-reset-requests-day", "33011.38")
		w.Header().Set("x-ratelimit-limit-tokens-minute", "60000")
		w.Header().Set("x-ratelimit-remaining-tokens-minute", "59000")
		io.WriteString(w, `{"object": "list", "data": [{"id": "llama-3.3-70b"}, {"id": "llama3.1-8b"}]}`)
	}))
	defer server.Close()

	usage, err := newTestAdapter(server.URL).FetchUsage(context.Background())
	if err != nil {
		t.Fatalf("FetchUsage() error = %v", err)
	}
	if usage.Quota == nil || *usage.Quota.RequestsLimit != 1000 {
		t.Fatalf("Quota = %+v", usage.Quota)
	}
	if usage.Quota.RequestsReset != "33011.38" {
		t.Errorf("RequestsReset = %s", usage.Quota.RequestsReset)
	}
	if usage.Usage["requests_used_today"] != 10 {
		t.Errorf("requests_used_today = %v, want 10", usage.Usage["requests_used_today"])
	}
	if usage.Usage["tokens_used_this_minute"] != 1000 {
		t.Errorf("tokens_used_this_minute = %v, want 1000", usage.Usage["tokens_used_this_minute"])
	}
	if usage.Usage["models_available"] != 2 {
		t.Errorf("models_available = %v, want 2", usage.Usage["models_available"])
	}
}

func TestAdapter_FetchUsage_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message": "Wrong API Key", "code": "wrong_api_key"}`)
	}))
	defer server.Close()

	_, err := newTestAdapter(server.URL).FetchUsage(context.Background())
	var provErr *providers.ProviderError
	if !errors.As(err, &provErr) || !provErr.IsAuthError() {
		t.Fatalf("expected auth ProviderError, got %v", err)
	}
}

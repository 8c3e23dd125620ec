package providers

import "sort"

// Provider keys
const (
	Cerebras  = "cerebrus"
	OpenAI    = "openai"
	Anthropic = "anthropic"
)

// Editable provider fields, used to build setting keys
const (
	FieldAPIKey  = "api_key"
	FieldBaseURL = "base_url"
	FieldModel   = "model"
)

// ModelInfo contains metadata about a model
type ModelInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextWindow int    `json:"context_window"`

	// Pricing in USD per token
	PricingPerPromptToken     float64 `json:"pricing_per_prompt_token"`
	PricingPerCompletionToken float64 `json:"pricing_per_completion_token"`
}

// CatalogEntry describes a supported provider
type CatalogEntry struct {
	Name           string      `json:"name"`
	DisplayName    string      `json:"display_name"`
	DefaultBaseURL string      `json:"default_base_url"`
	DefaultModel   string      `json:"default_model"`
	Models         []ModelInfo `json:"models"`
	Fields         []string    `json:"fields"`
}

// ModelIDs returns the IDs of the entry's models in catalog order
func (e CatalogEntry) ModelIDs() []string {
	ids := make([]string, len(e.Models))
	for i, m := range e.Models {
		ids[i] = m.ID
	}
	return ids
}

// Model returns the model info for id
func (e CatalogEntry) Model(id string) (ModelInfo, bool) {
	for _, m := range e.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

var editableFields = []string{FieldAPIKey, FieldBaseURL, FieldModel}

var catalog = map[string]CatalogEntry{
	Cerebras: {
		Name:           Cerebras,
		DisplayName:    "Cerebras",
		DefaultBaseURL: "https://api.cerebras.ai/v1",
		DefaultModel:   "llama-3.3-70b",
		Fields:         editableFields,
		Models: []ModelInfo{
			{ID: "llama-3.3-70b", Name: "Llama 3.3 70B", ContextWindow: 65536, PricingPerPromptToken: 0.00000085, PricingPerCompletionToken: 0.0000012},
			{ID: "llama3.1-8b", Name: "Llama 3.1 8B", ContextWindow: 8192, PricingPerPromptToken: 0.0000001, PricingPerCompletionToken: 0.0000001},
			{ID: "qwen-3-32b", Name: "Qwen 3 32B", ContextWindow: 65536, PricingPerPromptToken: 0.0000004, PricingPerCompletionToken: 0.0000008},
			{ID: "gpt-oss-120b", Name: "GPT OSS 120B", ContextWindow: 65536, PricingPerPromptToken: 0.00000025, PricingPerCompletionToken: 0.00000069},
		},
	},
	OpenAI: {
		Name:           OpenAI,
		DisplayName:    "OpenAI",
		DefaultBaseURL: "https://api.openai.com/v1",
		DefaultModel:   "gpt-4o-mini",
		Fields:         editableFields,
		Models: []ModelInfo{
			{ID: "gpt-4o-mini", Name: "GPT-4o Mini", ContextWindow: 128000, PricingPerPromptToken: 0.00000015, PricingPerCompletionToken: 0.0000006},
			{ID: "gpt-4o", Name: "GPT-4o", ContextWindow: 128000, PricingPerPromptToken: 0.0000025, PricingPerCompletionToken: 0.00001},
			{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextWindow: 128000, PricingPerPromptToken: 0.00001, PricingPerCompletionToken: 0.00003},
			{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextWindow: 16385, PricingPerPromptToken: 0.0000005, PricingPerCompletionToken: 0.0000015},
		},
	},
	Anthropic: {
		Name:           Anthropic,
		DisplayName:    "Anthropic",
		DefaultBaseURL: "https://api.anthropic.com",
		DefaultModel:   "claude-sonnet-4-5-20250929",
		Fields:         editableFields,
		Models: []ModelInfo{
			{ID: "claude-sonnet-4-5-20250929", Name: "Claude Sonnet 4.5", ContextWindow: 200000, PricingPerPromptToken: 0.000003, PricingPerCompletionToken: 0.000015},
			{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextWindow: 200000, PricingPerPromptToken: 0.0000008, PricingPerCompletionToken: 0.000004},
			{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", ContextWindow: 200000, PricingPerPromptToken: 0.000015, PricingPerCompletionToken: 0.000075},
		},
	},
}

// Lookup returns the catalog entry for a provider key
func Lookup(name string) (CatalogEntry, bool) {
	e, ok := catalog[name]
	return e, ok
}

// Names returns the supported provider keys in a stable order
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DisplayName returns the human readable provider name, or name itself when unknown
func DisplayName(name string) string {
	if e, ok := catalog[name]; ok {
		return e.DisplayName
	}
	return name
}

// EstimateCost prices a call from the catalog. ok is false for unknown models.
func EstimateCost(provider, model string, promptTokens, completionTokens int) (cost float64, ok bool) {
	entry, found := catalog[provider]
	if !found {
		return 0, false
	}
	info, found := entry.Model(model)
	if !found {
		return 0, false
	}
	return float64(promptTokens)*info.PricingPerPromptToken +
		float64(completionTokens)*info.PricingPerCompletionToken, true
}

// EstimateTokens approximates a token count from text length (4 chars per token average)
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

package providers

import (
	"time"

	"github.com/taskflow/ai-backend/models"
)

// Completion is the vendor-neutral outcome of one chat call, before normalization
type Completion struct {
	Provider     string
	Model        string
	ID           string
	Content      string
	FinishReason string

	// UsageReported is false when the vendor sent no usage block
	UsageReported    bool
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	Elapsed time.Duration

	// Extra is merged into the response metadata
	Extra map[string]any
}

// ToAIResponse converts the completion into an AIResponse, pricing it from the catalog
func (c Completion) ToAIResponse() (*models.AIResponse, error) {
	metadata := map[string]any{
		"provider": c.Provider,
	}
	if c.ID != "" {
		metadata["id"] = c.ID
	}
	if c.FinishReason != "" {
		metadata["finish_reason"] = c.FinishReason
	}
	for k, v := range c.Extra {
		metadata[k] = v
	}

	seconds := c.Elapsed.Seconds()
	params := models.AIResponseParams{
		Content:      c.Content,
		Metadata:     metadata,
		Model:        c.Model,
		ResponseTime: &seconds,
	}

	if c.UsageReported {
		total := c.TotalTokens
		if total == 0 {
			total = c.PromptTokens + c.CompletionTokens
		}
		params.TokensUsed = &total
		metadata["prompt_tokens"] = c.PromptTokens
		metadata["completion_tokens"] = c.CompletionTokens

		if cost, ok := EstimateCost(c.Provider, c.Model, c.PromptTokens, c.CompletionTokens); ok {
			params.Cost = &cost
		}
	}

	return models.NewAIResponse(params)
}

// WithSystemPrompt prepends a system message when prompt is non-empty
func WithSystemPrompt(messages []Message, prompt string) []Message {
	if prompt == "" {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: prompt})
	return append(out, messages...)
}

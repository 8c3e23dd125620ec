package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidUsage is returned when a response is built with negative usage figures
var ErrInvalidUsage = errors.New("usage figures must not be negative")

// AIResponseParams carries the values used to build an AIResponse.
// Nil pointers mean the vendor did not report the value.
type AIResponseParams struct {
	Content      string
	Metadata     map[string]any
	Model        string
	TokensUsed   *int
	Cost         *float64
	ResponseTime *float64 // seconds
}

// AIResponse is the normalized result of a single chat call.
// It is immutable: accessors return copies and WithMetadata builds a new value.
type AIResponse struct {
	content      string
	metadata     map[string]any
	model        string
	tokensUsed   *int
	cost         *float64
	responseTime *float64
}

// NewAIResponse validates params and builds an AIResponse
func NewAIResponse(p AIResponseParams) (*AIResponse, error) {
	if p.TokensUsed != nil && *p.TokensUsed < 0 {
		return nil, fmt.Errorf("tokens used %d: %w", *p.TokensUsed, ErrInvalidUsage)
	}
	if p.Cost != nil && *p.Cost < 0 {
		return nil, fmt.Errorf("cost %f: %w", *p.Cost, ErrInvalidUsage)
	}
	if p.ResponseTime != nil && *p.ResponseTime < 0 {
		return nil, fmt.Errorf("response time %f: %w", *p.ResponseTime, ErrInvalidUsage)
	}

	return &AIResponse{
		content:      p.Content,
		metadata:     copyMetadata(p.Metadata),
		model:        p.Model,
		tokensUsed:   copyInt(p.TokensUsed),
		cost:         copyFloat(p.Cost),
		responseTime: copyFloat(p.ResponseTime),
	}, nil
}

// Content returns the generated text
func (r *AIResponse) Content() string { return r.content }

// Metadata returns a copy of the vendor metadata
func (r *AIResponse) Metadata() map[string]any { return copyMetadata(r.metadata) }

// Model returns the model that produced the response, or "" when unknown
func (r *AIResponse) Model() string { return r.model }

// TokensUsed returns the total token count when the vendor reported it
func (r *AIResponse) TokensUsed() (int, bool) {
	if r.tokensUsed == nil {
		return 0, false
	}
	return *r.tokensUsed, true
}

// Cost returns the cost in USD when known
func (r *AIResponse) Cost() (float64, bool) {
	if r.cost == nil {
		return 0, false
	}
	return *r.cost, true
}

// ResponseTime returns the wall time of the call in seconds when measured
func (r *AIResponse) ResponseTime() (float64, bool) {
	if r.responseTime == nil {
		return 0, false
	}
	return *r.responseTime, true
}

// IsSuccessful reports whether the response carries any content
func (r *AIResponse) IsSuccessful() bool {
	return strings.TrimSpace(r.content) != ""
}

// WithMetadata returns a copy of r with key set in its metadata
func (r *AIResponse) WithMetadata(key string, value any) *AIResponse {
	out := *r
	out.metadata = copyMetadata(r.metadata)
	out.metadata[key] = value
	return &out
}

// ToMap returns the response as a plain map. Absent optional values are omitted.
func (r *AIResponse) ToMap() map[string]any {
	m := map[string]any{
		"content":  r.content,
		"metadata": copyMetadata(r.metadata),
	}
	if r.model != "" {
		m["model"] = r.model
	}
	if r.tokensUsed != nil {
		m["tokens_used"] = *r.tokensUsed
	}
	if r.cost != nil {
		m["cost"] = *r.cost
	}
	if r.responseTime != nil {
		m["response_time"] = *r.responseTime
	}
	return m
}

// AIResponseFromMap rebuilds a response from the shape produced by ToMap.
// Numeric values decoded from JSON arrive as float64 and are accepted for integer fields.
func AIResponseFromMap(m map[string]any) (*AIResponse, error) {
	var p AIResponseParams

	if v, ok := m["content"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("content: expected string, got %T", v)
		}
		p.Content = s
	}

	if v, ok := m["metadata"]; ok && v != nil {
		md, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("metadata: expected object, got %T", v)
		}
		p.Metadata = md
	}

	if v, ok := m["model"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("model: expected string, got %T", v)
		}
		p.Model = s
	}

	if v, ok := m["tokens_used"]; ok && v != nil {
		tokens, err := toTokenCount(v)
		if err != nil {
			return nil, fmt.Errorf("tokens_used: %w", err)
		}
		p.TokensUsed = &tokens
	}

	if v, ok := m["cost"]; ok && v != nil {
		n, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("cost: %w", err)
		}
		p.Cost = &n
	}

	if v, ok := m["response_time"]; ok && v != nil {
		n, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("response_time: %w", err)
		}
		p.ResponseTime = &n
	}

	return NewAIResponse(p)
}

// MarshalJSON encodes the response in the ToMap shape
func (r *AIResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}

// UnmarshalJSON decodes the ToMap shape
func (r *AIResponse) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	decoded, err := AIResponseFromMap(m)
	if err != nil {
		return err
	}
	*r = *decoded
	return nil
}

// toTokenCount accepts whole numbers only. Negative counts are left to NewAIResponse.
func toTokenCount(v any) (int, error) {
	n, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if n != math.Trunc(n) {
		return 0, fmt.Errorf("expected a whole number, got %v", n)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, fmt.Errorf("%v is out of range", n)
	}
	return int(n), nil
}

func toFloat(v any) (float64, error) {
	f, err := toNumber(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expected a finite number, got %v", f)
	}
	return f, nil
}

func toNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func copyMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

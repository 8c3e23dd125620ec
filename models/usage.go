package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageEntry is one recorded provider call
type UsageEntry struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Provider     string    `json:"provider" db:"provider"`
	Model        string    `json:"model" db:"model"`
	Tokens       int       `json:"tokens" db:"tokens"`
	Cost         float64   `json:"cost" db:"cost"`
	Success      bool      `json:"success" db:"success"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// NewUsageEntry creates a usage entry with a fresh ID
func NewUsageEntry(provider, model string, tokens int, cost float64, at time.Time) *UsageEntry {
	return &UsageEntry{
		ID:        uuid.New(),
		Provider:  provider,
		Model:     model,
		Tokens:    tokens,
		Cost:      cost,
		Success:   true,
		Timestamp: at,
	}
}

// NewUsageErrorEntry creates a usage entry for a failed call
func NewUsageErrorEntry(provider, model, message string, at time.Time) *UsageEntry {
	return &UsageEntry{
		ID:           uuid.New(),
		Provider:     provider,
		Model:        model,
		Success:      false,
		ErrorMessage: message,
		Timestamp:    at,
	}
}

// TableName returns the table name for the UsageEntry model
func (UsageEntry) TableName() string {
	return "ai_usage_log"
}

// UsageCounters aggregates usage over one period
type UsageCounters struct {
	Requests        int     `json:"requests"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	EstimatedTokens int     `json:"estimated_tokens"`
	EstimatedCost   float64 `json:"estimated_cost"`
}

// Add folds a single entry into the counters
func (c *UsageCounters) Add(e *UsageEntry) {
	c.Requests++
	if e.Success {
		c.Successful++
	} else {
		c.Failed++
	}
	c.EstimatedTokens += e.Tokens
	c.EstimatedCost += e.Cost
}

// LocalUsage holds the locally tracked counters
type LocalUsage struct {
	Today UsageCounters `json:"today"`
	Month UsageCounters `json:"month"`
}

// QuotaInfo describes the rate limits reported by a vendor
type QuotaInfo struct {
	RequestsLimit     *int   `json:"requests_limit,omitempty"`
	RequestsRemaining *int   `json:"requests_remaining,omitempty"`
	RequestsReset     string `json:"requests_reset,omitempty"`
	TokensLimit       *int   `json:"tokens_limit,omitempty"`
	TokensRemaining   *int   `json:"tokens_remaining,omitempty"`
	TokensReset       string `json:"tokens_reset,omitempty"`
}

// RemoteUsage is what a vendor reports about the account's consumption
type RemoteUsage struct {
	Usage map[string]any
	Quota *QuotaInfo
}

// Usage metric statuses
const (
	UsageStatusSuccess   = "success"
	UsageStatusLocalOnly = "local_only"
	UsageStatusError     = "error"
)

// UsageMetrics is the usage report returned to the settings page
type UsageMetrics struct {
	Status     string         `json:"status"`
	Provider   string         `json:"provider,omitempty"`
	LocalUsage LocalUsage     `json:"local_usage"`
	APIUsage   map[string]any `json:"api_usage,omitempty"`
	QuotaInfo  *QuotaInfo     `json:"quota_info,omitempty"`
	Message    string         `json:"message,omitempty"`
}

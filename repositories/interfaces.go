package repositories

import (
	"context"
	"time"

	"github.com/taskflow/ai-backend/models"
)

// TransactionManager manages storage transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a storage transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// SettingsRepository persists dotted key/value settings such as ai.openai.api_key
type SettingsRepository interface {
	// Get returns the stored value, or def when the key is absent
	Get(ctx context.Context, key, def string) (string, error)

	// Set creates or replaces a setting
	Set(ctx context.Context, key, value string, typ models.SettingType, description string) error

	// GetByPrefix returns every setting whose key starts with prefix
	GetByPrefix(ctx context.Context, prefix string) (map[string]string, error)
}

// UsageRepository records provider calls and aggregates them per period
type UsageRepository interface {
	// Record stores one usage entry
	Record(ctx context.Context, entry *models.UsageEntry) error

	// Summarize returns the counters for the UTC day and month containing at
	Summarize(ctx context.Context, at time.Time) (*models.LocalUsage, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Settings SettingsRepository
	Usage    UsageRepository
}

// DayKey returns the usage bucket key for the UTC day containing t
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MonthKey returns the usage bucket key for the UTC month containing t
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PeriodBounds returns the UTC start of the day, the start of the month and
// the start of the following month for t
func PeriodBounds(t time.Time) (dayStart, monthStart, nextMonth time.Time) {
	u := t.UTC()
	dayStart = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	monthStart = time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonth = monthStart.AddDate(0, 1, 0)
	return dayStart, monthStart, nextMonth
}

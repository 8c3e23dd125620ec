package memory

import (
	"context"
	"sync"
	"time"

	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/repositories"
)

// UsageRepository aggregates usage into day and month buckets held in memory
type UsageRepository struct {
	mu        sync.Mutex
	days      map[string]*models.UsageCounters
	months    map[string]*models.UsageCounters
	retention time.Duration
}

var _ repositories.UsageRepository = (*UsageRepository)(nil)

// NewUsageRepository creates a store that forgets buckets older than retentionDays
func NewUsageRepository(retentionDays int) *UsageRepository {
	if retentionDays <= 0 {
		retentionDays = 62
	}
	return &UsageRepository{
		days:      make(map[string]*models.UsageCounters),
		months:    make(map[string]*models.UsageCounters),
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Record folds the entry into its day and month buckets
func (r *UsageRepository) Record(_ context.Context, entry *models.UsageEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket(r.days, repositories.DayKey(entry.Timestamp)).Add(entry)
	bucket(r.months, repositories.MonthKey(entry.Timestamp)).Add(entry)
	r.prune(entry.Timestamp)
	return nil
}

// Summarize returns copies of the buckets containing at
func (r *UsageRepository) Summarize(_ context.Context, at time.Time) (*models.LocalUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	usage := &models.LocalUsage{}
	if c, ok := r.days[repositories.DayKey(at)]; ok {
		usage.Today = *c
	}
	if c, ok := r.months[repositories.MonthKey(at)]; ok {
		usage.Month = *c
	}
	return usage, nil
}

// prune drops buckets that ended before the retention window
func (r *UsageRepository) prune(now time.Time) {
	cutoff := now.Add(-r.retention)
	cutoffDay := repositories.DayKey(cutoff)
	cutoffMonth := repositories.MonthKey(cutoff)

	// Keys are zero-padded so lexical order matches chronological order
	for k := range r.days {
		if k < cutoffDay {
			delete(r.days, k)
		}
	}
	for k := range r.months {
		if k < cutoffMonth {
			delete(r.months, k)
		}
	}
}

func bucket(m map[string]*models.UsageCounters, key string) *models.UsageCounters {
	c, ok := m[key]
	if !ok {
		c = &models.UsageCounters{}
		m[key] = c
	}
	return c
}

package usage

import (
	"context"
	"time"

	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/repositories"
	"github.com/taskflow/ai-backend/services/providers"
	"go.uber.org/zap"
)

// Tracker records provider calls and reports day/month consumption.
// Recording never fails the caller: store errors are logged and dropped.
type Tracker struct {
	store  repositories.UsageRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker creates a tracker over the given store
func NewTracker(store repositories.UsageRepository, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// LogUsage records a successful call
func (t *Tracker) LogUsage(ctx context.Context, provider, model string, tokens int, cost float64) {
	if tokens < 0 {
		tokens = 0
	}
	if cost < 0 {
		cost = 0
	}
	t.record(ctx, models.NewUsageEntry(provider, model, tokens, cost, t.now().UTC()))
}

// LogError records a failed call
func (t *Tracker) LogError(ctx context.Context, provider, model, message string) {
	t.record(ctx, models.NewUsageErrorEntry(provider, model, message, t.now().UTC()))
}

func (t *Tracker) record(ctx context.Context, entry *models.UsageEntry) {
	if err := t.store.Record(ctx, entry); err != nil {
		t.logger.Warn("failed to record AI usage",
			zap.Error(err),
			zap.String("provider", entry.Provider),
			zap.Bool("success", entry.Success),
		)
	}
}

// LocalUsage returns the counters for the current UTC day and month.
// A store failure degrades to zero counters.
func (t *Tracker) LocalUsage(ctx context.Context) models.LocalUsage {
	summary, err := t.store.Summarize(ctx, t.now())
	if err != nil {
		t.logger.Warn("failed to summarize AI usage", zap.Error(err))
		return models.LocalUsage{}
	}
	return *summary
}

// GetUsageMetrics combines local counters with what the vendor reports.
// reporter may be nil when the provider cannot report usage.
func (t *Tracker) GetUsageMetrics(ctx context.Context, provider string, reporter providers.UsageReporter) *models.UsageMetrics {
	metrics := &models.UsageMetrics{
		Provider:   provider,
		LocalUsage: t.LocalUsage(ctx),
	}

	if reporter == nil {
		metrics.Status = models.UsageStatusLocalOnly
		metrics.Message = "provider does not report remote usage; showing locally tracked usage"
		return metrics
	}

	remote, err := reporter.FetchUsage(ctx)
	if err != nil {
		t.logger.Warn("failed to fetch remote AI usage", zap.String("provider", provider), zap.Error(err))
		metrics.Status = models.UsageStatusError
		metrics.Message = "failed to fetch usage from provider: " + err.Error()
		return metrics
	}

	metrics.Status = models.UsageStatusSuccess
	if remote != nil {
		metrics.APIUsage = remote.Usage
		metrics.QuotaInfo = remote.Quota
	}
	return metrics
}

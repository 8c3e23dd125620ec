package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/repositories"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	keyPrefix = "ai_usage"

	// DayTTL keeps day buckets a little longer than a month
	DayTTL = 40 * 24 * time.Hour
	// MonthTTL keeps month buckets for a little over a year
	MonthTTL = 400 * 24 * time.Hour
)

const (
	fieldRequests   = "requests"
	fieldSuccessful = "successful"
	fieldFailed     = "failed"
	fieldTokens     = "tokens"
	fieldCost       = "cost"
)

// UsageRepository keeps one hash per day and per month. Increments run in a
// MULTI/EXEC pipeline so concurrent writers never lose updates.
type UsageRepository struct {
	client *Client
	logger *zap.Logger
}

var _ repositories.UsageRepository = (*UsageRepository)(nil)

// NewUsageRepository creates a Redis-backed usage repository
func NewUsageRepository(client *Client, logger *zap.Logger) *UsageRepository {
	return &UsageRepository{client: client, logger: logger}
}

// DayBucketKey returns the hash key for the day containing t
func DayBucketKey(t time.Time) string {
	return keyPrefix + ":day:" + repositories.DayKey(t)
}

// MonthBucketKey returns the hash key for the month containing t
func MonthBucketKey(t time.Time) string {
	return keyPrefix + ":month:" + repositories.MonthKey(t)
}

// Record increments the day and month hashes for the entry
func (r *UsageRepository) Record(ctx context.Context, entry *models.UsageEntry) error {
	dayKey := DayBucketKey(entry.Timestamp)
	monthKey := MonthBucketKey(entry.Timestamp)

	ctx, span := tracer.Start(ctx, "redis.usage.Record", trace.WithAttributes(
		attribute.String("ai.provider", entry.Provider),
		attribute.String("redis.key", dayKey),
	))
	defer span.End()

	outcome := fieldSuccessful
	if !entry.Success {
		outcome = fieldFailed
	}

	pipe := r.client.rdb.TxPipeline()
	for key, ttl := range map[string]time.Duration{dayKey: DayTTL, monthKey: MonthTTL} {
		pipe.HIncrBy(ctx, key, fieldRequests, 1)
		pipe.HIncrBy(ctx, key, outcome, 1)
		if entry.Tokens > 0 {
			pipe.HIncrBy(ctx, key, fieldTokens, int64(entry.Tokens))
		}
		if entry.Cost > 0 {
			pipe.HIncrByFloat(ctx, key, fieldCost, entry.Cost)
		}
		pipe.Expire(ctx, key, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to record usage in redis: %w", err)
	}
	return nil
}

// Summarize reads the day and month hashes containing at
func (r *UsageRepository) Summarize(ctx context.Context, at time.Time) (*models.LocalUsage, error) {
	ctx, span := tracer.Start(ctx, "redis.usage.Summarize")
	defer span.End()

	pipe := r.client.rdb.Pipeline()
	dayCmd := pipe.HGetAll(ctx, DayBucketKey(at))
	monthCmd := pipe.HGetAll(ctx, MonthBucketKey(at))
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read usage from redis: %w", err)
	}

	return &models.LocalUsage{
		Today: r.countersFrom(dayCmd.Val()),
		Month: r.countersFrom(monthCmd.Val()),
	}, nil
}

func (r *UsageRepository) countersFrom(h map[string]string) models.UsageCounters {
	var c models.UsageCounters
	c.Requests = r.atoi(h, fieldRequests)
	c.Successful = r.atoi(h, fieldSuccessful)
	c.Failed = r.atoi(h, fieldFailed)
	c.EstimatedTokens = r.atoi(h, fieldTokens)
	if v, ok := h[fieldCost]; ok {
		cost, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.logger.Warn("ignoring malformed usage counter", zap.String("field", fieldCost), zap.String("value", v))
		}
		c.EstimatedCost = cost
	}
	return c
}

func (r *UsageRepository) atoi(h map[string]string, field string) int {
	v, ok := h[field]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.logger.Warn("ignoring malformed usage counter", zap.String("field", field), zap.String("value", v))
		return 0
	}
	return n
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/repositories"
	"go.uber.org/zap"
)

// UsageRepository stores provider calls as append-only rows in ai_usage_log
type UsageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB, logger *zap.Logger) repositories.UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger,
	}
}

// Record inserts one usage row
func (r *UsageRepository) Record(ctx context.Context, entry *models.UsageEntry) error {
	query := `
		INSERT INTO ai_usage_log (
			id, provider, model, tokens, cost, success, error_message, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var errMsg sql.NullString
	if entry.ErrorMessage != "" {
		errMsg = sql.NullString{String: entry.ErrorMessage, Valid: true}
	}

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		entry.ID,
		entry.Provider,
		entry.Model,
		entry.Tokens,
		entry.Cost,
		entry.Success,
		errMsg,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage entry: %w", err)
	}

	r.logger.Debug("usage entry recorded",
		zap.String("provider", entry.Provider),
		zap.Bool("success", entry.Success),
	)
	return nil
}

// Summarize aggregates the current UTC day and month in a single scan of the month
func (r *UsageRepository) Summarize(ctx context.Context, at time.Time) (*models.LocalUsage, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE timestamp >= $1),
			COUNT(*) FILTER (WHERE timestamp >= $1 AND success),
			COUNT(*) FILTER (WHERE timestamp >= $1 AND NOT success),
			COALESCE(SUM(tokens) FILTER (WHERE timestamp >= $1), 0),
			COALESCE(SUM(cost) FILTER (WHERE timestamp >= $1), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COUNT(*) FILTER (WHERE NOT success),
			COALESCE(SUM(tokens), 0),
			COALESCE(SUM(cost), 0)
		FROM ai_usage_log
		WHERE timestamp >= $2 AND timestamp < $3
	`

	dayStart, monthStart, nextMonth := repositories.PeriodBounds(at)

	var usage models.LocalUsage
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, dayStart, monthStart, nextMonth).Scan(
		&usage.Today.Requests,
		&usage.Today.Successful,
		&usage.Today.Failed,
		&usage.Today.EstimatedTokens,
		&usage.Today.EstimatedCost,
		&usage.Month.Requests,
		&usage.Month.Successful,
		&usage.Month.Failed,
		&usage.Month.EstimatedTokens,
		&usage.Month.EstimatedCost,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}

	return &usage, nil
}

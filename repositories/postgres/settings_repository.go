package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/repositories"
	"go.uber.org/zap"
)

// SettingsRepository implements repositories.SettingsRepository on the settings table
type SettingsRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *DB, logger *zap.Logger) repositories.SettingsRepository {
	return &SettingsRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns the value stored under key, or def when no row exists
func (r *SettingsRepository) Get(ctx context.Context, key, def string) (string, error) {
	query := `SELECT value FROM settings WHERE key = $1`

	var value string
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, nil
		}
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// Set upserts a setting
func (r *SettingsRepository) Set(ctx context.Context, key, value string, typ models.SettingType, description string) error {
	query := `
		INSERT INTO settings (key, value, type, description, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    type = EXCLUDED.type,
		    description = EXCLUDED.description,
		    updated_at = CURRENT_TIMESTAMP
	`

	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, key, value, string(typ), description); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}

	r.logger.Debug("setting stored", zap.String("key", key), zap.String("type", string(typ)))
	return nil
}

// GetByPrefix returns all settings under a dotted prefix such as "ai."
func (r *SettingsRepository) GetByPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	query := `SELECT key, value FROM settings WHERE key LIKE $1 ORDER BY key`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return result, nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

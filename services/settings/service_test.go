package settings

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/repositories/memory"
	"github.com/taskflow/ai-backend/repositories/postgres"
	"github.com/taskflow/ai-backend/services"
	"go.uber.org/zap"
)

func newMemoryService() (*Service, *memory.SettingsRepository) {
	repo := memory.NewSettingsRepository()
	return NewService(repo, memory.NewTransactionManager(), zap.NewNop()), repo
}

func TestUpdateAISettings_OnlyWritesProvidedFields(t *testing.T) {
	ctx := context.Background()
	svc, repo := newMemoryService()

	err := svc.UpdateAISettings(ctx, AISettingsUpdate{
		Provider: "cerebrus",
		Providers: map[string]ProviderFields{
			"cerebrus": {APIKey: "csk-123"},
		},
	})
	require.NoError(t, err)

	all, err := repo.GetByPrefix(ctx, "ai.")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"ai.provider":         "cerebrus",
		"ai.cerebrus.api_key": "csk-123",
	}, all)

	openai, err := repo.GetByPrefix(ctx, "ai.openai.")
	require.NoError(t, err)
	assert.Empty(t, openai)
}

func TestUpdateAISettings_KeepsExistingValuesForEmptyFields(t *testing.T) {
	ctx := context.Background()
	svc, repo := newMemoryService()

	require.NoError(t, repo.Set(ctx, "ai.openai.api_key", "sk-old", models.SettingTypeSecret, ""))
	require.NoError(t, repo.Set(ctx, "ai.openai.model", "gpt-4o", models.SettingTypeString, ""))

	err := svc.UpdateAISettings(ctx, AISettingsUpdate{
		Provider: "openai",
		Providers: map[string]ProviderFields{
			"openai": {Model: "  gpt-4o-mini  ", APIKey: "   "},
		},
	})
	require.NoError(t, err)

	key, _ := repo.Get(ctx, "ai.openai.api_key", "")
	model, _ := repo.Get(ctx, "ai.openai.model", "")
	assert.Equal(t, "sk-old", key)
	assert.Equal(t, "gpt-4o-mini", model)
}

func TestUpdateAISettings_RejectsUnknownProvider(t *testing.T) {
	svc, repo := newMemoryService()

	err := svc.UpdateAISettings(context.Background(), AISettingsUpdate{Provider: "mistral"})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
	assert.ErrorIs(t, err, services.ErrInvalidProvider)
	assert.Equal(t, "provider", services.GetErrorDetails(err)["field"])

	err = svc.UpdateAISettings(context.Background(), AISettingsUpdate{
		Provider:  "openai",
		Providers: map[string]ProviderFields{"mistral": {APIKey: "x"}},
	})
	assert.True(t, services.IsValidationError(err))

	all, _ := repo.GetByPrefix(context.Background(), "ai.")
	assert.Empty(t, all)
}

func TestUpdateAISettings_RollsBackOnWriteFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db := postgres.WrapDB(sqlDB, zap.NewNop())
	svc := NewService(postgres.NewSettingsRepository(db, zap.NewNop()), postgres.NewTransactionManager(db, zap.NewNop()), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO settings`).
		WithArgs("ai.provider", "anthropic", "string", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO settings`).
		WithArgs("ai.anthropic.api_key", "sk-ant", "secret", sqlmock.AnyArg()).
		WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	err = svc.UpdateAISettings(context.Background(), AISettingsUpdate{
		Provider:  "anthropic",
		Providers: map[string]ProviderFields{"anthropic": {APIKey: "sk-ant"}},
	})
	require.Error(t, err)
	assert.Equal(t, services.ErrorTypeInternal, services.GetErrorType(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDefaultAISettings(t *testing.T) {
	ctx := context.Background()

	t.Run("stores required and optional fields", func(t *testing.T) {
		svc, repo := newMemoryService()

		err := svc.UpdateDefaultAISettings(ctx, DefaultAISettingsUpdate{
			Provider: "openai",
			Model:    "gpt-4o",
			APIKey:   "sk-default",
		})
		require.NoError(t, err)

		all, _ := repo.GetByPrefix(ctx, "ai.default.")
		assert.Equal(t, map[string]string{
			"ai.default.provider": "openai",
			"ai.default.model":    "gpt-4o",
			"ai.default.api_key":  "sk-default",
		}, all)
	})

	t.Run("requires a model", func(t *testing.T) {
		svc, _ := newMemoryService()
		err := svc.UpdateDefaultAISettings(ctx, DefaultAISettingsUpdate{Provider: "openai"})
		assert.True(t, services.IsValidationError(err))
		assert.Equal(t, "model", services.GetErrorDetails(err)["field"])
	})
}

func TestAISettings(t *testing.T) {
	ctx := context.Background()
	svc, repo := newMemoryService()
	require.NoError(t, repo.Set(ctx, "ai.provider", "openai", models.SettingTypeString, ""))
	require.NoError(t, repo.Set(ctx, "app.name", "taskflow", models.SettingTypeString, ""))

	values, err := svc.AISettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ai.provider": "openai"}, values)
}

func TestAISettings_StoreUnavailable(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db := postgres.WrapDB(sqlDB, zap.NewNop())
	svc := NewService(postgres.NewSettingsRepository(db, zap.NewNop()), postgres.NewTransactionManager(db, zap.NewNop()), zap.NewNop())

	mock.ExpectQuery(`SELECT key, value FROM settings WHERE key LIKE \$1`).
		WillReturnError(errors.New("connection refused"))

	_, err = svc.AISettings(context.Background())
	require.Error(t, err)
	assert.True(t, services.IsUnavailableError(err))
	assert.ErrorIs(t, err, services.ErrSettingsUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "*****", MaskSecret("short"))
	masked := MaskSecret("sk-proj-abcdef123456")
	assert.True(t, strings.HasSuffix(masked, "3456"))
	assert.NotContains(t, masked, "abcdef")
}

func TestProviderKey(t *testing.T) {
	assert.Equal(t, "ai.openai.api_key", ProviderKey("openai", "api_key"))
}

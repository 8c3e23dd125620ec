package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/repositories/memory"
	"go.uber.org/zap"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Record(ctx context.Context, entry *models.UsageEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockStore) Summarize(ctx context.Context, at time.Time) (*models.LocalUsage, error) {
	args := m.Called(ctx, at)
	if u, ok := args.Get(0).(*models.LocalUsage); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

type reporterFunc func(ctx context.Context) (*models.RemoteUsage, error)

func (f reporterFunc) FetchUsage(ctx context.Context) (*models.RemoteUsage, error) {
	return f(ctx)
}

var fixedNow = time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)

func newTracker() *Tracker {
	return NewTracker(memory.NewUsageRepository(62), zap.NewNop()).WithClock(func() time.Time { return fixedNow })
}

func TestTracker_LogAndSummarize(t *testing.T) {
	ctx := context.Background()
	tracker := newTracker()

	tracker.LogUsage(ctx, "cerebrus", "llama-3.3-70b", 200, 0.0012)
	tracker.LogUsage(ctx, "cerebrus", "llama-3.3-70b", -5, -1)
	tracker.LogError(ctx, "cerebrus", "llama-3.3-70b", "HTTP 500")

	local := tracker.LocalUsage(ctx)
	assert.Equal(t, 3, local.Today.Requests)
	assert.Equal(t, 2, local.Today.Successful)
	assert.Equal(t, 1, local.Today.Failed)
	assert.Equal(t, 200, local.Today.EstimatedTokens)
	assert.InDelta(t, 0.0012, local.Today.EstimatedCost, 1e-12)
	assert.Equal(t, local.Today, local.Month)
}

func TestTracker_StoreFailuresAreSwallowed(t *testing.T) {
	store := new(mockStore)
	store.On("Record", mock.Anything, mock.Anything).Return(errors.New("db down"))
	store.On("Summarize", mock.Anything, fixedNow).Return(nil, errors.New("db down"))

	tracker := NewTracker(store, zap.NewNop()).WithClock(func() time.Time { return fixedNow })

	assert.NotPanics(t, func() {
		tracker.LogUsage(context.Background(), "openai", "gpt-4o", 1, 0)
		tracker.LogError(context.Background(), "openai", "gpt-4o", "boom")
	})
	assert.Equal(t, models.LocalUsage{}, tracker.LocalUsage(context.Background()))
	store.AssertNumberOfCalls(t, "Record", 2)
}

func TestTracker_GetUsageMetrics(t *testing.T) {
	ctx := context.Background()
	limit, remaining := 1000, 900

	tests := []struct {
		name        string
		reporter    reporterFunc
		wantStatus  string
		wantMessage bool
		wantQuota   bool
	}{
		{
			name:        "no reporter",
			wantStatus:  models.UsageStatusLocalOnly,
			wantMessage: true,
		},
		{
			name: "remote succeeds",
			reporter: func(context.Context) (*models.RemoteUsage, error) {
				return &models.RemoteUsage{
					Usage: map[string]any{"requests_used_today": 100},
					Quota: &models.QuotaInfo{RequestsLimit: &limit, RequestsRemaining: &remaining},
				}, nil
			},
			wantStatus: models.UsageStatusSuccess,
			wantQuota:  true,
		},
		{
			name: "remote fails",
			reporter: func(context.Context) (*models.RemoteUsage, error) {
				return nil, errors.New("invalid key")
			},
			wantStatus:  models.UsageStatusError,
			wantMessage: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newTracker()
			tracker.LogUsage(ctx, "cerebrus", "llama-3.3-70b", 10, 0)

			var metrics *models.UsageMetrics
			if tt.reporter == nil {
				metrics = tracker.GetUsageMetrics(ctx, "cerebrus", nil)
			} else {
				metrics = tracker.GetUsageMetrics(ctx, "cerebrus", tt.reporter)
			}

			require.NotNil(t, metrics)
			assert.Equal(t, tt.wantStatus, metrics.Status)
			assert.Equal(t, "cerebrus", metrics.Provider)
			assert.Equal(t, 1, metrics.LocalUsage.Today.Requests, "local usage is always present")
			assert.Equal(t, tt.wantMessage, metrics.Message != "")
			assert.Equal(t, tt.wantQuota, metrics.QuotaInfo != nil)
		})
	}
}

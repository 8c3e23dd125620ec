package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/taskflow/ai-backend/models"
	"github.com/taskflow/ai-backend/repositories"
)

// SettingsRepository keeps settings in process memory. Used for local
// development and tests; values are lost on restart.
type SettingsRepository struct {
	mu       sync.RWMutex
	settings map[string]models.Setting
}

// NewSettingsRepository creates an empty in-memory settings store
func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{settings: make(map[string]models.Setting)}
}

var _ repositories.SettingsRepository = (*SettingsRepository)(nil)

func (r *SettingsRepository) Get(_ context.Context, key, def string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.settings[key]; ok {
		return s.Value, nil
	}
	return def, nil
}

func (r *SettingsRepository) Set(_ context.Context, key, value string, typ models.SettingType, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = models.Setting{
		Key:         key,
		Value:       value,
		Type:        typ,
		Description: description,
		UpdatedAt:   time.Now().UTC(),
	}
	return nil
}

func (r *SettingsRepository) GetByPrefix(_ context.Context, prefix string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string)
	for k, s := range r.settings {
		if strings.HasPrefix(k, prefix) {
			out[k] = s.Value
		}
	}
	return out, nil
}

package db

import (
	"context"
	"sort"
	"sync"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
)

type MemorySettingRepository struct {
	settings map[string]domain.SystemSetting
	mu       sync.RWMutex
}

func NewMemorySettingRepository() *MemorySettingRepository {
	return &MemorySettingRepository{settings: make(map[string]domain.SystemSetting)}
}

var _ ports.SystemSettingRepository = (*MemorySettingRepository)(nil)

func (r *MemorySettingRepository) Get(_ context.Context, key string) (*domain.SystemSetting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.settings[key]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &s, nil
}

func (r *MemorySettingRepository) Set(_ context.Context, setting *domain.SystemSetting) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings[setting.Key] = *setting
	return nil
}

func (r *MemorySettingRepository) GetByCategory(_ context.Context, category string) ([]domain.SystemSetting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.SystemSetting
	for _, s := range r.settings {
		if s.Category == category {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *MemorySettingRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.settings, key)
	return nil
}

package db

import (
	"context"
	"sort"
	"sync"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
)

// MemoryTaskRepository keeps tasks in process memory. It is used when the
// panel runs without a database and by tests.
type MemoryTaskRepository struct {
	tasks map[string]*domain.Task
	mu    sync.RWMutex
}

func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{tasks: make(map[string]*domain.Task)}
}

var _ ports.TaskRepository = (*MemoryTaskRepository)(nil)

func (r *MemoryTaskRepository) Create(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks[task.ID] = task.Clone()
	return nil
}

func (r *MemoryTaskRepository) GetByID(_ context.Context, id string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, exists := r.tasks[id]
	if !exists {
		return nil, ports.ErrNotFound
	}
	// Return a copy to avoid race conditions
	return task.Clone(), nil
}

func (r *MemoryTaskRepository) Update(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.tasks[task.ID]
	if !exists {
		return ports.ErrNotFound
	}
	if stored.Version != task.Version {
		return ports.ErrVersionConflict
	}
	task.Version++
	r.tasks[task.ID] = task.Clone()
	return nil
}

func (r *MemoryTaskRepository) List(_ context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Task
	for _, t := range r.tasks {
		if matchesTaskFilter(t, filter) {
			out = append(out, *t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTaskRepository) LatestByRelated(_ context.Context, kind domain.RelatedKind, taskType domain.TaskType) (map[string]*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	latest := make(map[string]*domain.Task)
	for _, t := range r.tasks {
		if t.Related.Kind != kind || t.Type != taskType {
			continue
		}
		if cur, ok := latest[t.Related.ID]; !ok || t.CreatedAt.After(cur.CreatedAt) {
			latest[t.Related.ID] = t.Clone()
		}
	}
	return latest, nil
}

func matchesTaskFilter(t *domain.Task, f domain.TaskFilter) bool {
	if f.OwnerID != "" && t.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if t.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Related.Kind != domain.RelatedNone && t.Related.Kind != f.Related.Kind {
		return false
	}
	if f.Related.ID != "" && t.Related.ID != f.Related.ID {
		return false
	}
	return true
}

package db

import (
	"context"
	"errors"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type taskRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepository(db *gorm.DB, log *logger.Logger) ports.TaskRepository {
	return &taskRepository{db: db, log: log}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		r.log.Errorw("task_repo_create_failed", "id", task.ID, "type", task.Type, "error", err)
		return err
	}
	r.log.Debugw("task_repo_create_ok", "id", task.ID, "type", task.Type)
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		r.log.Errorw("task_repo_get_failed", "id", id, "error", err)
		return nil, err
	}
	return &task, nil
}

// Update writes the task guarded by its version column.
func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	expected := task.Version
	task.Version = expected + 1
	res := r.db.WithContext(ctx).
		Model(&domain.Task{}).
		Where("id = ? AND version = ?", task.ID, expected).
		Select("*").
		Omit("created_at").
		Updates(task)
	if res.Error != nil {
		task.Version = expected
		r.log.Errorw("task_repo_update_failed", "id", task.ID, "error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		task.Version = expected
		r.log.Warnw("task_repo_version_conflict", "id", task.ID, "version", expected)
		return ports.ErrVersionConflict
	}
	r.log.Debugw("task_repo_update_ok", "id", task.ID, "status", task.Status, "version", task.Version)
	return nil
}

func (r *taskRepository) List(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	q := r.db.WithContext(ctx).Model(&domain.Task{})
	if filter.OwnerID != "" {
		q = q.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Related.Kind != domain.RelatedNone {
		q = q.Where("related_kind = ?", filter.Related.Kind)
	}
	if filter.Related.ID != "" {
		q = q.Where("related_id = ?", filter.Related.ID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var tasks []domain.Task
	if err := q.Order("created_at desc").Limit(limit).Find(&tasks).Error; err != nil {
		r.log.Errorw("task_repo_list_failed", "error", err)
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) LatestByRelated(ctx context.Context, kind domain.RelatedKind, taskType domain.TaskType) (map[string]*domain.Task, error) {
	var tasks []domain.Task
	err := r.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (related_id) * FROM tasks
			WHERE related_kind = ? AND type = ?
			ORDER BY related_id, created_at DESC`, kind, taskType).
		Scan(&tasks).Error
	if err != nil {
		r.log.Errorw("task_repo_latest_by_related_failed", "kind", kind, "type", taskType, "error", err)
		return nil, err
	}

	latest := make(map[string]*domain.Task, len(tasks))
	for i := range tasks {
		latest[tasks[i].Related.ID] = &tasks[i]
	}
	return latest, nil
}

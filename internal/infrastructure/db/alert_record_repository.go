package db

import (
	"context"
	"time"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type alertRecordRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertRecordRepository(db *gorm.DB, log *logger.Logger) ports.AlertRecordRepository {
	return &alertRecordRepository{db: db, log: log}
}

func (r *alertRecordRepository) Create(ctx context.Context, record *domain.AlertRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		r.log.Errorw("alert_repo_create_failed", "dedup_key", record.DedupKey, "status", record.Status, "error", err)
		return err
	}
	r.log.Debugw("alert_repo_create_ok", "id", record.ID, "dedup_key", record.DedupKey, "status", record.Status)
	return nil
}

func (r *alertRecordRepository) GetAll(ctx context.Context, limit int) ([]domain.AlertRecord, error) {
	var records []domain.AlertRecord
	err := r.db.WithContext(ctx).
		Order("created_at desc").
		Limit(normalizeLimit(limit)).
		Find(&records).Error
	if err != nil {
		r.log.Errorw("alert_repo_list_failed", "error", err)
		return nil, err
	}
	return records, nil
}

func (r *alertRecordRepository) GetByDedupKey(ctx context.Context, key string, limit int) ([]domain.AlertRecord, error) {
	var records []domain.AlertRecord
	err := r.db.WithContext(ctx).
		Where("dedup_key = ?", key).
		Order("created_at desc").
		Limit(normalizeLimit(limit)).
		Find(&records).Error
	if err != nil {
		r.log.Errorw("alert_repo_get_by_key_failed", "dedup_key", key, "error", err)
		return nil, err
	}
	return records, nil
}

// CleanupOld removes records older than the specified duration
func (r *alertRecordRepository) CleanupOld(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.AlertRecord{})
	if res.Error != nil {
		r.log.Errorw("alert_repo_cleanup_failed", "error", res.Error)
		return res.Error
	}
	r.log.Infow("alert_repo_cleanup_ok", "removed", res.RowsAffected)
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

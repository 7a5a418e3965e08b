package db

import (
	"context"
	"sync"
	"time"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
)

// MemoryAlertRecordRepository keeps alert history newest first.
type MemoryAlertRecordRepository struct {
	records []domain.AlertRecord
	nextID  uint
	mu      sync.RWMutex
}

func NewMemoryAlertRecordRepository() *MemoryAlertRecordRepository {
	return &MemoryAlertRecordRepository{nextID: 1}
}

var _ ports.AlertRecordRepository = (*MemoryAlertRecordRepository)(nil)

func (r *MemoryAlertRecordRepository) Create(_ context.Context, record *domain.AlertRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.ID = r.nextID
	r.nextID++
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	rec := *record
	rec.Deliveries = record.Deliveries.Clone()
	r.records = append([]domain.AlertRecord{rec}, r.records...)
	return nil
}

func (r *MemoryAlertRecordRepository) GetAll(_ context.Context, limit int) ([]domain.AlertRecord, error) {
	return r.collect(normalizeLimit(limit), func(*domain.AlertRecord) bool { return true }), nil
}

func (r *MemoryAlertRecordRepository) GetByDedupKey(_ context.Context, key string, limit int) ([]domain.AlertRecord, error) {
	return r.collect(normalizeLimit(limit), func(rec *domain.AlertRecord) bool { return rec.DedupKey == key }), nil
}

func (r *MemoryAlertRecordRepository) CleanupOld(_ context.Context, olderThan time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	kept := r.records[:0]
	for _, rec := range r.records {
		if !rec.CreatedAt.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	r.records = kept
	return nil
}

func (r *MemoryAlertRecordRepository) collect(limit int, match func(*domain.AlertRecord) bool) []domain.AlertRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.AlertRecord, 0)
	for i := range r.records {
		if len(out) == limit {
			break
		}
		if match(&r.records[i]) {
			out = append(out, r.records[i])
		}
	}
	return out
}

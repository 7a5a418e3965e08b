package ports

import (
	"context"
	"errors"
	"time"

	"github.com/hostpanel/backend/internal/domain"
)

var (
	ErrNotFound        = errors.New("repository: record not found")
	ErrVersionConflict = errors.New("repository: version conflict")
)

type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	// Update persists the task only if the stored version equals task.Version,
	// then bumps task.Version. Otherwise it returns ErrVersionConflict.
	Update(ctx context.Context, task *domain.Task) error
	List(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error)
	// LatestByRelated returns the newest task of the given type for every
	// related object of the given kind, keyed by related id.
	LatestByRelated(ctx context.Context, kind domain.RelatedKind, taskType domain.TaskType) (map[string]*domain.Task, error)
}

type CertificateRepository interface {
	Create(ctx context.Context, cert *domain.SslCertificate) error
	GetByID(ctx context.Context, id uint) (*domain.SslCertificate, error)
	GetAll(ctx context.Context) ([]domain.SslCertificate, error)
	// GetRenewable returns auto-renew certificates in one of the given
	// statuses that expire before the cutoff or were never issued.
	GetRenewable(ctx context.Context, cutoff time.Time, statuses []domain.CertificateStatus) ([]domain.SslCertificate, error)
	Update(ctx context.Context, cert *domain.SslCertificate) error
}

type AlertRecordRepository interface {
	Create(ctx context.Context, record *domain.AlertRecord) error
	GetAll(ctx context.Context, limit int) ([]domain.AlertRecord, error)
	GetByDedupKey(ctx context.Context, key string, limit int) ([]domain.AlertRecord, error)
	CleanupOld(ctx context.Context, olderThan time.Duration) error
}

type SystemSettingRepository interface {
	Get(ctx context.Context, key string) (*domain.SystemSetting, error)
	Set(ctx context.Context, setting *domain.SystemSetting) error
	GetByCategory(ctx context.Context, category string) ([]domain.SystemSetting, error)
	Delete(ctx context.Context, key string) error
}

// CooldownLedger remembers when each dedup key was last forwarded.
type CooldownLedger interface {
	// TryAcquire reports whether key may be forwarded at now and, if so,
	// records now as its last-sent time. It returns false while an earlier
	// send for the key is still inside the cooldown window.
	TryAcquire(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, error)
	// Prune drops keys last sent before cutoff and returns how many went.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Len(ctx context.Context) (int, error)
}

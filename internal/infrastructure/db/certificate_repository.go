package db

import (
	"context"
	"errors"
	"time"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type certificateRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCertificateRepository(db *gorm.DB, log *logger.Logger) ports.CertificateRepository {
	return &certificateRepository{db: db, log: log}
}

func (r *certificateRepository) Create(ctx context.Context, cert *domain.SslCertificate) error {
	if err := r.db.WithContext(ctx).Create(cert).Error; err != nil {
		r.log.Errorw("certificate_repo_create_failed", "domain", cert.DomainName, "error", err)
		return err
	}
	r.log.Infow("certificate_repo_create_ok", "id", cert.ID, "domain", cert.DomainName)
	return nil
}

func (r *certificateRepository) GetByID(ctx context.Context, id uint) (*domain.SslCertificate, error) {
	var cert domain.SslCertificate
	if err := r.db.WithContext(ctx).First(&cert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrNotFound
		}
		r.log.Errorw("certificate_repo_get_failed", "id", id, "error", err)
		return nil, err
	}
	return &cert, nil
}

func (r *certificateRepository) GetAll(ctx context.Context) ([]domain.SslCertificate, error) {
	var certs []domain.SslCertificate
	if err := r.db.WithContext(ctx).Order("expires_at asc").Find(&certs).Error; err != nil {
		r.log.Errorw("certificate_repo_list_failed", "error", err)
		return nil, err
	}
	return certs, nil
}

func (r *certificateRepository) GetRenewable(ctx context.Context, cutoff time.Time, statuses []domain.CertificateStatus) ([]domain.SslCertificate, error) {
	var certs []domain.SslCertificate
	err := r.db.WithContext(ctx).
		Where("auto_renew = ? AND (expires_at IS NULL OR expires_at < ?) AND status IN ?", true, cutoff, statuses).
		Order("expires_at asc").
		Find(&certs).Error
	if err != nil {
		r.log.Errorw("certificate_repo_get_renewable_failed", "error", err)
		return nil, err
	}
	r.log.Debugw("certificate_repo_get_renewable_ok", "count", len(certs))
	return certs, nil
}

func (r *certificateRepository) Update(ctx context.Context, cert *domain.SslCertificate) error {
	if err := r.db.WithContext(ctx).Save(cert).Error; err != nil {
		r.log.Errorw("certificate_repo_update_failed", "id", cert.ID, "error", err)
		return err
	}
	r.log.Debugw("certificate_repo_update_ok", "id", cert.ID, "status", cert.Status)
	return nil
}

package db

import (
	"github.com/hostpanel/backend/internal/domain"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.Task{},
		&domain.SslCertificate{},
		&domain.AlertRecord{},
		&domain.SystemSetting{},
	)
	if err != nil {
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		return err
	}

	return nil
}

func createCustomIndexes(db *gorm.DB) error {
	// Latest task per related object, used by the backup evaluator
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tasks_related_latest
		ON tasks (related_kind, type, related_id, created_at DESC)
	`).Error; err != nil {
		return err
	}

	// Renewal scan
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_ssl_certificates_renewable
		ON ssl_certificates (status, expires_at)
		WHERE auto_renew
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_alert_records_dedup_recent
		ON alert_records (dedup_key, created_at DESC)
		WHERE deleted_at IS NULL
	`).Error; err != nil {
		return err
	}

	return nil
}

// Package evaluators holds the health checks run by the alert pipeline.
package evaluators

import (
	"fmt"
	"time"

	"github.com/hostpanel/backend/internal/config"
	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
)

// Build returns the standard evaluator set configured from thresholds.
func Build(cfg config.ThresholdsConfig) []ports.Evaluator {
	return []ports.Evaluator{
		NewResourceEvaluator(ResourceThresholds{
			CPUWarning:     cfg.CPUWarning,
			CPUCritical:    cfg.CPUCritical,
			MemoryWarning:  cfg.MemoryWarning,
			MemoryCritical: cfg.MemoryCritical,
			DiskWarning:    cfg.DiskWarning,
			DiskCritical:   cfg.DiskCritical,
		}),
		NewServiceDownEvaluator(cfg.Services),
		NewBruteForceEvaluator(cfg.AuthFailureThreshold),
		NewIntrusionEvaluator(cfg.IntrusionThreshold),
		NewBackupFailureEvaluator(),
		NewCertificateExpiryEvaluator(cfg.CertExpiryLead, cfg.CertExpiryCritical, cfg.CertExpiryQuiet),
	}
}

func newAlert(source string, category domain.AlertCategory, severity domain.Severity, key string, at time.Time, format string, args ...interface{}) domain.Alert {
	return domain.Alert{
		Category:   category,
		Severity:   severity,
		Message:    fmt.Sprintf(format, args...),
		DedupKey:   key,
		DetectedAt: at,
		Source:     source,
	}
}

func detectedAt(s *domain.SystemSnapshot) time.Time {
	if s.TakenAt.IsZero() {
		return time.Now()
	}
	return s.TakenAt
}

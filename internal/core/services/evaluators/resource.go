package evaluators

import (
	"context"

	"github.com/hostpanel/backend/internal/domain"
)

// ResourceThresholds are percentages. A zero critical value disables the
// critical level for that metric.
type ResourceThresholds struct {
	CPUWarning     float64
	CPUCritical    float64
	MemoryWarning  float64
	MemoryCritical float64
	DiskWarning    float64
	DiskCritical   float64
}

type ResourceEvaluator struct {
	thresholds ResourceThresholds
}

func NewResourceEvaluator(t ResourceThresholds) *ResourceEvaluator {
	return &ResourceEvaluator{thresholds: t}
}

func (e *ResourceEvaluator) Name() string { return "resource" }

func (e *ResourceEvaluator) Evaluate(_ context.Context, s *domain.SystemSnapshot) ([]domain.Alert, error) {
	if s.Resources == nil {
		return nil, nil
	}
	at := detectedAt(s)
	r := s.Resources

	var alerts []domain.Alert
	check := func(metric, label string, value, warning, critical float64) {
		severity, limit := levelFor(value, warning, critical)
		if severity == "" {
			return
		}
		alerts = append(alerts, newAlert(e.Name(), domain.AlertCategoryResource, severity, "resource:"+metric, at,
			"%s usage is %.1f%% (threshold %.0f%%)", label, value, limit))
	}
	check("cpu", "CPU", r.CPUPercent, e.thresholds.CPUWarning, e.thresholds.CPUCritical)
	check("memory", "Memory", r.MemoryPercent, e.thresholds.MemoryWarning, e.thresholds.MemoryCritical)
	diskLabel := "Disk"
	if r.DiskPath != "" {
		diskLabel = "Disk " + r.DiskPath
	}
	check("disk", diskLabel, r.DiskPercent, e.thresholds.DiskWarning, e.thresholds.DiskCritical)
	return alerts, nil
}

func levelFor(value, warning, critical float64) (domain.Severity, float64) {
	switch {
	case critical > 0 && value >= critical:
		return domain.SeverityCritical, critical
	case warning > 0 && value >= warning:
		return domain.SeverityWarning, warning
	}
	return "", 0
}

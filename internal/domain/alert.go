package domain

import (
	"sort"
	"time"

	"gorm.io/gorm"
)

type AlertCategory string

const (
	AlertCategoryResource    AlertCategory = "resource"
	AlertCategoryService     AlertCategory = "service"
	AlertCategorySecurity    AlertCategory = "security"
	AlertCategoryBackup      AlertCategory = "backup"
	AlertCategoryCertificate AlertCategory = "certificate"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Alert is a single finding produced by an evaluator.
type Alert struct {
	Category   AlertCategory     `json:"category"`
	Severity   Severity          `json:"severity"`
	Message    string            `json:"message"`
	DedupKey   string            `json:"dedup_key"`
	DetectedAt time.Time         `json:"detected_at"`
	Source     string            `json:"source,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// SortAlerts orders alerts most severe first, then by category, detection
// time and dedup key so the result is stable across runs.
func SortAlerts(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if !a.DetectedAt.Equal(b.DetectedAt) {
			return a.DetectedAt.Before(b.DetectedAt)
		}
		return a.DedupKey < b.DedupKey
	})
}

type DeliveryStatus string

const (
	DeliveryStatusSent       DeliveryStatus = "sent"
	DeliveryStatusFailed     DeliveryStatus = "failed"
	DeliveryStatusSuppressed DeliveryStatus = "suppressed"
)

// AlertRecord is the persisted history of an evaluated alert. Suppressed and
// undeliverable alerts are recorded too so the condition is never lost.
type AlertRecord struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Category   AlertCategory  `gorm:"size:50;not null;index" json:"category"`
	Severity   Severity       `gorm:"size:20;not null;index" json:"severity"`
	Message    string         `gorm:"type:text" json:"message"`
	DedupKey   string         `gorm:"size:255;not null;index" json:"dedup_key"`
	Source     string         `gorm:"size:100" json:"source"`
	DetectedAt time.Time      `json:"detected_at"`
	Status     DeliveryStatus `gorm:"size:20;not null;index" json:"status"`
	Deliveries JSONB          `gorm:"type:jsonb" json:"deliveries,omitempty"`
}

// NewAlertRecord builds a history row for an alert.
func NewAlertRecord(a Alert, status DeliveryStatus, deliveries JSONB) *AlertRecord {
	return &AlertRecord{
		Category:   a.Category,
		Severity:   a.Severity,
		Message:    a.Message,
		DedupKey:   a.DedupKey,
		Source:     a.Source,
		DetectedAt: a.DetectedAt,
		Status:     status,
		Deliveries: deliveries,
	}
}

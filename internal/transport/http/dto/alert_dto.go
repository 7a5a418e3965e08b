package dto

import (
	"time"

	"github.com/hostpanel/backend/internal/core/services"
	"github.com/hostpanel/backend/internal/domain"
)

type AlertRecordResponse struct {
	ID         uint                  `json:"id"`
	Category   domain.AlertCategory  `json:"category"`
	Severity   domain.Severity       `json:"severity"`
	Message    string                `json:"message"`
	DedupKey   string                `json:"dedup_key"`
	Source     string                `json:"source,omitempty"`
	DetectedAt time.Time             `json:"detected_at"`
	Status     domain.DeliveryStatus `json:"status"`
	Deliveries domain.JSONB          `json:"deliveries,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

func AlertRecordsToResponse(records []domain.AlertRecord) []AlertRecordResponse {
	responses := make([]AlertRecordResponse, len(records))
	for i, r := range records {
		responses[i] = AlertRecordResponse{
			ID:         r.ID,
			Category:   r.Category,
			Severity:   r.Severity,
			Message:    r.Message,
			DedupKey:   r.DedupKey,
			Source:     r.Source,
			DetectedAt: r.DetectedAt,
			Status:     r.Status,
			Deliveries: r.Deliveries,
			CreatedAt:  r.CreatedAt,
		}
	}
	return responses
}

type CycleReportResponse struct {
	StartedAt       time.Time         `json:"started_at"`
	DurationMs      int64             `json:"duration_ms"`
	Alerts          int               `json:"alerts"`
	Dispatched      int               `json:"dispatched"`
	Suppressed      int               `json:"suppressed"`
	Undelivered     int               `json:"undelivered"`
	Pruned          int               `json:"pruned"`
	EvaluatorErrors map[string]string `json:"evaluator_errors,omitempty"`
}

func CycleReportToResponse(r *services.CycleReport) CycleReportResponse {
	return CycleReportResponse{
		StartedAt:       r.StartedAt,
		DurationMs:      r.Duration.Milliseconds(),
		Alerts:          r.Alerts,
		Dispatched:      r.Dispatched,
		Suppressed:      r.Suppressed,
		Undelivered:     r.Undelivered,
		Pruned:          r.Pruned,
		EvaluatorErrors: r.EvaluatorErrors,
	}
}

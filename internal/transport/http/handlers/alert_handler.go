package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/core/services"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"github.com/hostpanel/backend/internal/transport/http/dto"
)

// AlertCycleRunner is the part of the alert pipeline the API drives.
type AlertCycleRunner interface {
	RunCycle(ctx context.Context) (*services.CycleReport, error)
	LastReport() *services.CycleReport
}

type AlertHandler struct {
	pipeline AlertCycleRunner
	records  ports.AlertRecordRepository
	logger   *logger.Logger
}

func NewAlertHandler(pipeline AlertCycleRunner, records ports.AlertRecordRepository, logger *logger.Logger) *AlertHandler {
	return &AlertHandler{pipeline: pipeline, records: records, logger: logger}
}

// GetHistory lists recorded alerts, newest first. dedup_key narrows the
// list to one condition.
func (h *AlertHandler) GetHistory(c *fiber.Ctx) error {
	if h.records == nil {
		return c.JSON(dto.NewListResponse([]dto.AlertRecordResponse{}))
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid limit"})
		}
		limit = n
	}

	var (
		records []domain.AlertRecord
		err     error
	)
	if key := c.Query("dedup_key"); key != "" {
		records, err = h.records.GetByDedupKey(c.Context(), key, limit)
	} else {
		records, err = h.records.GetAll(c.Context(), limit)
	}
	if err != nil {
		h.logger.Errorw("alerts_history_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.NewListResponse(dto.AlertRecordsToResponse(records)))
}

func (h *AlertHandler) RunCycle(c *fiber.Ctx) error {
	h.logger.Infow("alerts_run_cycle_request")
	report, err := h.pipeline.RunCycle(c.Context())
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, services.ErrSnapshotFailed) || errors.Is(err, services.ErrLedgerFailed) {
			status = fiber.StatusServiceUnavailable
		}
		h.logger.Errorw("alerts_run_cycle_failed", "error", err)
		return c.Status(status).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.CycleReportToResponse(report))
}

func (h *AlertHandler) GetLastReport(c *fiber.Ctx) error {
	report := h.pipeline.LastReport()
	if report == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "no cycle has completed yet"})
	}
	return c.JSON(dto.CycleReportToResponse(report))
}

package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hostpanel/backend/internal/core/services"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"github.com/hostpanel/backend/internal/transport/http/dto"
)

type CertificateManager interface {
	List(ctx context.Context) ([]domain.SslCertificate, error)
	Get(ctx context.Context, id uint) (*domain.SslCertificate, error)
	RenewNow(ctx context.Context, id uint) (*domain.Task, error)
	Revoke(ctx context.Context, id uint) (*domain.SslCertificate, error)
}

type CertificateHandler struct {
	service CertificateManager
	logger  *logger.Logger
	now     func() time.Time
}

func NewCertificateHandler(service CertificateManager, logger *logger.Logger) *CertificateHandler {
	return &CertificateHandler{service: service, logger: logger, now: time.Now}
}

func (h *CertificateHandler) GetCertificates(c *fiber.Ctx) error {
	certs, err := h.service.List(c.Context())
	if err != nil {
		h.logger.Errorw("certificates_list_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.NewListResponse(dto.CertificatesToResponse(certs, h.now())))
}

func (h *CertificateHandler) GetCertificate(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid certificate id"})
	}
	cert, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.certificateError(c, "certificate_get_failed", id, err)
	}
	return c.JSON(dto.CertificateToResponse(cert, h.now()))
}

func (h *CertificateHandler) RenewCertificate(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid certificate id"})
	}
	h.logger.Infow("certificate_renew_request", "certificate_id", id)

	task, err := h.service.RenewNow(c.Context(), id)
	if err != nil {
		return h.certificateError(c, "certificate_renew_failed", id, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.RenewResponse{
		Certificate: id,
		Task:        dto.TaskToResponse(task),
	})
}

func (h *CertificateHandler) RevokeCertificate(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid certificate id"})
	}
	h.logger.Infow("certificate_revoke_request", "certificate_id", id)

	cert, err := h.service.Revoke(c.Context(), id)
	if err != nil {
		return h.certificateError(c, "certificate_revoke_failed", id, err)
	}
	return c.JSON(dto.CertificateToResponse(cert, h.now()))
}

func (h *CertificateHandler) certificateError(c *fiber.Ctx, event string, id uint, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrCertificateNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrCertificateInvalidTransition), errors.Is(err, services.ErrCertificateRenewalInProgress):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrExecutorClosed):
		status = fiber.StatusServiceUnavailable
	}
	if status == fiber.StatusInternalServerError {
		h.logger.Errorw(event, "certificate_id", id, "error", err)
	} else {
		h.logger.Warnw(event, "certificate_id", id, "error", err)
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: err.Error()})
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

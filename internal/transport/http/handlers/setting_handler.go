package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/hostpanel/backend/internal/core/services"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"github.com/hostpanel/backend/internal/transport/http/dto"
)

type SettingsStore interface {
	GetSettings(ctx context.Context) (map[string]string, error)
	UpdateSettings(ctx context.Context, settings map[string]interface{}) error
}

type SettingHandler struct {
	service SettingsStore
	logger  *logger.Logger
}

func NewSettingHandler(service SettingsStore, logger *logger.Logger) *SettingHandler {
	return &SettingHandler{service: service, logger: logger}
}

func (h *SettingHandler) GetSettings(c *fiber.Ctx) error {
	h.logger.Infow("settings_get_request")
	settings, err := h.service.GetSettings(c.Context())
	if err != nil {
		h.logger.Errorw("settings_get_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.JSON(settings)
}

// UpdateSettings stores notification channel overrides. They are read at
// startup, so the response reminds the operator to restart.
func (h *SettingHandler) UpdateSettings(c *fiber.Ctx) error {
	var req map[string]interface{}
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("settings_update_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}
	if len(req) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "no settings given",
		})
	}

	h.logger.Infow("settings_update_request", "keys", len(req))
	if err := h.service.UpdateSettings(c.Context(), req); err != nil {
		if errors.Is(err, services.ErrSettingInvalid) {
			h.logger.Warnw("settings_update_rejected", "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: err.Error(),
			})
		}
		h.logger.Errorw("settings_update_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(dto.SuccessResponse{
		Message: "settings updated; restart the panel to apply channel changes",
	})
}

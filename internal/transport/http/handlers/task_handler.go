package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/core/services"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"github.com/hostpanel/backend/internal/transport/http/dto"
)

type TaskHandler struct {
	executor ports.TaskExecutor
	logger   *logger.Logger
}

func NewTaskHandler(executor ports.TaskExecutor, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{executor: executor, logger: logger}
}

func (h *TaskHandler) ListTasks(c *fiber.Ctx) error {
	var q dto.TaskListQuery
	if err := c.QueryParser(&q); err != nil {
		h.logger.Warnw("tasks_list_query_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid query",
		})
	}
	if errs := q.Validate(); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	tasks, err := h.executor.List(c.Context(), q.Filter())
	if err != nil {
		h.logger.Errorw("tasks_list_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.JSON(dto.NewListResponse(dto.TasksToResponse(tasks)))
}

func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	id := c.Params("id")
	task, err := h.executor.Get(c.Context(), id)
	if err != nil {
		return h.taskError(c, "task_get_failed", id, err)
	}
	return c.JSON(dto.TaskToResponse(task))
}

func (h *TaskHandler) CancelTask(c *fiber.Ctx) error {
	id := c.Params("id")
	h.logger.Infow("task_cancel_request", "task_id", id)

	task, err := h.executor.Cancel(c.Context(), id)
	if err != nil {
		return h.taskError(c, "task_cancel_failed", id, err)
	}
	// A running task reports cancellation once its work has stopped.
	return c.Status(fiber.StatusAccepted).JSON(dto.TaskToResponse(task))
}

func (h *TaskHandler) RetryTask(c *fiber.Ctx) error {
	id := c.Params("id")
	h.logger.Infow("task_retry_request", "task_id", id)

	task, err := h.executor.Retry(c.Context(), id)
	if err != nil {
		return h.taskError(c, "task_retry_failed", id, err)
	}
	h.logger.Infow("task_retry_success", "task_id", task.ID, "retry_of", id)
	return c.Status(fiber.StatusCreated).JSON(dto.TaskToResponse(task))
}

func (h *TaskHandler) taskError(c *fiber.Ctx, event, id string, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrTaskNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrTaskNotCancellable), errors.Is(err, services.ErrTaskNotRetryable):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrExecutorClosed):
		status = fiber.StatusServiceUnavailable
	}
	if status == fiber.StatusInternalServerError {
		h.logger.Errorw(event, "task_id", id, "error", err)
	} else {
		h.logger.Warnw(event, "task_id", id, "error", err)
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: err.Error()})
}

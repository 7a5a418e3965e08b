package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/core/services"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"github.com/hostpanel/backend/internal/transport/http/dto"
)

// TaskStreamHandler pushes a task's status and progress over a websocket
// until the task reaches a terminal status or the client goes away.
type TaskStreamHandler struct {
	executor ports.TaskExecutor
	logger   *logger.Logger
	interval time.Duration
}

func NewTaskStreamHandler(executor ports.TaskExecutor, logger *logger.Logger, interval time.Duration) *TaskStreamHandler {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &TaskStreamHandler{executor: executor, logger: logger, interval: interval}
}

func (h *TaskStreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	id := c.Params("id")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client never sends anything useful; reading only tells us it left.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Infow("task_stream_open", "task_id", id)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last *dto.TaskProgressEvent
	for {
		task, err := h.executor.Get(ctx, id)
		if err != nil {
			if errors.Is(err, services.ErrTaskNotFound) {
				h.logger.Warnw("task_stream_not_found", "task_id", id)
				_ = c.WriteJSON(dto.ErrorResponse{Error: err.Error()})
				return
			}
			if ctx.Err() != nil {
				return
			}
			h.logger.Errorw("task_stream_get_failed", "task_id", id, "error", err)
			_ = c.WriteJSON(dto.ErrorResponse{Error: err.Error()})
			return
		}

		event := dto.TaskToProgressEvent(task)
		if last == nil || *last != event {
			if err := c.WriteJSON(event); err != nil {
				h.logger.Debugw("task_stream_write_failed", "task_id", id, "error", err)
				return
			}
			last = &event
		}
		if event.Terminal {
			h.logger.Infow("task_stream_done", "task_id", id, "status", event.Status)
			return
		}

		select {
		case <-ctx.Done():
			h.logger.Infow("task_stream_client_closed", "task_id", id)
			return
		case <-ticker.C:
		}
	}
}

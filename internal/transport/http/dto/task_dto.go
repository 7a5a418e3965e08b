package dto

import (
	"strconv"
	"time"

	"github.com/hostpanel/backend/internal/domain"
)

type TaskResponse struct {
	ID           string            `json:"id"`
	OwnerID      string            `json:"owner_id"`
	Type         domain.TaskType   `json:"type"`
	Status       domain.TaskStatus `json:"status"`
	Progress     int               `json:"progress"`
	Related      domain.RelatedRef `json:"related"`
	Output       domain.JSONB      `json:"output,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     domain.JSONB      `json:"metadata,omitempty"`
	TimeoutSec   float64           `json:"timeout_seconds"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	Terminal     bool              `json:"terminal"`
}

func TaskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		OwnerID:      t.OwnerID,
		Type:         t.Type,
		Status:       t.Status,
		Progress:     t.Progress,
		Related:      t.Related,
		Output:       t.Output,
		ErrorMessage: t.ErrorMessage,
		Metadata:     t.Metadata,
		TimeoutSec:   t.Timeout.Seconds(),
		CreatedAt:    t.CreatedAt,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
		Terminal:     t.IsTerminal(),
	}
}

func TasksToResponse(tasks []domain.Task) []TaskResponse {
	responses := make([]TaskResponse, len(tasks))
	for i := range tasks {
		responses[i] = TaskToResponse(&tasks[i])
	}
	return responses
}

// TaskListQuery mirrors the query string accepted by GET /tasks.
type TaskListQuery struct {
	OwnerID     string `query:"owner_id"`
	Status      string `query:"status"`
	Type        string `query:"type"`
	RelatedKind string `query:"related_kind"`
	RelatedID   string `query:"related_id"`
	Limit       string `query:"limit"`
}

func (q *TaskListQuery) Validate() []string {
	var errors []string

	if q.Status != "" && !domain.TaskStatus(q.Status).Valid() {
		errors = append(errors, "status must be one of: pending, running, completed, failed, cancelled")
	}
	if q.RelatedID != "" && q.RelatedKind == "" {
		errors = append(errors, "related_id requires related_kind")
	}
	if q.Limit != "" {
		n, err := strconv.Atoi(q.Limit)
		if err != nil || n < 1 || n > 500 {
			errors = append(errors, "limit must be between 1 and 500")
		}
	}

	return errors
}

func (q *TaskListQuery) Filter() domain.TaskFilter {
	limit, _ := strconv.Atoi(q.Limit)
	return domain.TaskFilter{
		OwnerID: q.OwnerID,
		Status:  domain.TaskStatus(q.Status),
		Type:    domain.TaskType(q.Type),
		Related: domain.RelatedRef{Kind: domain.RelatedKind(q.RelatedKind), ID: q.RelatedID},
		Limit:   limit,
	}
}

// TaskProgressEvent is pushed over the task stream websocket.
type TaskProgressEvent struct {
	ID           string            `json:"id"`
	Status       domain.TaskStatus `json:"status"`
	Progress     int               `json:"progress"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Terminal     bool              `json:"terminal"`
}

func TaskToProgressEvent(t *domain.Task) TaskProgressEvent {
	return TaskProgressEvent{
		ID:           t.ID,
		Status:       t.Status,
		Progress:     t.Progress,
		ErrorMessage: t.ErrorMessage,
		Terminal:     t.IsTerminal(),
	}
}

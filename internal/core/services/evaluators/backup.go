package evaluators

import (
	"context"
	"sort"

	"github.com/hostpanel/backend/internal/domain"
)

type BackupFailureEvaluator struct{}

func NewBackupFailureEvaluator() *BackupFailureEvaluator {
	return &BackupFailureEvaluator{}
}

func (e *BackupFailureEvaluator) Name() string { return "backup-failure" }

// Evaluate alerts when the newest backup task of a schedule failed. The task
// id is part of the dedup key so each failed run is reported once.
func (e *BackupFailureEvaluator) Evaluate(_ context.Context, s *domain.SystemSnapshot) ([]domain.Alert, error) {
	schedules := make([]string, 0, len(s.LatestBackups))
	for k := range s.LatestBackups {
		schedules = append(schedules, k)
	}
	sort.Strings(schedules)

	at := detectedAt(s)
	var alerts []domain.Alert
	for _, schedule := range schedules {
		task := s.LatestBackups[schedule]
		if task == nil || task.Status != domain.TaskStatusFailed {
			continue
		}
		reason := task.ErrorMessage
		if reason == "" {
			reason = "no error message recorded"
		}
		a := newAlert(e.Name(), domain.AlertCategoryBackup, domain.SeverityWarning,
			"backup-failed:"+schedule+":"+task.ID, at,
			"Backup for schedule %s failed: %s", schedule, reason)
		a.Labels = map[string]string{"schedule": schedule, "task_id": task.ID}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

package domain

import "time"

// TaskType identifies the kind of long-running operation a Task tracks.
type TaskType string

const (
	TaskTypeBackup     TaskType = "backup"
	TaskTypeMigration  TaskType = "migration"
	TaskTypeAppInstall TaskType = "app-install"
	TaskTypeSSLIssue   TaskType = "ssl-issue"
	TaskTypeSSLRenew   TaskType = "ssl-renew"
)

// TaskStatus represents the current status of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// RelatedKind tags the domain object a task acts on.
type RelatedKind string

const (
	RelatedNone           RelatedKind = ""
	RelatedDomain         RelatedKind = "domain"
	RelatedCertificate    RelatedKind = "certificate"
	RelatedBackupSchedule RelatedKind = "backup_schedule"
	RelatedApp            RelatedKind = "app"
	RelatedServer         RelatedKind = "server"
)

// RelatedRef is a typed reference to the object a task operates on. The task
// never holds the object itself.
type RelatedRef struct {
	Kind RelatedKind `gorm:"size:50;index:idx_tasks_related" json:"kind,omitempty"`
	ID   string      `gorm:"size:100;index:idx_tasks_related" json:"id,omitempty"`
}

func (r RelatedRef) IsZero() bool {
	return r.Kind == RelatedNone && r.ID == ""
}

func (r RelatedRef) String() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Kind) + ":" + r.ID
}

// Metadata keys used on Task.Metadata
const (
	MetaRetryOf    = "retry_of"
	MetaRetryCount = "retry_count"
	MetaSourceIP   = "source_ip"
	MetaSchedule   = "schedule"
)

type Task struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerID      string        `gorm:"size:100;index" json:"owner_id"`
	Type         TaskType      `gorm:"size:50;not null;index" json:"type"`
	Status       TaskStatus    `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Progress     int           `gorm:"default:0" json:"progress"`
	Related      RelatedRef    `gorm:"embedded;embeddedPrefix:related_" json:"related"`
	InputData    JSONB         `gorm:"type:jsonb" json:"input_data,omitempty"`
	Output       JSONB         `gorm:"type:jsonb" json:"output,omitempty"`
	ErrorMessage string        `gorm:"type:text" json:"error_message,omitempty"`
	Metadata     JSONB         `gorm:"type:jsonb" json:"metadata,omitempty"`
	Timeout      time.Duration `json:"timeout"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`

	// Version is bumped on every persisted transition.
	Version int64 `gorm:"not null;default:0" json:"version"`
}

// taskTransitions lists every allowed status change. Terminal statuses have
// no entry.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending: {TaskStatusRunning, TaskStatusCancelled},
	TaskStatusRunning: {TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, s := range taskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

func (t *Task) CanCancel() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusRunning
}

func (t *Task) CanRetry() bool {
	return t.Status == TaskStatusFailed || t.Status == TaskStatusCancelled
}

// RetryCount returns how many retries preceded this task.
func (t *Task) RetryCount() int {
	if t.Metadata == nil {
		return 0
	}
	switch v := t.Metadata[MetaRetryCount].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Clone returns a deep enough copy for handing out of a store.
func (t *Task) Clone() *Task {
	c := *t
	c.InputData = t.InputData.Clone()
	c.Output = t.Output.Clone()
	c.Metadata = t.Metadata.Clone()
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

// TaskFilter narrows List queries. Zero fields are ignored.
type TaskFilter struct {
	OwnerID  string
	Status   TaskStatus
	Type     TaskType
	Related  RelatedRef
	Limit    int
	Statuses []TaskStatus
}

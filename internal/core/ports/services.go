package ports

import (
	"context"
	"time"

	"github.com/hostpanel/backend/internal/domain"
)

// ProgressReporter lets running work publish a completion percentage.
type ProgressReporter interface {
	Report(percent int)
}

// WorkFunc is the body of a task. It must return promptly once ctx is done.
type WorkFunc func(ctx context.Context, task *domain.Task, progress ProgressReporter) (domain.JSONB, error)

type SubmitRequest struct {
	Type     domain.TaskType
	OwnerID  string
	Related  domain.RelatedRef
	Input    domain.JSONB
	Metadata domain.JSONB
	// Work overrides the function registered for Type.
	Work     WorkFunc
	Timeout  time.Duration
}

type TaskExecutor interface {
	RegisterWork(taskType domain.TaskType, work WorkFunc)
	Submit(ctx context.Context, req SubmitRequest) (*domain.Task, error)
	Get(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error)
	Cancel(ctx context.Context, id string) (*domain.Task, error)
	Retry(ctx context.Context, id string) (*domain.Task, error)
}

// Evaluator is a pluggable health check.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, snapshot *domain.SystemSnapshot) ([]domain.Alert, error)
}

type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*domain.SystemSnapshot, error)
}

// NotificationChannel delivers a single alert to one destination.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, alert domain.Alert) error
}

type ChannelOutcome struct {
	Channel  string        `json:"channel"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (o ChannelOutcome) Delivered() bool {
	return o.Err == nil
}

type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert domain.Alert) []ChannelOutcome
}

// CommandRunner executes a system command locally or on a managed host.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type ServiceProbe interface {
	IsRunning(ctx context.Context, service string) (bool, error)
}

// SecurityEventSource reports authentication failures and intrusion hits per
// source within a trailing window.
type SecurityEventSource interface {
	AuthFailures(now time.Time, window time.Duration) domain.SecurityCounts
	IntrusionHits(now time.Time, window time.Duration) domain.SecurityCounts
}

type HostMetrics interface {
	Usage(ctx context.Context) (*domain.ResourceUsage, error)
}

type IssuedCertificate struct {
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CertificateIssuer talks to the ACME client for a domain.
type CertificateIssuer interface {
	Renew(ctx context.Context, cert *domain.SslCertificate) (*IssuedCertificate, error)
}

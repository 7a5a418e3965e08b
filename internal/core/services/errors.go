package services

import (
	"errors"
	"fmt"
	"time"
)

// Task errors
var (
	ErrTaskNotFound          = errors.New("task: not found")
	ErrTaskInvalidInput      = errors.New("task: invalid input")
	ErrTaskNotCancellable    = errors.New("task: only pending or running tasks can be cancelled")
	ErrTaskNotRetryable      = errors.New("task: only failed or cancelled tasks can be retried")
	ErrTaskInvalidTransition = errors.New("task: invalid status transition")
	ErrTaskNoWork            = errors.New("task: no work registered for task type")
	ErrExecutorClosed        = errors.New("task: executor is shut down")
	ErrTaskInterrupted       = errors.New("task: interrupted by a restart")
)

// Failure taxonomy recorded on tasks, evaluators, channels and renewals.
var (
	ErrTaskTimeout             = errors.New("task: timed out")
	ErrTaskCancelled           = errors.New("task: cancelled")
	ErrTaskWorkFailure         = errors.New("task: work failed")
	ErrEvaluatorFailure        = errors.New("alerts: evaluator failed")
	ErrNotificationChannel     = errors.New("notify: channel delivery failed")
	ErrRenewalAttemptsExceeded = errors.New("renewal: attempts exceeded")
)

// Alert pipeline errors
var (
	ErrSnapshotFailed = errors.New("alerts: snapshot failed")
	ErrLedgerFailed   = errors.New("alerts: cooldown ledger failed")
)

// Certificate errors
var (
	ErrCertificateNotFound          = errors.New("certificate: not found")
	ErrCertificateInvalidTransition = errors.New("certificate: invalid status transition")
	ErrCertificateRenewalInProgress = errors.New("certificate: renewal already in progress")
)

// Settings errors
var (
	ErrSettingsLoadFailed = errors.New("settings: failed to load channel settings")
	ErrSettingInvalid     = errors.New("settings: invalid setting")
)

type TaskTimeoutError struct {
	Timeout time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task: timed out after %s", e.Timeout)
}

func (e *TaskTimeoutError) Is(target error) bool {
	return target == ErrTaskTimeout
}

// TaskWorkError wraps whatever the work function returned or panicked with.
type TaskWorkError struct {
	Err error
}

func (e *TaskWorkError) Error() string {
	return "task: work failed: " + e.Err.Error()
}

func (e *TaskWorkError) Unwrap() []error {
	return []error{ErrTaskWorkFailure, e.Err}
}

type EvaluatorError struct {
	Evaluator string
	Err       error
}

func (e *EvaluatorError) Error() string {
	return fmt.Sprintf("alerts: evaluator %s failed: %v", e.Evaluator, e.Err)
}

func (e *EvaluatorError) Unwrap() []error {
	return []error{ErrEvaluatorFailure, e.Err}
}

type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("notify: channel %s failed: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() []error {
	return []error{ErrNotificationChannel, e.Err}
}

type RenewalAttemptsExceededError struct {
	CertificateID uint
	Attempts      int
	MaxAttempts   int
}

func (e *RenewalAttemptsExceededError) Error() string {
	return fmt.Sprintf("renewal: certificate %d failed %d times (max %d)", e.CertificateID, e.Attempts, e.MaxAttempts)
}

func (e *RenewalAttemptsExceededError) Is(target error) bool {
	return target == ErrRenewalAttemptsExceeded
}

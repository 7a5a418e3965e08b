package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/hostpanel/backend/internal/infrastructure/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, grace time.Duration) (*TaskExecutor, *db.MemoryTaskRepository) {
	t.Helper()
	repo := db.NewMemoryTaskRepository()
	exec, err := NewTaskExecutor(TaskExecutorConfig{
		Repository:     repo,
		Workers:        4,
		DefaultTimeout: 5 * time.Second,
		GracePeriod:    grace,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = exec.Shutdown(ctx)
	})
	return exec, repo
}

func waitForStatus(t *testing.T, exec *TaskExecutor, id string, status domain.TaskStatus) *domain.Task {
	t.Helper()
	var task *domain.Task
	require.Eventually(t, func() bool {
		got, err := exec.Get(context.Background(), id)
		if err != nil {
			return false
		}
		task = got
		return got.Status == status
	}, 3*time.Second, 5*time.Millisecond, "task %s never reached %s", id, status)
	return task
}

func submit(t *testing.T, exec *TaskExecutor, work ports.WorkFunc, timeout time.Duration) *domain.Task {
	t.Helper()
	task, err := exec.Submit(context.Background(), ports.SubmitRequest{
		Type:    domain.TaskTypeBackup,
		OwnerID: "owner-1",
		Related: domain.RelatedRef{Kind: domain.RelatedBackupSchedule, ID: "nightly"},
		Input:   domain.JSONB{"path": "/var/www"},
		Work:    work,
		Timeout: timeout,
	})
	require.NoError(t, err)
	return task
}

func TestTaskExecutor_Submit(t *testing.T) {
	t.Run("returns a pending task with the request fields", func(t *testing.T) {
		exec, _ := newTestExecutor(t, time.Second)
		release := make(chan struct{})
		defer close(release)

		task := submit(t, exec, func(ctx context.Context, _ *domain.Task, _ ports.ProgressReporter) (domain.JSONB, error) {
			<-release
			return nil, nil
		}, 0)

		assert.NotEmpty(t, task.ID)
		assert.Equal(t, domain.TaskStatusPending, task.Status)
		assert.Equal(t, "owner-1", task.OwnerID)
		assert.Equal(t, 5*time.Second, task.Timeout)
		assert.Equal(t, "/var/www", task.InputData["path"])
		assert.Nil(t, task.StartedAt)
	})

	t.Run("rejects a task type without work", func(t *testing.T) {
		exec, _ := newTestExecutor(t, time.Second)
		_, err := exec.Submit(context.Background(), ports.SubmitRequest{Type: domain.TaskTypeMigration})
		require.ErrorIs(t, err, ErrTaskNoWork)
	})

	t.Run("rejects a missing type", func(t *testing.T) {
		exec, _ := newTestExecutor(t, time.Second)
		_, err := exec.Submit(context.Background(), ports.SubmitRequest{})
		require.ErrorIs(t, err, ErrTaskInvalidInput)
	})

	t.Run("uses registered work", func(t *testing.T) {
		exec, _ := newTestExecutor(t, time.Second)
		exec.RegisterWork(domain.TaskTypeAppInstall, func(context.Context, *domain.Task, ports.ProgressReporter) (domain.JSONB, error) {
			return domain.JSONB{"installed": true}, nil
		})
		task, err := exec.Submit(context.Background(), ports.SubmitRequest{Type: domain.TaskTypeAppInstall})
		require.NoError(t, err)

		done := waitForStatus(t, exec, task.ID, domain.TaskStatusCompleted)
		assert.Equal(t, true, done.Output["installed"])
	})
}

func TestTaskExecutor_Completion(t *testing.T) {
	exec, _ := newTestExecutor(t, time.Second)

	task := submit(t, exec, func(_ context.Context, _ *domain.Task, p ports.ProgressReporter) (domain.JSONB, error) {
		p.Report(40)
		return domain.JSONB{"bytes": 1024}, nil
	}, 0)

	done := waitForStatus(t, exec, task.ID, domain.TaskStatusCompleted)
	assert.Equal(t, 100, done.Progress)
	assert.Empty(t, done.ErrorMessage)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)
	assert.False(t, done.CompletedAt.Before(*done.StartedAt))
	assert.EqualValues(t, 1024, done.Output["bytes"])
}

func TestTaskExecutor_WorkFailure(t *testing.T) {
	t.Run("error is recorded", func(t *testing.T) {
		exec, _ := newTestExecutor(t, time.Second)
		task := submit(t, exec, func(context.Context, *domain.Task, ports.ProgressReporter) (domain.JSONB, error) {
			return nil, errors.New("disk full")
		}, 0)

		done := waitForStatus(t, exec, task.ID, domain.TaskStatusFailed)
		assert.Contains(t, done.ErrorMessage, "disk full")
		assert.NotNil(t, done.CompletedAt)
	})

	t.Run("panic is recorded", func(t *testing.T) {
		exec, _ := newTestExecutor(t, time.Second)
		task := submit(t, exec, func(context.Context, *domain.Task, ports.ProgressReporter) (domain.JSONB, error) {
			panic("boom")
		}, 0)

		done := waitForStatus(t, exec, task.ID, domain.TaskStatusFailed)
		assert.Contains(t, done.ErrorMessage, "boom")
	})
}

func TestTaskExecutor_Timeout(t *testing.T) {
	t.Run("cooperative work fails with a timeout", func(t *testing.T) {
		exec, _ := newTestExecutor(t, time.Second)
		task := submit(t, exec, func(ctx context.Context, _ *domain.Task, _ ports.ProgressReporter) (domain.JSONB, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, 50*time.Millisecond)

		done := waitForStatus(t, exec, task.ID, domain.TaskStatusFailed)
		assert.Contains(t, done.ErrorMessage, "timed out")
	})

	t.Run("work ignoring its context is failed after the grace period", func(t *testing.T) {
		exec, _ := newTestExecutor(t, 50*time.Millisecond)
		block := make(chan struct{})
		defer close(block)

		task := submit(t, exec, func(context.Context, *domain.Task, ports.ProgressReporter) (domain.JSONB, error) {
			<-block
			return nil, nil
		}, 30*time.Millisecond)

		done := waitForStatus(t, exec, task.ID, domain.TaskStatusFailed)
		assert.Contains(t, done.ErrorMessage, "timed out")
	})

	t.Run("work returning cleanly after the deadline still fails", func(t *testing.T) {
		exec, _ := newTestExecutor(t, time.Second)
		task := submit(t, exec, func(ctx context.Context, _ *domain.Task, _ ports.ProgressReporter) (domain.JSONB, error) {
			<-ctx.Done()
			return domain.JSONB{"late": true}, nil
		}, 30*time.Millisecond)

		done := waitForStatus(t, exec, task.ID, domain.TaskStatusFailed)
		assert.Nil(t, done.Output)
	})
}

func TestTaskExecutor_Cancel(t *testing.T) {
	t.Run("pending task is cancelled without starting", func(t *testing.T) {
		repo := db.NewMemoryTaskRepository()
		exec, err := NewTaskExecutor(TaskExecutorConfig{Repository: repo, Workers: 1, GracePeriod: time.Second})
		require.NoError(t, err)
		defer func() { _ = exec.Shutdown(context.Background()) }()

		// Occupy the single worker so the next task stays pending.
		release := make(chan struct{})
		first := submit(t, exec, func(context.Context, *domain.Task, ports.ProgressReporter) (domain.JSONB, error) {
			<-release
			return nil, nil
		}, 0)
		waitForStatus(t, exec, first.ID, domain.TaskStatusRunning)

		var ran bool
		second := submit(t, exec, func(context.Context, *domain.Task, ports.ProgressReporter) (domain.JSONB, error) {
			ran = true
			return nil, nil
		}, 0)

		cancelled, err := exec.Cancel(context.Background(), second.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCancelled, cancelled.Status)
		assert.Nil(t, cancelled.StartedAt)
		assert.NotNil(t, cancelled.CompletedAt)

		close(release)
		waitForStatus(t, exec, first.ID, domain.TaskStatusCompleted)

		stored, err := exec.Get(context.Background(), second.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCancelled, stored.Status)
		assert.Nil(t, stored.StartedAt)
		assert.False(t, ran)
	})

	t.Run("running task is signalled and ends cancelled", func(t *testing.T) {
		exec, _ := newTestExecutor(t, time.Second)
		task := submit(t, exec, func(ctx context.Context, _ *domain.Task, _ ports.ProgressReporter) (domain.JSONB, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, 0)
		waitForStatus(t, exec, task.ID, domain.TaskStatusRunning)

		_, err := exec.Cancel(context.Background(), task.ID)
		require.NoError(t, err)

		done := waitForStatus(t, exec, task.ID, domain.TaskStatusCancelled)
		assert.NotNil(t, done.StartedAt)
		assert.NotNil(t, done.CompletedAt)
	})

	t.Run("terminal task cannot be cancelled", func(t *testing.T) {
		exec, _ := newTestExecutor(t, time.Second)
		task := submit(t, exec, func(context.Context, *domain.Task, ports.ProgressReporter) (domain.JSONB, error) {
			return nil, nil
		}, 0)
		waitForStatus(t, exec, task.ID, domain.TaskStatusCompleted)

		_, err := exec.Cancel(context.Background(), task.ID)
		require.ErrorIs(t, err, ErrTaskNotCancellable)
	})

	t.Run("unknown task", func(t *testing.T) {
		exec, _ := newTestExecutor(t, time.Second)
		_, err := exec.Cancel(context.Background(), "missing")
		require.ErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestTaskExecutor_Retry(t *testing.T) {
	exec, _ := newTestExecutor(t, time.Second)

	var mu sync.Mutex
	calls := 0
	exec.RegisterWork(domain.TaskTypeBackup, func(context.Context, *domain.Task, ports.ProgressReporter) (domain.JSONB, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, errors.New("remote unreachable")
		}
		return domain.JSONB{"ok": true}, nil
	})

	original, err := exec.Submit(context.Background(), ports.SubmitRequest{
		Type:     domain.TaskTypeBackup,
		OwnerID:  "owner-1",
		Related:  domain.RelatedRef{Kind: domain.RelatedBackupSchedule, ID: "nightly"},
		Metadata: domain.JSONB{domain.MetaSchedule: "nightly"},
	})
	require.NoError(t, err)
	failed := waitForStatus(t, exec, original.ID, domain.TaskStatusFailed)

	retried, err := exec.Retry(context.Background(), original.ID)
	require.NoError(t, err)
	assert.NotEqual(t, original.ID, retried.ID)
	assert.Equal(t, original.Related, retried.Related)
	assert.Equal(t, original.ID, retried.Metadata[domain.MetaRetryOf])
	assert.Equal(t, 1, retried.RetryCount())
	assert.Equal(t, "nightly", retried.Metadata[domain.MetaSchedule])

	waitForStatus(t, exec, retried.ID, domain.TaskStatusCompleted)

	after, err := exec.Get(context.Background(), original.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, after.Status)
	assert.Equal(t, failed.ErrorMessage, after.ErrorMessage)
	assert.Equal(t, failed.Version, after.Version)

	t.Run("only failed or cancelled tasks", func(t *testing.T) {
		_, err := exec.Retry(context.Background(), retried.ID)
		require.ErrorIs(t, err, ErrTaskNotRetryable)
	})
}

func TestTaskExecutor_ProgressIsClampedAndMonotonic(t *testing.T) {
	exec, _ := newTestExecutor(t, time.Second)

	seen := make(chan int, 8)
	release := make(chan struct{})
	task := submit(t, exec, func(_ context.Context, task *domain.Task, p ports.ProgressReporter) (domain.JSONB, error) {
		for _, v := range []int{-10, 30, 20, 250} {
			p.Report(v)
			current, _ := exec.Get(context.Background(), task.ID)
			seen <- current.Progress
		}
		<-release
		return nil, nil
	}, 0)

	got := []int{<-seen, <-seen, <-seen, <-seen}
	assert.Equal(t, []int{0, 30, 30, 100}, got)
	close(release)
	waitForStatus(t, exec, task.ID, domain.TaskStatusCompleted)
}

func TestTaskExecutor_TerminalListener(t *testing.T) {
	exec, _ := newTestExecutor(t, time.Second)

	got := make(chan *domain.Task, 2)
	exec.OnTerminal(func(_ context.Context, task *domain.Task) {
		got <- task
	})
	exec.OnTerminal(func(context.Context, *domain.Task) {
		panic("listener bug")
	})

	task := submit(t, exec, func(context.Context, *domain.Task, ports.ProgressReporter) (domain.JSONB, error) {
		return nil, nil
	}, 0)

	select {
	case done := <-got:
		assert.Equal(t, task.ID, done.ID)
		assert.Equal(t, domain.TaskStatusCompleted, done.Status)
	case <-time.After(3 * time.Second):
		t.Fatal("listener was not called")
	}
}

func TestTaskExecutor_ShutdownRejectsSubmit(t *testing.T) {
	exec, _ := newTestExecutor(t, time.Second)
	require.NoError(t, exec.Shutdown(context.Background()))

	_, err := exec.Submit(context.Background(), ports.SubmitRequest{
		Type: domain.TaskTypeBackup,
		Work: func(context.Context, *domain.Task, ports.ProgressReporter) (domain.JSONB, error) { return nil, nil },
	})
	require.ErrorIs(t, err, ErrExecutorClosed)
}

func TestTaskExecutor_RetryInlineWork(t *testing.T) {
	exec, _ := newTestExecutor(t, time.Second)

	var mu sync.Mutex
	calls := 0
	original := submit(t, exec, func(context.Context, *domain.Task, ports.ProgressReporter) (domain.JSONB, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, errors.New("disk full")
		}
		return domain.JSONB{"attempt": calls}, nil
	}, 0)
	waitForStatus(t, exec, original.ID, domain.TaskStatusFailed)

	retried, err := exec.Retry(context.Background(), original.ID)
	require.NoError(t, err)
	done := waitForStatus(t, exec, retried.ID, domain.TaskStatusCompleted)
	assert.Equal(t, 2, done.Output["attempt"])

	// The original stays retryable and keeps its work.
	again, err := exec.Retry(context.Background(), original.ID)
	require.NoError(t, err)
	waitForStatus(t, exec, again.ID, domain.TaskStatusCompleted)

	t.Run("completed tasks do not keep their work", func(t *testing.T) {
		assert.Nil(t, exec.inlineWork(retried.ID))
		assert.NotNil(t, exec.inlineWork(original.ID))
	})
}

// seedTask stores a task as a previous process would have left it.
func seedTask(t *testing.T, repo *db.MemoryTaskRepository, id string, taskType domain.TaskType, status domain.TaskStatus) {
	t.Helper()
	now := time.Now()
	task := &domain.Task{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Type:      taskType,
		Status:    status,
		Timeout:   5 * time.Second,
	}
	if status == domain.TaskStatusRunning {
		task.StartedAt = &now
	}
	require.NoError(t, repo.Create(context.Background(), task))
}

func TestTaskExecutor_CancelWithoutLocalWork(t *testing.T) {
	exec, repo := newTestExecutor(t, time.Second)
	seedTask(t, repo, "left-running", domain.TaskTypeBackup, domain.TaskStatusRunning)

	got := make(chan *domain.Task, 1)
	exec.OnTerminal(func(_ context.Context, task *domain.Task) { got <- task })

	cancelled, err := exec.Cancel(context.Background(), "left-running")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, cancelled.Status)

	stored, err := exec.Get(context.Background(), "left-running")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	select {
	case done := <-got:
		assert.Equal(t, "left-running", done.ID)
	case <-time.After(time.Second):
		t.Fatal("listener was not called")
	}
}

func TestTaskExecutor_Recover(t *testing.T) {
	exec, repo := newTestExecutor(t, time.Second)
	seedTask(t, repo, "was-running", domain.TaskTypeBackup, domain.TaskStatusRunning)
	seedTask(t, repo, "was-queued", domain.TaskTypeBackup, domain.TaskStatusPending)
	seedTask(t, repo, "no-work", domain.TaskTypeMigration, domain.TaskStatusPending)
	seedTask(t, repo, "finished", domain.TaskTypeBackup, domain.TaskStatusCompleted)

	exec.RegisterWork(domain.TaskTypeBackup, func(context.Context, *domain.Task, ports.ProgressReporter) (domain.JSONB, error) {
		return domain.JSONB{"resumed": true}, nil
	})

	var mu sync.Mutex
	var settled []string
	exec.OnTerminal(func(_ context.Context, task *domain.Task) {
		mu.Lock()
		defer mu.Unlock()
		settled = append(settled, task.ID)
	})

	n, err := exec.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	interrupted, err := exec.Get(context.Background(), "was-running")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, interrupted.Status)
	assert.Equal(t, ErrTaskInterrupted.Error(), interrupted.ErrorMessage)
	assert.NotNil(t, interrupted.CompletedAt)

	resumed := waitForStatus(t, exec, "was-queued", domain.TaskStatusCompleted)
	assert.Equal(t, true, resumed.Output["resumed"])

	dropped, err := exec.Get(context.Background(), "no-work")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, dropped.Status)

	untouched, err := exec.Get(context.Background(), "finished")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, untouched.Status)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(settled) == 3
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.ElementsMatch(t, []string{"was-running", "was-queued", "no-work"}, settled)
	mu.Unlock()

	t.Run("second pass finds nothing", func(t *testing.T) {
		n, err := exec.Recover(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

// closingTaskRepository shuts the executor down while a task is being created.
type closingTaskRepository struct {
	*db.MemoryTaskRepository
	exec *TaskExecutor
}

func (r *closingTaskRepository) Create(ctx context.Context, task *domain.Task) error {
	if err := r.MemoryTaskRepository.Create(ctx, task); err != nil {
		return err
	}
	return r.exec.Shutdown(context.Background())
}

func TestTaskExecutor_ShutdownDuringSubmit(t *testing.T) {
	repo := &closingTaskRepository{MemoryTaskRepository: db.NewMemoryTaskRepository()}
	exec, err := NewTaskExecutor(TaskExecutorConfig{Repository: repo, Workers: 1})
	require.NoError(t, err)
	repo.exec = exec

	ran := false
	_, err = exec.Submit(context.Background(), ports.SubmitRequest{
		Type: domain.TaskTypeBackup,
		Work: func(context.Context, *domain.Task, ports.ProgressReporter) (domain.JSONB, error) {
			ran = true
			return nil, nil
		},
	})
	require.ErrorIs(t, err, ErrExecutorClosed)

	tasks, err := repo.List(context.Background(), domain.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskStatusCancelled, tasks[0].Status)
	assert.False(t, ran)
}

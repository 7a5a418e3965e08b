package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"github.com/panjf2000/ants/v2"
)

// TerminalListener is called once a task reaches a terminal status.
type TerminalListener func(ctx context.Context, task *domain.Task)

// retainedInlineWork bounds how many inline work functions are kept for
// Retry once their tasks have ended.
const retainedInlineWork = 512

type TaskExecutorConfig struct {
	Repository     ports.TaskRepository
	Logger         *logger.Logger
	Workers        int
	DefaultTimeout time.Duration
	GracePeriod    time.Duration
	Now            func() time.Time
}

// TaskExecutor runs task work under timeout and cancellation control. Every
// state change goes through the repository; transitions for a task id are
// serialized by a per-id lock.
type TaskExecutor struct {
	repo           ports.TaskRepository
	logger         *logger.Logger
	pool           *ants.Pool
	defaultTimeout time.Duration
	grace          time.Duration
	now            func() time.Time
	locks          *keyLocker

	mu          sync.Mutex
	runs        map[string]*taskRun
	works       map[domain.TaskType]ports.WorkFunc
	inline      map[string]ports.WorkFunc
	inlineOrder []string
	listeners   []TerminalListener
	closed      bool
	wg          sync.WaitGroup
}

type taskRun struct {
	work   ports.WorkFunc
	cancel context.CancelCauseFunc
}

type workResult struct {
	output domain.JSONB
	err    error
}

var _ ports.TaskExecutor = (*TaskExecutor)(nil)

func NewTaskExecutor(cfg TaskExecutorConfig) (*TaskExecutor, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("%w: repository is required", ErrTaskInvalidInput)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 8
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Minute
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	log := cfg.Logger.Named("executor")
	pool, err := ants.NewPool(cfg.Workers, ants.WithPanicHandler(func(p interface{}) {
		log.Errorw("executor_pool_panic", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &TaskExecutor{
		repo:           cfg.Repository,
		logger:         log,
		pool:           pool,
		defaultTimeout: cfg.DefaultTimeout,
		grace:          cfg.GracePeriod,
		now:            cfg.Now,
		locks:          newKeyLocker(),
		runs:           make(map[string]*taskRun),
		works:          make(map[domain.TaskType]ports.WorkFunc),
		inline:         make(map[string]ports.WorkFunc),
	}, nil
}

// RegisterWork sets the work used for a task type when Submit carries none
// and when a task of that type is retried.
func (e *TaskExecutor) RegisterWork(taskType domain.TaskType, work ports.WorkFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.works[taskType] = work
}

func (e *TaskExecutor) OnTerminal(listener TerminalListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, listener)
}

// ==================== Submission ====================

func (e *TaskExecutor) Submit(ctx context.Context, req ports.SubmitRequest) (*domain.Task, error) {
	if req.Type == "" {
		return nil, fmt.Errorf("%w: task type is required", ErrTaskInvalidInput)
	}
	if req.Timeout < 0 {
		return nil, fmt.Errorf("%w: timeout must not be negative", ErrTaskInvalidInput)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrExecutorClosed
	}
	work := req.Work
	if work == nil {
		work = e.works[req.Type]
	}
	e.mu.Unlock()
	if work == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNoWork, req.Type)
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}

	now := e.now()
	task := &domain.Task{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
		OwnerID:   req.OwnerID,
		Type:      req.Type,
		Status:    domain.TaskStatusPending,
		Related:   req.Related,
		InputData: req.Input.Clone(),
		Metadata:  req.Metadata.Clone(),
		Timeout:   timeout,
	}

	if err := e.repo.Create(ctx, task); err != nil {
		e.logger.Errorw("task_create_failed", "type", task.Type, "error", err)
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.logger.Warnw("task_submit_after_shutdown", "task_id", task.ID, "type", task.Type)
		e.abandonPending(task.ID)
		return nil, ErrExecutorClosed
	}
	e.runs[task.ID] = &taskRun{work: work}
	if req.Work != nil {
		e.retainInline(task.ID, req.Work)
	}
	e.wg.Add(1)
	e.mu.Unlock()

	e.logger.Infow("task_submitted",
		"task_id", task.ID,
		"type", task.Type,
		"owner_id", task.OwnerID,
		"related", task.Related.String(),
		"timeout", timeout,
	)

	e.schedule(task.ID)
	return task.Clone(), nil
}

// schedule hands a registered run to the pool. The caller must have added
// the run to e.runs and e.wg while holding e.mu with the executor open.
func (e *TaskExecutor) schedule(id string) {
	go func() {
		err := e.pool.Submit(func() {
			defer e.wg.Done()
			e.execute(id)
		})
		if err != nil {
			defer e.wg.Done()
			e.logger.Errorw("task_schedule_failed", "task_id", id, "error", err)
			e.abandonPending(id)
		}
	}()
}

// retainInline keeps inline work so a retry can run it again. Caller holds e.mu.
func (e *TaskExecutor) retainInline(id string, work ports.WorkFunc) {
	e.inline[id] = work
	e.inlineOrder = append(e.inlineOrder, id)
	for len(e.inlineOrder) > retainedInlineWork {
		delete(e.inline, e.inlineOrder[0])
		e.inlineOrder = e.inlineOrder[1:]
	}
}

func (e *TaskExecutor) inlineWork(id string) ports.WorkFunc {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inline[id]
}

// ==================== Execution ====================

func (e *TaskExecutor) execute(id string) {
	ctx := context.Background()

	e.mu.Lock()
	run := e.runs[id]
	closed := e.closed
	e.mu.Unlock()
	if run == nil {
		// cancelled while pending
		return
	}
	if closed {
		e.abandonPending(id)
		return
	}

	unlock := e.locks.lockKeys(id)
	task, err := e.repo.GetByID(ctx, id)
	if err != nil {
		unlock()
		e.logger.Errorw("task_load_failed", "task_id", id, "error", err)
		e.forgetRun(id)
		return
	}
	if task.Status != domain.TaskStatusPending {
		unlock()
		e.forgetRun(id)
		return
	}

	base, cancel := context.WithCancelCause(context.Background())
	workCtx, stop := context.WithTimeoutCause(base, task.Timeout, &TaskTimeoutError{Timeout: task.Timeout})
	defer stop()
	defer cancel(nil)

	startedAt := e.now()
	task.Status = domain.TaskStatusRunning
	task.StartedAt = &startedAt
	task.UpdatedAt = startedAt
	if err := e.repo.Update(ctx, task); err != nil {
		unlock()
		e.logger.Errorw("task_start_failed", "task_id", id, "error", err)
		e.forgetRun(id)
		return
	}
	e.mu.Lock()
	run.cancel = cancel
	e.mu.Unlock()
	unlock()

	e.logger.Infow("task_started", "task_id", id, "type", task.Type)

	results := make(chan workResult, 1)
	reporter := &progressReporter{executor: e, taskID: id}
	workTask := task.Clone()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- workResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, err := run.work(workCtx, workTask, reporter)
		results <- workResult{output: out, err: err}
	}()

	select {
	case res := <-results:
		e.finish(id, res, context.Cause(workCtx), false)
	case <-workCtx.Done():
		cause := context.Cause(workCtx)
		e.logger.Warnw("task_signalled", "task_id", id, "cause", cause.Error())
		grace := time.NewTimer(e.grace)
		defer grace.Stop()
		select {
		case res := <-results:
			e.finish(id, res, cause, false)
		case <-grace.C:
			e.logger.Errorw("task_grace_expired", "task_id", id, "grace", e.grace, "cause", cause.Error())
			e.finish(id, workResult{err: cause}, cause, true)
		}
	}
}

// finish records the terminal state. cause is the reason the work context
// was cancelled, nil if it was not.
func (e *TaskExecutor) finish(id string, res workResult, cause error, forced bool) {
	status := domain.TaskStatusCompleted
	var failure error

	// A timeout wins even when the work returns cleanly after the deadline.
	switch {
	case errors.Is(cause, ErrTaskCancelled) || errors.Is(cause, ErrExecutorClosed):
		status = domain.TaskStatusCancelled
	case errors.Is(cause, ErrTaskTimeout):
		status = domain.TaskStatusFailed
		failure = cause
	case res.err == nil && !forced:
		status = domain.TaskStatusCompleted
	default:
		status = domain.TaskStatusFailed
		failure = &TaskWorkError{Err: res.err}
	}

	if status == domain.TaskStatusCompleted {
		// completed tasks cannot be retried
		e.mu.Lock()
		delete(e.inline, id)
		e.mu.Unlock()
	}

	task, err := e.transition(id, status, func(t *domain.Task) {
		switch status {
		case domain.TaskStatusCompleted:
			t.Output = res.output
			t.Progress = 100
		case domain.TaskStatusFailed:
			t.ErrorMessage = failure.Error()
		}
	})
	e.forgetRun(id)
	if err != nil {
		e.logger.Errorw("task_finish_failed", "task_id", id, "status", status, "error", err)
		return
	}

	if status == domain.TaskStatusFailed {
		e.logger.Errorw("task_failed", "task_id", id, "type", task.Type, "error", task.ErrorMessage, "forced", forced)
	} else {
		e.logger.Infow("task_finished", "task_id", id, "type", task.Type, "status", status, "forced", forced)
	}
	e.notifyTerminal(task)
}

// transition applies a status change under the task lock.
func (e *TaskExecutor) transition(id string, to domain.TaskStatus, mutate func(*domain.Task)) (*domain.Task, error) {
	unlock := e.locks.lockKeys(id)
	defer unlock()

	ctx := context.Background()
	task, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(task.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrTaskInvalidTransition, task.Status, to)
	}

	now := e.now()
	task.Status = to
	task.UpdatedAt = now
	if mutate != nil {
		mutate(task)
	}
	if to.IsTerminal() {
		task.CompletedAt = &now
	}
	if err := e.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

func (e *TaskExecutor) abandonPending(id string) {
	task, err := e.transition(id, domain.TaskStatusCancelled, nil)
	e.forgetRun(id)
	if err != nil {
		e.logger.Errorw("task_abandon_failed", "task_id", id, "error", err)
		return
	}
	e.notifyTerminal(task)
}

func (e *TaskExecutor) forgetRun(id string) {
	e.mu.Lock()
	delete(e.runs, id)
	e.mu.Unlock()
}

func (e *TaskExecutor) notifyTerminal(task *domain.Task) {
	e.mu.Lock()
	listeners := append([]TerminalListener(nil), e.listeners...)
	e.mu.Unlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Errorw("task_listener_panic", "task_id", task.ID, "panic", r)
				}
			}()
			l(context.Background(), task.Clone())
		}()
	}
}

// ==================== Progress ====================

type progressReporter struct {
	executor *TaskExecutor
	taskID   string
}

// Report stores percent as the task progress. Values are clamped to 0..100
// and never move progress backwards.
func (p *progressReporter) Report(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	e := p.executor
	unlock := e.locks.lockKeys(p.taskID)
	defer unlock()

	ctx := context.Background()
	task, err := e.repo.GetByID(ctx, p.taskID)
	if err != nil {
		e.logger.Warnw("task_progress_load_failed", "task_id", p.taskID, "error", err)
		return
	}
	if task.Status != domain.TaskStatusRunning || percent <= task.Progress {
		return
	}
	task.Progress = percent
	task.UpdatedAt = e.now()
	if err := e.repo.Update(ctx, task); err != nil {
		e.logger.Warnw("task_progress_update_failed", "task_id", p.taskID, "error", err)
	}
}

// ==================== Query & Control ====================

func (e *TaskExecutor) Get(ctx context.Context, id string) (*domain.Task, error) {
	task, err := e.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

func (e *TaskExecutor) List(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	return e.repo.List(ctx, filter)
}

// Cancel cancels a pending task outright. A running task is signalled and
// becomes cancelled once its work exits or the grace period runs out. A task
// recorded as running with no work in this process is cancelled outright.
func (e *TaskExecutor) Cancel(ctx context.Context, id string) (*domain.Task, error) {
	unlock := e.locks.lockKeys(id)

	task, err := e.repo.GetByID(ctx, id)
	if err != nil {
		unlock()
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if !task.CanCancel() {
		unlock()
		return nil, fmt.Errorf("%w: status is %s", ErrTaskNotCancellable, task.Status)
	}

	e.mu.Lock()
	run := e.runs[id]
	e.mu.Unlock()

	if task.Status == domain.TaskStatusPending || run == nil {
		was := task.Status
		now := e.now()
		task.Status = domain.TaskStatusCancelled
		task.CompletedAt = &now
		task.UpdatedAt = now
		if err := e.repo.Update(ctx, task); err != nil {
			unlock()
			return nil, err
		}
		unlock()
		e.forgetRun(id)
		e.logger.Infow("task_cancelled", "task_id", id, "was", was)
		e.notifyTerminal(task)
		return task.Clone(), nil
	}
	unlock()

	// run.cancel is set before the running status is visible under the lock.
	run.cancel(ErrTaskCancelled)
	e.logger.Infow("task_cancel_requested", "task_id", id)
	return task.Clone(), nil
}

// Retry submits a fresh task repeating a failed or cancelled one. The
// original record is left untouched.
func (e *TaskExecutor) Retry(ctx context.Context, id string) (*domain.Task, error) {
	original, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !original.CanRetry() {
		return nil, fmt.Errorf("%w: status is %s", ErrTaskNotRetryable, original.Status)
	}

	meta := original.Metadata.Clone()
	if meta == nil {
		meta = domain.JSONB{}
	}
	meta[domain.MetaRetryOf] = original.ID
	meta[domain.MetaRetryCount] = original.RetryCount() + 1

	task, err := e.Submit(ctx, ports.SubmitRequest{
		Type:     original.Type,
		OwnerID:  original.OwnerID,
		Related:  original.Related,
		Input:    original.InputData,
		Metadata: meta,
		Work:     e.inlineWork(original.ID),
		Timeout:  original.Timeout,
	})
	if err != nil {
		return nil, err
	}
	e.logger.Infow("task_retried", "task_id", task.ID, "retry_of", original.ID)
	return task, nil
}

// Recover settles tasks a previous process left pending or running. Running
// tasks fail as interrupted. Pending tasks are scheduled again when work is
// registered for their type and cancelled otherwise. It returns how many
// tasks were settled or rescheduled.
func (e *TaskExecutor) Recover(ctx context.Context) (int, error) {
	filter := domain.TaskFilter{
		Statuses: []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusRunning},
		Limit:    100,
	}
	seen := make(map[string]bool)
	recovered := 0
	for {
		batch, err := e.repo.List(ctx, filter)
		if err != nil {
			return recovered, fmt.Errorf("list unfinished tasks: %w", err)
		}
		fresh := 0
		for i := range batch {
			task := &batch[i]
			if seen[task.ID] {
				continue
			}
			seen[task.ID] = true
			fresh++
			if e.recoverTask(task) {
				recovered++
			}
		}
		if fresh == 0 {
			break
		}
	}
	if recovered > 0 {
		e.logger.Infow("task_recovery_done", "tasks", recovered)
	}
	return recovered, nil
}

func (e *TaskExecutor) recoverTask(task *domain.Task) bool {
	e.mu.Lock()
	_, owned := e.runs[task.ID]
	closed := e.closed
	work := e.works[task.Type]
	e.mu.Unlock()
	if owned || closed {
		return false
	}

	switch task.Status {
	case domain.TaskStatusRunning:
		settled, err := e.transition(task.ID, domain.TaskStatusFailed, func(t *domain.Task) {
			t.ErrorMessage = ErrTaskInterrupted.Error()
		})
		if err != nil {
			e.logger.Errorw("task_recover_failed", "task_id", task.ID, "error", err)
			return false
		}
		e.logger.Warnw("task_interrupted", "task_id", task.ID, "type", task.Type)
		e.notifyTerminal(settled)
		return true

	case domain.TaskStatusPending:
		if work == nil {
			settled, err := e.transition(task.ID, domain.TaskStatusCancelled, nil)
			if err != nil {
				e.logger.Errorw("task_recover_failed", "task_id", task.ID, "error", err)
				return false
			}
			e.logger.Warnw("task_recover_no_work", "task_id", task.ID, "type", task.Type)
			e.notifyTerminal(settled)
			return true
		}
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return false
		}
		e.runs[task.ID] = &taskRun{work: work}
		e.wg.Add(1)
		e.mu.Unlock()
		e.logger.Infow("task_rescheduled", "task_id", task.ID, "type", task.Type)
		e.schedule(task.ID)
		return true
	}
	return false
}

// Shutdown signals all running work and waits for it to settle or for ctx to
// expire.
func (e *TaskExecutor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	for _, run := range e.runs {
		if run.cancel != nil {
			run.cancel(ErrExecutorClosed)
		}
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.pool.Release()
		return nil
	case <-ctx.Done():
		e.pool.Release()
		return ctx.Err()
	}
}

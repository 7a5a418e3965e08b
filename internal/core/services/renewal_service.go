package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"github.com/robfig/cron/v3"
)

const (
	outputIssuedAt  = "issued_at"
	outputExpiresAt = "expires_at"
)

var renewableStatuses = []domain.CertificateStatus{
	domain.CertificateStatusActive,
	domain.CertificateStatusPending,
	domain.CertificateStatusFailed,
}

type RenewalServiceConfig struct {
	Certificates ports.CertificateRepository
	Executor     ports.TaskExecutor
	Issuer       ports.CertificateIssuer
	Logger       *logger.Logger
	// Schedule is a standard five field cron expression. Empty disables the
	// background trigger.
	Schedule     string
	LeadTime     time.Duration
	// MaxAttempts is how many consecutive failures are tolerated. The
	// certificate is marked failed once attempts exceed it.
	MaxAttempts  int
	TaskTimeout  time.Duration
	OwnerID      string
	Now          func() time.Time
}

// RenewalService drives the certificate lifecycle through ssl-renew tasks.
// Certificate rows are only changed under the certificate's lock, and the
// outcome of a task is applied only if it is still the certificate's latest
// renewal task.
type RenewalService struct {
	certs       ports.CertificateRepository
	executor    ports.TaskExecutor
	issuer      ports.CertificateIssuer
	logger      *logger.Logger
	schedule    string
	lead        time.Duration
	maxAttempts int
	taskTimeout time.Duration
	ownerID     string
	now         func() time.Time
	locks       *keyLocker
	cron        *cron.Cron
}

func NewRenewalService(cfg RenewalServiceConfig) (*RenewalService, error) {
	switch {
	case cfg.Certificates == nil:
		return nil, errors.New("renewal: certificate repository is required")
	case cfg.Executor == nil:
		return nil, errors.New("renewal: task executor is required")
	case cfg.Issuer == nil:
		return nil, errors.New("renewal: certificate issuer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.LeadTime <= 0 {
		cfg.LeadTime = 30 * 24 * time.Hour
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	if cfg.OwnerID == "" {
		cfg.OwnerID = "system"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &RenewalService{
		certs:       cfg.Certificates,
		executor:    cfg.Executor,
		issuer:      cfg.Issuer,
		logger:      cfg.Logger.Named("renewal"),
		schedule:    cfg.Schedule,
		lead:        cfg.LeadTime,
		maxAttempts: cfg.MaxAttempts,
		taskTimeout: cfg.TaskTimeout,
		ownerID:     cfg.OwnerID,
		now:         cfg.Now,
		locks:       newKeyLocker(),
	}
	cfg.Executor.RegisterWork(domain.TaskTypeSSLRenew, s.renewWork)
	return s, nil
}

func certLockKey(id uint) string {
	return "cert:" + strconv.FormatUint(uint64(id), 10)
}

// ==================== Scheduling ====================

// Start runs MarkExpired and ScheduleRenewals on the configured schedule.
func (s *RenewalService) Start() error {
	if s.schedule == "" {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		ctx := context.Background()
		if _, err := s.MarkExpired(ctx); err != nil {
			s.logger.Errorw("renewal_mark_expired_failed", "error", err)
		}
		if _, err := s.ScheduleRenewals(ctx); err != nil {
			s.logger.Errorw("renewal_schedule_failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid renewal schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Infow("renewal_scheduler_started", "schedule", s.schedule, "lead_time", s.lead)
	return nil
}

// Stop halts the trigger and waits for a running sweep up to ctx.
func (s *RenewalService) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.logger.Infow("renewal_scheduler_stopped")
}

// ScheduleRenewals submits an ssl-renew task for every auto-renew
// certificate inside the lead time. Certificates already renewing are
// skipped. It returns how many tasks were submitted.
func (s *RenewalService) ScheduleRenewals(ctx context.Context) (int, error) {
	cutoff := s.now().Add(s.lead)
	certs, err := s.certs.GetRenewable(ctx, cutoff, renewableStatuses)
	if err != nil {
		return 0, err
	}

	submitted := 0
	var errs []error
	for i := range certs {
		_, err := s.submitRenewal(ctx, certs[i].ID)
		switch {
		case err == nil:
			submitted++
		case errors.Is(err, ErrCertificateRenewalInProgress):
		default:
			s.logger.Errorw("renewal_submit_failed", "certificate_id", certs[i].ID, "domain", certs[i].DomainName, "error", err)
			errs = append(errs, err)
		}
	}
	s.logger.Infow("renewal_sweep_finished", "candidates", len(certs), "submitted", submitted)
	return submitted, errors.Join(errs...)
}

// RenewNow starts a renewal for one certificate regardless of its expiry.
func (s *RenewalService) RenewNow(ctx context.Context, id uint) (*domain.Task, error) {
	return s.submitRenewal(ctx, id)
}

func (s *RenewalService) submitRenewal(ctx context.Context, id uint) (*domain.Task, error) {
	unlock := s.locks.lockKeys(certLockKey(id))
	defer unlock()

	cert, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cert.Status == domain.CertificateStatusRenewing {
		return nil, ErrCertificateRenewalInProgress
	}
	if !domain.CanTransitionCertificate(cert.Status, domain.CertificateStatusRenewing) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrCertificateInvalidTransition, cert.Status, domain.CertificateStatusRenewing)
	}

	cert.Status = domain.CertificateStatusRenewing
	if err := s.certs.Update(ctx, cert); err != nil {
		return nil, err
	}

	task, err := s.executor.Submit(ctx, ports.SubmitRequest{
		Type:    domain.TaskTypeSSLRenew,
		OwnerID: s.ownerID,
		Related: cert.Ref(),
		Input: domain.JSONB{
			"domain":           cert.DomainName,
			"renewal_attempts": cert.RenewalAttempts,
		},
		Timeout: s.taskTimeout,
	})
	if err != nil {
		cert.Status = cert.RestingStatus(s.now())
		if uerr := s.certs.Update(ctx, cert); uerr != nil {
			s.logger.Errorw("renewal_revert_failed", "certificate_id", id, "error", uerr)
		}
		return nil, err
	}

	cert.LastTaskID = task.ID
	if err := s.certs.Update(ctx, cert); err != nil {
		return nil, err
	}
	s.logger.Infow("renewal_submitted", "certificate_id", id, "domain", cert.DomainName, "task_id", task.ID)
	return task, nil
}

// ==================== Work ====================

func (s *RenewalService) renewWork(ctx context.Context, task *domain.Task, progress ports.ProgressReporter) (domain.JSONB, error) {
	id, err := relatedCertificateID(task)
	if err != nil {
		return nil, err
	}

	cert, err := s.beginAttempt(ctx, id, task.ID)
	if err != nil {
		return nil, err
	}
	progress.Report(10)

	issued, err := s.issuer.Renew(ctx, cert)
	if err != nil {
		return nil, err
	}
	progress.Report(90)

	return domain.JSONB{
		"domain":        cert.DomainName,
		outputIssuedAt:  issued.IssuedAt.UTC().Format(time.RFC3339Nano),
		outputExpiresAt: issued.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// beginAttempt makes task the certificate's current renewal. Retried tasks
// arrive here without going through submitRenewal.
func (s *RenewalService) beginAttempt(ctx context.Context, id uint, taskID string) (*domain.SslCertificate, error) {
	unlock := s.locks.lockKeys(certLockKey(id))
	defer unlock()

	cert, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cert.Status != domain.CertificateStatusRenewing {
		if !domain.CanTransitionCertificate(cert.Status, domain.CertificateStatusRenewing) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrCertificateInvalidTransition, cert.Status, domain.CertificateStatusRenewing)
		}
		cert.Status = domain.CertificateStatusRenewing
	} else if cert.LastTaskID != "" && cert.LastTaskID != taskID {
		return nil, ErrCertificateRenewalInProgress
	}
	cert.LastTaskID = taskID
	if err := s.certs.Update(ctx, cert); err != nil {
		return nil, err
	}
	return cert, nil
}

// HandleTaskTerminal applies the result of a finished ssl-renew task. It is
// registered as an executor terminal listener.
func (s *RenewalService) HandleTaskTerminal(ctx context.Context, task *domain.Task) {
	if task.Type != domain.TaskTypeSSLRenew || task.Related.Kind != domain.RelatedCertificate {
		return
	}
	id, err := relatedCertificateID(task)
	if err != nil {
		s.logger.Warnw("renewal_task_bad_reference", "task_id", task.ID, "related", task.Related.String())
		return
	}

	unlock := s.locks.lockKeys(certLockKey(id))
	defer unlock()

	cert, err := s.load(ctx, id)
	if err != nil {
		s.logger.Errorw("renewal_result_load_failed", "certificate_id", id, "task_id", task.ID, "error", err)
		return
	}
	if cert.LastTaskID != task.ID || cert.Status != domain.CertificateStatusRenewing {
		s.logger.Warnw("renewal_result_stale", "certificate_id", id, "task_id", task.ID, "current_task_id", cert.LastTaskID, "status", cert.Status)
		return
	}

	now := s.now()
	switch task.Status {
	case domain.TaskStatusCompleted:
		issuedAt, expiresAt, err := parseIssued(task.Output)
		if err != nil {
			s.applyFailure(cert, now, "invalid renewal output: "+err.Error())
			break
		}
		cert.IssuedAt = &issuedAt
		cert.ExpiresAt = &expiresAt
		cert.RenewalAttempts = 0
		cert.LastError = ""
		cert.Status = domain.CertificateStatusActive
		s.logger.Infow("renewal_succeeded", "certificate_id", id, "domain", cert.DomainName, "expires_at", expiresAt)
	case domain.TaskStatusFailed:
		s.applyFailure(cert, now, task.ErrorMessage)
	case domain.TaskStatusCancelled:
		// operator cancellations do not count as attempts
		cert.LastError = "renewal cancelled"
		cert.Status = cert.RestingStatus(now)
		s.logger.Infow("renewal_cancelled", "certificate_id", id, "status", cert.Status)
	default:
		return
	}

	if err := s.certs.Update(ctx, cert); err != nil {
		s.logger.Errorw("renewal_result_save_failed", "certificate_id", id, "task_id", task.ID, "error", err)
	}
}

func (s *RenewalService) applyFailure(cert *domain.SslCertificate, now time.Time, reason string) {
	if reason == "" {
		reason = "renewal failed"
	}
	cert.RenewalAttempts++
	cert.LastError = reason
	if cert.RenewalAttempts > s.maxAttempts {
		cert.Status = domain.CertificateStatusFailed
		err := &RenewalAttemptsExceededError{CertificateID: cert.ID, Attempts: cert.RenewalAttempts, MaxAttempts: s.maxAttempts}
		s.logger.Errorw("renewal_attempts_exceeded", "certificate_id", cert.ID, "domain", cert.DomainName, "error", err)
		return
	}
	cert.Status = cert.RestingStatus(now)
	s.logger.Warnw("renewal_failed", "certificate_id", cert.ID, "domain", cert.DomainName, "attempts", cert.RenewalAttempts, "status", cert.Status, "error", reason)
}

// ==================== Operator actions ====================

func (s *RenewalService) List(ctx context.Context) ([]domain.SslCertificate, error) {
	return s.certs.GetAll(ctx)
}

func (s *RenewalService) Get(ctx context.Context, id uint) (*domain.SslCertificate, error) {
	return s.load(ctx, id)
}

// Revoke moves an active or expired certificate to revoked.
func (s *RenewalService) Revoke(ctx context.Context, id uint) (*domain.SslCertificate, error) {
	unlock := s.locks.lockKeys(certLockKey(id))
	defer unlock()

	cert, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransitionCertificate(cert.Status, domain.CertificateStatusRevoked) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrCertificateInvalidTransition, cert.Status, domain.CertificateStatusRevoked)
	}
	cert.Status = domain.CertificateStatusRevoked
	if err := s.certs.Update(ctx, cert); err != nil {
		return nil, err
	}
	s.logger.Infow("certificate_revoked", "certificate_id", id, "domain", cert.DomainName)
	return cert, nil
}

// MarkExpired moves certificates past their expiry to expired, leaving
// renewing and revoked ones alone.
func (s *RenewalService) MarkExpired(ctx context.Context) (int, error) {
	certs, err := s.certs.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	marked := 0
	for i := range certs {
		if !certs[i].IsExpired(now) || certs[i].Status == domain.CertificateStatusExpired {
			continue
		}
		if !domain.CanTransitionCertificate(certs[i].Status, domain.CertificateStatusExpired) || certs[i].Status == domain.CertificateStatusRenewing {
			continue
		}
		ok, err := s.expire(ctx, certs[i].ID, now)
		if err != nil {
			return marked, err
		}
		if ok {
			marked++
		}
	}
	if marked > 0 {
		s.logger.Warnw("certificates_marked_expired", "count", marked)
	}
	return marked, nil
}

func (s *RenewalService) expire(ctx context.Context, id uint, now time.Time) (bool, error) {
	unlock := s.locks.lockKeys(certLockKey(id))
	defer unlock()

	cert, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	// re-check under the lock
	if !cert.IsExpired(now) || cert.Status == domain.CertificateStatusRenewing ||
		!domain.CanTransitionCertificate(cert.Status, domain.CertificateStatusExpired) {
		return false, nil
	}
	cert.Status = domain.CertificateStatusExpired
	if err := s.certs.Update(ctx, cert); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RenewalService) load(ctx context.Context, id uint) (*domain.SslCertificate, error) {
	cert, err := s.certs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrCertificateNotFound
		}
		return nil, err
	}
	return cert, nil
}

func relatedCertificateID(task *domain.Task) (uint, error) {
	if task.Related.Kind != domain.RelatedCertificate {
		return 0, fmt.Errorf("%w: task is not related to a certificate", ErrTaskInvalidInput)
	}
	id, err := strconv.ParseUint(task.Related.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad certificate id %q", ErrTaskInvalidInput, task.Related.ID)
	}
	return uint(id), nil
}

func parseIssued(out domain.JSONB) (time.Time, time.Time, error) {
	parse := func(key string) (time.Time, error) {
		raw, ok := out[key].(string)
		if !ok {
			return time.Time{}, fmt.Errorf("missing %s", key)
		}
		return time.Parse(time.RFC3339Nano, raw)
	}
	issuedAt, err := parse(outputIssuedAt)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	expiresAt, err := parse(outputExpiresAt)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return issuedAt, expiresAt, nil
}

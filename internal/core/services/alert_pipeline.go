package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"golang.org/x/sync/errgroup"
)

type AlertPipelineConfig struct {
	Snapshots   ports.SnapshotProvider
	Evaluators  []ports.Evaluator
	Ledger      ports.CooldownLedger
	Dispatcher  ports.AlertDispatcher
	// Records is optional; without it alerts are only logged.
	Records     ports.AlertRecordRepository
	Logger      *logger.Logger
	Interval    time.Duration
	Cooldown    time.Duration
	PruneFactor int
	Now         func() time.Time
}

// CycleReport summarises one evaluation cycle.
type CycleReport struct {
	StartedAt       time.Time         `json:"started_at"`
	Duration        time.Duration     `json:"duration"`
	Alerts          int               `json:"alerts"`
	Dispatched      int               `json:"dispatched"`
	Suppressed      int               `json:"suppressed"`
	Undelivered     int               `json:"undelivered"`
	Pruned          int               `json:"pruned"`
	EvaluatorErrors map[string]string `json:"evaluator_errors,omitempty"`
}

// AlertPipeline runs the evaluators on an interval and forwards alerts that
// are outside their cooldown window.
type AlertPipeline struct {
	snapshots   ports.SnapshotProvider
	evaluators  []ports.Evaluator
	ledger      ports.CooldownLedger
	dispatcher  ports.AlertDispatcher
	records     ports.AlertRecordRepository
	logger      *logger.Logger
	interval    time.Duration
	cooldown    time.Duration
	pruneFactor int
	now         func() time.Time

	cycleMu sync.Mutex
	lastMu  sync.RWMutex
	last    *CycleReport
}

func NewAlertPipeline(cfg AlertPipelineConfig) (*AlertPipeline, error) {
	switch {
	case cfg.Snapshots == nil:
		return nil, errors.New("alert pipeline: snapshot provider is required")
	case cfg.Ledger == nil:
		return nil, errors.New("alert pipeline: cooldown ledger is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("alert pipeline: dispatcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Minute
	}
	if cfg.PruneFactor < 1 {
		cfg.PruneFactor = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &AlertPipeline{
		snapshots:   cfg.Snapshots,
		evaluators:  append([]ports.Evaluator(nil), cfg.Evaluators...),
		ledger:      cfg.Ledger,
		dispatcher:  cfg.Dispatcher,
		records:     cfg.Records,
		logger:      cfg.Logger.Named("alerts"),
		interval:    cfg.Interval,
		cooldown:    cfg.Cooldown,
		pruneFactor: cfg.PruneFactor,
		now:         cfg.Now,
	}, nil
}

// Run evaluates once immediately and then on every tick until ctx is done.
func (p *AlertPipeline) Run(ctx context.Context) error {
	p.logger.Infow("alert_pipeline_started", "interval", p.interval, "evaluators", len(p.evaluators))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.runSafely(ctx)
		select {
		case <-ctx.Done():
			p.logger.Infow("alert_pipeline_stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *AlertPipeline) runSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("alert_cycle_panic", "panic", r)
		}
	}()
	if _, err := p.RunCycle(ctx); err != nil && ctx.Err() == nil {
		p.logger.Errorw("alert_cycle_failed", "error", err)
	}
}

// LastReport returns the most recent finished cycle, or nil.
func (p *AlertPipeline) LastReport() *CycleReport {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	if p.last == nil {
		return nil
	}
	r := *p.last
	return &r
}

// RunCycle performs one snapshot, evaluate, deduplicate and dispatch pass.
// Evaluator failures are reported but never abort the cycle; snapshot and
// ledger failures abort this cycle only.
func (p *AlertPipeline) RunCycle(ctx context.Context) (*CycleReport, error) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	started := p.now()
	report := &CycleReport{StartedAt: started}

	snapshot, err := p.snapshots.Snapshot(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}
	if snapshot.TakenAt.IsZero() {
		snapshot.TakenAt = started
	}

	alerts, evalErrs := p.evaluate(ctx, snapshot)
	if len(evalErrs) > 0 {
		report.EvaluatorErrors = make(map[string]string, len(evalErrs))
		for _, e := range evalErrs {
			report.EvaluatorErrors[e.Evaluator] = e.Err.Error()
		}
	}
	domain.SortAlerts(alerts)
	report.Alerts = len(alerts)

	for _, alert := range alerts {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		now := p.now()
		acquired, err := p.ledger.TryAcquire(ctx, alert.DedupKey, now, p.cooldown)
		if err != nil {
			return report, fmt.Errorf("%w: %v", ErrLedgerFailed, err)
		}
		if !acquired {
			report.Suppressed++
			p.logger.Debugw("alert_suppressed", "dedup_key", alert.DedupKey, "severity", alert.Severity)
			p.record(ctx, alert, domain.DeliveryStatusSuppressed, nil)
			continue
		}

		outcomes := p.dispatcher.Dispatch(ctx, alert)
		status := deliveryStatus(outcomes)
		if status == domain.DeliveryStatusSent {
			report.Dispatched++
		} else {
			report.Undelivered++
		}
		p.logger.Infow("alert_forwarded",
			"dedup_key", alert.DedupKey,
			"category", alert.Category,
			"severity", alert.Severity,
			"status", status,
			"channels", len(outcomes),
		)
		p.record(ctx, alert, status, outcomesToJSON(outcomes))
	}

	cutoff := p.now().Add(-time.Duration(p.pruneFactor) * p.cooldown)
	pruned, err := p.ledger.Prune(ctx, cutoff)
	if err != nil {
		p.logger.Warnw("alert_ledger_prune_failed", "error", err)
	}
	report.Pruned = pruned
	report.Duration = p.now().Sub(started)

	p.lastMu.Lock()
	p.last = report
	p.lastMu.Unlock()

	p.logger.Infow("alert_cycle_finished",
		"alerts", report.Alerts,
		"dispatched", report.Dispatched,
		"suppressed", report.Suppressed,
		"undelivered", report.Undelivered,
		"evaluator_errors", len(report.EvaluatorErrors),
		"pruned", report.Pruned,
		"duration", report.Duration,
	)
	return report, nil
}

// evaluate runs all evaluators concurrently. A failing or panicking
// evaluator contributes no alerts.
func (p *AlertPipeline) evaluate(ctx context.Context, snapshot *domain.SystemSnapshot) ([]domain.Alert, []*EvaluatorError) {
	results := make([][]domain.Alert, len(p.evaluators))
	failures := make([]*EvaluatorError, len(p.evaluators))

	var g errgroup.Group
	for i, ev := range p.evaluators {
		i, ev := i, ev
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
				if err != nil {
					failures[i] = &EvaluatorError{Evaluator: ev.Name(), Err: err}
					p.logger.Errorw("alert_evaluator_failed", "evaluator", ev.Name(), "error", err)
				}
			}()

			alerts, err := ev.Evaluate(ctx, snapshot)
			if err != nil {
				return err
			}
			for j := range alerts {
				if alerts[j].Source == "" {
					alerts[j].Source = ev.Name()
				}
				if alerts[j].DetectedAt.IsZero() {
					alerts[j].DetectedAt = snapshot.TakenAt
				}
			}
			results[i] = alerts
			return nil
		})
	}
	// failures are collected per evaluator, the group error is not used
	_ = g.Wait()

	var all []domain.Alert
	var errs []*EvaluatorError
	for i := range p.evaluators {
		if failures[i] != nil {
			errs = append(errs, failures[i])
			continue
		}
		all = append(all, results[i]...)
	}
	return all, errs
}

func (p *AlertPipeline) record(ctx context.Context, alert domain.Alert, status domain.DeliveryStatus, deliveries domain.JSONB) {
	if p.records == nil {
		return
	}
	if err := p.records.Create(ctx, domain.NewAlertRecord(alert, status, deliveries)); err != nil {
		p.logger.Warnw("alert_record_failed", "dedup_key", alert.DedupKey, "error", err)
	}
}

// deliveryStatus is sent when at least one channel accepted the alert or no
// channel is configured.
func deliveryStatus(outcomes []ports.ChannelOutcome) domain.DeliveryStatus {
	if len(outcomes) == 0 {
		return domain.DeliveryStatusSent
	}
	for _, o := range outcomes {
		if o.Delivered() {
			return domain.DeliveryStatusSent
		}
	}
	return domain.DeliveryStatusFailed
}

func outcomesToJSON(outcomes []ports.ChannelOutcome) domain.JSONB {
	if len(outcomes) == 0 {
		return nil
	}
	out := make(domain.JSONB, len(outcomes))
	for _, o := range outcomes {
		entry := map[string]interface{}{
			"delivered":   o.Delivered(),
			"duration_ms": o.Duration.Milliseconds(),
		}
		if o.Error != "" {
			entry["error"] = o.Error
		}
		out[o.Channel] = entry
	}
	return out
}

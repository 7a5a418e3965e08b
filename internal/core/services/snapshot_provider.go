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

type SnapshotProviderConfig struct {
	// Metrics, Probe and Security are optional sources.
	Metrics        ports.HostMetrics
	Probe          ports.ServiceProbe
	Security       ports.SecurityEventSource
	Services       []string
	SecurityWindow time.Duration
	Tasks          ports.TaskRepository
	Certificates   ports.CertificateRepository
	Logger         *logger.Logger
	Now            func() time.Time
}

// SnapshotProvider assembles the read-only system view for evaluators.
// Host probes that fail are noted in the snapshot's Errors; storage failures
// fail the whole snapshot.
type SnapshotProvider struct {
	metrics      ports.HostMetrics
	probe        ports.ServiceProbe
	security     ports.SecurityEventSource
	services     []string
	window       time.Duration
	tasks        ports.TaskRepository
	certificates ports.CertificateRepository
	logger       *logger.Logger
	now          func() time.Time
}

var _ ports.SnapshotProvider = (*SnapshotProvider)(nil)

func NewSnapshotProvider(cfg SnapshotProviderConfig) (*SnapshotProvider, error) {
	if cfg.Tasks == nil || cfg.Certificates == nil {
		return nil, errors.New("snapshot: task and certificate repositories are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.SecurityWindow <= 0 {
		cfg.SecurityWindow = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SnapshotProvider{
		metrics:      cfg.Metrics,
		probe:        cfg.Probe,
		security:     cfg.Security,
		services:     append([]string(nil), cfg.Services...),
		window:       cfg.SecurityWindow,
		tasks:        cfg.Tasks,
		certificates: cfg.Certificates,
		logger:       cfg.Logger.Named("snapshot"),
		now:          cfg.Now,
	}, nil
}

func (p *SnapshotProvider) Snapshot(ctx context.Context) (*domain.SystemSnapshot, error) {
	now := p.now()
	snap := &domain.SystemSnapshot{
		TakenAt:        now,
		Services:       make(map[string]bool, len(p.services)),
		SecurityWindow: p.window,
	}

	var mu sync.Mutex
	noteError := func(source string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Errors == nil {
			snap.Errors = make(map[string]string)
		}
		snap.Errors[source] = err.Error()
		p.logger.Warnw("snapshot_source_failed", "source", source, "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if p.metrics != nil {
		g.Go(func() error {
			usage, err := p.metrics.Usage(gctx)
			if err != nil {
				noteError("resources", err)
				return nil
			}
			snap.Resources = usage
			return nil
		})
	}

	if p.probe != nil {
		for _, name := range p.services {
			name := name
			g.Go(func() error {
				running, err := p.probe.IsRunning(gctx, name)
				if err != nil {
					noteError("service:"+name, err)
					return nil
				}
				mu.Lock()
				snap.Services[name] = running
				mu.Unlock()
				return nil
			})
		}
	}

	g.Go(func() error {
		backups, err := p.tasks.LatestByRelated(gctx, domain.RelatedBackupSchedule, domain.TaskTypeBackup)
		if err != nil {
			return fmt.Errorf("latest backups: %w", err)
		}
		snap.LatestBackups = backups
		return nil
	})

	g.Go(func() error {
		certs, err := p.certificates.GetAll(gctx)
		if err != nil {
			return fmt.Errorf("certificates: %w", err)
		}
		snap.Certificates = certs
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if p.security != nil {
		snap.AuthFailures = p.security.AuthFailures(now, p.window)
		snap.IntrusionHits = p.security.IntrusionHits(now, p.window)
	}
	return snap, nil
}

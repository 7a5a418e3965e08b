package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/hostpanel/backend/internal/infrastructure/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMetrics struct {
	usage *domain.ResourceUsage
	err   error
}

func (m stubMetrics) Usage(context.Context) (*domain.ResourceUsage, error) { return m.usage, m.err }

type stubProbe map[string]error

func (p stubProbe) IsRunning(_ context.Context, name string) (bool, error) {
	err, known := p[name]
	if !known {
		return false, nil
	}
	return err == nil, err
}

type stubSecurity struct{}

func (stubSecurity) AuthFailures(time.Time, time.Duration) domain.SecurityCounts {
	return domain.SecurityCounts{"10.0.0.1": 12}
}

func (stubSecurity) IntrusionHits(time.Time, time.Duration) domain.SecurityCounts {
	return domain.SecurityCounts{}
}

type brokenCertificates struct {
	*db.MemoryCertificateRepository
}

func (brokenCertificates) GetAll(context.Context) ([]domain.SslCertificate, error) {
	return nil, errors.New("connection reset")
}

func TestSnapshotProvider_Snapshot(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tasks := db.NewMemoryTaskRepository()
	require.NoError(t, tasks.Create(ctx, &domain.Task{
		ID: "b1", Type: domain.TaskTypeBackup, Status: domain.TaskStatusFailed,
		Related: domain.RelatedRef{Kind: domain.RelatedBackupSchedule, ID: "nightly"}, CreatedAt: now,
	}))
	certs := db.NewMemoryCertificateRepository()
	require.NoError(t, certs.Create(ctx, &domain.SslCertificate{DomainName: "example.com", Status: domain.CertificateStatusActive}))

	cfg := SnapshotProviderConfig{
		Metrics:        stubMetrics{usage: &domain.ResourceUsage{CPUPercent: 42, DiskPath: "/"}},
		Probe:          stubProbe{"nginx": nil, "mysql": errors.New("ssh: connection failed")},
		Security:       stubSecurity{},
		Services:       []string{"nginx", "mysql", "postfix"},
		SecurityWindow: 5 * time.Minute,
		Tasks:          tasks,
		Certificates:   certs,
		Now:            func() time.Time { return now },
	}

	t.Run("gathers every source", func(t *testing.T) {
		p, err := NewSnapshotProvider(cfg)
		require.NoError(t, err)

		snap, err := p.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, now, snap.TakenAt)
		assert.Equal(t, 42.0, snap.Resources.CPUPercent)
		assert.Equal(t, map[string]bool{"nginx": true, "postfix": false}, snap.Services)
		assert.Contains(t, snap.Errors, "service:mysql")
		assert.Equal(t, 12, snap.AuthFailures["10.0.0.1"])
		assert.Equal(t, 5*time.Minute, snap.SecurityWindow)
		require.Contains(t, snap.LatestBackups, "nightly")
		assert.Equal(t, "b1", snap.LatestBackups["nightly"].ID)
		assert.Len(t, snap.Certificates, 1)
	})

	t.Run("probe failures do not fail the snapshot", func(t *testing.T) {
		c := cfg
		c.Metrics = stubMetrics{err: errors.New("no /proc")}
		p, err := NewSnapshotProvider(c)
		require.NoError(t, err)

		snap, err := p.Snapshot(ctx)
		require.NoError(t, err)
		assert.Nil(t, snap.Resources)
		assert.Contains(t, snap.Errors, "resources")
	})

	t.Run("storage failures do", func(t *testing.T) {
		c := cfg
		c.Certificates = brokenCertificates{certs}
		p, err := NewSnapshotProvider(c)
		require.NoError(t, err)

		_, err = p.Snapshot(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "certificates")
	})

	t.Run("optional sources may be absent", func(t *testing.T) {
		p, err := NewSnapshotProvider(SnapshotProviderConfig{Tasks: tasks, Certificates: certs})
		require.NoError(t, err)

		snap, err := p.Snapshot(ctx)
		require.NoError(t, err)
		assert.Nil(t, snap.Resources)
		assert.Empty(t, snap.Services)
		assert.Nil(t, snap.AuthFailures)
	})

	t.Run("repositories are required", func(t *testing.T) {
		_, err := NewSnapshotProvider(SnapshotProviderConfig{})
		assert.Error(t, err)
	})
}

var _ ports.SecurityEventSource = stubSecurity{}

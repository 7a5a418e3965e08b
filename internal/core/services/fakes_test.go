package services

import (
	"context"
	"sync"
	"time"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type snapshotFunc func(ctx context.Context) (*domain.SystemSnapshot, error)

func (f snapshotFunc) Snapshot(ctx context.Context) (*domain.SystemSnapshot, error) { return f(ctx) }

type funcEvaluator struct {
	name string
	fn   func(*domain.SystemSnapshot) ([]domain.Alert, error)
}

func (e funcEvaluator) Name() string { return e.name }

func (e funcEvaluator) Evaluate(_ context.Context, s *domain.SystemSnapshot) ([]domain.Alert, error) {
	return e.fn(s)
}

func staticEvaluator(name string, alerts ...domain.Alert) funcEvaluator {
	return funcEvaluator{name: name, fn: func(*domain.SystemSnapshot) ([]domain.Alert, error) {
		return append([]domain.Alert(nil), alerts...), nil
	}}
}

type recordingDispatcher struct {
	mu       sync.Mutex
	alerts   []domain.Alert
	outcomes []ports.ChannelOutcome
}

func (d *recordingDispatcher) Dispatch(_ context.Context, alert domain.Alert) []ports.ChannelOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, alert)
	return d.outcomes
}

func (d *recordingDispatcher) keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.alerts))
	for i, a := range d.alerts {
		out[i] = a.DedupKey
	}
	return out
}

type failingLedger struct{ err error }

func (l failingLedger) TryAcquire(context.Context, string, time.Time, time.Duration) (bool, error) {
	return false, l.err
}
func (l failingLedger) Prune(context.Context, time.Time) (int, error) { return 0, l.err }
func (l failingLedger) Len(context.Context) (int, error)              { return 0, l.err }

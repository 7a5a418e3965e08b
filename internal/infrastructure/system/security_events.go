package system

import (
	"sync"
	"time"

	"github.com/hostpanel/backend/internal/domain"
)

// SecurityRecorder keeps recent authentication failures and intrusion hits
// per source. Events older than the retention are dropped on write.
type SecurityRecorder struct {
	retention time.Duration

	mu         sync.Mutex
	authFails  map[string][]time.Time
	intrusions map[string][]time.Time
}

func NewSecurityRecorder(retention time.Duration) *SecurityRecorder {
	if retention <= 0 {
		retention = time.Hour
	}
	return &SecurityRecorder{
		retention:  retention,
		authFails:  make(map[string][]time.Time),
		intrusions: make(map[string][]time.Time),
	}
}

func (r *SecurityRecorder) RecordAuthFailure(source string, at time.Time) {
	r.record(r.authFails, source, at)
}

func (r *SecurityRecorder) RecordIntrusion(source string, at time.Time) {
	r.record(r.intrusions, source, at)
}

func (r *SecurityRecorder) AuthFailures(now time.Time, window time.Duration) domain.SecurityCounts {
	return r.count(r.authFails, now, window)
}

func (r *SecurityRecorder) IntrusionHits(now time.Time, window time.Duration) domain.SecurityCounts {
	return r.count(r.intrusions, now, window)
}

func (r *SecurityRecorder) record(events map[string][]time.Time, source string, at time.Time) {
	if source == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := at.Add(-r.retention)
	kept := events[source][:0]
	for _, t := range events[source] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	events[source] = append(kept, at)
}

// count returns events in (now-window, now] per source.
func (r *SecurityRecorder) count(events map[string][]time.Time, now time.Time, window time.Duration) domain.SecurityCounts {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := now.Add(-window)
	counts := make(domain.SecurityCounts)
	for source, times := range events {
		n := 0
		for _, t := range times {
			if t.After(from) && !t.After(now) {
				n++
			}
		}
		if n > 0 {
			counts[source] = n
		}
	}
	return counts
}

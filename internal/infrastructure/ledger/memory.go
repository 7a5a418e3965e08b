// Package ledger stores the last-sent time of every alert dedup key.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/hostpanel/backend/internal/core/ports"
)

type memoryEntry struct {
	mu      sync.Mutex
	last    time.Time
	removed bool
}

// MemoryLedger keeps entries in process memory. Each key carries its own
// lock so unrelated keys never contend.
type MemoryLedger struct {
	entries sync.Map // string -> *memoryEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

var _ ports.CooldownLedger = (*MemoryLedger)(nil)

func (l *MemoryLedger) TryAcquire(_ context.Context, key string, now time.Time, cooldown time.Duration) (bool, error) {
	for {
		v, _ := l.entries.LoadOrStore(key, &memoryEntry{})
		entry := v.(*memoryEntry)

		entry.mu.Lock()
		if entry.removed {
			// pruned between load and lock
			entry.mu.Unlock()
			continue
		}
		if !entry.last.IsZero() && now.Sub(entry.last) < cooldown {
			entry.mu.Unlock()
			return false, nil
		}
		entry.last = now
		entry.mu.Unlock()
		return true, nil
	}
}

func (l *MemoryLedger) Prune(_ context.Context, cutoff time.Time) (int, error) {
	removed := 0
	l.entries.Range(func(k, v interface{}) bool {
		entry := v.(*memoryEntry)
		entry.mu.Lock()
		if entry.last.Before(cutoff) {
			entry.removed = true
			l.entries.CompareAndDelete(k, v)
			removed++
		}
		entry.mu.Unlock()
		return true
	})
	return removed, nil
}

func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	n := 0
	l.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n, nil
}

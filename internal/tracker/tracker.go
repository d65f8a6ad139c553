// Package tracker maintains the advisory running total of per-contributor
// resource cost shared across flow executions.
package tracker

import (
	"log/slog"
	"sort"
	"sync"
)

const (
	// DefaultCapacity is the usage budget when none is configured (100 MB).
	DefaultCapacity int64 = 100 * 1024 * 1024

	// DefaultWarnThreshold triggers a warning when total usage exceeds this
	// fraction of capacity.
	DefaultWarnThreshold = 0.8

	// evictTarget is the fraction of capacity eviction drives usage down to.
	// The gap between 1.0 and this value is a hysteresis band that prevents
	// oscillation at the capacity boundary.
	evictTarget = 0.7
)

// Tracker keeps a running total of per-contributor usage. It is advisory:
// it never blocks a contributor from adding usage, and Available may
// transiently report a negative value before the next eviction pass runs.
type Tracker struct {
	mu            sync.Mutex
	capacity      int64
	warnThreshold float64
	usage         map[string]int64
	total         int64
	logger        *slog.Logger
	onEvict       func(contributorID string, amount int64)
}

// New creates a Tracker with the given capacity. Non-positive capacity falls
// back to DefaultCapacity. A nil logger falls back to slog.Default().
func New(capacity int64, logger *slog.Logger) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		capacity:      capacity,
		warnThreshold: DefaultWarnThreshold,
		usage:         make(map[string]int64),
		logger:        logger,
	}
}

// OnEvict installs a callback invoked (outside the tracker lock) for each
// contributor removed by a reactive eviction pass.
func (t *Tracker) OnEvict(fn func(contributorID string, amount int64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvict = fn
}

// UpdateUsage records the current usage for a contributor, replacing any
// previous value: after UpdateUsage(id, x) then UpdateUsage(id, y) the
// contributor's net contribution is y, not x+y.
//
// Crossing the warn watermark logs a warning; exceeding capacity triggers a
// reactive eviction pass.
func (t *Tracker) UpdateUsage(contributorID string, amount int64) {
	t.mu.Lock()

	prev := t.usage[contributorID]
	t.usage[contributorID] = amount
	t.total += amount - prev

	if float64(t.total) > float64(t.capacity)*t.warnThreshold && t.total <= t.capacity {
		t.logger.Warn("resource usage above watermark",
			slog.Int64("total", t.total),
			slog.Int64("capacity", t.capacity),
		)
	}

	var evicted map[string]int64
	if t.total > t.capacity {
		evicted = t.evictLocked()
	}
	onEvict := t.onEvict
	t.mu.Unlock()

	if onEvict != nil {
		for id, amt := range evicted {
			onEvict(id, amt)
		}
	}
}

// Remove drops a contributor's usage entirely.
func (t *Tracker) Remove(contributorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total -= t.usage[contributorID]
	delete(t.usage, contributorID)
}

// Total returns the current usage total.
func (t *Tracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Available returns capacity minus total. The value may be negative between
// an over-capacity update and the eviction pass it triggers.
func (t *Tracker) Available() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capacity - t.total
}

// Usage returns the recorded usage for a contributor.
func (t *Tracker) Usage(contributorID string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage[contributorID]
}

// evictLocked removes contributors in ascending usage order until the total
// is at or below the eviction target. Callers must hold t.mu.
func (t *Tracker) evictLocked() map[string]int64 {
	target := int64(float64(t.capacity) * evictTarget)

	ids := make([]string, 0, len(t.usage))
	for id := range t.usage {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if t.usage[ids[i]] != t.usage[ids[j]] {
			return t.usage[ids[i]] < t.usage[ids[j]]
		}
		return ids[i] < ids[j]
	})

	evicted := make(map[string]int64)
	for _, id := range ids {
		if t.total <= target {
			break
		}
		amt := t.usage[id]
		t.total -= amt
		delete(t.usage, id)
		evicted[id] = amt
		t.logger.Warn("evicted contributor usage",
			slog.String("contributor", id),
			slog.Int64("amount", amt),
		)
	}
	return evicted
}

// Package debounce keeps the latest pending model snapshot per field key and
// the timer that releases it after the field's quiet period.
//
// A Cache is not safe for concurrent use; its owner serialises access. Timer
// callbacks run on their own goroutines and must re-enter through the owner.
package debounce

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/reoring/formguard"
)

// Entry is the state of one field key.
type Entry struct {
	// Latest is the most recent snapshot scheduled for validation.
	Latest formguard.Model
	// PendingSince is when the current unsettled cycle started; zero when
	// the key is settled.
	PendingSince time.Time
	// Run increases on every Schedule. Only the holder of the current value
	// may settle the entry.
	Run uint64

	timer  *clock.Timer
	cancel context.CancelFunc
}

// Cache holds entries created lazily on first schedule.
type Cache struct {
	clk     clock.Clock
	entries map[string]*Entry
}

// New returns an empty cache using clk for timers.
func New(clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache{clk: clk, entries: map[string]*Entry{}}
}

// Schedule stores m as key's latest snapshot, supersedes any earlier run,
// and arms a timer that calls fire with the new run number after d.
func (c *Cache) Schedule(key string, m formguard.Model, d time.Duration, fire func(run uint64)) uint64 {
	e, ok := c.entries[key]
	if !ok {
		e = &Entry{}
		c.entries[key] = e
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.Run++
	e.Latest = m
	if e.PendingSince.IsZero() {
		e.PendingSince = c.clk.Now()
	}
	run := e.Run
	e.timer = c.clk.AfterFunc(d, func() { fire(run) })
	return run
}

// Snapshot returns key's latest snapshot when run is still current.
func (c *Cache) Snapshot(key string, run uint64) (formguard.Model, bool) {
	e, ok := c.entries[key]
	if !ok || e.Run != run {
		return nil, false
	}
	return e.Latest, true
}

// Start records the cancel function of the validation started for run.
// It is called by Schedule when a newer run supersedes this one. A stale run
// is cancelled immediately.
func (c *Cache) Start(key string, run uint64, cancel context.CancelFunc) {
	e, ok := c.entries[key]
	if !ok || e.Run != run {
		cancel()
		return
	}
	e.timer = nil
	e.cancel = cancel
}

// Settle closes the cycle for run and returns how long the key was pending.
// It returns false when run is stale.
func (c *Cache) Settle(key string, run uint64) (time.Duration, bool) {
	e, ok := c.entries[key]
	if !ok || e.Run != run {
		return 0, false
	}
	var waited time.Duration
	if !e.PendingSince.IsZero() {
		waited = c.clk.Since(e.PendingSince)
	}
	e.PendingSince = time.Time{}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	return waited, true
}

// Fail cancels the validation started for run and leaves key pending. It
// returns false when run is stale.
func (c *Cache) Fail(key string, run uint64) bool {
	e, ok := c.entries[key]
	if !ok || e.Run != run {
		return false
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	return true
}

// Entry returns a copy of key's entry.
func (c *Cache) Entry(key string) (Entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return Entry{Latest: e.Latest, PendingSince: e.PendingSince, Run: e.Run}, true
}

// Pending reports whether key has an unsettled cycle.
func (c *Cache) Pending(key string) bool {
	e, ok := c.entries[key]
	return ok && !e.PendingSince.IsZero()
}

// Len returns the number of entries.
func (c *Cache) Len() int { return len(c.entries) }

// Close stops every timer, cancels running validations and drops all entries.
func (c *Cache) Close() {
	for _, e := range c.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		if e.cancel != nil {
			e.cancel()
		}
	}
	c.entries = map[string]*Entry{}
}

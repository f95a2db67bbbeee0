// pkg/progress/progress.go - incremental "N of M processed" progress tracking.
//
// The aggregation and decline loops are long-running sequences of blocking
// catalog calls; this tracker lets callers surface their progress without
// the loops themselves growing any concurrency.

package progress

import (
	"sync"
	"time"
)

// Func receives progress after each processed item.
type Func func(done, total int)

// Discard is a Func that ignores all progress.
func Discard(done, total int) {}

// StatusUpdate is one progress observation delivered to watchers.
type StatusUpdate struct {
	Done      int       `json:"done"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// Tracker bridges the engine's progress callbacks to watcher channels, so a
// console or GUI can display "N of M" without touching the loops themselves.
type Tracker struct {
	mu       sync.RWMutex
	done     int
	total    int
	watchers []chan StatusUpdate
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Watch returns a channel receiving one StatusUpdate per observation.
// Slow watchers miss updates rather than blocking the loop.
func (t *Tracker) Watch() <-chan StatusUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan StatusUpdate, 64)
	t.watchers = append(t.watchers, ch)
	return ch
}

// Observe records one progress report and notifies watchers.
func (t *Tracker) Observe(done, total int) {
	t.mu.Lock()
	t.done, t.total = done, total
	update := StatusUpdate{
		Done:      done,
		Total:     total,
		Timestamp: time.Now(),
	}
	watchers := t.watchers
	t.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- update:
		default:
		}
	}
}

// Func returns the tracker's Observe as a progress callback for the engine
// loops.
func (t *Tracker) Func() Func {
	return t.Observe
}

// Progress returns the most recently observed done and total counts.
func (t *Tracker) Progress() (done, total int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.done, t.total
}

// Close closes all watcher channels. The tracker must not be observed after.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.watchers {
		close(ch)
	}
	t.watchers = nil
}

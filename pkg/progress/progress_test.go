// pkg/progress/progress_test.go - tests for the progress tracker.

package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerObserveNotifiesWatchers(t *testing.T) {
	tracker := NewTracker()
	defer tracker.Close()
	ch := tracker.Watch()

	tracker.Observe(1, 3)
	tracker.Observe(2, 3)

	first := <-ch
	assert.Equal(t, 1, first.Done)
	assert.Equal(t, 3, first.Total)
	assert.False(t, first.Timestamp.IsZero())

	second := <-ch
	assert.Equal(t, 2, second.Done)

	done, total := tracker.Progress()
	assert.Equal(t, 2, done)
	assert.Equal(t, 3, total)
}

func TestTrackerFuncDrivesObservations(t *testing.T) {
	tracker := NewTracker()
	defer tracker.Close()
	ch := tracker.Watch()

	// The engine loops only see a plain callback.
	var onProgress Func = tracker.Func()
	for i := 1; i <= 4; i++ {
		onProgress(i, 4)
	}

	for i := 1; i <= 4; i++ {
		update := <-ch
		assert.Equal(t, i, update.Done)
		assert.Equal(t, 4, update.Total)
	}
}

func TestTrackerCloseEndsWatchers(t *testing.T) {
	tracker := NewTracker()
	ch := tracker.Watch()
	tracker.Observe(1, 1)
	tracker.Close()

	update, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, 1, update.Done)

	_, ok = <-ch
	assert.False(t, ok)
}

func TestTrackerSlowWatcherDoesNotBlock(t *testing.T) {
	tracker := NewTracker()
	defer tracker.Close()
	tracker.Watch() // never drained

	finished := make(chan struct{})
	go func() {
		for i := 1; i <= 200; i++ {
			tracker.Observe(i, 200)
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("observations blocked on an undrained watcher")
	}
}

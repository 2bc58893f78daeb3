package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/tinymerit/pkg/metrics"
)

// Debouncer lets only the last of a burst of calls per key go through.
// It cancels waiting triggers; work already started is not interrupted.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]chan struct{}
}

// NewDebouncer creates a Debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, pending: make(map[string]chan struct{})}
}

// Wait blocks for the quiet period. It returns true when no later call for
// key arrived meanwhile, false when it was superseded, and ctx's error if ctx
// ends first.
func (d *Debouncer) Wait(ctx context.Context, key string) (bool, error) {
	mine := make(chan struct{})
	d.mu.Lock()
	if prev, ok := d.pending[key]; ok {
		close(prev)
	}
	d.pending[key] = mine
	d.mu.Unlock()

	timer := time.NewTimer(d.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		if d.release(key, mine) {
			return true, nil
		}
		metrics.RecordDebouncedQuery()
		return false, nil
	case <-mine:
		metrics.RecordDebouncedQuery()
		return false, nil
	case <-ctx.Done():
		d.release(key, mine)
		return false, ctx.Err()
	}
}

// release drops mine if it is still the pending trigger for key.
func (d *Debouncer) release(key string, mine chan struct{}) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending[key] != mine {
		return false
	}
	delete(d.pending, key)
	return true
}

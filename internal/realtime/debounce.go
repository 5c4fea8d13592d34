package realtime

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of work for the same key into a single trailing
// call. It is owned by the Manager and torn down with it.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*time.Timer
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window, pending: make(map[string]*time.Timer)}
}

// Do schedules fn after the quiet window, replacing any pending call for the
// same key. Only the last fn scheduled within the window runs. A zero window
// runs fn synchronously.
func (d *Debouncer) Do(key string, fn func()) {
	if d.window <= 0 {
		fn()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if timer, ok := d.pending[key]; ok {
		timer.Stop()
	}
	// Stop cannot interrupt a callback that has already fired and is waiting
	// on d.mu, so the callback re-checks that it is still the registered timer
	// for its key before running. A cancelled or replaced timer finds a
	// different (or no) entry and backs out.
	var timer *time.Timer
	timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if current, ok := d.pending[key]; !ok || current != timer {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()
		fn()
	})
	d.pending[key] = timer
}

// CancelAll stops every pending timer without running its work.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelAllLocked()
}

func (d *Debouncer) cancelAllLocked() {
	for key, timer := range d.pending {
		timer.Stop()
		delete(d.pending, key)
	}
}

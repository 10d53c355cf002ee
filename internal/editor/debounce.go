package editor

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid triggers into one deferred call. Arm schedules fn
// after delay, cancelling any previously armed call; only the most recent
// timer fires.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Arm schedules fn after delay, superseding any pending call.
func (d *Debouncer) Arm(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, fn)
}

// Stop cancels any pending call.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

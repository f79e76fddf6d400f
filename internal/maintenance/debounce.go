package maintenance

import (
	"sync"
	"time"
)

// Debouncer runs an action once the trigger has been quiet for a fixed delay.
// Each Trigger restarts the countdown.
type Debouncer struct {
	delay  time.Duration
	action func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebouncer creates a debouncer. A non-positive delay defaults to one second.
func NewDebouncer(delay time.Duration, action func()) *Debouncer {
	if delay <= 0 {
		delay = time.Second
	}
	return &Debouncer{delay: delay, action: action}
}

// Trigger cancels any pending run and schedules a new one after the delay.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A later Trigger or Cancel replaced this timer.
		if d.timer != t {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.action()
	})
	d.timer = t
}

// Cancel drops the pending run, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Fire cancels the pending run and executes the action now, in the caller's goroutine.
func (d *Debouncer) Fire() {
	d.Cancel()
	d.action()
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Delay returns the quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

package reportview

import (
	"sync"
	"time"
)

// DefaultDebounce coalesces bursts of filter and search edits.
const DefaultDebounce = 250 * time.Millisecond

// Debouncer runs the last function handed to it once no new call arrived
// for the configured window.
type Debouncer struct {
	mu     sync.Mutex
	timer  *time.Timer
	window time.Duration
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Debounce (re)arms the timer with fn. A zero window runs fn synchronously.
func (d *Debouncer) Debounce(fn func()) {
	if d.window <= 0 {
		fn()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, fn)
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

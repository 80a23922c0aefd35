package scheduler

import (
	"sync"
	"time"
)

// AutoTerminator starts a timer once the tracked reasons-to-stay-alive
// counter reaches zero; if it is still zero when the timer fires, Fire is
// invoked, otherwise the timer is rearmed from the last non-zero moment
// (SPEC_FULL.md §4.5 "Auto-termination").
type AutoTerminator struct {
	mu       sync.Mutex
	duration time.Duration
	timer    *time.Timer
	fire     func()
	stopped  bool
}

// NewAutoTerminator returns a terminator that waits duration of
// all-reasons-gone before calling fire.
func NewAutoTerminator(duration time.Duration, fire func()) *AutoTerminator {
	return &AutoTerminator{duration: duration, fire: fire}
}

// Tick is called on every reasons-to-stay-alive change (attach/detach,
// session activation, auto-sync config change) with the current count.
func (a *AutoTerminator) Tick(reasons int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if reasons > 0 {
		if a.timer != nil {
			a.timer.Stop()
			a.timer = nil
		}
		return
	}
	if a.timer != nil {
		return // already counting down
	}
	a.timer = time.AfterFunc(a.duration, a.fire)
}

// Stop cancels any pending timer and prevents future arming, e.g. once the
// process has already begun shutting down for another reason.
func (a *AutoTerminator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

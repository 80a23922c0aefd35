package session

import (
	"time"

	"golang.org/x/time/rate"
)

// Notifier receives the session's progress and log signals. The IPC wire
// binding (A6) implements this to forward them to attached clients over
// the event bus.
type Notifier interface {
	StatusChanged(sessionID, status string)
	ProgressChanged(sessionID string, progress int)
	LogOutput(sessionID, line string)
}

// throttledNotifier rate-limits StatusChanged/ProgressChanged so a chatty
// protocol engine cannot flood attached clients; LogOutput always passes
// through (SPEC_FULL.md §4.4: "default rate limit: 100 ms status, 50 ms
// progress; flush=true bypasses").
type throttledNotifier struct {
	under        Notifier
	statusLimit  *rate.Limiter
	progressLimit *rate.Limiter
}

const (
	defaultStatusInterval   = 100 * time.Millisecond
	defaultProgressInterval = 50 * time.Millisecond
)

func newThrottledNotifier(under Notifier) *throttledNotifier {
	return &throttledNotifier{
		under:         under,
		statusLimit:   rate.NewLimiter(rate.Every(defaultStatusInterval), 1),
		progressLimit: rate.NewLimiter(rate.Every(defaultProgressInterval), 1),
	}
}

func (t *throttledNotifier) statusChanged(sessionID, status string, flush bool) {
	if flush || t.statusLimit.Allow() {
		t.under.StatusChanged(sessionID, status)
	}
}

func (t *throttledNotifier) progressChanged(sessionID string, progress int, flush bool) {
	if flush || t.progressLimit.Allow() {
		t.under.ProgressChanged(sessionID, progress)
	}
}

func (t *throttledNotifier) logOutput(sessionID, line string) {
	t.under.LogOutput(sessionID, line)
}

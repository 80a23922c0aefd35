// Package resilience centralizes the temporary/permanent error classification
// and retry-with-backoff policy shared by every component that talks to an
// unreliable outside world: the change-tracking source (§4.3), the transport
// layer (§4.6), and the scheduler's distributed lock acquisition (§4.5).
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"
)

// Classification says whether a failure is worth retrying.
type Classification int

const (
	// Permanent failures will not succeed on retry: bad input, auth
	// rejection, not-found. The caller should give up and surface the
	// error.
	Permanent Classification = iota
	// Temporary failures may succeed if retried: timeouts, connection
	// resets, backend lock contention.
	Temporary
)

func (c Classification) String() string {
	if c == Temporary {
		return "temporary"
	}
	return "permanent"
}

// temporaryError is implemented by errors that know their own
// classification, e.g. a backend-specific error type. Classify consults it
// before falling back to heuristics.
type temporaryError interface {
	Temporary() bool
}

// Classify inspects err and decides whether it is worth retrying. nil is
// classified Permanent (there is nothing to retry).
func Classify(err error) Classification {
	if err == nil {
		return Permanent
	}
	var t temporaryError
	if errors.As(err, &t) {
		if t.Temporary() {
			return Temporary
		}
		return Permanent
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Temporary
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Temporary
		}
		return Temporary
	}
	return Permanent
}

// Backoff computes a jittered exponential delay for retry attempt n
// (0-based), capped at max.
func Backoff(n int, base, max time.Duration) time.Duration {
	d := base << uint(n)
	if d <= 0 || d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2 + 1))
	return d/2 + jitter
}

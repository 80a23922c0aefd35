package scheduler

import "sync"

// AttachTracker counts "reasons to stay alive": attached clients, pending
// auto-sync-enabled configs, and whether a session is active
// (SPEC_FULL.md §4.5 "Attach tracking" / "Auto-termination").
type AttachTracker struct {
	mu sync.Mutex

	// clientAttachments maps client id -> count of things it's attached
	// to (server itself and/or individual sessions), so a single
	// disappearance decrements the counter by its full attach count.
	clientAttachments map[string]int
	pendingAutoSync   int
	sessionActive     bool
}

// NewAttachTracker returns an empty tracker.
func NewAttachTracker() *AttachTracker {
	return &AttachTracker{clientAttachments: make(map[string]int)}
}

// AttachClient records one more attachment (to the server or to a session)
// for clientID.
func (a *AttachTracker) AttachClient(clientID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clientAttachments[clientID]++
}

// DetachClient removes one attachment for clientID.
func (a *AttachTracker) DetachClient(clientID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.clientAttachments[clientID] > 0 {
		a.clientAttachments[clientID]--
	}
	if a.clientAttachments[clientID] == 0 {
		delete(a.clientAttachments, clientID)
	}
}

// ClientDisappeared drops every attachment clientID held at once
// (SPEC_FULL.md §4.5: "the auto-termination counter is decremented by the
// attach count").
func (a *AttachTracker) ClientDisappeared(clientID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.clientAttachments, clientID)
}

// SetPendingAutoSync records how many configured peers currently have
// auto-sync enabled.
func (a *AttachTracker) SetPendingAutoSync(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingAutoSync = n
}

// SetSessionActive records whether a session currently holds the active
// slot.
func (a *AttachTracker) SetSessionActive(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionActive = active
}

// ReasonsToStayAlive is the monotonic "reasons to stay alive" counter
// (SPEC_FULL.md §4.5 "Auto-termination").
func (a *AttachTracker) ReasonsToStayAlive() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.pendingAutoSync
	for _, count := range a.clientAttachments {
		n += count
	}
	if a.sessionActive {
		n++
	}
	return n
}

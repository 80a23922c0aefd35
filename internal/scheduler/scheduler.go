package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/syncevo/syncengine/internal/eventbus"
	"github.com/syncevo/syncengine/internal/lock"
	"github.com/syncevo/syncengine/internal/metrics"
)

// Session is the minimal surface the scheduler needs from a C4 session to
// drive its lifecycle.
type Session interface {
	ID() string
	PeerName() string
	Activate()
	Destructible(now time.Time) bool
}

// DistributedLocker is implemented by lock.DistributedLock; the scheduler
// only reaches for it in the Standard (multi-process) deployment profile
// (SPEC_FULL.md §4.5 "Active-session lock").
type DistributedLocker interface {
	Acquire(ctx context.Context, peerConfigName string) (token string, err error)
	Release(ctx context.Context, peerConfigName, token string) error
}

// Scheduler is the C5 priority queue plus single-active-session invariant,
// attach tracking, auto-termination, and event bus fan-out.
type Scheduler struct {
	mu sync.Mutex

	queue    *Queue
	sessions map[string]Session
	active   string // session id, or "" if none active

	attach     *AttachTracker
	autoTerm   *AutoTerminator
	distLock   DistributedLocker // nil in single-process deployments
	activeLockToken string

	bus    *eventbus.Bus
	logger *slog.Logger
}

// New returns a Scheduler publishing lifecycle events to bus. distLock may
// be nil for a single-process (Lite profile) deployment, in which case the
// in-process mutex alone is authoritative (SPEC_FULL.md §4.5).
func New(bus *eventbus.Bus, distLock DistributedLocker, autoTermDuration time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		queue:    NewQueue(),
		sessions: make(map[string]Session),
		attach:   NewAttachTracker(),
		distLock: distLock,
		bus:      bus,
		logger:   logger,
	}
	s.autoTerm = NewAutoTerminator(autoTermDuration, s.terminate)
	return s
}

// Enqueue registers sess and pushes it onto the priority queue; if no
// session is currently active, it is immediately popped and activated.
func (s *Scheduler) Enqueue(sess Session, deviceID string, priority Priority) {
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.queue.Push(QueueItem{SessionID: sess.ID(), DeviceID: deviceID, Priority: priority})
	s.bus.Publish("SessionChanged", sess.ID())
	s.mu.Unlock()

	metrics.SessionsQueued.Set(float64(s.queue.Len()))
	s.activateNextIfIdle()
}

// activateNextIfIdle pops the queue head and activates it if no session is
// currently active.
func (s *Scheduler) activateNextIfIdle() {
	s.mu.Lock()
	if s.active != "" {
		s.mu.Unlock()
		return
	}
	item, ok := s.queue.Pop()
	if !ok {
		s.mu.Unlock()
		return
	}
	sess, ok := s.sessions[item.SessionID]
	s.mu.Unlock()
	if !ok {
		return
	}

	sess.Activate()
	metrics.SessionsStarted.WithLabelValues(item.Priority.String()).Inc()

	s.mu.Lock()
	s.active = item.SessionID
	queueLen := s.queue.Len()
	s.mu.Unlock()
	metrics.SessionsQueued.Set(float64(queueLen))
	s.attach.SetSessionActive(true)
	s.autoTerm.Tick(s.attach.ReasonsToStayAlive())
	s.bus.Publish("SessionChanged", item.SessionID)
}

// Deactivate marks the currently active session finished, releasing any
// held distributed lock, and advances the queue.
func (s *Scheduler) Deactivate(ctx context.Context, sessionID, peerConfigName string) {
	s.mu.Lock()
	if s.active != sessionID {
		s.mu.Unlock()
		return
	}
	s.active = ""
	token := s.activeLockToken
	s.activeLockToken = ""
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if s.distLock != nil && token != "" {
		if err := s.distLock.Release(ctx, peerConfigName, token); err != nil {
			s.logger.Warn("distributed lock release failed", "peer", peerConfigName, "error", err)
		}
	}

	s.attach.SetSessionActive(false)
	s.autoTerm.Tick(s.attach.ReasonsToStayAlive())
	s.bus.Publish("SessionChanged", sessionID)

	s.activateNextIfIdle()
}

// AcquireConfigLock is consulted before any operation that mutates
// persistent configuration (SetConfig(persistent), Remove, Migrate): the
// caller must be the active session, and in a Standard-profile deployment
// must also hold the Redis distributed lock for peerConfigName
// (SPEC_FULL.md §4.5 "Active-session lock").
func (s *Scheduler) AcquireConfigLock(ctx context.Context, sessionID, peerConfigName string) error {
	s.mu.Lock()
	isActive := s.active == sessionID
	s.mu.Unlock()
	if !isActive {
		return fmt.Errorf("scheduler: session %q is not the active session", sessionID)
	}
	if s.distLock == nil {
		return nil
	}
	token, err := s.distLock.Acquire(ctx, peerConfigName)
	if err != nil {
		return fmt.Errorf("scheduler: distributed lock: %w", err)
	}
	s.mu.Lock()
	stillActive := s.active == sessionID
	if stillActive {
		s.activeLockToken = token
	}
	s.mu.Unlock()
	if !stillActive {
		// The session was deactivated while Acquire was in flight; the
		// lock token belongs to whatever session is active now, not us.
		// Release what we just took rather than attribute it to the
		// wrong session.
		if relErr := s.distLock.Release(ctx, peerConfigName, token); relErr != nil {
			s.logger.Warn("release stale config lock", "peer", peerConfigName, "error", relErr)
		}
		return fmt.Errorf("scheduler: session %q is not the active session", sessionID)
	}
	return nil
}

// KillByDeviceID cancels every queued session for deviceID and aborts the
// active one if it matches (SPEC_FULL.md §4.5 "Kill-by-device-id"). abort
// is called with the active session's id if it must be aborted.
func (s *Scheduler) KillByDeviceID(deviceID string, activeDeviceID string, abort func(sessionID string)) []string {
	s.mu.Lock()
	removed := s.queue.RemoveByDeviceID(deviceID)
	for _, id := range removed {
		delete(s.sessions, id)
	}
	activeID := s.active
	s.mu.Unlock()

	if activeID != "" && activeDeviceID == deviceID {
		abort(activeID)
	}
	return removed
}

// AttachClient records a client attachment and re-evaluates auto-termination.
func (s *Scheduler) AttachClient(clientID string) {
	s.attach.AttachClient(clientID)
	s.autoTerm.Tick(s.attach.ReasonsToStayAlive())
}

// DetachClient records a client detachment.
func (s *Scheduler) DetachClient(clientID string) {
	s.attach.DetachClient(clientID)
	s.autoTerm.Tick(s.attach.ReasonsToStayAlive())
}

// ClientDisappeared drops every attachment clientID held at once.
func (s *Scheduler) ClientDisappeared(clientID string) {
	s.attach.ClientDisappeared(clientID)
	s.autoTerm.Tick(s.attach.ReasonsToStayAlive())
}

// SetPendingAutoSync updates the auto-sync-enabled config count.
func (s *Scheduler) SetPendingAutoSync(n int) {
	s.attach.SetPendingAutoSync(n)
	s.autoTerm.Tick(s.attach.ReasonsToStayAlive())
}

// terminate is invoked by the auto-termination timer once the
// reasons-to-stay-alive counter has been zero for the configured duration.
func (s *Scheduler) terminate() {
	if s.attach.ReasonsToStayAlive() != 0 {
		return // rearmed by the last Tick before the timer fired
	}
	s.bus.Publish("Shutdown", "auto-termination")
	s.logger.Info("auto-termination: no reasons to stay alive, exiting")
}

// Reap destroys every idle session past its detach grace period
// (SPEC_FULL.md §4.4 step 2). Call periodically from the event loop.
func (s *Scheduler) Reap(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if id == s.active {
			continue
		}
		if sess.Destructible(now) {
			delete(s.sessions, id)
		}
	}
}

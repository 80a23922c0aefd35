package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/syncevo/syncengine/internal/eventbus"
)

func TestQueuePushPopFIFOWithinPriority(t *testing.T) {
	q := NewQueue()
	q.Push(QueueItem{SessionID: "a", Priority: PriorityDefault})
	q.Push(QueueItem{SessionID: "b", Priority: PriorityDefault})

	first, _ := q.Pop()
	second, _ := q.Pop()
	if first.SessionID != "a" || second.SessionID != "b" {
		t.Errorf("pop order = %q,%q, want a,b", first.SessionID, second.SessionID)
	}
}

func TestQueueHigherPriorityJumpsAhead(t *testing.T) {
	q := NewQueue()
	q.Push(QueueItem{SessionID: "low", Priority: PriorityDefault})
	q.Push(QueueItem{SessionID: "high", Priority: PriorityShutdown})

	first, _ := q.Pop()
	if first.SessionID != "high" {
		t.Errorf("first popped = %q, want high (higher priority)", first.SessionID)
	}
}

func TestQueueEqualPriorityStableOrder(t *testing.T) {
	q := NewQueue()
	q.Push(QueueItem{SessionID: "1", Priority: PriorityConnection})
	q.Push(QueueItem{SessionID: "2", Priority: PriorityAutosync}) // higher, jumps ahead
	q.Push(QueueItem{SessionID: "3", Priority: PriorityConnection})

	order := []string{}
	for {
		item, ok := q.Pop()
		if !ok {
			break
		}
		order = append(order, item.SessionID)
	}
	want := []string{"2", "1", "3"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

// TestQueueMatchesSpecActivationOrder mirrors the worked example: enqueue
// DEFAULT, AUTOSYNC, CONNECTION, SHUTDOWN in that insertion order and
// expect activation order SHUTDOWN, AUTOSYNC, CONNECTION, DEFAULT
// (SPEC_FULL.md §8).
func TestQueueMatchesSpecActivationOrder(t *testing.T) {
	q := NewQueue()
	q.Push(QueueItem{SessionID: "default", Priority: PriorityDefault})
	q.Push(QueueItem{SessionID: "autosync", Priority: PriorityAutosync})
	q.Push(QueueItem{SessionID: "connection", Priority: PriorityConnection})
	q.Push(QueueItem{SessionID: "shutdown", Priority: PriorityShutdown})

	want := []string{"shutdown", "autosync", "connection", "default"}
	for _, w := range want {
		item, ok := q.Pop()
		if !ok || item.SessionID != w {
			t.Fatalf("got %q, want %q", item.SessionID, w)
		}
	}
}

func TestRemoveByDeviceID(t *testing.T) {
	q := NewQueue()
	q.Push(QueueItem{SessionID: "a", DeviceID: "dev-1"})
	q.Push(QueueItem{SessionID: "b", DeviceID: "dev-2"})
	q.Push(QueueItem{SessionID: "c", DeviceID: "dev-1"})

	removed := q.RemoveByDeviceID("dev-1")
	if len(removed) != 2 {
		t.Fatalf("removed = %v, want 2 entries", removed)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

type fakeSession struct {
	id            string
	peer          string
	activated     bool
	destructible  bool
}

func (f *fakeSession) ID() string       { return f.id }
func (f *fakeSession) PeerName() string { return f.peer }
func (f *fakeSession) Activate()        { f.activated = true }
func (f *fakeSession) Destructible(now time.Time) bool { return f.destructible }

func TestSchedulerEnqueueActivatesWhenIdle(t *testing.T) {
	bus := eventbus.New(8)
	sched := New(bus, nil, time.Hour, nil)
	sess := &fakeSession{id: "s1", peer: "phone"}

	sched.Enqueue(sess, "dev-1", PriorityConnection)
	if !sess.activated {
		t.Error("session should have been activated immediately since none was active")
	}
}

func TestSchedulerOnlyOneActiveAtATime(t *testing.T) {
	bus := eventbus.New(8)
	sched := New(bus, nil, time.Hour, nil)
	s1 := &fakeSession{id: "s1"}
	s2 := &fakeSession{id: "s2"}

	sched.Enqueue(s1, "", PriorityConnection)
	sched.Enqueue(s2, "", PriorityConnection)

	if !s1.activated {
		t.Error("s1 should be active")
	}
	if s2.activated {
		t.Error("s2 should still be queued, not active")
	}

	sched.Deactivate(context.Background(), "s1", "phone")
	if !s2.activated {
		t.Error("s2 should activate once s1 deactivates")
	}
}

func TestKillByDeviceIDAbortsActiveAndCancelsQueued(t *testing.T) {
	bus := eventbus.New(8)
	sched := New(bus, nil, time.Hour, nil)
	s1 := &fakeSession{id: "s1"}
	s2 := &fakeSession{id: "s2"}
	sched.Enqueue(s1, "dev-1", PriorityConnection)
	sched.Enqueue(s2, "dev-1", PriorityConnection) // queued behind s1

	var aborted string
	removed := sched.KillByDeviceID("dev-1", "dev-1", func(sessionID string) { aborted = sessionID })

	if len(removed) != 1 || removed[0] != "s2" {
		t.Errorf("removed = %v, want [s2]", removed)
	}
	if aborted != "s1" {
		t.Errorf("aborted = %q, want s1", aborted)
	}
}

func TestAttachTrackerReasonsToStayAlive(t *testing.T) {
	a := NewAttachTracker()
	if a.ReasonsToStayAlive() != 0 {
		t.Fatal("fresh tracker should have 0 reasons")
	}
	a.AttachClient("c1")
	a.SetPendingAutoSync(2)
	a.SetSessionActive(true)
	if got := a.ReasonsToStayAlive(); got != 4 {
		t.Errorf("ReasonsToStayAlive() = %d, want 4 (1 client + 2 autosync + 1 active)", got)
	}
	a.ClientDisappeared("c1")
	if got := a.ReasonsToStayAlive(); got != 3 {
		t.Errorf("ReasonsToStayAlive() after disappearance = %d, want 3", got)
	}
}

func TestAutoTerminatorFiresAfterDuration(t *testing.T) {
	fired := make(chan struct{}, 1)
	at := NewAutoTerminator(10*time.Millisecond, func() { fired <- struct{}{} })

	at.Tick(0)
	select {
	case <-fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("terminator did not fire")
	}
}

func TestAutoTerminatorCancelsOnNonZero(t *testing.T) {
	fired := make(chan struct{}, 1)
	at := NewAutoTerminator(10*time.Millisecond, func() { fired <- struct{}{} })

	at.Tick(0)
	at.Tick(1) // cancels the pending timer

	select {
	case <-fired:
		t.Fatal("terminator fired despite a non-zero tick cancelling it")
	case <-time.After(50 * time.Millisecond):
	}
}

package autosync

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTaskEqualCaseInsensitive(t *testing.T) {
	a := Task{Peer: "Phone", URL: "HTTP://Example.com/sync"}
	b := Task{Peer: "phone", URL: "http://example.com/sync"}
	if !a.Equal(b) {
		t.Error("tasks differing only in case should be equal")
	}
	c := Task{Peer: "phone", URL: "http://other.com/sync"}
	if a.Equal(c) {
		t.Error("tasks with different URLs should not be equal")
	}
}

func TestRequiredTransport(t *testing.T) {
	cases := map[string]string{
		"http://example.com":  "http",
		"https://example.com": "http",
		"local://sync":        "http",
		"obex-bt://00:11:22":  "bluetooth",
		"ftp://unrelated":     "",
	}
	for url, want := range cases {
		if got := RequiredTransport(url); got != want {
			t.Errorf("RequiredTransport(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestMemoryStoreAddListRemove(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	task := Task{Peer: "phone", URL: "http://x"}

	if err := s.Add(ctx, "300", task); err != nil {
		t.Fatalf("Add: %v", err)
	}
	tasks, _ := s.List(ctx, "300")
	if len(tasks) != 1 || !tasks[0].Equal(task) {
		t.Fatalf("List() = %v, want [%v]", tasks, task)
	}

	intervals, _ := s.Intervals(ctx)
	if len(intervals) != 1 || intervals[0] != "300" {
		t.Fatalf("Intervals() = %v, want [300]", intervals)
	}

	if err := s.Remove(ctx, "300", task); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	tasks, _ = s.List(ctx, "300")
	if len(tasks) != 0 {
		t.Errorf("List() after Remove = %v, want empty", tasks)
	}
	intervals, _ = s.Intervals(ctx)
	if len(intervals) != 0 {
		t.Errorf("Intervals() after last task removed = %v, want empty", intervals)
	}
}

func TestMemoryStoreAddReplacesEqualTask(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Add(ctx, "300", Task{Peer: "phone", URL: "http://x", Delay: time.Second})
	s.Add(ctx, "300", Task{Peer: "PHONE", URL: "HTTP://X", Delay: 5 * time.Second})

	tasks, _ := s.List(ctx, "300")
	if len(tasks) != 1 {
		t.Fatalf("List() = %v, want 1 task (second Add should replace, not duplicate)", tasks)
	}
	if tasks[0].Delay != 5*time.Second {
		t.Errorf("Delay = %v, want 5s (replaced by second Add)", tasks[0].Delay)
	}
}

type fakePresence struct {
	up    map[string]bool
	since map[string]time.Time
}

func (f *fakePresence) UpSince(transport string) (bool, time.Time) {
	return f.up[transport], f.since[transport]
}

type fakeEnqueuer struct {
	mu     sync.Mutex
	active map[string]bool
	queued []Task
}

func (f *fakeEnqueuer) Enqueue(task Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, task)
}

func (f *fakeEnqueuer) QueuedOrActive(task Task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[task.key()]
}

func TestManagerEvaluateEnqueuesReadyTask(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	pres := &fakePresence{
		up:    map[string]bool{"http": true},
		since: map[string]time.Time{"http": now.Add(-time.Hour)},
	}
	enq := &fakeEnqueuer{active: map[string]bool{}}
	mgr := New(store, pres, enq)

	err := mgr.Configure(ctx, PeerConfig{
		Peer:     "phone",
		AutoSync: "http",
		Interval: 0,
		Delay:    time.Minute,
		SyncURLs: []string{"http://example.com/sync"},
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	mgr.Evaluate(ctx, intervalKey(0))
	if len(enq.queued) != 1 {
		t.Fatalf("queued = %v, want 1 task enqueued", enq.queued)
	}
}

func TestManagerEvaluateSkipsWhenTransportDown(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	pres := &fakePresence{up: map[string]bool{"http": false}, since: map[string]time.Time{}}
	enq := &fakeEnqueuer{active: map[string]bool{}}
	mgr := New(store, pres, enq)

	mgr.Configure(ctx, PeerConfig{
		Peer:     "phone",
		AutoSync: "http",
		SyncURLs: []string{"http://example.com/sync"},
	})
	mgr.Evaluate(ctx, intervalKey(0))
	if len(enq.queued) != 0 {
		t.Errorf("queued = %v, want none (transport down)", enq.queued)
	}
}

func TestManagerEvaluateSkipsWhenDelayNotElapsed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	pres := &fakePresence{
		up:    map[string]bool{"http": true},
		since: map[string]time.Time{"http": now.Add(-time.Second)},
	}
	enq := &fakeEnqueuer{active: map[string]bool{}}
	mgr := New(store, pres, enq)

	mgr.Configure(ctx, PeerConfig{
		Peer:     "phone",
		AutoSync: "http",
		Delay:    time.Hour,
		SyncURLs: []string{"http://example.com/sync"},
	})
	mgr.Evaluate(ctx, intervalKey(0))
	if len(enq.queued) != 0 {
		t.Errorf("queued = %v, want none (delay not elapsed)", enq.queued)
	}
}

func TestManagerEvaluateSkipsAlreadyQueuedOrActive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	pres := &fakePresence{
		up:    map[string]bool{"http": true},
		since: map[string]time.Time{"http": now.Add(-time.Hour)},
	}
	task := Task{Peer: "phone", URL: "http://example.com/sync"}
	enq := &fakeEnqueuer{active: map[string]bool{task.key(): true}}
	mgr := New(store, pres, enq)

	mgr.Configure(ctx, PeerConfig{
		Peer:     "phone",
		AutoSync: "http",
		SyncURLs: []string{"http://example.com/sync"},
	})
	mgr.Evaluate(ctx, intervalKey(0))
	if len(enq.queued) != 0 {
		t.Errorf("queued = %v, want none (already active)", enq.queued)
	}
}

func TestManagerConfigureOffDisablesAllTransports(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	mgr := New(store, &fakePresence{}, &fakeEnqueuer{active: map[string]bool{}})

	mgr.Configure(ctx, PeerConfig{Peer: "phone", AutoSync: "off", SyncURLs: []string{"http://x"}})
	tasks, _ := store.List(ctx, intervalKey(0))
	if len(tasks) != 0 {
		t.Errorf("List() = %v, want none registered for autoSync=off", tasks)
	}
}

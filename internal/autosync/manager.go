package autosync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/syncevo/syncengine/internal/metrics"
)

// PresenceSource reports how long a named transport has been
// continuously up, as computed by the Presence Monitor (C8).
type PresenceSource interface {
	UpSince(transport string) (up bool, since time.Time)
}

// Enqueuer hands a ready task to the scheduler, which creates a session
// with priority AUTOSYNC, sets its URL via a temporary filter to the
// task's URL, and runs it (SPEC_FULL.md §4.7).
type Enqueuer interface {
	Enqueue(task Task)
	// QueuedOrActive reports whether an equal task is already queued or
	// running, so the manager does not enqueue a duplicate.
	QueuedOrActive(task Task) bool
}

// PeerConfig is the subset of a persistent configuration the manager
// reads: autoSync, autoSyncInterval, autoSyncDelay (SPEC_FULL.md §4.7).
type PeerConfig struct {
	Peer     string
	AutoSync string // "off" | "on" | comma list of "http"/"obex-bt"
	Interval time.Duration
	Delay    time.Duration
	SyncURLs []string
}

// enabledTransports returns the transport kinds this config's AutoSync
// property opts into ("on" opts into every transport its URLs use).
func (c PeerConfig) enabledTransports() map[string]bool {
	enabled := make(map[string]bool)
	switch strings.ToLower(strings.TrimSpace(c.AutoSync)) {
	case "", "off":
		return enabled
	case "on":
		enabled["http"] = true
		enabled["bluetooth"] = true
		enabled[""] = true
	default:
		for _, part := range strings.Split(c.AutoSync, ",") {
			switch strings.ToLower(strings.TrimSpace(part)) {
			case "http":
				enabled["http"] = true
			case "obex-bt":
				enabled["bluetooth"] = true
			}
		}
	}
	return enabled
}

// intervalKey renders a duration to the string bucket key task stores
// use, so 0 (only-on-change) and concrete intervals each get one shared
// timer per distinct value (SPEC_FULL.md §4.7).
func intervalKey(d time.Duration) string {
	return fmt.Sprintf("%d", int64(d))
}

// Manager groups peer auto-sync tasks into per-interval buckets, each
// owning a recurring timer, and enqueues ready tasks through Enqueuer
// (SPEC_FULL.md §4.7, grouping tasks "the same way a notification-grouping
// engine organizes alerts by wait/interval buckets").
type Manager struct {
	mu       sync.Mutex
	store    TaskStore
	presence PresenceSource
	enqueuer Enqueuer

	timers map[string]*time.Timer
}

// New returns a Manager backed by store, reading transport state from
// presence and handing ready tasks to enqueuer.
func New(store TaskStore, presence PresenceSource, enqueuer Enqueuer) *Manager {
	return &Manager{
		store:    store,
		presence: presence,
		enqueuer: enqueuer,
		timers:   make(map[string]*time.Timer),
	}
}

// Configure registers or updates a peer's auto-sync tasks, one per
// syncURL whose transport is enabled by the AutoSync property, each
// placed in the bucket for cfg.Interval.
func (m *Manager) Configure(ctx context.Context, cfg PeerConfig) error {
	enabled := cfg.enabledTransports()
	bucket := intervalKey(cfg.Interval)

	for _, url := range cfg.SyncURLs {
		transport := RequiredTransport(url)
		if !enabled[transport] {
			continue
		}
		task := Task{Peer: cfg.Peer, URL: url, Delay: cfg.Delay}
		if err := m.store.Add(ctx, bucket, task); err != nil {
			return fmt.Errorf("autosync: configure %s: %w", cfg.Peer, err)
		}
	}
	m.ensureTimer(bucket, cfg.Interval)
	return nil
}

// ensureTimer starts the recurring evaluation timer for a bucket if one
// is not already running. A zero interval means "only on change", which
// this manager does not poll; Configure still records the task so a
// future explicit Evaluate call (driven by a change notification) can
// enqueue it.
func (m *Manager) ensureTimer(bucket string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.timers[bucket]; ok {
		return
	}
	t := time.AfterFunc(interval, func() { m.fire(bucket, interval) })
	m.timers[bucket] = t
}

func (m *Manager) fire(bucket string, interval time.Duration) {
	m.Evaluate(context.Background(), bucket)
	m.mu.Lock()
	if _, ok := m.timers[bucket]; ok {
		m.timers[bucket] = time.AfterFunc(interval, func() { m.fire(bucket, interval) })
	}
	m.mu.Unlock()
}

// Evaluate walks every task in bucket and enqueues those whose required
// transport has been up for at least the task's delay and that are not
// already queued or active (SPEC_FULL.md §4.7).
func (m *Manager) Evaluate(ctx context.Context, bucket string) {
	tasks, err := m.store.List(ctx, bucket)
	if err != nil {
		return
	}
	for _, task := range tasks {
		if m.ready(task) && !m.enqueuer.QueuedOrActive(task) {
			transport := RequiredTransport(task.URL)
			if transport == "" {
				transport = "unknown"
			}
			metrics.AutoSyncEnqueued.WithLabelValues(transport).Inc()
			m.enqueuer.Enqueue(task)
		}
	}
}

func (m *Manager) ready(task Task) bool {
	transport := RequiredTransport(task.URL)
	if transport == "" {
		return true
	}
	up, since := m.presence.UpSince(transport)
	if !up {
		return false
	}
	return time.Since(since) >= task.Delay
}

// Stop cancels every running interval timer.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for bucket, t := range m.timers {
		t.Stop()
		delete(m.timers, bucket)
	}
}

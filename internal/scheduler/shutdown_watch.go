package scheduler

import (
	"os"
	"sync"
	"time"
)

// quiescence is how long the watcher waits after the last observed
// modification before declaring the process ready to restart/exit
// (SPEC_FULL.md §4.5 "Shutdown on file change": "a quiescence period of
// 10 s since the last modification").
const quiescence = 10 * time.Second

// ShutdownWatch polls the mtimes of a fixed set of files (the server's own
// binary and any configured backend plugin libraries) and debounces
// modifications into a single quiescent-shutdown trigger. This reuses the
// debounce/worker-channel shape of a SIGHUP-triggered reload pipeline, but
// the trigger is mtime polling rather than a signal, and the end state is
// process replacement or exit, not a live config swap
// (SPEC_FULL.md §4.5).
type ShutdownWatch struct {
	paths        []string
	pollInterval time.Duration
	onQuiescent  func()

	mu           sync.Mutex
	lastModified map[string]time.Time
	pendingSince time.Time
	stop         chan struct{}
	once         sync.Once
}

// NewShutdownWatch returns a watcher over paths, polling every
// pollInterval, invoking onQuiescent once no modification has been seen
// for 10 s. Call Start to begin polling.
func NewShutdownWatch(paths []string, pollInterval time.Duration, onQuiescent func()) *ShutdownWatch {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &ShutdownWatch{
		paths:        paths,
		pollInterval: pollInterval,
		onQuiescent:  onQuiescent,
		lastModified: make(map[string]time.Time),
		stop:         make(chan struct{}),
	}
}

// Start begins polling in a background goroutine; call Stop to end it.
func (w *ShutdownWatch) Start() {
	for _, p := range w.paths {
		if fi, err := os.Stat(p); err == nil {
			w.lastModified[p] = fi.ModTime()
		}
	}
	go w.loop()
}

// Stop ends the polling goroutine.
func (w *ShutdownWatch) Stop() {
	w.once.Do(func() { close(w.stop) })
}

func (w *ShutdownWatch) loop() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.pollOnce(time.Now())
		}
	}
}

// pollOnce checks every watched path for a new mtime, marking the pending
// window as postponed on any new change, and fires onQuiescent once
// quiescence has elapsed since the last detected change. Incoming requests
// postponing quiescence are modeled by callers invoking Postpone.
func (w *ShutdownWatch) pollOnce(now time.Time) {
	w.mu.Lock()
	changed := false
	for _, p := range w.paths {
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		if prev, ok := w.lastModified[p]; !ok || fi.ModTime().After(prev) {
			w.lastModified[p] = fi.ModTime()
			changed = true
		}
	}
	if changed {
		w.pendingSince = now
	}
	pending := !w.pendingSince.IsZero()
	quiescent := pending && now.Sub(w.pendingSince) >= quiescence
	if quiescent {
		w.pendingSince = time.Time{}
	}
	w.mu.Unlock()

	if quiescent {
		w.onQuiescent()
	}
}

// Postpone resets the quiescence window, e.g. because a request arrived
// while the shutdown session was waiting (SPEC_FULL.md §4.5: "Incoming
// requests during quiescence postpone it").
func (w *ShutdownWatch) Postpone() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.pendingSince.IsZero() {
		w.pendingSince = time.Now()
	}
}

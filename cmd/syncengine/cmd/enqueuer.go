package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/syncevo/syncengine/internal/autosync"
	"github.com/syncevo/syncengine/internal/configtree"
	"github.com/syncevo/syncengine/internal/inforeq"
	"github.com/syncevo/syncengine/internal/ipcserver"
	"github.com/syncevo/syncengine/internal/property"
	"github.com/syncevo/syncengine/internal/reportstore"
	"github.com/syncevo/syncengine/internal/scheduler"
	"github.com/syncevo/syncengine/internal/session"
	"github.com/syncevo/syncengine/internal/syncmode"
)

// activationWaitTimeout bounds how long a freshly enqueued auto-sync
// session's driver goroutine waits for the scheduler to actually activate
// it before giving up. Without this bound, a session removed from the
// queue before its turn (e.g. kill-by-device-id) would leak its goroutine
// forever on WaitActive.
const activationWaitTimeout = 30 * time.Second

// resolveSyncMode parses an IPC-supplied mode string, treating "" as "no
// override" per SPEC_FULL.md §4.4 step 4.
func resolveSyncMode(mode string) (syncmode.Mode, error) {
	if mode == "" {
		return "", nil
	}
	m, ok := syncmode.Parse(mode)
	if !ok {
		return "", fmt.Errorf("%w: %q", ipcserver.ErrInvalidSyncMode, mode)
	}
	return m, nil
}

func isSessionBusyErr(err error) bool {
	return errors.Is(err, session.ErrBusy) || errors.Is(err, session.ErrNotActive)
}

// sessionFactory builds and registers sessions against the shared
// scheduler/registry; schedulerEnqueuer (autosync) and ipcSessionStarter
// (the IPC wire binding) each enqueue through it at their own priority.
type sessionFactory struct {
	tree      *configtree.Tree
	registry  *property.Registry
	srcReg    *property.Registry
	notifier  session.Notifier
	infoReq   *inforeq.Manager
	reports   reportstore.Store
	scheduler *scheduler.Scheduler
	sessions  *sessionRegistry
	logger    *slog.Logger

	nextID atomic.Uint64
}

func (f *sessionFactory) start(peerConfigName, idPrefix string, priority scheduler.Priority) *session.Session {
	f.nextID.Add(1)
	id := fmt.Sprintf("%s-%s-%d", idPrefix, peerConfigName, f.nextID.Load())

	persistent := f.tree.Open(peerConfigName, false)
	sess := session.New(id, peerConfigName, persistent, f.registry, f.srcReg, f.notifier, f.infoReq, f.reports, f.logger)

	f.sessions.add(sess)
	f.scheduler.Enqueue(sess, peerConfigName, priority)
	return sess
}

// schedulerEnqueuer implements autosync.Enqueuer: it turns a ready Task
// into a new session filtered to the task's URL and hands it to the
// scheduler at AUTOSYNC priority (SPEC_FULL.md §4.7).
type schedulerEnqueuer struct {
	*sessionFactory
}

func (e *schedulerEnqueuer) Enqueue(task autosync.Task) {
	sess := e.start(task.Peer, "autosync", scheduler.PriorityAutosync)
	// Only this task's URL, not the peer's whole syncURL list, so each
	// endpoint is tried on its own.
	_ = sess.SetConfig(false, true, map[string]string{"syncURL": task.URL})
	go runSession(context.Background(), e.scheduler, e.sessions, e.tree, sess, task.Peer)
}

func (e *schedulerEnqueuer) QueuedOrActive(task autosync.Task) bool {
	return e.sessions.hasPeer(task.Peer)
}

// runSession drives a freshly enqueued session to completion with the stub
// protocol engine, reports its outcome, and releases the scheduler's active
// slot. Auto-sync sessions run immediately on enqueue, unlike IPC-started
// ones which wait for an explicit Sync call (ipcRunner, below). A session
// enqueued behind one already active is still Queueing at this point, so
// it first waits for the scheduler to actually activate it — otherwise
// Sync would fail instantly with ErrNotActive and the scheduler would
// later hand this session's activation to a goroutine that already exited.
func runSession(ctx context.Context, sched *scheduler.Scheduler, sessions *sessionRegistry, tree *configtree.Tree, sess *session.Session, peerConfigName string) {
	waitCtx, cancel := context.WithTimeout(ctx, activationWaitTimeout)
	waitErr := sess.WaitActive(waitCtx)
	cancel()
	if waitErr != nil {
		sessions.remove(sess.ID())
		return
	}

	engine := newStubEngine(tree, peerConfigName, "")
	results, err := sess.Sync(ctx, engine, "")
	finalStatus := 200
	errText := ""
	if err != nil {
		finalStatus = 500
		errText = err.Error()
	}
	sess.FinishWithReport(ctx, finalStatus, results, errText)
	sessions.remove(sess.ID())
	sched.Deactivate(ctx, sess.ID(), peerConfigName)
}

// ipcSessionStarter implements ipcserver.SessionStarter: it creates a
// session for an IPC-initiated StartSession/StartSessionWithFlags/Connect/
// SAN call and enqueues it at the caller's chosen priority, but does not
// run it — that is ipcRunner's job, triggered by a later Sync call
// (SPEC_FULL.md §6).
type ipcSessionStarter struct {
	*sessionFactory
}

func (w *ipcSessionStarter) StartSession(peerConfigName string, priority scheduler.Priority) (string, error) {
	sess := w.start(peerConfigName, "ipc", priority)
	return sess.ID(), nil
}

// ipcRunner implements ipcserver.SessionRunner: it applies any per-source
// mode overrides, drives the session through one synchronization with the
// stub engine, and finalizes it exactly like an auto-sync run.
type ipcRunner struct {
	*sessionFactory
}

func (w *ipcRunner) RunSync(ctx context.Context, sessionID, mode string, sourceModes map[string]string) error {
	sess, ok := w.sessions.getConcrete(sessionID)
	if !ok {
		return ipcserver.ErrSessionNotFound
	}

	m, err := resolveSyncMode(mode)
	if err != nil {
		return err
	}
	for sourceName, srcMode := range sourceModes {
		parsed, err := resolveSyncMode(srcMode)
		if err != nil {
			return err
		}
		under := w.tree.Open(sess.PeerName()+"/sources/"+sourceName, true)
		sess.SourceFilter(sourceName, under).AddFilter("sync", string(parsed))
	}

	engine := newStubEngine(w.tree, sess.PeerName(), m)
	results, err := sess.Sync(ctx, engine, m)
	finalStatus := 200
	errText := ""
	if err != nil {
		finalStatus = 500
		errText = err.Error()
	}
	if err == nil || !isSessionBusyErr(err) {
		sess.FinishWithReport(ctx, finalStatus, results, errText)
		w.sessions.remove(sessionID)
		w.scheduler.Deactivate(ctx, sessionID, sess.PeerName())
	}
	return err
}

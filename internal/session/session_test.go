package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/syncevo/syncengine/internal/configtree"
	"github.com/syncevo/syncengine/internal/inforeq"
	"github.com/syncevo/syncengine/internal/property"
	"github.com/syncevo/syncengine/internal/syncmode"
)

type fakeNotifier struct {
	statuses  []string
	progress  []int
	logLines  []string
}

func (f *fakeNotifier) StatusChanged(sessionID, status string)     { f.statuses = append(f.statuses, status) }
func (f *fakeNotifier) ProgressChanged(sessionID string, p int)     { f.progress = append(f.progress, p) }
func (f *fakeNotifier) LogOutput(sessionID, line string)            { f.logLines = append(f.logLines, line) }

type fakeBroadcaster struct{}

func (fakeBroadcaster) Broadcast(id, sessionPath, state, reqType string, params map[string]string) {}

func newTestSession(t *testing.T) (*Session, *fakeNotifier) {
	t.Helper()
	dir := t.TempDir()
	node := configtree.NewFileNode(filepath.Join(dir, "config.ini"), false)
	registry := property.NewRegistry()
	registry.Register(property.New("username", "", "", false))
	notifier := &fakeNotifier{}
	mgr := inforeq.NewManager(fakeBroadcaster{})
	return New("sess-1", "myphone", node, registry, property.NewRegistry(), notifier, mgr, nil, nil), notifier
}

func TestSetConfigPersistentRejectsUnknownKey(t *testing.T) {
	s, _ := newTestSession(t)
	err := s.SetConfig(false, false, map[string]string{"bogus": "x"})
	if err == nil {
		t.Fatal("SetConfig with unknown key should fail")
	}
}

func TestSetConfigPersistentIgnoresReadOnlyTemplateKeys(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.SetConfig(false, false, map[string]string{"configName": "x", "username": "alice"}); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if v, ok := s.persistent.Read("username"); !ok || v != "alice" {
		t.Errorf("username = (%q,%v), want (alice,true)", v, ok)
	}
	if _, ok := s.persistent.Read("configName"); ok {
		t.Error("configName should have been ignored, not written")
	}
}

func TestSetConfigTemporaryUsesFilterOnly(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.SetConfig(false, true, map[string]string{"username": "bob"}); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if v, ok := s.syncFilter.Read("username"); !ok || v != "bob" {
		t.Errorf("filter read = (%q,%v), want (bob,true)", v, ok)
	}
	if _, ok := s.persistent.Read("username"); ok {
		t.Error("temporary SetConfig must not write through to persistent node")
	}
}

func TestAttachDetachDestructible(t *testing.T) {
	s, _ := newTestSession(t)
	if !s.Destructible(time.Now()) {
		t.Error("fresh session with no attachments should be destructible")
	}
	s.Attach("client-a")
	if s.Destructible(time.Now()) {
		t.Error("attached session should not be destructible")
	}
	s.Detach("client-a")
	if s.Destructible(time.Now()) {
		t.Error("just-detached session should still be within the grace window")
	}
	if !s.Destructible(time.Now().Add(61 * time.Second)) {
		t.Error("session past the grace window should be destructible")
	}
}

type fakeEngine struct {
	runErr error
	ranPW  bool
}

func (e *fakeEngine) Run(ctx context.Context, cb EngineCallbacks) error {
	cb.ReportStatus("running")
	cb.ReportProgress("addressbook", 50)
	return e.runErr
}

func TestSyncRequiresActiveSession(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.Sync(context.Background(), &fakeEngine{}, syncmode.TwoWay)
	if err != ErrNotActive {
		t.Errorf("Sync before Activate = %v, want ErrNotActive", err)
	}
}

func TestSyncRunsEngineAndReturnsToIdle(t *testing.T) {
	s, notifier := newTestSession(t)
	s.Activate()

	_, err := s.Sync(context.Background(), &fakeEngine{}, syncmode.TwoWay)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if s.Status() != "idle" {
		t.Errorf("Status() = %q, want idle", s.Status())
	}
	if len(notifier.statuses) == 0 {
		t.Error("expected at least one StatusChanged notification")
	}
	if v, _ := s.syncFilter.Read("sync"); v != "two-way" {
		t.Errorf("sync filter = %q, want two-way", v)
	}
}

func TestAbortAndSuspendFlags(t *testing.T) {
	s, _ := newTestSession(t)
	if s.AbortRequested() || s.SuspendRequested() {
		t.Fatal("fresh session should have no flags set")
	}
	s.Abort()
	if !s.AbortRequested() {
		t.Error("AbortRequested() = false after Abort()")
	}
	s.Suspend()
	if !s.SuspendRequested() {
		t.Error("SuspendRequested() = false after Suspend()")
	}
}

func TestFinishWithReportOnlyOnce(t *testing.T) {
	s, _ := newTestSession(t)
	s.Activate()
	s.FinishWithReport(context.Background(), 200, nil, "")
	if s.Status() != "done" {
		t.Fatalf("Status() = %q, want done", s.Status())
	}
	// Second call must be a no-op (state already Done); nothing to assert
	// beyond it not panicking since reports is nil in this test.
	s.FinishWithReport(context.Background(), 500, nil, "ignored")
	if s.Error() != 200 {
		t.Errorf("Error() = %d, want 200 (second FinishWithReport must be ignored)", s.Error())
	}
}

package inforeq

import (
	"testing"
	"time"
)

func TestClaimFirstResponderWins(t *testing.T) {
	req := New("id1", "password", "/session/1", nil, time.Minute)
	if !req.Claim("client-a") {
		t.Fatal("first Claim should succeed")
	}
	if req.Claim("client-b") {
		t.Fatal("second Claim should be rejected")
	}
	if req.Handler() != "client-a" {
		t.Errorf("Handler() = %q, want client-a", req.Handler())
	}
}

func TestRespondOnlyFromHandler(t *testing.T) {
	req := New("id1", "password", "/session/1", nil, time.Minute)
	req.Claim("client-a")

	if req.Respond("client-b", map[string]string{"password": "x"}) {
		t.Error("Respond from non-handler should be rejected")
	}
	if !req.Respond("client-a", map[string]string{"password": "x"}) {
		t.Error("Respond from handler should succeed")
	}
	if req.State() != StateDone || req.Status() != StatusOK {
		t.Errorf("state=%v status=%v, want done/ok", req.State(), req.Status())
	}
}

func TestRespondAfterDoneIgnored(t *testing.T) {
	req := New("id1", "password", "/session/1", nil, time.Minute)
	req.Claim("client-a")
	req.Respond("client-a", map[string]string{"password": "x"})

	if req.Respond("client-a", map[string]string{"password": "y"}) {
		t.Error("Respond after DONE should be ignored")
	}
}

func TestWaitTimesOut(t *testing.T) {
	req := New("id1", "password", "/session/1", nil, 10*time.Millisecond)
	status, _ := req.Wait()
	if status != StatusTimeout {
		t.Errorf("status = %v, want Timeout", status)
	}
}

func TestWaitWakesOnRespond(t *testing.T) {
	req := New("id1", "password", "/session/1", nil, time.Minute)
	req.Claim("client-a")

	go func() {
		time.Sleep(5 * time.Millisecond)
		req.Respond("client-a", map[string]string{"password": "secret"})
	}()

	status, resp := req.Wait()
	if status != StatusOK {
		t.Fatalf("status = %v, want OK", status)
	}
	if resp["password"] != "secret" {
		t.Errorf("resp = %v, want password=secret", resp)
	}
}

type fakeBroadcaster struct {
	events []string
}

func (f *fakeBroadcaster) Broadcast(id, sessionPath, state, reqType string, params map[string]string) {
	f.events = append(f.events, state)
}

func TestManagerLifecycleBroadcasts(t *testing.T) {
	b := &fakeBroadcaster{}
	m := NewManager(b)

	req := m.Create("/session/1", "password", map[string]string{"user": "alice"}, time.Minute)
	if !m.Claim(req.ID, "client-a") {
		t.Fatal("Claim failed")
	}
	if !m.Respond(req.ID, "client-a", map[string]string{"password": "x"}) {
		t.Fatal("Respond failed")
	}

	want := []string{"request", "waiting", "done"}
	if len(b.events) != len(want) {
		t.Fatalf("events = %v, want %v", b.events, want)
	}
	for i, e := range want {
		if b.events[i] != e {
			t.Errorf("events[%d] = %q, want %q", i, b.events[i], e)
		}
	}
}

func TestManagerSweepExpiresTimeouts(t *testing.T) {
	b := &fakeBroadcaster{}
	m := NewManager(b)
	req := m.Create("/session/1", "password", nil, time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	m.Sweep(time.Now())

	if req.State() != StateDone || req.Status() != StatusTimeout {
		t.Errorf("state=%v status=%v, want done/timeout", req.State(), req.Status())
	}
}

package presence

import (
	"testing"
	"time"

	"github.com/syncevo/syncengine/internal/eventbus"
)

func TestNewWithNoCollaboratorsFailsOpen(t *testing.T) {
	m := New(nil, nil, nil)
	httpUp, _ := m.UpSince(TransportHTTP)
	btUp, _ := m.UpSince(TransportBluetooth)
	if !httpUp || !btUp {
		t.Error("with no collaborators both transports should be assumed up")
	}
}

type fakeConnMgr struct {
	connected []string
	available []string
}

func (f *fakeConnMgr) ConnectedTechnologies() []string { return f.connected }
func (f *fakeConnMgr) AvailableTechnologies() []string { return f.available }

func TestRefreshDetectsWifiAndBluetooth(t *testing.T) {
	cm := &fakeConnMgr{connected: []string{"wifi"}, available: []string{"bluetooth"}}
	m := New(nil, cm, nil)
	m.Refresh()

	httpUp, _ := m.UpSince(TransportHTTP)
	btUp, _ := m.UpSince(TransportBluetooth)
	if !httpUp {
		t.Error("wifi connected should imply HTTP up")
	}
	if !btUp {
		t.Error("bluetooth available should imply BT up")
	}
}

func TestRefreshRecordsChangeTimeOnTransition(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	restore := timeNow
	timeNow = func() time.Time { return fixed }
	defer func() { timeNow = restore }()

	cm := &fakeConnMgr{}
	m := New(nil, cm, nil)
	_, initialSince := m.UpSince(TransportHTTP)
	if !initialSince.Equal(fixed) {
		t.Fatalf("initial changedAt = %v, want %v", initialSince, fixed)
	}

	later := fixed.Add(time.Hour)
	timeNow = func() time.Time { return later }
	cm.connected = []string{"ethernet"}
	m.Refresh()

	up, since := m.UpSince(TransportHTTP)
	if !up {
		t.Fatal("expected HTTP up after ethernet connects")
	}
	if !since.Equal(later) {
		t.Errorf("changedAt = %v, want %v", since, later)
	}
}

type fakeNetMgr struct{ state NetworkManagerState }

func (f *fakeNetMgr) State() NetworkManagerState { return f.state }

func TestRefreshNetworkManagerStateThreshold(t *testing.T) {
	nm := &fakeNetMgr{state: 40}
	cm := &fakeConnMgr{}
	m := New(nil, cm, nm)
	m.Refresh()
	if up, _ := m.UpSince(TransportHTTP); up {
		t.Error("state below 50 should not imply HTTP up")
	}

	nm.state = 70
	m.Refresh()
	if up, _ := m.UpSince(TransportHTTP); !up {
		t.Error("state >= 50 should imply HTTP up")
	}
}

func TestPeerStatusReachableWhenAnyTransportUp(t *testing.T) {
	m := New(nil, &fakeConnMgr{connected: []string{"wifi"}}, nil)
	m.Refresh()
	status := m.PeerStatus([]string{"http://example.com/sync"})
	if status != "" {
		t.Errorf("PeerStatus() = %q, want empty (reachable)", status)
	}
}

func TestPeerStatusNotPresentWhenTransportDown(t *testing.T) {
	m := New(nil, &fakeConnMgr{}, nil)
	m.Refresh()
	status := m.PeerStatus([]string{"http://example.com/sync"})
	if status != "not present" {
		t.Errorf("PeerStatus() = %q, want \"not present\"", status)
	}
}

func TestPeerStatusNoSyncURLs(t *testing.T) {
	m := New(nil, nil, nil)
	if status := m.PeerStatus(nil); status != "not present" {
		t.Errorf("PeerStatus(nil) = %q, want \"not present\"", status)
	}
}

func TestNotifyPeerPublishesOnlyOnChange(t *testing.T) {
	bus := eventbus.New(8)
	ch := bus.Subscribe("test")
	m := New(bus, &fakeConnMgr{connected: []string{"wifi"}}, nil)
	m.Refresh()

	var last string
	m.NotifyPeer("phone", []string{"http://x"}, &last)
	m.NotifyPeer("phone", []string{"http://x"}, &last) // unchanged, should not republish

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			goto done
		}
	}
done:
	if count != 1 {
		t.Errorf("published %d events, want 1 (second call unchanged)", count)
	}
}

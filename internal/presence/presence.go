// Package presence implements the Presence Monitor (C8): two transport
// booleans (httpPresence, btPresence) derived from optional collaborator
// signals, each with a timer recording the last state change, and a
// per-peer Presence computation over a syncURL list (SPEC_FULL.md §4.8).
package presence

import (
	"strings"
	"sync"
	"time"

	"github.com/syncevo/syncengine/internal/eventbus"
)

// Transport names used throughout this package and by peer syncURL
// scheme sniffing.
const (
	TransportHTTP      = "http"
	TransportBluetooth = "bluetooth"
)

// ConnectionManager mirrors a NetworkManager-adjacent collaborator that
// reports connectivity by named technology (SPEC_FULL.md §4.8).
type ConnectionManager interface {
	ConnectedTechnologies() []string
	AvailableTechnologies() []string
}

// NetworkManagerState is a coarse connectivity state; values >= 50 mean
// "connected-local or better" and imply HTTP is up.
type NetworkManagerState int

const connectedLocalOrBetter NetworkManagerState = 50

// NetworkManager mirrors the freedesktop NetworkManager D-Bus state
// signal boiled down to a single enum getter.
type NetworkManager interface {
	State() NetworkManagerState
}

// Monitor tracks httpPresence/btPresence and publishes per-peer Presence
// signals onto the shared event bus.
type Monitor struct {
	mu sync.Mutex

	connMgr ConnectionManager
	netMgr  NetworkManager
	bus     *eventbus.Bus

	httpUp        bool
	btUp          bool
	httpChangedAt time.Time
	btChangedAt   time.Time
}

// New returns a Monitor. connMgr and/or netMgr may be nil. With both nil,
// every transport is assumed always up (fail-open, per SPEC_FULL.md §4.8:
// "Absence of both collaborators means 'assume everything is up'"). With
// only connMgr nil, Bluetooth is assumed up and HTTP follows netMgr; with
// only netMgr nil, both follow connMgr.
func New(bus *eventbus.Bus, connMgr ConnectionManager, netMgr NetworkManager) *Monitor {
	now := timeNow()
	return &Monitor{
		connMgr:       connMgr,
		netMgr:        netMgr,
		bus:           bus,
		httpUp:        connMgr == nil && netMgr == nil,
		btUp:          connMgr == nil,
		httpChangedAt: now,
		btChangedAt:   now,
	}
}

// timeNow is a seam so tests can avoid wall-clock flakiness; production
// code always calls time.Now.
var timeNow = time.Now

// Refresh re-evaluates collaborator state and records a transition time
// for whichever transport flipped. It should be called whenever the
// collaborators' underlying state may have changed (poll or callback).
func (m *Monitor) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()

	httpUp := false
	btUp := m.btUp

	if m.netMgr != nil && m.netMgr.State() >= connectedLocalOrBetter {
		httpUp = true
	}
	if m.connMgr != nil {
		for _, tech := range m.connMgr.ConnectedTechnologies() {
			switch strings.ToLower(tech) {
			case "wifi", "ethernet", "wimax":
				httpUp = true
			}
		}
		btUp = false
		for _, tech := range m.connMgr.AvailableTechnologies() {
			if strings.ToLower(tech) == "bluetooth" {
				btUp = true
			}
		}
	}
	if m.connMgr == nil && m.netMgr == nil {
		httpUp, btUp = true, true
	}

	now := timeNow()
	if httpUp != m.httpUp {
		m.httpUp = httpUp
		m.httpChangedAt = now
	}
	if btUp != m.btUp {
		m.btUp = btUp
		m.btChangedAt = now
	}
}

// UpSince reports whether transport is currently up and, if so, how long
// it has been continuously up. Unknown transport names are treated as
// always up, matching "any otherwise" from SPEC_FULL.md §4.7.
func (m *Monitor) UpSince(transport string) (up bool, since time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch transport {
	case TransportHTTP:
		return m.httpUp, m.httpChangedAt
	case TransportBluetooth:
		return m.btUp, m.btChangedAt
	default:
		return true, time.Time{}
	}
}

// transportForURL classifies a syncURL's scheme into the presence
// transport it depends on.
func transportForURL(url string) string {
	switch {
	case strings.HasPrefix(url, "obex-bt://"):
		return TransportBluetooth
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"), strings.HasPrefix(url, "local://"):
		return TransportHTTP
	default:
		return ""
	}
}

// PeerStatus computes the Presence signal status for a peer's syncURL
// list: "" (reachable) if any URL's transport is up, "no transport" if
// none of the needed transports are available at all (unknown/fail-open
// transports never trigger this), "not present" otherwise.
func (m *Monitor) PeerStatus(syncURLs []string) string {
	if len(syncURLs) == 0 {
		return "not present"
	}
	anyKnownTransport := false
	for _, url := range syncURLs {
		transport := transportForURL(url)
		up, _ := m.UpSince(transport)
		if up {
			return ""
		}
		if transport == TransportHTTP || transport == TransportBluetooth {
			anyKnownTransport = true
		}
	}
	if !anyKnownTransport {
		return "no transport"
	}
	return "not present"
}

// PresenceEvent is published on the bus (topic "presence") whenever
// NotifyPeer detects the computed status differs from the previous call
// for that peer.
type PresenceEvent struct {
	Peer      string
	Status    string
	Transport string
}

// NotifyPeer publishes a Presence signal for the peer if its status
// changed since the last call (SPEC_FULL.md §4.5 "Notification fan-out").
func (m *Monitor) NotifyPeer(peer string, syncURLs []string, last *string) {
	status := m.PeerStatus(syncURLs)
	if last != nil && *last == status {
		return
	}
	if last != nil {
		*last = status
	}
	transport := TransportHTTP
	if len(syncURLs) > 0 {
		transport = transportForURL(syncURLs[0])
	}
	if m.bus != nil {
		m.bus.Publish("presence", PresenceEvent{Peer: peer, Status: status, Transport: transport})
	}
}

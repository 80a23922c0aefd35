package inforeq

import (
	"fmt"
	"sync"
	"time"
)

// Broadcaster is how a Manager announces request/waiting/done transitions
// to attached clients (SPEC_FULL.md §4.9 steps 1-3). The IPC wire binding
// (A6) implements this over the event bus.
type Broadcaster interface {
	Broadcast(id, sessionPath, state, reqType string, params map[string]string)
}

// Manager tracks every live InfoReq for one server process and is
// responsible for broadcasting its state transitions and sweeping expired
// requests.
type Manager struct {
	mu      sync.Mutex
	reqs    map[string]*Request
	nextID  uint64
	bcast   Broadcaster
}

// NewManager returns a Manager that announces transitions through bcast.
func NewManager(bcast Broadcaster) *Manager {
	return &Manager{reqs: make(map[string]*Request), bcast: bcast}
}

// Create starts a new info-request and broadcasts the initial "request"
// state (SPEC_FULL.md §4.9 step 1).
func (m *Manager) Create(sessionPath, reqType string, params map[string]string, timeout time.Duration) *Request {
	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("infoReq%d", m.nextID)
	req := New(id, reqType, sessionPath, params, timeout)
	m.reqs[id] = req
	m.mu.Unlock()

	m.bcast.Broadcast(id, sessionPath, "request", reqType, params)
	return req
}

// Claim records clientID as the handler and broadcasts "waiting"
// (SPEC_FULL.md §4.9 step 2).
func (m *Manager) Claim(id, clientID string) bool {
	req := m.get(id)
	if req == nil {
		return false
	}
	if !req.Claim(clientID) {
		return false
	}
	m.bcast.Broadcast(id, req.SessionPath, "waiting", req.Type, nil)
	return true
}

// Respond delivers the handler's answer and broadcasts "done"
// (SPEC_FULL.md §4.9 step 3).
func (m *Manager) Respond(id, clientID string, response map[string]string) bool {
	req := m.get(id)
	if req == nil {
		return false
	}
	if !req.Respond(clientID, response) {
		return false
	}
	m.bcast.Broadcast(id, req.SessionPath, "done", req.Type, nil)
	m.remove(id)
	return true
}

// Cancel aborts a pending request, e.g. because its owning session was
// aborted.
func (m *Manager) Cancel(id string) {
	if req := m.get(id); req != nil {
		req.Cancel()
		m.remove(id)
	}
}

// Sweep finishes (TIMEOUT) every request whose deadline has passed. Call
// periodically from the scheduler's event loop.
func (m *Manager) Sweep(now time.Time) {
	m.mu.Lock()
	expired := make([]*Request, 0)
	for _, req := range m.reqs {
		if now.After(req.Deadline()) {
			expired = append(expired, req)
		}
	}
	m.mu.Unlock()

	for _, req := range expired {
		req.Timeout()
		m.remove(req.ID)
	}
}

func (m *Manager) get(id string) *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reqs[id]
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.reqs, id)
	m.mu.Unlock()
}

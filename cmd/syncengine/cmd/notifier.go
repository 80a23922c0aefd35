package cmd

import "github.com/syncevo/syncengine/internal/eventbus"

// busNotifier adapts session.Notifier onto the shared event bus, so every
// StatusChanged/ProgressChanged/LogOutput signal a session emits reaches
// attached WebSocket clients through the A6 wire binding
// (SPEC_FULL.md §4.4, §4.5 "Notification fan-out").
type busNotifier struct {
	bus *eventbus.Bus
}

type statusChangedEvent struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type progressChangedEvent struct {
	SessionID string `json:"sessionId"`
	Progress  int    `json:"progress"`
}

type logOutputEvent struct {
	SessionID string `json:"sessionId"`
	Line      string `json:"line"`
}

func (n busNotifier) StatusChanged(sessionID, status string) {
	n.bus.Publish("StatusChanged", statusChangedEvent{SessionID: sessionID, Status: status})
}

func (n busNotifier) ProgressChanged(sessionID string, progress int) {
	n.bus.Publish("ProgressChanged", progressChangedEvent{SessionID: sessionID, Progress: progress})
}

func (n busNotifier) LogOutput(sessionID, line string) {
	n.bus.Publish("LogOutput", logOutputEvent{SessionID: sessionID, Line: line})
}

// busBroadcaster adapts inforeq.Broadcaster onto the shared event bus
// (SPEC_FULL.md §4.9 "InfoRequest broadcast").
type busBroadcaster struct {
	bus *eventbus.Bus
}

type infoRequestEvent struct {
	ID          string            `json:"id"`
	SessionPath string            `json:"sessionPath"`
	State       string            `json:"state"`
	Type        string            `json:"type"`
	Params      map[string]string `json:"params,omitempty"`
}

func (b busBroadcaster) Broadcast(id, sessionPath, state, reqType string, params map[string]string) {
	b.bus.Publish("InfoRequest", infoRequestEvent{
		ID: id, SessionPath: sessionPath, State: state, Type: reqType, Params: params,
	})
}

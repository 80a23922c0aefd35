package ipcserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/syncevo/syncengine/internal/eventbus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Any origin: this is a local daemon IPC surface, not a public API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHub upgrades /v1/notifications requests to WebSocket connections and
// forwards every event bus signal to each subscriber as a JSON frame
// (SPEC_FULL.md §6 "Wire binding (A6)": "every signal is a frame pushed to
// subscribed clients over a gorilla/websocket connection registered via
// EnableNotifications").
type wsHub struct {
	bus    *eventbus.Bus
	logger *slog.Logger
}

func newWSHub(bus *eventbus.Bus, logger *slog.Logger) *wsHub {
	return &wsHub{bus: bus, logger: logger}
}

func (h *wsHub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	subID := uuid.NewString()
	events := h.bus.Subscribe(subID)
	defer h.bus.Unsubscribe(subID)

	var writeMu sync.Mutex
	closed := make(chan struct{})

	// drain inbound control frames (ping/close) on their own goroutine so
	// the connection's read deadline is serviced even though this client
	// only ever receives.
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				conn.Close()
				return
			}
			frame, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			writeMu.Lock()
			err = conn.WriteMessage(websocket.TextMessage, frame)
			writeMu.Unlock()
			if err != nil {
				conn.Close()
				return
			}
		case <-closed:
			conn.Close()
			return
		}
	}
}

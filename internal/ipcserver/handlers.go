package ipcserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/syncevo/syncengine/internal/scheduler"
	"github.com/syncevo/syncengine/internal/session"
	"github.com/syncevo/syncengine/internal/transport"
)

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []string{
		"GetCapabilities", "GetVersions", "Attach", "Detach", "Connect",
		"StartSession", "StartSessionWithFlags", "GetConfigs", "GetConfig",
		"GetReports", "CheckPresence", "GetSessions", "InfoResponse",
		"EnableNotifications", "DisableNotifications",
	})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"syncengine": "1.0", "syncml": "1.2"})
}

func (s *Server) handleGetConfigs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Configs == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Configs.GetConfigs())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if s.deps.Configs == nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no configuration store wired")
		return
	}
	cfg, err := s.deps.Configs.GetConfig(name)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleGetReports(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	limit := 0
	if v := r.URL.Query().Get("count"); v != "" {
		json.Unmarshal([]byte(v), &limit)
	}
	if s.deps.Reports == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	reports, err := s.deps.Reports.GetReports(r.Context(), name, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "FATAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleInfoResponse(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		State    string            `json:"state"`
		Response map[string]string `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	if s.deps.InfoReq == nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no InfoReq manager wired")
		return
	}

	var ok bool
	switch body.State {
	case "working":
		ok = s.deps.InfoReq.Claim(id, clientIDFor(r))
	case "response":
		ok = s.deps.InfoReq.Respond(id, clientIDFor(r), body.Response)
	default:
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "state must be \"working\" or \"response\"")
		return
	}
	if !ok {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "request not claimable/respondable in its current state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (SessionHandle, bool) {
	id := mux.Vars(r)["id"]
	sess, ok := s.deps.Sessions.Get(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no such session")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       sess.ID(),
		"peer":     sess.PeerName(),
		"status":   sess.Status(),
		"error":    sess.Error(),
		"progress": sess.ProgressData(),
	})
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Attach(clientIDFor(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "attached"})
}

func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Detach(clientIDFor(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "detached"})
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Update    bool              `json:"update"`
		Temporary bool              `json:"temporary"`
		Config    map[string]string `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	// Persistent config mutations require the calling session to hold the
	// active-session lock (SPEC_FULL.md §4.5 "Active-session lock");
	// temporary (session-scoped filter) changes never touch persistent
	// state and are exempt.
	if !body.Temporary && s.deps.Scheduler != nil {
		if err := s.deps.Scheduler.AcquireConfigLock(r.Context(), sess.ID(), sess.PeerName()); err != nil {
			writeError(w, r, http.StatusConflict, "INVALID_CALL", err.Error())
			return
		}
	}
	if err := sess.SetConfig(body.Update, body.Temporary, body.Config); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStartSession implements the root StartSession/StartSessionWithFlags
// calls: it creates, registers, and enqueues a new session for the named
// peer configuration at the requested priority, returning its id
// (SPEC_FULL.md §6). The session does not begin synchronizing until a
// subsequent call to handleSync.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Starter == nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no session starter wired")
		return
	}
	var body struct {
		Peer     string `json:"peer"`
		Priority string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	if body.Peer == "" {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "peer is required")
		return
	}
	priority, ok := parsePriority(body.Priority)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "unknown priority "+body.Priority)
		return
	}
	id, err := s.deps.Starter.StartSession(body.Peer, priority)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "FATAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// handleConnect implements the root Connect call: it either reattaches to
// an already-running session (sessionID given) or starts a new one at
// connection priority, then applies peer-map as a temporary (session-scoped)
// filter (SPEC_FULL.md §6 "Connect(peer-map, must-authenticate,
// session-id?)"). must-authenticate is informational here: password
// prompting, when the engine needs one, is handled by the session's own
// InfoReq flow during Sync, not by this call.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Peer      string            `json:"peer"`
		Config    map[string]string `json:"config"`
		SessionID string            `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	var sess SessionHandle
	if body.SessionID != "" {
		existing, ok := s.deps.Sessions.Get(body.SessionID)
		if !ok {
			writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no such session")
			return
		}
		sess = existing
	} else {
		if s.deps.Starter == nil {
			writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no session starter wired")
			return
		}
		if body.Peer == "" {
			writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "peer is required")
			return
		}
		id, err := s.deps.Starter.StartSession(body.Peer, scheduler.PriorityConnection)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "FATAL", err.Error())
			return
		}
		found, ok := s.deps.Sessions.Get(id)
		if !ok {
			writeError(w, r, http.StatusInternalServerError, "FATAL", "session vanished immediately after creation")
			return
		}
		sess = found
	}

	if len(body.Config) > 0 {
		if err := sess.SetConfig(false, true, body.Config); err != nil {
			writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": sess.ID()})
}

func parsePriority(s string) (scheduler.Priority, bool) {
	switch s {
	case "", "default":
		return scheduler.PriorityDefault, true
	case "cmdline":
		return scheduler.PriorityCmdline, true
	case "connection":
		return scheduler.PriorityConnection, true
	default:
		return 0, false
	}
}

// handleSync implements the per-session Sync(mode, source-modes) call
// (SPEC_FULL.md §6). It blocks until the run completes; see SessionRunner's
// doc comment for why that is acceptable given the current stub engine.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.deps.Runner == nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no session runner wired")
		return
	}
	var body struct {
		Mode        string            `json:"mode"`
		SourceModes map[string]string `json:"sourceModes"`
	}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
			return
		}
	}
	err := s.deps.Runner.RunSync(r.Context(), id, body.Mode, body.SourceModes)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, ErrInvalidSyncMode):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNotActive):
		writeError(w, r, http.StatusConflict, "INVALID_CALL", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "FATAL", err.Error())
	}
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Abort()
	writeJSON(w, http.StatusOK, map[string]string{"status": "aborting"})
}

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Suspend()
	writeJSON(w, http.StatusOK, map[string]string{"status": "suspending"})
}

// handleSAN parses a Server-Alerted Notification payload, matches it
// against local configurations via transport.MatchSANConfig, and enqueues a
// connection-priority session against the match's sync modes
// (SPEC_FULL.md §6 "SAN payload"). When Configs/Starter are not wired it
// falls back to reporting the parsed payload only, which keeps this
// handler usable standalone (e.g. in tests that exercise SAN parsing
// without a full daemon).
func (s *Server) handleSAN(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	payload, err := transport.ParseSAN(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	if s.deps.Configs == nil || s.deps.Starter == nil {
		writeJSON(w, http.StatusOK, payload)
		return
	}

	obexBT := false
	for _, sync := range payload.Syncs {
		if strings.Contains(strings.ToLower(sync.ContentType), "obex") {
			obexBT = true
			break
		}
	}

	var candidates []transport.MatchConfig
	for _, name := range s.deps.Configs.GetConfigs() {
		cfg, err := s.deps.Configs.GetConfig(name)
		if err != nil {
			continue
		}
		global := cfg[""]
		candidates = append(candidates, transport.MatchConfig{
			Name:         name,
			SyncURL:      global["syncURL"],
			BluetoothMAC: global["bluetoothMAC"],
		})
	}

	matchedName, matched := transport.MatchSANConfig(payload.ServerID, obexBT, candidates)
	if !matched {
		writeJSON(w, http.StatusOK, map[string]any{
			"matched":  false,
			"serverID": payload.ServerID,
			"note":     "no local configuration matched; this wire binding does not create new peer configurations from a SAN",
		})
		return
	}

	mode := ""
	if len(payload.Syncs) > 0 {
		mode = payload.Syncs[0].SyncMode
	}
	id, err := s.deps.Starter.StartSession(matchedName, scheduler.PriorityConnection)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "FATAL", err.Error())
		return
	}
	if s.deps.Runner != nil {
		if err := s.deps.Runner.RunSync(r.Context(), id, mode, nil); err != nil {
			writeError(w, r, http.StatusInternalServerError, "FATAL", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matched": true, "config": matchedName, "sessionId": id,
	})
}

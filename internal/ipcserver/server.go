// Package ipcserver is the A6 wire binding: the IPC surface (SPEC_FULL.md
// §6) exposed over HTTP + WebSocket. Every call is a POST/GET routed by
// gorilla/mux; every signal published on the shared event bus is pushed
// to subscribed clients over a gorilla/websocket connection registered
// via EnableNotifications.
package ipcserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/syncevo/syncengine/internal/eventbus"
	"github.com/syncevo/syncengine/internal/inforeq"
	"github.com/syncevo/syncengine/internal/reportstore"
	"github.com/syncevo/syncengine/internal/scheduler"
)

// ErrSessionNotFound is returned by a SessionRunner when sessionID has no
// live session to drive; the wire binding renders it as 404.
var ErrSessionNotFound = errors.New("ipcserver: no such session")

// ErrInvalidSyncMode is returned by a SessionRunner when the requested mode
// or source-mode override is not a recognized sync mode; the wire binding
// renders it as 400.
var ErrInvalidSyncMode = errors.New("ipcserver: invalid sync mode")

// SessionHandle is the per-session surface the wire binding needs; it is
// satisfied by *session.Session.
type SessionHandle interface {
	ID() string
	PeerName() string
	Attach(clientID string)
	Detach(clientID string)
	SetConfig(update, temporary bool, configMap map[string]string) error
	Status() string
	Error() int
	ProgressData() string
	SourceProgress(sourceName string) int
	Abort()
	Suspend()
}

// SessionRegistry looks up and enumerates live sessions.
type SessionRegistry interface {
	Get(id string) (SessionHandle, bool)
	All() []SessionHandle
}

// ConfigReader serves the read-only config surface (GetConfigs/GetConfig).
type ConfigReader interface {
	GetConfigs() []string
	GetConfig(name string) (map[string]map[string]string, error)
}

// SessionStarter creates, registers, and enqueues a new session for
// peerConfigName at the given scheduler priority, returning its id once it
// has been accepted onto the queue (SPEC_FULL.md §6
// "Connect(peer-map, must-authenticate, session-id?)",
// "StartSession(server)", "StartSessionWithFlags(server, flags)"). The
// returned session is not yet synchronizing; a Sync call against
// SessionRunner drives it.
type SessionStarter interface {
	StartSession(peerConfigName string, priority scheduler.Priority) (id string, err error)
}

// SessionRunner drives an already-started session through one
// synchronization attempt with an optional session-level mode override and
// per-source mode overrides (SPEC_FULL.md §6 per-session
// "Sync(mode, source-modes)"). It blocks until the run finishes, reports
// the outcome to the Report Store, and releases the scheduler's active
// slot — acceptable only because the engine behind it (SPEC_FULL.md §9
// "the engine is the only long-lived external object the core cannot
// replace") is the stub seam documented in DESIGN.md; a real protocol
// engine driving this call would run it in the background instead.
type SessionRunner interface {
	RunSync(ctx context.Context, sessionID, mode string, sourceModes map[string]string) error
}

// Deps wires the IPC surface to the engine's live components.
type Deps struct {
	Bus       *eventbus.Bus
	Scheduler *scheduler.Scheduler
	Sessions  SessionRegistry
	Configs   ConfigReader
	Reports   reportstore.Store
	InfoReq   *inforeq.Manager
	Starter   SessionStarter
	Runner    SessionRunner
	Logger    *slog.Logger

	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Server is the HTTP+WebSocket front door for the sync engine daemon.
type Server struct {
	deps   Deps
	router *mux.Router
	hub    *wsHub
}

// New builds the router and registers every route under /v1.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RateLimitPerSecond <= 0 {
		deps.RateLimitPerSecond = 20
	}
	if deps.RateLimitBurst <= 0 {
		deps.RateLimitBurst = 40
	}

	s := &Server{deps: deps, router: mux.NewRouter(), hub: newWSHub(deps.Bus, deps.Logger)}
	limiter := newClientRateLimiter(deps.RateLimitPerSecond, deps.RateLimitBurst)

	s.router.Use(requestIDMiddleware)
	s.router.Use(recoveryMiddleware(deps.Logger))
	s.router.Use(loggingMiddleware(deps.Logger))
	s.router.Use(limiter.middleware)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/capabilities", s.handleCapabilities).Methods(http.MethodGet)
	v1.HandleFunc("/versions", s.handleVersions).Methods(http.MethodGet)
	v1.HandleFunc("/configs", s.handleGetConfigs).Methods(http.MethodGet)
	v1.HandleFunc("/configs/{name}", s.handleGetConfig).Methods(http.MethodGet)
	v1.HandleFunc("/reports/{name}", s.handleGetReports).Methods(http.MethodGet)
	v1.HandleFunc("/san", s.handleSAN).Methods(http.MethodPost)
	v1.HandleFunc("/inforeq/{id}", s.handleInfoResponse).Methods(http.MethodPost)
	v1.HandleFunc("/notifications", s.hub.handleUpgrade).Methods(http.MethodGet)
	v1.HandleFunc("/connect", s.handleConnect).Methods(http.MethodPost)
	v1.HandleFunc("/sessions", s.handleStartSession).Methods(http.MethodPost)

	sessions := v1.PathPrefix("/sessions/{id}").Subrouter()
	sessions.HandleFunc("", s.handleSessionStatus).Methods(http.MethodGet)
	sessions.HandleFunc("/attach", s.handleAttach).Methods(http.MethodPost)
	sessions.HandleFunc("/detach", s.handleDetach).Methods(http.MethodPost)
	sessions.HandleFunc("/config", s.handleSetConfig).Methods(http.MethodPost)
	sessions.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	sessions.HandleFunc("/abort", s.handleAbort).Methods(http.MethodPost)
	sessions.HandleFunc("/suspend", s.handleSuspend).Methods(http.MethodPost)

	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// NewHTTPServer wraps Server in an *http.Server configured with the
// caller's timeouts, ready for ListenAndServe.
func NewHTTPServer(addr string, deps Deps, readTimeout, writeTimeout, idleTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      New(deps),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

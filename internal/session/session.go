package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/syncevo/syncengine/internal/configtree"
	"github.com/syncevo/syncengine/internal/inforeq"
	"github.com/syncevo/syncengine/internal/property"
	"github.com/syncevo/syncengine/internal/reportstore"
)

// readOnlyTemplateKeys are silently ignored by SetConfig(temporary=false):
// they describe the peer template a configuration was created from, not a
// mutable setting (SPEC_FULL.md §4.4 step 3).
var readOnlyTemplateKeys = map[string]bool{
	"configname":   true,
	"description":  true,
	"score":        true,
	"devicename":   true,
	"templatename": true,
	"fingerprint":  true,
}

// detachGrace is how long an idle session with no attached clients is kept
// alive for post-mortem inspection (SPEC_FULL.md §4.4 step 2).
const detachGrace = 60 * time.Second

// passwordPromptTimeout is the default InfoReq deadline for a blocking
// password prompt (SPEC_FULL.md §4.4 "Password prompting").
const passwordPromptTimeout = 120 * time.Second

// Engine abstracts the protocol engine a Sync/Restore/Execute call drives.
// The session owns lifecycle and filters; Engine owns wire-level SyncML
// mechanics and reports progress back through the callbacks passed to Run.
type Engine interface {
	Run(ctx context.Context, cb EngineCallbacks) error
}

// EngineCallbacks is how the protocol engine reports progress and asks for
// a password mid-run.
type EngineCallbacks interface {
	ReportProgress(sourceName string, percent int)
	ReportStatus(status string)
	RequestPassword(params map[string]string) (string, bool)
}

// Session is one C4 sync session: a peer name/id, its request flags, and
// its layered configuration filters.
type Session struct {
	mu sync.Mutex

	id       string
	peerName string
	state    State

	abortRequested   bool
	suspendRequested bool

	attached    map[string]struct{}
	detachedAt  time.Time

	persistent configtree.Node
	syncFilter *configtree.FilterNode // applies to peer settings
	srcFilter  map[string]*configtree.FilterNode // per-source filter, applied to every source

	registry       *property.Registry
	sourceRegistry *property.Registry

	notifier   *throttledNotifier
	infoReqMgr *inforeq.Manager
	reports    reportstore.Store

	progData        string
	sourceProgress   map[string]int
	lastSyncStatus   int
	startedAt        time.Time
	waitingOnIO      bool
	pendingInfoReqID string

	activated chan struct{} // closed once, by Activate

	logger *slog.Logger
}

// New constructs a session in state Queueing.
func New(id, peerName string, persistent configtree.Node, registry, sourceRegistry *property.Registry,
	notifier Notifier, infoReqMgr *inforeq.Manager, reports reportstore.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:             id,
		peerName:       peerName,
		state:          Queueing,
		attached:       make(map[string]struct{}),
		persistent:     persistent,
		syncFilter:     configtree.NewFilterNode(persistent),
		srcFilter:      make(map[string]*configtree.FilterNode),
		registry:       registry,
		sourceRegistry: sourceRegistry,
		notifier:       newThrottledNotifier(notifier),
		infoReqMgr:     infoReqMgr,
		reports:        reports,
		sourceProgress: make(map[string]int),
		activated:      make(chan struct{}),
		logger:         logger.With("session", id, "peer", peerName),
	}
}

// ID and PeerName are the session's identity.
func (s *Session) ID() string       { return s.id }
func (s *Session) PeerName() string { return s.peerName }

// Activate is called by the scheduler when this session becomes the active
// one; it transitions Queueing -> Idle and releases any WaitActive caller.
func (s *Session) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Queueing {
		s.state = Idle
		close(s.activated)
	}
}

// WaitActive blocks until the scheduler activates this session (or ctx is
// done), so a caller enqueued behind another active session doesn't race
// Sync against the scheduler's own activation. It returns immediately if
// the session is already past Queueing.
func (s *Session) WaitActive(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Queueing {
		s.mu.Unlock()
		return nil
	}
	ch := s.activated
	s.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach records a client reference; the scheduler may not destruct an
// idle session while any client is attached (SPEC_FULL.md §4.4 step 2).
func (s *Session) Attach(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached[clientID] = struct{}{}
	s.detachedAt = time.Time{}
}

// Detach releases a client reference. Once the last client detaches, the
// session remains eligible for destruction only after detachGrace elapses.
func (s *Session) Detach(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attached, clientID)
	if len(s.attached) == 0 {
		s.detachedAt = time.Now()
	}
}

// Destructible reports whether the scheduler may tear this idle session
// down: no clients attached, and detachGrace has elapsed since the last one
// left (or none ever attached).
func (s *Session) Destructible(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running {
		return false
	}
	if len(s.attached) > 0 {
		return false
	}
	if s.detachedAt.IsZero() {
		return true
	}
	return now.Sub(s.detachedAt) >= detachGrace
}

// SetConfig applies a configuration change per SPEC_FULL.md §4.4 step 3.
func (s *Session) SetConfig(update, temporary bool, configMap map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !update && !temporary && len(configMap) == 0 {
		return s.removePersistent()
	}

	if temporary {
		s.syncFilter.SetFilter(filterOutTemplateKeys(configMap))
		return nil
	}

	for key, value := range configMap {
		lk := strings.ToLower(key)
		if readOnlyTemplateKeys[lk] {
			continue
		}
		if _, ok := s.registry.Lookup(key); !ok {
			return fmt.Errorf("session: SetConfig: unknown key %q", key)
		}
		if err := s.registry.Check(key, value); err != nil {
			return fmt.Errorf("session: SetConfig: %w", err)
		}
		s.persistent.Write(key, value, "", false)
	}
	return nil
}

func (s *Session) removePersistent() error {
	for key := range s.persistent.ReadAll() {
		s.persistent.Remove(key)
	}
	return nil
}

func filterOutTemplateKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if readOnlyTemplateKeys[strings.ToLower(k)] {
			continue
		}
		out[k] = v
	}
	return out
}

// SourceFilter returns (creating if necessary) the per-source filter node
// applied to every instance of sourceName within this session
// (SPEC_FULL.md §3 "Filter Node (C1)": "a source filter applied to every
// source of this session, plus per-source overrides").
func (s *Session) SourceFilter(sourceName string, under configtree.Node) *configtree.FilterNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.srcFilter[sourceName]
	if !ok {
		f = configtree.NewFilterNode(under)
		s.srcFilter[sourceName] = f
	}
	return f
}

// Status returns the current "state[;waiting]" status string
// (SPEC_FULL.md §4.4 "Status computation").
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := s.state.String()
	if s.state == Running {
		if s.abortRequested {
			base = "aborting"
		} else if s.suspendRequested {
			base = "suspending"
		}
	}
	if s.waitingOnIO {
		base += ";waiting"
	}
	return base
}

// Error returns the last non-zero sync status code observed.
func (s *Session) Error() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncStatus
}

// SourceProgress returns the last reported completion percentage for
// sourceName, populating m_sourceProgress as the engine's callbacks feed it
// (SPEC_FULL.md §4.4 step 4).
func (s *Session) SourceProgress(sourceName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceProgress[sourceName]
}

// ProgressData returns the last free-form progress string reported by the
// engine (m_progData).
func (s *Session) ProgressData() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progData
}

// Abort is terminal: the next engine poll tears the session down. Any
// outstanding password prompt is cancelled, unblocking the sync thread
// immediately (SPEC_FULL.md §4.9 step 4).
func (s *Session) Abort() {
	s.mu.Lock()
	s.abortRequested = true
	reqID := s.pendingInfoReqID
	s.mu.Unlock()

	if reqID != "" && s.infoReqMgr != nil {
		s.infoReqMgr.Cancel(reqID)
	}
}

// Suspend asks for a graceful end-of-message stop that allows resuming.
// Per the resolved Open Question (SPEC_FULL.md §9), Suspend is honored
// only after any outstanding InfoReq resolves or times out.
func (s *Session) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspendRequested = true
}

func (s *Session) AbortRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortRequested
}

func (s *Session) SuspendRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspendRequested
}

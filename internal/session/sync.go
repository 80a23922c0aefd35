package session

import (
	"context"
	"errors"
	"time"

	"github.com/syncevo/syncengine/internal/inforeq"
	"github.com/syncevo/syncengine/internal/reportstore"
	"github.com/syncevo/syncengine/internal/syncmode"
)

// ErrBusy is returned when Sync or Restore is attempted while another
// long-running operation is already in progress. Execute does not check for
// a running operation and never returns it.
var ErrBusy = errors.New("session: another operation is already in progress")

// ErrNotActive is returned when Sync is attempted before the scheduler has
// made this session active.
var ErrNotActive = errors.New("session: session is not active")

// SourceResult is the caller-supplied per-source outcome after a Sync run,
// used to build the SessionReport handed to the report store.
type SourceResult struct {
	Name    string
	New     int
	Updated int
	Deleted int
	Status  int
}

// Sync drives engine through one synchronization. mode overrides every
// source's configured mode at the sync-filter level unless "" (preserve
// each source's own mode); per-source overrides are expected to already be
// applied to that source's filter (via SourceFilter) before Sync is called
// (SPEC_FULL.md §4.4 step 4: "per-session source filter, then per-source
// override from the map, then sync=<mode> if given at source scope").
func (s *Session) Sync(ctx context.Context, engine Engine, mode syncmode.Mode) ([]SourceResult, error) {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		if s.state == Running {
			return nil, ErrBusy
		}
		return nil, ErrNotActive
	}
	s.state = Running
	s.startedAt = time.Now()
	s.mu.Unlock()

	if mode != "" {
		s.syncFilter.AddFilter("sync", syncmode.Canonical(mode))
	}

	cb := &sessionCallbacks{session: s}
	err := engine.Run(ctx, cb)

	s.mu.Lock()
	s.state = Idle
	if err != nil {
		s.lastSyncStatus = 500
	}
	s.mu.Unlock()

	return cb.results, err
}

// sessionCallbacks adapts EngineCallbacks to the session's rate-limited
// notifier and password-prompt machinery.
type sessionCallbacks struct {
	session *Session
	results []SourceResult
}

func (c *sessionCallbacks) ReportProgress(sourceName string, percent int) {
	c.session.mu.Lock()
	c.session.sourceProgress[sourceName] = percent
	c.session.mu.Unlock()
	c.session.notifier.progressChanged(c.session.id, percent, false)
}

func (c *sessionCallbacks) ReportStatus(status string) {
	c.session.mu.Lock()
	c.session.progData = status
	c.session.mu.Unlock()
	c.session.notifier.statusChanged(c.session.id, status, false)
}

// RequestPassword blocks the calling (single) sync goroutine on an InfoReq
// until answered, timed out, or the session is aborted
// (SPEC_FULL.md §4.4 "Password prompting").
func (c *sessionCallbacks) RequestPassword(params map[string]string) (string, bool) {
	s := c.session
	if s.infoReqMgr == nil {
		return "", false
	}
	req := s.infoReqMgr.Create(s.id, "password", params, passwordPromptTimeout)

	s.mu.Lock()
	s.waitingOnIO = true
	s.pendingInfoReqID = req.ID
	s.mu.Unlock()

	status, resp := req.Wait()

	s.mu.Lock()
	s.waitingOnIO = false
	s.pendingInfoReqID = ""
	s.mu.Unlock()

	if status != inforeq.StatusOK {
		return "", false
	}
	return resp["password"], true
}

// FinishWithReport builds and hands off a SessionReport once the caller has
// driven the session to DONE, exactly once
// (SPEC_FULL.md §4.4 "On reaching DONE").
func (s *Session) FinishWithReport(ctx context.Context, finalStatus int, results []SourceResult, errText string) {
	s.mu.Lock()
	if s.state == Done {
		s.mu.Unlock()
		return
	}
	s.state = Done
	s.lastSyncStatus = finalStatus
	started := s.startedAt
	s.mu.Unlock()

	if s.reports == nil {
		return
	}

	report := reportstore.SessionReport{
		SessionID:      s.id,
		PeerConfigName: s.peerName,
		StartedAt:      started,
		FinishedAt:     time.Now(),
		FinalStatus:    finalStatus,
		ErrorText:      errText,
	}
	for _, r := range results {
		report.SourceReports = append(report.SourceReports, reportstore.SourceReport{
			SourceName: r.Name, New: r.New, Updated: r.Updated, Deleted: r.Deleted, Status: r.Status,
		})
	}

	if err := s.reports.PutReport(ctx, report); err != nil {
		s.logger.Error("report store write failed", "error", err)
	}
}

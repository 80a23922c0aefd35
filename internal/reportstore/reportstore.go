// Package reportstore persists terminal SessionReports and serves
// GetReports (SPEC_FULL.md §4.4 "On reaching DONE", A5). Two backends are
// provided: an embedded SQLite store for the Lite deployment profile and a
// Postgres store (via pgx) for the Standard profile, selected by
// NewForProfile the way the teacher's storage factory picks a backend by
// deployment size.
package reportstore

import (
	"context"
	"time"
)

// SourceReport is one source's outcome within a finished session.
type SourceReport struct {
	SourceName string
	New        int
	Updated    int
	Deleted    int
	Status     int
}

// SessionReport is one finished session, written exactly once when the
// session reaches DONE (SPEC_FULL.md §3 "Session Report (A5)").
type SessionReport struct {
	SessionID      string
	PeerConfigName string
	PeerDeviceID   string
	StartedAt      time.Time
	FinishedAt     time.Time
	FinalStatus    int
	SourceReports  []SourceReport
	ErrorText      string
}

// Store persists and retrieves SessionReports.
type Store interface {
	// PutReport writes report. A store failure must be logged by the
	// caller but never reopens the session that produced it
	// (SPEC_FULL.md §4.4: "best-effort relative to the sync itself").
	PutReport(ctx context.Context, report SessionReport) error

	// GetReports returns up to limit reports for peerConfigName, most
	// recent first. limit<=0 means no limit.
	GetReports(ctx context.Context, peerConfigName string, limit int) ([]SessionReport, error)

	Close() error
}

package reportstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteStore is the embedded-database backend used by the Lite deployment
// profile: a single file, no external server, adequate for a desktop or
// single-user SyncML daemon.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed report store
// at path and runs pending migrations.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("reportstore: open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writers
	if err := Migrate(db, "sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) PutReport(ctx context.Context, report SessionReport) error {
	sources, err := json.Marshal(report.SourceReports)
	if err != nil {
		return fmt.Errorf("reportstore: marshal source reports: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_reports
			(session_id, peer_config_name, peer_device_id, started_at, finished_at, final_status, source_reports, error_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			final_status = excluded.final_status,
			source_reports = excluded.source_reports,
			error_text = excluded.error_text
	`, report.SessionID, report.PeerConfigName, report.PeerDeviceID,
		report.StartedAt.UTC(), report.FinishedAt.UTC(), report.FinalStatus, string(sources), report.ErrorText)
	if err != nil {
		return fmt.Errorf("reportstore: put report %q: %w", report.SessionID, err)
	}
	return nil
}

func (s *sqliteStore) GetReports(ctx context.Context, peerConfigName string, limit int) ([]SessionReport, error) {
	query := `
		SELECT session_id, peer_config_name, peer_device_id, started_at, finished_at, final_status, source_reports, error_text
		FROM session_reports
		WHERE peer_config_name = ?
		ORDER BY finished_at DESC
	`
	args := []any{peerConfigName}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reportstore: get reports for %q: %w", peerConfigName, err)
	}
	defer rows.Close()

	var out []SessionReport
	for rows.Next() {
		var r SessionReport
		var sources string
		var started, finished time.Time
		if err := rows.Scan(&r.SessionID, &r.PeerConfigName, &r.PeerDeviceID, &started, &finished, &r.FinalStatus, &sources, &r.ErrorText); err != nil {
			return nil, fmt.Errorf("reportstore: scan report: %w", err)
		}
		r.StartedAt, r.FinishedAt = started, finished
		if err := json.Unmarshal([]byte(sources), &r.SourceReports); err != nil {
			return nil, fmt.Errorf("reportstore: unmarshal source reports for %q: %w", r.SessionID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error { return s.db.Close() }

package reportstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// postgresStore is the Standard deployment profile backend: a shared
// Postgres instance serving multiple concurrent sync processes, accessed
// through pgx's database/sql adapter so it can share the same Migrate
// helper as the SQLite backend.
type postgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to dsn and runs pending migrations.
func NewPostgresStore(dsn string) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("reportstore: open postgres: %w", err)
	}
	if err := Migrate(db, "postgres"); err != nil {
		db.Close()
		return nil, err
	}
	return &postgresStore{db: db}, nil
}

func (s *postgresStore) PutReport(ctx context.Context, report SessionReport) error {
	sources, err := json.Marshal(report.SourceReports)
	if err != nil {
		return fmt.Errorf("reportstore: marshal source reports: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_reports
			(session_id, peer_config_name, peer_device_id, started_at, finished_at, final_status, source_reports, error_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE SET
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

func (s *postgresStore) GetReports(ctx context.Context, peerConfigName string, limit int) ([]SessionReport, error) {
	query := `
		SELECT session_id, peer_config_name, peer_device_id, started_at, finished_at, final_status, source_reports, error_text
		FROM session_reports
		WHERE peer_config_name = $1
		ORDER BY finished_at DESC
	`
	args := []any{peerConfigName}
	if limit > 0 {
		query += " LIMIT $2"
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

func (s *postgresStore) Close() error { return s.db.Close() }

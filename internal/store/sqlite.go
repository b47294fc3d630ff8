package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/planner/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			job_id TEXT,
			user_id TEXT,
			status TEXT NOT NULL,
			meta TEXT,
			percent INTEGER NOT NULL DEFAULT 0,
			progress TEXT,
			result TEXT,
			metrics TEXT,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME,
			ended_at DATETIME,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_user ON runs(user_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, ts)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			run_id TEXT NOT NULL,
			decision_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			phase TEXT,
			agent TEXT,
			chosen TEXT,
			reasoning TEXT,
			record TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (run_id, decision_id),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullJSON(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

const runColumns = `run_id, job_id, user_id, status, meta, percent, progress, result, metrics, started_at, updated_at, ended_at, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var run domain.Run
	var jobID, userID, meta, progress, result, metrics, errData sql.NullString
	var updatedAt, endedAt sql.NullTime
	if err := row.Scan(&run.RunID, &jobID, &userID, &run.Status, &meta, &run.Percent, &progress, &result, &metrics,
		&run.StartedAt, &updatedAt, &endedAt, &errData); err != nil {
		return nil, err
	}
	run.JobID = jobID.String
	run.UserID = userID.String
	if meta.Valid {
		run.Meta = json.RawMessage(meta.String)
	}
	if progress.Valid {
		run.Progress = json.RawMessage(progress.String)
	}
	if result.Valid {
		run.Result = json.RawMessage(result.String)
	}
	if metrics.Valid {
		run.Metrics = json.RawMessage(metrics.String)
	}
	if updatedAt.Valid {
		run.UpdatedAt = &updatedAt.Time
	}
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	if errData.Valid {
		run.Error = json.RawMessage(errData.String)
	}
	return &run, nil
}

// CreateRun creates a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, job_id, user_id, status, meta, percent, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.JobID, run.UserID, run.Status, nullJSON(run.Meta), run.Percent, run.StartedAt)
	return err
}

// GetRun retrieves a run by ID. It returns nil when the run does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListRuns lists recent runs, newest first. An empty userID lists all.
func (s *SQLiteStore) ListRuns(ctx context.Context, userID string, limit int) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// UpdateRunStatus updates the status of a run.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE run_id = ?`,
		status, time.Now(), runID)
	return err
}

// UpdateRunProgress stores a partial result.
func (s *SQLiteStore) UpdateRunProgress(ctx context.Context, runID string, percent int, progress []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET percent = ?, progress = ?, updated_at = ? WHERE run_id = ?`,
		percent, nullJSON(progress), time.Now(), runID)
	return err
}

// FinalizeRun moves a run to a terminal state.
func (s *SQLiteStore) FinalizeRun(ctx context.Context, runID string, status domain.RunStatus, result, metrics, errData []byte) error {
	now := time.Now()
	percent := 0
	if status == domain.RunStatusDone {
		percent = 100
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, result = ?, metrics = ?, error = ?, ended_at = ?, updated_at = ?,
		 percent = MAX(percent, ?) WHERE run_id = ?`,
		status, nullJSON(result), nullJSON(metrics), nullJSON(errData), now, now, percent, runID)
	return err
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, run_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.RunID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a run in insertion order.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, run_id, ts, type, payload FROM events WHERE run_id = ?`
	args := []interface{}{runID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.RunID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// RecordDecision appends a decision to the audit log. Recording the same
// decision id twice keeps the first copy.
func (s *SQLiteStore) RecordDecision(ctx context.Context, runID string, d domain.Decision) error {
	record, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO decisions (run_id, decision_id, type, phase, agent, chosen, reasoning, record, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, d.ID, d.Type, d.Phase, d.Agent, d.Chosen, d.Reasoning, string(record), d.Timestamp)
	return err
}

// ListDecisions returns decisions with an id greater than afterID.
func (s *SQLiteStore) ListDecisions(ctx context.Context, runID string, afterID int64, limit int) ([]domain.Decision, error) {
	query := `SELECT record FROM decisions WHERE run_id = ? AND decision_id > ? ORDER BY decision_id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, runID, afterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []domain.Decision
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var d domain.Decision
		if err := json.Unmarshal([]byte(record), &d); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

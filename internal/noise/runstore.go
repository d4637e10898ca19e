package noise

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RunRecord is a persisted pipeline run manifest.
type RunRecord struct {
	RunID       string     `json:"run_id"`
	InputPath   string     `json:"input_path"`
	OutputPath  string     `json:"output_path"`
	Status      string     `json:"status"`
	Stage       string     `json:"stage"`
	Params      string     `json:"params,omitempty"`
	RecordCount int64      `json:"record_count"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunStore persists run manifests to sqlite. All methods are safe to
// call from a single pipeline goroutine; concurrent writers from other
// processes are handled by the busy retry.
type RunStore struct {
	db *sql.DB
}

const runSchema = `
CREATE TABLE IF NOT EXISTS noise_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL UNIQUE,
	input_path TEXT NOT NULL,
	output_path TEXT NOT NULL,
	status TEXT NOT NULL,
	stage TEXT NOT NULL,
	params TEXT,
	record_count INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	started_at TEXT NOT NULL,
	completed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_noise_runs_status ON noise_runs(status);
`

// OpenRunStore opens (creating if needed) the run manifest database at path.
func OpenRunStore(path string) (*RunStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening run store %s: %w", path, err)
	}
	if _, err := db.Exec(runSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing run store schema: %w", err)
	}
	return &RunStore{db: db}, nil
}

// Close closes the underlying database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// InsertRun creates a run record when a pipeline run starts.
func (s *RunStore) InsertRun(rec RunRecord, p Params) error {
	paramsJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding params for run %s: %w", rec.RunID, err)
	}
	query := `
		INSERT INTO noise_runs (
			run_id, input_path, output_path, status, stage, params, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	err = retryOnBusy(func() error {
		_, err := s.db.Exec(query,
			rec.RunID,
			rec.InputPath,
			rec.OutputPath,
			rec.Status,
			rec.Stage,
			string(paramsJSON),
			rec.StartedAt.UTC().Format(time.RFC3339),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", rec.RunID, err)
	}
	return nil
}

// UpdateRunResult updates a run record on completion or failure.
func (s *RunStore) UpdateRunResult(runID, status, stage string, recordCount int64, errMsg string) error {
	query := `
		UPDATE noise_runs
		SET status = ?, stage = ?, record_count = ?, error = ?, completed_at = ?
		WHERE run_id = ?
	`
	completedAt := time.Now().UTC().Format(time.RFC3339)
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(query, status, stage, recordCount, nullStr(errMsg), completedAt, runID)
		return err
	})
	if err != nil {
		return fmt.Errorf("updating run %s: %w", runID, err)
	}
	return nil
}

// GetRun retrieves a run record by run ID.
func (s *RunStore) GetRun(runID string) (*RunRecord, error) {
	query := `
		SELECT run_id, input_path, output_path, status, stage, params,
		       record_count, error, started_at, completed_at
		FROM noise_runs WHERE run_id = ?
	`
	var rec RunRecord
	var params, errMsg, completedAt sql.NullString
	var startedAt string
	err := s.db.QueryRow(query, runID).Scan(
		&rec.RunID, &rec.InputPath, &rec.OutputPath, &rec.Status, &rec.Stage,
		&params, &rec.RecordCount, &errMsg, &startedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", runID, err)
	}
	rec.Params = params.String
	rec.Error = errMsg.String
	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		rec.StartedAt = t
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			rec.CompletedAt = &t
		}
	}
	return &rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT run_id, input_path, output_path, status, stage,
		       record_count, error, started_at, completed_at
		FROM noise_runs ORDER BY id DESC LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var errMsg, completedAt sql.NullString
		var startedAt string
		if err := rows.Scan(
			&rec.RunID, &rec.InputPath, &rec.OutputPath, &rec.Status, &rec.Stage,
			&rec.RecordCount, &errMsg, &startedAt, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		rec.Error = errMsg.String
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			rec.StartedAt = t
		}
		if completedAt.Valid {
			if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
				rec.CompletedAt = &t
			}
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// retryOnBusy retries fn a few times when sqlite reports a locked
// database, as happens when another process holds the write lock.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		msg := err.Error()
		if !strings.Contains(msg, "database is locked") && !strings.Contains(msg, "SQLITE_BUSY") {
			return err
		}
		time.Sleep(time.Duration(i+1) * 50 * time.Millisecond)
	}
	return err
}

// nullStr returns nil for empty strings, pointer to string otherwise.
func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Package runstore records training runs and their per-step metrics in a
// SQLite database.
package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

// schemaVersion is bumped whenever the schema changes.
const schemaVersion = 1

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one training run.
type Run struct {
	ID         string
	CreatedAt  time.Time
	Status     string
	Config     string // YAML
	Checkpoint string
	Steps      int
}

// Step holds the metrics of one training iteration.
type Step struct {
	Iteration      int
	Loss           float64
	Reconstruction float64
	KL             float64
	ELBO           float64
	Beta           float64
	GradNorm       float64
	RecordedAt     time.Time
}

// Store wraps the SQLite connection. SQLite serializes writers itself and
// WAL mode keeps readers from blocking them, so no application lock is needed.
type Store struct {
	conn *sql.DB
}

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	dsn := path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	if path == ":memory:" {
		dsn = ":memory:?_foreign_keys=on"
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would see its own empty database.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return s.conn.Close()
}

func (s *Store) init() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL DEFAULT %d
	);

	INSERT OR IGNORE INTO meta (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		config TEXT NOT NULL DEFAULT '',
		checkpoint TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS steps (
		run_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		loss REAL NOT NULL,
		reconstruction REAL NOT NULL,
		kl REAL NOT NULL,
		elbo REAL NOT NULL,
		beta REAL NOT NULL,
		grad_norm REAL NOT NULL,
		recorded_at TIMESTAMP NOT NULL,
		PRIMARY KEY (run_id, iteration),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`, schemaVersion)

	if _, err := s.conn.Exec(schema); err != nil {
		return err
	}

	var version int
	if err := s.conn.QueryRow("SELECT schema_version FROM meta WHERE id = 1").Scan(&version); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, schemaVersion)
	}
	return nil
}

// CreateRun registers a new run and returns its id.
func (s *Store) CreateRun(ctx context.Context, config string) (string, error) {
	id := uuid.NewString()
	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO runs (id, created_at, config) VALUES (?, ?, ?)",
		id, time.Now().UTC(), config)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun sets the final status and checkpoint path of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status, checkpoint string) error {
	res, err := s.conn.ExecContext(ctx,
		"UPDATE runs SET status = ?, checkpoint = ? WHERE id = ?",
		status, checkpoint, runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// ResumeRun marks a run as running again and replaces its configuration.
// The last checkpoint path is kept until FinishRun.
func (s *Store) ResumeRun(ctx context.Context, runID, config string) error {
	res, err := s.conn.ExecContext(ctx,
		"UPDATE runs SET status = ?, config = ? WHERE id = ?",
		StatusRunning, config, runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// RecordStep stores the metrics for one iteration. Recording the same
// iteration twice keeps the latest values.
func (s *Store) RecordStep(ctx context.Context, runID string, step Step) error {
	if step.RecordedAt.IsZero() {
		step.RecordedAt = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO steps
			(run_id, iteration, loss, reconstruction, kl, elbo, beta, grad_norm, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, step.Iteration, step.Loss, step.Reconstruction, step.KL, step.ELBO,
		step.Beta, step.GradNorm, step.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// Steps returns the recorded steps of a run in iteration order.
func (s *Store) Steps(ctx context.Context, runID string) ([]Step, error) {
	if _, err := s.Run(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT iteration, loss, reconstruction, kl, elbo, beta, grad_norm, recorded_at
		FROM steps WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var st Step
		if err := rows.Scan(&st.Iteration, &st.Loss, &st.Reconstruction, &st.KL,
			&st.ELBO, &st.Beta, &st.GradNorm, &st.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

const runColumns = `
	SELECT r.id, r.created_at, r.status, r.config, r.checkpoint, COUNT(s.iteration)
	FROM runs r LEFT JOIN steps s ON s.run_id = r.id`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.CreatedAt, &r.Status, &r.Config, &r.Checkpoint, &r.Steps)
	return r, err
}

// Run returns a single run.
func (s *Store) Run(ctx context.Context, runID string) (Run, error) {
	r, err := scanRun(s.conn.QueryRowContext(ctx, runColumns+" WHERE r.id = ? GROUP BY r.id", runID))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("query run: %w", err)
	}
	return r, nil
}

// Runs returns all runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.QueryContext(ctx, runColumns+" GROUP BY r.id ORDER BY r.created_at DESC, r.rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

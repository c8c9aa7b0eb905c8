package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cwygoda/papers/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    category    TEXT NOT NULL,
    start_year  INTEGER NOT NULL,
    end_year    INTEGER NOT NULL,
    dest        TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'running',
    error       TEXT,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

CREATE TABLE IF NOT EXISTS year_results (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    year        INTEGER NOT NULL,
    label       TEXT NOT NULL,
    state       TEXT NOT NULL,
    files       INTEGER NOT NULL DEFAULT 0,
    bytes       INTEGER NOT NULL DEFAULT 0,
    url         TEXT,
    error       TEXT,
    recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (run_id, year)
);
`

// Repository implements domain.RunRepository using SQLite.
type Repository struct {
	db *sql.DB
}

// New creates a new SQLite repository, initializing the schema if needed.
func New(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, err
	}
	// Year tasks record concurrently; a single connection serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new run.
func (r *Repository) Create(ctx context.Context, run *domain.Run) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, category, start_year, end_year, dest, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Category), int(run.StartYear), int(run.EndYear), run.Dest, string(run.Status), run.StartedAt.UTC(),
	)
	return err
}

// Get retrieves a run and its year results.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, category, start_year, end_year, dest, status, COALESCE(error, ''), started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT year, label, state, files, bytes, COALESCE(url, ''), COALESCE(error, '')
		 FROM year_results WHERE run_id = ? ORDER BY year ASC`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var res domain.YearResult
		var year int
		var state string
		if err := rows.Scan(&year, &res.Label, &state, &res.Files, &res.Bytes, &res.URL, &res.Error); err != nil {
			return nil, err
		}
		res.Year = domain.Year(year)
		res.State = domain.TaskState(state)
		run.Years = append(run.Years, res)
	}
	return run, rows.Err()
}

// List returns the most recent runs without their year results.
func (r *Repository) List(ctx context.Context, limit int) ([]domain.Run, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, category, start_year, end_year, dest, status, COALESCE(error, ''), started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
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

// RecordYear upserts the outcome of one year.
func (r *Repository) RecordYear(ctx context.Context, runID string, res domain.YearResult) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO year_results (run_id, year, label, state, files, bytes, url, error, recorded_at)
		 SELECT id, ?, ?, ?, ?, ?, ?, ?, ? FROM runs WHERE id = ?
		 ON CONFLICT(run_id, year) DO UPDATE SET
		     label = excluded.label, state = excluded.state, files = excluded.files,
		     bytes = excluded.bytes, url = excluded.url, error = excluded.error,
		     recorded_at = excluded.recorded_at`,
		int(res.Year), res.Label, string(res.State), res.Files, res.Bytes, res.URL, res.Error, time.Now().UTC(), runID,
	)
	if err != nil {
		return err
	}
	return expectOne(result)
}

// Finish sets the final status of a run.
func (r *Repository) Finish(ctx context.Context, id string, status domain.RunStatus, reason string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = NULLIF(?, ''), finished_at = ? WHERE id = ?`,
		string(status), reason, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return expectOne(result)
}

// RecoverStale marks runs still "running" as interrupted (for crash recovery).
// Runs that live reports as owned by another process keep their status.
func (r *Repository) RecoverStale(ctx context.Context, live domain.RunLiveness) (int64, error) {
	running, err := r.runsWithStatus(ctx, domain.RunRunning)
	if err != nil {
		return 0, err
	}

	var recovered int64
	for _, run := range running {
		if live != nil && live(run) {
			continue
		}
		// The run may have finished since it was listed.
		result, err := r.db.ExecContext(ctx,
			`UPDATE runs SET status = ?, error = 'interrupted before completion', finished_at = ?
			 WHERE id = ? AND status = ?`,
			string(domain.RunInterrupted), time.Now().UTC(), run.ID, string(domain.RunRunning),
		)
		if err != nil {
			return recovered, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return recovered, err
		}
		recovered += n
	}
	return recovered, nil
}

func (r *Repository) runsWithStatus(ctx context.Context, status domain.RunStatus) ([]domain.Run, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, category, start_year, end_year, dest, status, COALESCE(error, ''), started_at, finished_at
		 FROM runs WHERE status = ? ORDER BY started_at ASC`, string(status),
	)
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

func expectOne(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var run domain.Run
	var category, status string
	var start, end int
	var finished sql.NullTime
	err := row.Scan(&run.ID, &category, &start, &end, &run.Dest, &status, &run.Error, &run.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Category = domain.Category(category)
	run.StartYear = domain.Year(start)
	run.EndYear = domain.Year(end)
	run.Status = domain.RunStatus(status)
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

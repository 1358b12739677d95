// Package history records every quilt render in a small SQLite database so
// earlier runs can be listed and repeated.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// State is the outcome of a run.
type State int

const (
	StateRunning State = iota
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// MarshalJSON serializes State as a lowercase string.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(s.String()))
}

// UnmarshalJSON accepts the strings written by MarshalJSON.
func (s *State) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "running":
		*s = StateRunning
	case "completed":
		*s = StateCompleted
	case "failed":
		*s = StateFailed
	case "cancelled":
		*s = StateCancelled
	default:
		return fmt.Errorf("unknown run state %q", str)
	}
	return nil
}

// Run is one invocation of the render command.
type Run struct {
	ID         string    `json:"id"`
	Args       []string  `json:"args"`
	Inputs     []string  `json:"inputs"`
	Output     string    `json:"output"`
	State      State     `json:"state"`
	Log        []string  `json:"log,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is how long the run took, or zero while it is still running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.CreatedAt)
}

// Summary renders r as a single line for listings.
func (r Run) Summary() string {
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	line := fmt.Sprintf("%s  %-9s  %s  %s", id, r.State, humanize.Time(r.CreatedAt), r.Output)
	if r.Error != "" {
		line += "  (" + r.Error + ")"
	}
	return line
}

// Store persists runs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an open database, creating the runs table if needed.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.createRunsTable(); err != nil {
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createRunsTable() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		args TEXT, -- JSON array
		inputs TEXT, -- JSON array
		output TEXT,
		state INTEGER NOT NULL,
		log TEXT, -- JSON array
		error TEXT,
		created_at INTEGER NOT NULL, -- unix nanoseconds
		finished_at INTEGER
	)`)
	return err
}

// Start records a new running run and returns it.
func (s *Store) Start(ctx context.Context, args, inputs []string, output string) (*Run, error) {
	r := &Run{
		ID:        uuid.New().String(),
		Args:      args,
		Inputs:    inputs,
		Output:    output,
		State:     StateRunning,
		CreatedAt: time.Now(),
	}
	if err := s.save(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Finish stores the outcome of r. A nil runErr completes the run, a
// cancelled context cancels it, anything else fails it.
func (s *Store) Finish(ctx context.Context, r *Run, runErr error) error {
	r.FinishedAt = time.Now()
	switch {
	case runErr == nil:
		r.State = StateCompleted
	case errors.Is(runErr, context.Canceled):
		r.State = StateCancelled
		r.Error = runErr.Error()
	default:
		r.State = StateFailed
		r.Error = runErr.Error()
	}
	return s.save(ctx, r)
}

func (s *Store) save(ctx context.Context, r *Run) error {
	argsJSON, _ := json.Marshal(r.Args)
	inputsJSON, _ := json.Marshal(r.Inputs)
	logJSON, _ := json.Marshal(r.Log)

	var finished int64
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.UnixNano()
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO runs (
		id, args, inputs, output, state, log, error, created_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		string(argsJSON),
		string(inputsJSON),
		r.Output,
		int(r.State),
		string(logJSON),
		r.Error,
		r.CreatedAt.UnixNano(),
		finished,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.ID, err)
	}
	return nil
}

const selectRuns = `
	SELECT id, args, inputs, COALESCE(output, ''), state, log, COALESCE(error, ''),
		   created_at, COALESCE(finished_at, 0)
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var argsJSON, inputsJSON, logJSON sql.NullString
	var state int
	var created, finished int64
	if err := row.Scan(&r.ID, &argsJSON, &inputsJSON, &r.Output, &state, &logJSON, &r.Error, &created, &finished); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(argsJSON.String), &r.Args); err != nil {
		r.Args = []string{}
	}
	if err := json.Unmarshal([]byte(inputsJSON.String), &r.Inputs); err != nil {
		r.Inputs = []string{}
	}
	if err := json.Unmarshal([]byte(logJSON.String), &r.Log); err != nil {
		r.Log = nil
	}
	r.State = State(state)
	r.CreatedAt = time.Unix(0, created)
	if finished != 0 {
		r.FinishedAt = time.Unix(0, finished)
	}
	return r, nil
}

// Get returns the run with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return &r, nil
}

// List returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + " ORDER BY created_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Prune deletes all but the newest keep runs and reports how many were
// removed.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	res, err := s.db.ExecContext(ctx, `
	DELETE FROM runs WHERE id NOT IN (
		SELECT id FROM runs ORDER BY created_at DESC LIMIT ?
	)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

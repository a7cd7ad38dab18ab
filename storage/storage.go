// Package storage provides SQLite-based run logging for inference
// sessions. It is a telemetry collaborator: the inference core never
// touches it, main wires it into the session's telemetry callback.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"sharedauto/session"
)

// Store handles SQLite database operations for session logging.
type Store struct {
	db *sql.DB
}

// Run represents one session run record.
type Run struct {
	ID         string     `json:"id"`
	Predictor  string     `json:"predictor"`
	Strategy   string     `json:"strategy"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	TotalSteps int        `json:"total_steps"`
}

// StepRecord is one persisted control step.
type StepRecord struct {
	ID          int64   `json:"id"`
	RunID       string  `json:"run_id"`
	Step        int     `json:"step"`
	StateX      int     `json:"state_x"`
	StateY      int     `json:"state_y"`
	UserAction  string  `json:"user_action"`
	Recommended string  `json:"recommended"`
	Confidence  float64 `json:"confidence"`
	Belief      string  `json:"belief"` // JSON array, one entry per goal
	BlendX      float64 `json:"blend_x"`
	BlendY      float64 `json:"blend_y"`
}

// New creates a new Store with the given database path. ":memory:" works
// for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// migrate creates the schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		predictor TEXT NOT NULL,
		strategy TEXT NOT NULL,
		started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		ended_at DATETIME,
		total_steps INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS steps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		state_x INTEGER NOT NULL,
		state_y INTEGER NOT NULL,
		user_action TEXT NOT NULL,
		recommended TEXT NOT NULL,
		confidence REAL NOT NULL,
		belief TEXT NOT NULL,
		blend_x REAL NOT NULL,
		blend_y REAL NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id, step);
	`
	_, err := s.db.Exec(schema)
	return err
}

// BeginRun records the start of a session run.
func (s *Store) BeginRun(id, predictor, strategy string) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, predictor, strategy, started_at) VALUES (?, ?, ?, ?)`,
		id, predictor, strategy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordStep persists one step result.
func (s *Store) RecordStep(res session.StepResult) error {
	belief, err := json.Marshal(res.Belief)
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO steps
		 (run_id, step, state_x, state_y, user_action, recommended, confidence, belief, blend_x, blend_y)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Step, res.State.X, res.State.Y,
		res.UserAction.String(), res.Recommended.String(),
		res.Confidence, string(belief), res.Blend.X, res.Blend.Y)
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

// EndRun stamps the run's end time and final step count.
func (s *Store) EndRun(id string, totalSteps int) error {
	_, err := s.db.Exec(
		`UPDATE runs SET ended_at = ?, total_steps = ? WHERE id = ?`,
		time.Now().UTC(), totalSteps, id)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	return nil
}

// GetRun returns one run record.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, predictor, strategy, started_at, ended_at, total_steps FROM runs WHERE id = ?`, id)

	var run Run
	var endedAt sql.NullTime
	if err := row.Scan(&run.ID, &run.Predictor, &run.Strategy, &run.StartedAt, &endedAt, &run.TotalSteps); err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	return &run, nil
}

// Steps returns a run's persisted steps in order.
func (s *Store) Steps(runID string) ([]StepRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, step, state_x, state_y, user_action, recommended, confidence, belief, blend_x, blend_y
		 FROM steps WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("steps: %w", err)
	}
	defer rows.Close()

	var records []StepRecord
	for rows.Next() {
		var r StepRecord
		if err := rows.Scan(&r.ID, &r.RunID, &r.Step, &r.StateX, &r.StateY,
			&r.UserAction, &r.Recommended, &r.Confidence, &r.Belief, &r.BlendX, &r.BlendY); err != nil {
			return nil, fmt.Errorf("steps: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

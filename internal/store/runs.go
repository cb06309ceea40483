package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run kinds.
const (
	RunKindExtraction    = "extraction"
	RunKindConsolidation = "consolidation"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// PipelineRun is one durable execution of a step-ordered pipeline. The step
// column names the next step to execute; State carries step outputs so a
// resumed run continues after the last completed step instead of
// re-executing it.
type PipelineRun struct {
	ID        string
	UserID    string
	EntryID   string
	Kind      string
	Step      string
	Status    string
	Attempts  int
	State     json.RawMessage
	Error     string
	CreatedAt int64
	UpdatedAt int64
}

// CreateRun inserts a new running pipeline run positioned at the first step.
func (db *DB) CreateRun(userID, entryID, kind, firstStep string) (*PipelineRun, error) {
	now := time.Now().UnixMilli()
	r := &PipelineRun{
		ID:        uuid.NewString(),
		UserID:    userID,
		EntryID:   entryID,
		Kind:      kind,
		Step:      firstStep,
		Status:    RunRunning,
		State:     json.RawMessage("{}"),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := db.Exec(`
		INSERT INTO pipeline_runs (id, user_id, entry_id, kind, step, status, state, created_at, updated_at)
		VALUES (?, ?, NULLIF(?, ''), ?, ?, 'running', '{}', ?, ?)
	`, r.ID, r.UserID, r.EntryID, r.Kind, r.Step, now, now)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return r, nil
}

// GetRun returns a run by id, or nil if not found.
func (db *DB) GetRun(id string) (*PipelineRun, error) {
	row := db.QueryRow(`
		SELECT id, user_id, entry_id, kind, step, status, attempts, state, error, created_at, updated_at
		FROM pipeline_runs WHERE id = ?
	`, id)
	return scanRun(row.Scan)
}

// FindRunByEntry returns the most recent run of the given kind for an entry,
// or nil if none exists. Used to resume or short-circuit duplicate triggers.
func (db *DB) FindRunByEntry(entryID, kind string) (*PipelineRun, error) {
	row := db.QueryRow(`
		SELECT id, user_id, entry_id, kind, step, status, attempts, state, error, created_at, updated_at
		FROM pipeline_runs WHERE entry_id = ? AND kind = ?
		ORDER BY created_at DESC LIMIT 1
	`, entryID, kind)
	return scanRun(row.Scan)
}

// FindRunningRun returns the most recent still-running run of the given kind
// for a user, or nil if none. Lets a restarted process pick up where a
// crashed one stopped.
func (db *DB) FindRunningRun(userID, kind string) (*PipelineRun, error) {
	row := db.QueryRow(`
		SELECT id, user_id, entry_id, kind, step, status, attempts, state, error, created_at, updated_at
		FROM pipeline_runs WHERE user_id = ? AND kind = ? AND status = 'running'
		ORDER BY created_at DESC LIMIT 1
	`, userID, kind)
	return scanRun(row.Scan)
}

// AdvanceRun persists a step transition: the just-finished step's output
// lands in state and step names the next step to execute. This write is the
// durability point — it must land before the next step runs.
func (db *DB) AdvanceRun(id, nextStep string, state any) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	_, err = db.Exec(`
		UPDATE pipeline_runs SET step = ?, state = ?, attempts = 0, updated_at = ?
		WHERE id = ?
	`, nextStep, string(stateJSON), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("advance run %s: %w", id, err)
	}
	return nil
}

// IncrementRunAttempts bumps the retry counter for the current step.
func (db *DB) IncrementRunAttempts(id string) error {
	_, err := db.Exec(`
		UPDATE pipeline_runs SET attempts = attempts + 1, updated_at = ? WHERE id = ?
	`, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("increment run attempts %s: %w", id, err)
	}
	return nil
}

// CompleteRun marks a run completed with its final state.
func (db *DB) CompleteRun(id string, state any) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	_, err = db.Exec(`
		UPDATE pipeline_runs SET status = 'completed', state = ?, error = NULL, updated_at = ?
		WHERE id = ?
	`, string(stateJSON), time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("complete run %s: %w", id, err)
	}
	return nil
}

// FailRun marks a run failed at its current step with the causing error.
// Failed runs are visible operational state, never silently discarded.
func (db *DB) FailRun(id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	_, err := db.Exec(`
		UPDATE pipeline_runs SET status = 'failed', error = ?, updated_at = ?
		WHERE id = ?
	`, msg, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("fail run %s: %w", id, err)
	}
	return nil
}

func scanRun(scan func(...any) error) (*PipelineRun, error) {
	var r PipelineRun
	var entryID, errMsg sql.NullString
	var state string

	err := scan(&r.ID, &r.UserID, &entryID, &r.Kind, &r.Step, &r.Status, &r.Attempts,
		&state, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.EntryID = entryID.String
	r.Error = errMsg.String
	r.State = json.RawMessage(state)
	return &r, nil
}

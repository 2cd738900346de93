// Package journal persists workflow-run audit rows so a cleanup failure
// leaves an actionable record behind. Progress readings are never stored;
// every invocation recomputes them from the live API.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"badgeforge/internal/workflow"
)

type Journal struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func New(db *sql.DB) *Journal {
	return &Journal{DB: db, Now: time.Now}
}

func (j *Journal) now() string {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// RunRecord is a persisted workflow run.
type RunRecord struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	State      string `json:"state"`
	Succeeded  bool   `json:"succeeded"`
	Reason     string `json:"reason,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// ArtifactRecord is a persisted created-resource handle.
type ArtifactRecord struct {
	RunID        string `json:"run_id"`
	Position     int    `json:"position"`
	Kind         string `json:"kind"`
	Repo         string `json:"repo"`
	Number       int    `json:"number,omitempty"`
	Ref          string `json:"ref,omitempty"`
	CreatedAt    string `json:"created_at"`
	CleanedAt    string `json:"cleaned_at,omitempty"`
	CleanupError string `json:"cleanup_error,omitempty"`
}

// RunStarted records a new run. Implements workflow.Recorder.
func (j *Journal) RunStarted(ctx context.Context, run workflow.Run) error {
	tx, err := j.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(id,kind,state,succeeded,reason,started_at) VALUES (?,?,?,0,NULL,?)`,
		run.ID, string(run.Kind), string(run.State), run.StartedAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if err := j.appendEvent(ctx, tx, "run.started", run.ID, payload{"kind": string(run.Kind)}); err != nil {
		return err
	}
	return tx.Commit()
}

// ArtifactCreated records a created handle at its position in the run.
func (j *Journal) ArtifactCreated(ctx context.Context, runID string, position int, ref workflow.ArtifactRef) error {
	tx, err := j.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO artifacts(run_id,position,kind,repo,number,ref,created_at) VALUES (?,?,?,?,?,?,?)`,
		runID, position, string(ref.Kind), ref.Repo, ref.Number, nullable(ref.Ref), j.now()); err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	if err := j.appendEvent(ctx, tx, "artifact.created", runID, payload{"artifact": ref.String()}); err != nil {
		return err
	}
	return tx.Commit()
}

// ArtifactCleaned records a cleanup attempt's outcome.
func (j *Journal) ArtifactCleaned(ctx context.Context, runID string, position int, cleanupErr error) error {
	tx, err := j.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if cleanupErr == nil {
		_, err = tx.ExecContext(ctx, `UPDATE artifacts SET cleaned_at=?, cleanup_error=NULL WHERE run_id=? AND position=?`,
			j.now(), runID, position)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE artifacts SET cleanup_error=? WHERE run_id=? AND position=?`,
			cleanupErr.Error(), runID, position)
	}
	if err != nil {
		return fmt.Errorf("update artifact: %w", err)
	}
	evt := payload{"position": position}
	if cleanupErr != nil {
		evt["error"] = cleanupErr.Error()
	}
	if err := j.appendEvent(ctx, tx, "artifact.cleaned", runID, evt); err != nil {
		return err
	}
	return tx.Commit()
}

// RunFinished records the terminal state and result.
func (j *Journal) RunFinished(ctx context.Context, run workflow.Run) error {
	tx, err := j.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	succeeded := 0
	if run.Result.Succeeded {
		succeeded = 1
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET state=?, succeeded=?, reason=?, finished_at=? WHERE id=?`,
		string(run.State), succeeded, nullable(run.Result.Reason), run.FinishedAt.UTC().Format(time.RFC3339), run.ID); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if err := j.appendEvent(ctx, tx, "run.finished", run.ID, payload{
		"state":  string(run.State),
		"reason": run.Result.Reason,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ListRuns returns recorded runs, newest first.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.DB.QueryContext(ctx, `SELECT id,kind,state,succeeded,COALESCE(reason,''),started_at,COALESCE(finished_at,'') FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var succeeded int
		if err := rows.Scan(&r.ID, &r.Kind, &r.State, &succeeded, &r.Reason, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.Succeeded = succeeded == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns one recorded run.
func (j *Journal) GetRun(ctx context.Context, id string) (RunRecord, error) {
	var r RunRecord
	var succeeded int
	err := j.DB.QueryRowContext(ctx, `SELECT id,kind,state,succeeded,COALESCE(reason,''),started_at,COALESCE(finished_at,'') FROM runs WHERE id=?`, id).
		Scan(&r.ID, &r.Kind, &r.State, &succeeded, &r.Reason, &r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	r.Succeeded = succeeded == 1
	return r, err
}

// ListArtifacts returns a run's artifacts in creation order.
func (j *Journal) ListArtifacts(ctx context.Context, runID string) ([]ArtifactRecord, error) {
	rows, err := j.DB.QueryContext(ctx, `SELECT run_id,position,kind,repo,COALESCE(number,0),COALESCE(ref,''),created_at,COALESCE(cleaned_at,''),COALESCE(cleanup_error,'') FROM artifacts WHERE run_id=? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

// Orphans returns repository artifacts that were never confirmed cleaned.
// These are the throwaway repositories a failed cleanup may have left behind.
func (j *Journal) Orphans(ctx context.Context) ([]ArtifactRecord, error) {
	rows, err := j.DB.QueryContext(ctx, `SELECT run_id,position,kind,repo,COALESCE(number,0),COALESCE(ref,''),created_at,COALESCE(cleaned_at,''),COALESCE(cleanup_error,'') FROM artifacts WHERE kind=? AND cleaned_at IS NULL ORDER BY created_at`, string(workflow.ArtifactRepository))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

// MarkSwept records a successful out-of-band deletion of an orphan.
func (j *Journal) MarkSwept(ctx context.Context, runID string, position int) error {
	tx, err := j.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE artifacts SET cleaned_at=?, cleanup_error=NULL WHERE run_id=? AND position=?`,
		j.now(), runID, position)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := j.appendEvent(ctx, tx, "artifact.swept", runID, payload{"position": position}); err != nil {
		return err
	}
	return tx.Commit()
}

type payload map[string]any

func (j *Journal) appendEvent(ctx context.Context, tx *sql.Tx, evtType, runID string, p payload) error {
	if p == nil {
		p = payload{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,run_id,payload_json) VALUES (?,?,?,?)`,
		j.now(), evtType, nullable(runID), string(data))
	return err
}

func scanArtifacts(rows *sql.Rows) ([]ArtifactRecord, error) {
	var out []ArtifactRecord
	for rows.Next() {
		var a ArtifactRecord
		if err := rows.Scan(&a.RunID, &a.Position, &a.Kind, &a.Repo, &a.Number, &a.Ref, &a.CreatedAt, &a.CleanedAt, &a.CleanupError); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SyncRun records one execution of the synchronization routine.
type SyncRun struct {
	ID         string    `json:"id"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Folders    int       `json:"folders"`
	Files      int       `json:"files"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Unchanged  int       `json:"unchanged"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
}

// Failed reports whether the run aborted with an error.
func (r *SyncRun) Failed() bool {
	return r.Error != ""
}

// RecordSyncRun stores a sync run.
func (db *DB) RecordSyncRun(ctx context.Context, run *SyncRun) error {
	if run.ID == "" {
		return fmt.Errorf("sync run id is required")
	}

	query := `
	INSERT INTO sync_runs (
		id, trigger_kind, started_at, finished_at, folders, files,
		created, updated, unchanged, skipped, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		finished_at = excluded.finished_at,
		folders = excluded.folders,
		files = excluded.files,
		created = excluded.created,
		updated = excluded.updated,
		unchanged = excluded.unchanged,
		skipped = excluded.skipped,
		error = excluded.error
	`

	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.Trigger,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.Folders,
		run.Files,
		run.Created,
		run.Updated,
		run.Unchanged,
		run.Skipped,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync run %s: %w", run.ID, err)
	}
	return nil
}

// LastSyncRun returns the most recently started sync run.
// Returns (nil, nil) if no run has been recorded.
func (db *DB) LastSyncRun(ctx context.Context) (*SyncRun, error) {
	query := `
	SELECT id, trigger_kind, started_at, finished_at, folders, files,
	       created, updated, unchanged, skipped, error
	FROM sync_runs
	ORDER BY started_at DESC
	LIMIT 1
	`

	var run SyncRun
	var startedAt, finishedAt string
	err := db.conn.QueryRowContext(ctx, query).Scan(
		&run.ID,
		&run.Trigger,
		&startedAt,
		&finishedAt,
		&run.Folders,
		&run.Files,
		&run.Created,
		&run.Updated,
		&run.Unchanged,
		&run.Skipped,
		&run.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync run: %w", err)
	}

	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt)
	return &run, nil
}

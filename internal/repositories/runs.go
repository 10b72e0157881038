package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/phx/internal/models"
	"github.com/desertthunder/phx/internal/shared"
)

const runColumns = `id, sequence, destination, backend, mode, size, status,
	total, processed, transferred, existing, skipped, unresolved, failed, deleted, bytes,
	stopped_early, error, started_at, finished_at, created_at, updated_at, deleted_at`

// RunRepository implements models.Repository[*models.SyncRun] for run history.
type RunRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.SyncRun] = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run with generated ID and sequence
func (r *RunRepository) Create(run *models.SyncRun) error {
	sequence, err := NextSequence(r.db, "sync_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	id := shared.GenerateID()
	c := run.Counts()
	query := `
		INSERT INTO sync_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err = r.db.Exec(query,
		id, sequence, run.Destination(), run.Backend(), run.Mode(), run.Size(), string(run.Status()),
		c.Total, c.Processed, c.Transferred, c.Existing, c.Skipped, c.Unresolved, c.Failed, c.Deleted, c.Bytes,
		run.StoppedEarly(), run.ErrorMessage(), run.StartedAt(), run.FinishedAt(), run.CreatedAt(), run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	run.SetID(id)
	run.SetSequence(sequence)
	return nil
}

// Get retrieves a run by ID, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE id = ? AND deleted_at IS NULL`
	return scanRun(r.db.QueryRow(query, id))
}

// Update stores the status, counters and finish time of a run
func (r *RunRepository) Update(run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	run.SetUpdatedAt(now)
	c := run.Counts()

	query := `
		UPDATE sync_runs
		SET status = ?, total = ?, processed = ?, transferred = ?, existing = ?, skipped = ?,
			unresolved = ?, failed = ?, deleted = ?, bytes = ?, stopped_early = ?, error = ?,
			finished_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := r.db.Exec(query,
		string(run.Status()), c.Total, c.Processed, c.Transferred, c.Existing, c.Skipped,
		c.Unresolved, c.Failed, c.Deleted, c.Bytes, run.StoppedEarly(), run.ErrorMessage(),
		run.FinishedAt(), now, run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}
	return expectRow(result, run.ID())
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	query := `UPDATE sync_runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`
	result, err := r.db.Exec(query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete sync run: %w", err)
	}
	return expectRow(result, id)
}

// List returns runs newest first. Supported criteria: "destination", "status" and "limit".
func (r *RunRepository) List(criteria map[string]any) ([]*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE deleted_at IS NULL`
	args := []any{}

	if dest, ok := criteria["destination"].(string); ok && dest != "" {
		query += " AND destination = ?"
		args = append(args, dest)
	}
	if status, ok := criteria["status"].(models.RunStatus); ok && status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}

	query += " ORDER BY sequence DESC"
	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// RecordFailure stores an item abandoned during runID.
func (r *RunRepository) RecordFailure(ctx context.Context, runID, filename, reason string) error {
	query := `INSERT INTO item_failures (run_id, filename, reason, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, runID, filename, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record item failure: %w", err)
	}
	return nil
}

// Failures lists the items abandoned during runID in the order they failed.
func (r *RunRepository) Failures(runID string) ([]models.ItemFailure, error) {
	query := `SELECT run_id, filename, reason, created_at FROM item_failures WHERE run_id = ? ORDER BY id ASC`
	rows, err := r.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query item failures: %w", err)
	}
	defer rows.Close()

	var out []models.ItemFailure
	for rows.Next() {
		var f models.ItemFailure
		if err := rows.Scan(&f.RunID, &f.Filename, &f.Reason, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item failure: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ForRun binds failure recording to a single run.
func (r *RunRepository) ForRun(runID string) *RunRecorder {
	return &RunRecorder{repo: r, runID: runID}
}

// RunRecorder records item failures for one run.
type RunRecorder struct {
	repo  *RunRepository
	runID string
}

func (rr *RunRecorder) RecordFailure(ctx context.Context, filename, reason string) error {
	return rr.repo.RecordFailure(ctx, rr.runID, filename, reason)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.SyncRun, error) {
	var (
		id, destination, backend, mode, size, status, errMessage string
		sequence                                                  int
		c                                                         models.RunCounts
		stopped                                                   bool
		startedAt, createdAt, updatedAt                           time.Time
		finishedAt, deletedAt                                     sql.NullTime
	)

	err := s.Scan(&id, &sequence, &destination, &backend, &mode, &size, &status,
		&c.Total, &c.Processed, &c.Transferred, &c.Existing, &c.Skipped, &c.Unresolved, &c.Failed, &c.Deleted, &c.Bytes,
		&stopped, &errMessage, &startedAt, &finishedAt, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, shared.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	return models.RestoreSyncRun(id, sequence, destination, backend, mode, size, models.RunStatus(status),
		c, stopped, errMessage, startedAt, nullTime(finishedAt), createdAt, updatedAt, nullTime(deletedAt)), nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func expectRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}
	return nil
}

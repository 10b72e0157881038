package models

import (
	"errors"
	"time"
)

// RunStatus is the lifecycle state of a [SyncRun].
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunStopped   RunStatus = "stopped" // early termination after consecutive matches
	RunFailed    RunStatus = "failed"
)

// RunCounts are the per-outcome item counters of a sync pass.
type RunCounts struct {
	Total       int // -1 when unknown
	Processed   int
	Transferred int
	Existing    int
	Skipped     int
	Unresolved  int
	Failed      int
	Deleted     int
	Bytes       int64
}

// SyncRun records one sync pass.
type SyncRun struct {
	id          string
	sequence    int
	destination string
	backend     string
	mode        string
	size        string
	status      RunStatus
	counts      RunCounts
	stopped     bool
	errMessage  string
	startedAt   time.Time
	finishedAt  *time.Time
	createdAt   time.Time
	updatedAt   time.Time
	deletedAt   *time.Time
}

// NewSyncRun creates a running [SyncRun] started now.
func NewSyncRun(destination, backend, mode, size string) *SyncRun {
	now := time.Now().UTC()
	return &SyncRun{
		destination: destination,
		backend:     backend,
		mode:        mode,
		size:        size,
		status:      RunRunning,
		counts:      RunCounts{Total: -1},
		startedAt:   now,
		createdAt:   now,
		updatedAt:   now,
	}
}

// RestoreSyncRun rebuilds a [SyncRun] from stored columns.
func RestoreSyncRun(id string, sequence int, destination, backend, mode, size string, status RunStatus,
	counts RunCounts, stopped bool, errMessage string, startedAt time.Time, finishedAt *time.Time,
	createdAt, updatedAt time.Time, deletedAt *time.Time) *SyncRun {
	return &SyncRun{
		id: id, sequence: sequence, destination: destination, backend: backend, mode: mode, size: size,
		status: status, counts: counts, stopped: stopped, errMessage: errMessage,
		startedAt: startedAt, finishedAt: finishedAt, createdAt: createdAt, updatedAt: updatedAt, deletedAt: deletedAt,
	}
}

func (r *SyncRun) ID() string { return r.id }
func (r *SyncRun) Sequence() int { return r.sequence }
func (r *SyncRun) Destination() string { return r.destination }
func (r *SyncRun) Backend() string { return r.backend }
func (r *SyncRun) Mode() string { return r.mode }
func (r *SyncRun) Size() string { return r.size }
func (r *SyncRun) Status() RunStatus { return r.status }
func (r *SyncRun) Counts() RunCounts { return r.counts }
func (r *SyncRun) StoppedEarly() bool { return r.stopped }
func (r *SyncRun) ErrorMessage() string { return r.errMessage }
func (r *SyncRun) StartedAt() time.Time { return r.startedAt }
func (r *SyncRun) FinishedAt() *time.Time { return r.finishedAt }
func (r *SyncRun) CreatedAt() time.Time { return r.createdAt }
func (r *SyncRun) UpdatedAt() time.Time { return r.updatedAt }
func (r *SyncRun) DeletedAt() *time.Time { return r.deletedAt }
func (r *SyncRun) SetID(id string) { r.id = id }
func (r *SyncRun) SetSequence(seq int) { r.sequence = seq }
func (r *SyncRun) SetUpdatedAt(t time.Time) { r.updatedAt = t }
func (r *SyncRun) SetCounts(c RunCounts) { r.counts = c }

// Duration is the elapsed time of the run, measured to now while running.
func (r *SyncRun) Duration() time.Duration {
	if r.finishedAt == nil {
		return time.Since(r.startedAt)
	}
	return r.finishedAt.Sub(r.startedAt)
}

// Finish marks the run as ended. A non-nil err marks it failed.
func (r *SyncRun) Finish(counts RunCounts, stopped bool, err error) {
	now := time.Now().UTC()
	r.counts = counts
	r.stopped = stopped
	r.finishedAt = &now
	r.updatedAt = now
	switch {
	case err != nil:
		r.status = RunFailed
		r.errMessage = err.Error()
	case stopped:
		r.status = RunStopped
	default:
		r.status = RunCompleted
	}
}

// Validate checks required fields and status consistency.
func (r *SyncRun) Validate() error {
	if r.destination == "" {
		return errors.New("destination is required")
	}
	if r.backend == "" {
		return errors.New("backend is required")
	}
	switch r.status {
	case RunRunning, RunCompleted, RunStopped, RunFailed:
	default:
		return errors.New("invalid status")
	}
	if r.status != RunRunning && r.finishedAt == nil {
		return errors.New("finished runs must have a finish time")
	}
	if r.status == RunFailed && r.errMessage == "" {
		return errors.New("failed runs must carry an error message")
	}
	return nil
}

// ItemFailure is an item abandoned during a run.
type ItemFailure struct {
	RunID     string
	Filename  string
	Reason    string
	CreatedAt time.Time
}

package imports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobStorage is the lifecycle persistence surface owned by the tracker.
type JobStorage interface {
	CreateJob(ctx context.Context, job ImportJob) error
	GetJob(ctx context.Context, id uuid.UUID) (ImportJob, error)
	ListJobs(ctx context.Context, limit, offset int) ([]ImportJob, int, error)
	StartJob(ctx context.Context, id uuid.UUID, total int, startedAt time.Time) error
	SaveProgress(ctx context.Context, id uuid.UUID, imported, failed, percent int, errs []RowError) error
	CompleteJob(ctx context.Context, id uuid.UUID, imported, failed, percent int, errs []RowError, completedAt time.Time) error
	FailJob(ctx context.Context, id uuid.UUID, imported, failed, percent int, errs []RowError, message string) error
	ResetJob(ctx context.Context, id uuid.UUID) error
	DeleteJobCascade(ctx context.Context, id uuid.UUID) error
}

// Accumulator folds per-row results into job counters. It is the single place
// row outcomes become state; the ingestion loop itself keeps no ad hoc tallies.
type Accumulator struct {
	Total    int
	Imported int
	Failed   int
	Errors   []RowError

	flushedErrors int
	lastPercent   int
}

// NewAccumulator prepares an accumulator for a known row count.
func NewAccumulator(total int) *Accumulator {
	return &Accumulator{Total: total}
}

// Fold records one row outcome. Fatal results count as failed rows so partial
// counts survive an aborted job.
func (a *Accumulator) Fold(res RowResult) {
	switch res.Status {
	case RowImported:
		a.Imported++
	case RowRejected, RowFatal:
		a.Failed++
		if res.Err != nil {
			a.Errors = append(a.Errors, RowError{Line: res.Line, Message: res.Err.Error()})
		}
	}
}

// Percent reports integer percent-complete, monotonically non-decreasing.
func (a *Accumulator) Percent() int {
	if a.Total <= 0 {
		return a.lastPercent
	}
	p := a.Imported * 100 / a.Total
	if p < a.lastPercent {
		return a.lastPercent
	}
	a.lastPercent = p
	return p
}

// peekErrors returns error-log entries not yet persisted to storage.
func (a *Accumulator) peekErrors() []RowError {
	if a.flushedErrors >= len(a.Errors) {
		return nil
	}
	return a.Errors[a.flushedErrors:]
}

// commitErrors marks every current entry persisted. Only call after the
// storage write succeeded; a failed flush keeps its entries pending so the
// next write carries them again.
func (a *Accumulator) commitErrors() {
	a.flushedErrors = len(a.Errors)
}

// Tracker owns the ImportJob lifecycle record and is the single source of
// truth for progress polling.
type Tracker struct {
	storage JobStorage
	now     func() time.Time
}

// NewTracker constructs a tracker.
func NewTracker(storage JobStorage) *Tracker {
	return &Tracker{storage: storage, now: time.Now}
}

// Begin transitions the job to processing and records the discovered row count.
func (t *Tracker) Begin(ctx context.Context, id uuid.UUID, total int) error {
	if err := t.storage.StartJob(ctx, id, total, t.now().UTC()); err != nil {
		return &StorageError{Op: "start job", Err: err}
	}
	return nil
}

// Flush persists intermediate counters so callers can poll progress.
func (t *Tracker) Flush(ctx context.Context, id uuid.UUID, acc *Accumulator) error {
	if err := t.storage.SaveProgress(ctx, id, acc.Imported, acc.Failed, acc.Percent(), acc.peekErrors()); err != nil {
		return &StorageError{Op: "save progress", Err: err}
	}
	acc.commitErrors()
	return nil
}

// Complete finalizes a job whose input rows are exhausted.
func (t *Tracker) Complete(ctx context.Context, id uuid.UUID, acc *Accumulator) error {
	if err := t.storage.CompleteJob(ctx, id, acc.Imported, acc.Failed, acc.Percent(), acc.peekErrors(), t.now().UTC()); err != nil {
		return &StorageError{Op: "complete job", Err: err}
	}
	acc.commitErrors()
	return nil
}

// Fail marks the job failed after a systemic abort, preserving partial counts.
func (t *Tracker) Fail(ctx context.Context, id uuid.UUID, acc *Accumulator, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := t.storage.FailJob(ctx, id, acc.Imported, acc.Failed, acc.Percent(), acc.peekErrors(), msg); err != nil {
		return &StorageError{Op: "fail job", Err: err}
	}
	acc.commitErrors()
	return nil
}

package imports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// progressFlushEvery bounds how many rows may pass between persisted progress
// updates, so pollers see movement on large files without a write per row.
const progressFlushEvery = 25

// Storage combines the persistence surfaces of the pipeline stages.
type Storage interface {
	JobStorage
	EntityStorage
	FactStorage
}

// TaskEnqueuer submits a created job for background processing.
type TaskEnqueuer interface {
	EnqueueImport(ctx context.Context, jobID uuid.UUID) error
}

// CacheInvalidator marks all cached analytics results stale. Any new fact can
// shift rankings, trends and classification boundaries, so the scope is global.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Service coordinates the import pipeline: upload intake, the row-by-row
// ingestion loop, progress tracking, reset of stuck jobs and cascade deletion.
type Service struct {
	storage    Storage
	files      FileStore
	queue      TaskEnqueuer
	cache      CacheInvalidator
	resolver   *Resolver
	writer     *Writer
	tracker    *Tracker
	logger     *slog.Logger
	now        func() time.Time
	staleAfter time.Duration
}

// NewService wires the pipeline stages around shared storage.
func NewService(storage Storage, files FileStore, queue TaskEnqueuer, cache CacheInvalidator, logger *slog.Logger, staleAfter time.Duration) *Service {
	return &Service{
		storage:    storage,
		files:      files,
		queue:      queue,
		cache:      cache,
		resolver:   NewResolver(storage),
		writer:     NewWriter(storage),
		tracker:    NewTracker(storage),
		logger:     logger,
		now:        time.Now,
		staleAfter: staleAfter,
	}
}

// CreateFromUpload stores the raw file, records a pending job and enqueues
// background processing. The returned job id is what callers poll.
func (s *Service) CreateFromUpload(ctx context.Context, filename string, kind EntityKind, r io.Reader) (ImportJob, error) {
	path, size, err := s.files.Save(filename, r)
	if err != nil {
		return ImportJob{}, err
	}

	now := s.now().UTC()
	job := ImportJob{
		ID:          uuid.New(),
		Filename:    filename,
		FileSize:    size,
		StoragePath: path,
		Kind:        kind,
		Status:      JobPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.storage.CreateJob(ctx, job); err != nil {
		_ = s.files.Remove(path)
		return ImportJob{}, &StorageError{Op: "create job", Err: err}
	}

	if err := s.queue.EnqueueImport(ctx, job.ID); err != nil {
		return ImportJob{}, fmt.Errorf("imports: enqueue job %s: %w", job.ID, err)
	}
	return job, nil
}

// Get returns the job lifecycle record for progress polling.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (ImportJob, error) {
	return s.storage.GetJob(ctx, id)
}

// List enumerates jobs, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]ImportJob, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.storage.ListJobs(ctx, limit, offset)
}

// Process runs the ingestion loop for one pending job. A single row's failure
// never aborts the job; only storage or I/O failures do.
func (s *Service) Process(ctx context.Context, id uuid.UUID) error {
	job, err := s.storage.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != JobPending {
		return ErrJobNotPending
	}

	rc, err := s.files.Open(job.StoragePath)
	if err != nil {
		return s.abort(ctx, job.ID, NewAccumulator(0), fmt.Errorf("open upload: %w", err))
	}
	table, parseErr := ParseFile(rc, job.Filename)
	_ = rc.Close()
	if parseErr != nil {
		return s.abort(ctx, job.ID, NewAccumulator(0), parseErr)
	}

	total := len(table.Rows)
	if err := s.tracker.Begin(ctx, job.ID, total); err != nil {
		return err
	}

	acc := NewAccumulator(total)
	for i, raw := range table.Rows {
		line := i + 2 // header occupies line 1
		res := s.processRow(ctx, &job, table, raw, line)
		acc.Fold(res)

		if res.Status == RowFatal {
			return s.abort(ctx, job.ID, acc, res.Err)
		}
		if (i+1)%progressFlushEvery == 0 {
			if err := s.tracker.Flush(ctx, job.ID, acc); err != nil {
				return s.abort(ctx, job.ID, acc, err)
			}
		}
	}

	if err := s.tracker.Complete(ctx, job.ID, acc); err != nil {
		return err
	}
	s.logger.Info("import completed",
		slog.String("job_id", job.ID.String()),
		slog.Int("imported", acc.Imported),
		slog.Int("failed", acc.Failed))

	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("cache bump after import", slog.Any("error", err))
	}
	return nil
}

// processRow runs one raw row through validate → resolve → write and reports
// the outcome as a value.
func (s *Service) processRow(ctx context.Context, job *ImportJob, table *Table, raw []string, line int) RowResult {
	switch job.Kind {
	case KindCustomers, KindProducts:
		return s.processMasterRow(ctx, job.Kind, table, raw, line)
	default:
	}

	row, vErr := ValidateSalesRow(table, raw)
	if vErr != nil {
		return RowResult{Line: line, Status: RowRejected, Err: vErr}
	}
	ref, err := s.resolver.Resolve(ctx, row)
	if err != nil {
		return RowResult{Line: line, Status: RowFatal, Err: err}
	}
	if err := s.writer.Write(ctx, job.ID, row, ref); err != nil {
		return RowResult{Line: line, Status: RowFatal, Err: err}
	}
	return RowResult{Line: line, Status: RowImported}
}

func (s *Service) processMasterRow(ctx context.Context, kind EntityKind, table *Table, raw []string, line int) RowResult {
	row, vErr := ValidateMasterRow(table, raw)
	if vErr != nil {
		return RowResult{Line: line, Status: RowRejected, Err: vErr}
	}
	var err error
	switch kind {
	case KindCustomers:
		_, err = s.storage.EnsureCustomer(ctx, row.Name, NormalizeName(row.Name), row.Region)
	case KindProducts:
		_, err = s.storage.EnsureProduct(ctx, row.Name, NormalizeName(row.Name), row.Category)
	}
	if err != nil {
		return RowResult{Line: line, Status: RowFatal, Err: &StorageError{Op: "ensure " + string(kind), Err: err}}
	}
	return RowResult{Line: line, Status: RowImported}
}

// abort marks the job failed, preserving partial counts for inspection.
func (s *Service) abort(ctx context.Context, id uuid.UUID, acc *Accumulator, cause error) error {
	s.logger.Error("import aborted", slog.String("job_id", id.String()), slog.Any("error", cause))
	if err := s.tracker.Fail(ctx, id, acc, cause); err != nil {
		s.logger.Error("mark job failed", slog.String("job_id", id.String()), slog.Any("error", err))
	}
	return cause
}

// Delete removes the job and every fact it owns in one logical operation.
// Master-data entities are import-independent and are never touched; their
// aggregates stay append-only unless explicitly recomputed.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	job, err := s.storage.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteJobCascade(ctx, id); err != nil {
		return &StorageError{Op: "cascade delete", Err: err}
	}
	if err := s.files.Remove(job.StoragePath); err != nil {
		s.logger.Warn("remove upload file", slog.String("path", job.StoragePath), slog.Any("error", err))
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("cache bump after delete", slog.Any("error", err))
	}
	return nil
}

// ResetStuck is the operator escape hatch for a processing job that stopped
// reporting progress. It only unblocks the status; partially written facts
// are not rolled back.
func (s *Service) ResetStuck(ctx context.Context, id uuid.UUID) error {
	job, err := s.storage.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != JobProcessing {
		return ErrJobNotResettable
	}
	if s.now().UTC().Sub(job.UpdatedAt) < s.staleAfter {
		return ErrJobNotResettable
	}
	if err := s.storage.ResetJob(ctx, id); err != nil {
		return &StorageError{Op: "reset job", Err: err}
	}
	return nil
}

// IsValidationError reports whether err is a recoverable per-row rejection.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

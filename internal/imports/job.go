package imports

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/salespulse/salespulse/jobs"
)

// ProcessJob runs import ingestion tasks pulled from the queue.
type ProcessJob struct {
	service *Service
	logger  *slog.Logger
}

// NewProcessJob constructs a job handler.
func NewProcessJob(service *Service, logger *slog.Logger) *ProcessJob {
	return &ProcessJob{service: service, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *ProcessJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.ImportProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return asynq.SkipRetry
	}
	if err := j.service.Process(ctx, jobID); err != nil {
		if errors.Is(err, ErrJobNotPending) || errors.Is(err, ErrJobNotFound) {
			// Replaying a job that already ran must not re-ingest rows.
			return asynq.SkipRetry
		}
		if j.logger != nil {
			j.logger.Error("import process", slog.String("job_id", payload.JobID), slog.Any("error", err))
		}
		return err
	}
	return nil
}

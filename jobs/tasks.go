package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeImportProcess is the task type for running an import job's
	// ingestion loop.
	TaskTypeImportProcess = "import:process"
)

// ImportProcessPayload identifies the import job to process.
type ImportProcessPayload struct {
	JobID string `json:"job_id"`
}

// NewImportProcessTask constructs an Asynq task for one import job.
func NewImportProcessTask(payload ImportProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	// MaxRetry 0: a failed import is terminal; the operator re-uploads or
	// resets the job instead of the queue replaying partial ingestion.
	return asynq.NewTask(TaskTypeImportProcess, data, asynq.MaxRetry(0)), nil
}

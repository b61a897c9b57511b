package imports

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// JobStatus enumerates import job lifecycle values.
type JobStatus string

const (
	// JobPending indicates the upload is recorded but not yet processed.
	JobPending JobStatus = "pending"
	// JobProcessing indicates the ingestion loop is running.
	JobProcessing JobStatus = "processing"
	// JobCompleted indicates every input row has been consumed.
	JobCompleted JobStatus = "completed"
	// JobFailed indicates the ingestion loop aborted for a systemic reason.
	JobFailed JobStatus = "failed"
)

// EntityKind selects which master-data pipeline an upload feeds.
type EntityKind string

const (
	KindSales     EntityKind = "sales"
	KindCustomers EntityKind = "customers"
	KindProducts  EntityKind = "products"
)

// ParseEntityKind validates a raw kind token.
func ParseEntityKind(raw string) (EntityKind, error) {
	switch EntityKind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindSales:
		return KindSales, nil
	case KindCustomers:
		return KindCustomers, nil
	case KindProducts:
		return KindProducts, nil
	}
	return "", fmt.Errorf("imports: unknown entity kind %q", raw)
}

// RowError is one entry of a job's error log.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportJob is the lifecycle record for one file upload.
type ImportJob struct {
	ID           uuid.UUID
	Filename     string
	FileSize     int64
	StoragePath  string
	Kind         EntityKind
	Status       JobStatus
	TotalRows    int
	ImportedRows int
	FailedRows   int
	Progress     int
	ErrorLog     []RowError
	ErrorMessage string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SalesRow is a validated, normalized candidate produced from one raw row.
type SalesRow struct {
	Date      time.Time
	Customer  string
	Product   string
	Store     string
	Region    string
	Category  string
	Quantity  float64
	UnitPrice float64
	Total     float64
}

// EntityRef holds the resolved master-data identifiers for one fact.
type EntityRef struct {
	CustomerID *int64
	ProductID  *int64
	StoreID    *int64
}

// SalesFact is the persisted fact row. Calendar fields are derived from Date
// once at write time and must stay functionally consistent with it.
type SalesFact struct {
	ID          int64
	Date        time.Time
	CustomerID  *int64
	ProductID   *int64
	StoreID     *int64
	Quantity    float64
	UnitPrice   float64
	TotalAmount float64
	Year        int
	Month       int
	Week        int
	DayOfWeek   int
	JobID       uuid.UUID
}

// RowStatus classifies the outcome of processing a single row.
type RowStatus int

const (
	// RowImported means the row produced a persisted fact or entity update.
	RowImported RowStatus = iota
	// RowRejected means the row failed validation and was skipped.
	RowRejected
	// RowFatal means persistence failed and the job must abort.
	RowFatal
)

// RowResult is the per-row outcome folded into the job accumulator.
type RowResult struct {
	Line   int
	Status RowStatus
	Err    error
}

// ValidationError describes a recoverable per-row rejection.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// StorageError wraps a persistence failure that is fatal to the current job.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("imports: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

var (
	// ErrJobNotFound occurs when a job id resolves to nothing.
	ErrJobNotFound = errors.New("imports: job not found")
	// ErrJobNotResettable occurs when reset is requested for a job that is
	// not stuck in processing.
	ErrJobNotResettable = errors.New("imports: job is not stuck")
	// ErrJobNotPending occurs when processing starts against a job that
	// already ran.
	ErrJobNotPending = errors.New("imports: job is not pending")
)

// NormalizeName produces the dedup key for an entity display name:
// unicode-normalized, trimmed and lowercased.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(name)))
}

package imports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for the import pipeline.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateJob inserts the pending lifecycle record for an upload.
func (r *Repository) CreateJob(ctx context.Context, job ImportJob) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO import_jobs (id, filename, file_size, storage_path, kind, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, job.ID, job.Filename, job.FileSize, job.StoragePath, string(job.Kind), string(job.Status), job.CreatedAt, job.UpdatedAt)
	return err
}

// GetJob loads a job by id.
func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (ImportJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, filename, file_size, storage_path, kind, status,
		       total_rows, imported_rows, failed_rows, progress,
		       error_log, error_message, started_at, completed_at, created_at, updated_at
		FROM import_jobs
		WHERE id = $1
	`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ImportJob{}, ErrJobNotFound
		}
		return ImportJob{}, err
	}
	return job, nil
}

// ListJobs returns jobs newest-first with a total count for paging.
func (r *Repository) ListJobs(ctx context.Context, limit, offset int) ([]ImportJob, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM import_jobs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, filename, file_size, storage_path, kind, status,
		       total_rows, imported_rows, failed_rows, progress,
		       error_log, error_message, started_at, completed_at, created_at, updated_at
		FROM import_jobs
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

// StartJob transitions pending → processing and records the row count.
func (r *Repository) StartJob(ctx context.Context, id uuid.UUID, total int, startedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = 'processing', total_rows = $2, started_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, total, startedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotPending
	}
	return nil
}

// SaveProgress persists counters and appends new error-log entries.
func (r *Repository) SaveProgress(ctx context.Context, id uuid.UUID, imported, failed, percent int, errs []RowError) error {
	payload, err := marshalErrors(errs)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE import_jobs
		SET imported_rows = $2, failed_rows = $3, progress = $4,
		    error_log = error_log || $5::jsonb, updated_at = now()
		WHERE id = $1
	`, id, imported, failed, percent, payload)
	return err
}

// CompleteJob finalizes counters and stamps completion.
func (r *Repository) CompleteJob(ctx context.Context, id uuid.UUID, imported, failed, percent int, errs []RowError, completedAt time.Time) error {
	payload, err := marshalErrors(errs)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = 'completed', imported_rows = $2, failed_rows = $3, progress = $4,
		    error_log = error_log || $5::jsonb, completed_at = $6, updated_at = now()
		WHERE id = $1
	`, id, imported, failed, percent, payload, completedAt)
	return err
}

// FailJob marks the job failed after a systemic abort, keeping partial counts.
func (r *Repository) FailJob(ctx context.Context, id uuid.UUID, imported, failed, percent int, errs []RowError, message string) error {
	payload, err := marshalErrors(errs)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = 'failed', imported_rows = $2, failed_rows = $3, progress = $4,
		    error_log = error_log || $5::jsonb, error_message = $6, updated_at = now()
		WHERE id = $1
	`, id, imported, failed, percent, payload, message)
	return err
}

// ResetJob is the operator escape hatch: processing → pending.
func (r *Repository) ResetJob(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = 'pending', updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotResettable
	}
	return nil
}

// DeleteJobCascade removes the job and all facts it owns inside one
// transaction. Either every fact for the job is gone or the job stays intact.
func (r *Repository) DeleteJobCascade(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM sales_facts WHERE import_job_id = $1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM import_jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return tx.Commit(ctx)
}

// EnsureCustomer performs lookup-or-create on the normalized-name unique key.
func (r *Repository) EnsureCustomer(ctx context.Context, name, normalized, region string) (int64, error) {
	return r.ensureEntity(ctx, `SELECT id FROM customers WHERE normalized_name = $1`, `
		INSERT INTO customers (name, normalized_name, region)
		VALUES ($1, $2, $3)
		ON CONFLICT (normalized_name) DO NOTHING
		RETURNING id
	`, name, normalized, region)
}

// EnsureProduct performs lookup-or-create on the normalized-name unique key.
func (r *Repository) EnsureProduct(ctx context.Context, name, normalized, category string) (int64, error) {
	return r.ensureEntity(ctx, `SELECT id FROM products WHERE normalized_name = $1`, `
		INSERT INTO products (name, normalized_name, category)
		VALUES ($1, $2, $3)
		ON CONFLICT (normalized_name) DO NOTHING
		RETURNING id
	`, name, normalized, category)
}

// EnsureStore performs lookup-or-create on the normalized-name unique key.
func (r *Repository) EnsureStore(ctx context.Context, name, normalized, region string) (int64, error) {
	return r.ensureEntity(ctx, `SELECT id FROM stores WHERE normalized_name = $1`, `
		INSERT INTO stores (name, normalized_name, region)
		VALUES ($1, $2, $3)
		ON CONFLICT (normalized_name) DO NOTHING
		RETURNING id
	`, name, normalized, region)
}

// ensureEntity resolves a normalized name to an entity id, creating the row
// when missing. Losing the creation race to a concurrent resolver is handled
// by retrying the lookup: the authoritative key is the normalized name, not
// insertion order.
func (r *Repository) ensureEntity(ctx context.Context, selectSQL, insertSQL, name, normalized, attr string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, selectSQL, normalized).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	err = r.pool.QueryRow(ctx, insertSQL, name, normalized, attr).Scan(&id)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		// Lost the race; the winner's row is authoritative.
		if err := r.pool.QueryRow(ctx, selectSQL, normalized).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	return 0, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// ApplyCustomerAggregate atomically folds one row contribution into the
// customer's running totals.
func (r *Repository) ApplyCustomerAggregate(ctx context.Context, id int64, amount float64, date time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE customers
		SET total_spent = total_spent + $2,
		    purchases_count = purchases_count + 1,
		    last_purchase_at = GREATEST(COALESCE(last_purchase_at, $3::date), $3::date)
		WHERE id = $1
	`, id, amount, date)
	return err
}

// ApplyProductAggregate atomically folds one row contribution into the
// product's running totals.
func (r *Repository) ApplyProductAggregate(ctx context.Context, id int64, amount, quantity float64, date time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE products
		SET total_revenue = total_revenue + $2,
		    units_sold = units_sold + $3,
		    sales_count = sales_count + 1,
		    last_sold_at = GREATEST(COALESCE(last_sold_at, $4::date), $4::date)
		WHERE id = $1
	`, id, amount, quantity, date)
	return err
}

// ApplyStoreAggregate atomically folds one row contribution into the store's
// running totals.
func (r *Repository) ApplyStoreAggregate(ctx context.Context, id int64, amount float64, date time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE stores
		SET total_revenue = total_revenue + $2,
		    sales_count = sales_count + 1,
		    last_sale_at = GREATEST(COALESCE(last_sale_at, $3::date), $3::date)
		WHERE id = $1
	`, id, amount, date)
	return err
}

// InsertFact persists one sales fact tagged with its owning job.
func (r *Repository) InsertFact(ctx context.Context, fact SalesFact) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sales_facts (sale_date, customer_id, product_id, store_id,
		                         quantity, unit_price, total_amount,
		                         sale_year, sale_month, sale_week, sale_dow, import_job_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, fact.Date, fact.CustomerID, fact.ProductID, fact.StoreID,
		fact.Quantity, fact.UnitPrice, fact.TotalAmount,
		fact.Year, fact.Month, fact.Week, fact.DayOfWeek, fact.JobID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (ImportJob, error) {
	var (
		job     ImportJob
		kind    string
		status  string
		rawLog  []byte
		started *time.Time
		done    *time.Time
	)
	err := row.Scan(&job.ID, &job.Filename, &job.FileSize, &job.StoragePath, &kind, &status,
		&job.TotalRows, &job.ImportedRows, &job.FailedRows, &job.Progress,
		&rawLog, &job.ErrorMessage, &started, &done, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return ImportJob{}, err
	}
	job.Kind = EntityKind(kind)
	job.Status = JobStatus(status)
	job.StartedAt = started
	job.CompletedAt = done
	if len(rawLog) > 0 {
		if err := json.Unmarshal(rawLog, &job.ErrorLog); err != nil {
			return ImportJob{}, err
		}
	}
	return job, nil
}

func marshalErrors(errs []RowError) ([]byte, error) {
	if len(errs) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(errs)
}

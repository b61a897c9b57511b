package planfact

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonthlyActual is the recorded revenue and quantity for one month.
type MonthlyActual struct {
	Year     int
	Month    int
	Revenue  float64
	Quantity float64
}

// Repository persists plan targets and reads actuals from the fact table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the plan-fact repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreatePlan inserts a target. One target per year, month and store scope.
func (r *Repository) CreatePlan(ctx context.Context, target PlanTarget) (PlanTarget, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO plan_targets (period_year, period_month, store_id, planned_revenue, planned_quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, target.Year, target.Month, target.StoreID, target.PlannedRevenue, target.PlannedQuantity).
		Scan(&target.ID, &target.CreatedAt, &target.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return PlanTarget{}, ErrDuplicatePlan
		}
		return PlanTarget{}, fmt.Errorf("create plan: %w", err)
	}
	return target, nil
}

// UpdatePlan overwrites the target amounts for an existing plan.
func (r *Repository) UpdatePlan(ctx context.Context, id int64, revenue, quantity float64) (PlanTarget, error) {
	var target PlanTarget
	err := r.pool.QueryRow(ctx, `
		UPDATE plan_targets
		SET planned_revenue = $2, planned_quantity = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, period_year, period_month, store_id, planned_revenue, planned_quantity, created_at, updated_at
	`, id, revenue, quantity).Scan(
		&target.ID, &target.Year, &target.Month, &target.StoreID,
		&target.PlannedRevenue, &target.PlannedQuantity, &target.CreatedAt, &target.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PlanTarget{}, ErrPlanNotFound
	}
	if err != nil {
		return PlanTarget{}, fmt.Errorf("update plan: %w", err)
	}
	return target, nil
}

// DeletePlan removes a target.
func (r *Repository) DeletePlan(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM plan_targets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// ListPlans returns targets for one year, optionally narrowed to a store.
func (r *Repository) ListPlans(ctx context.Context, year int, storeID *int64) ([]PlanTarget, error) {
	query := `
		SELECT id, period_year, period_month, store_id, planned_revenue, planned_quantity, created_at, updated_at
		FROM plan_targets
		WHERE period_year = $1`
	args := []interface{}{year}
	if storeID != nil {
		query += ` AND store_id = $2`
		args = append(args, *storeID)
	}
	query += ` ORDER BY period_month ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	targets := []PlanTarget{}
	for rows.Next() {
		var t PlanTarget
		if err := rows.Scan(&t.ID, &t.Year, &t.Month, &t.StoreID,
			&t.PlannedRevenue, &t.PlannedQuantity, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list plans scan: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// MonthlyActuals aggregates facts per month for one year, optionally narrowed
// to a store.
func (r *Repository) MonthlyActuals(ctx context.Context, year int, storeID *int64) ([]MonthlyActual, error) {
	query := `
		SELECT f.sale_year, f.sale_month,
		       COALESCE(SUM(f.total_amount), 0),
		       COALESCE(SUM(f.quantity), 0)
		FROM sales_facts f
		WHERE f.sale_year = $1`
	args := []interface{}{year}
	if storeID != nil {
		query += ` AND f.store_id = $2`
		args = append(args, *storeID)
	}
	query += ` GROUP BY f.sale_year, f.sale_month ORDER BY f.sale_month ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monthly actuals: %w", err)
	}
	defer rows.Close()

	actuals := []MonthlyActual{}
	for rows.Next() {
		var a MonthlyActual
		if err := rows.Scan(&a.Year, &a.Month, &a.Revenue, &a.Quantity); err != nil {
			return nil, fmt.Errorf("monthly actuals scan: %w", err)
		}
		actuals = append(actuals, a)
	}
	return actuals, rows.Err()
}

// PeriodStats aggregates revenue and sales count over a closed date interval.
func (r *Repository) PeriodStats(ctx context.Context, p Period) (PeriodStats, error) {
	stats := PeriodStats{From: p.From.Format("2006-01-02"), To: p.To.Format("2006-01-02")}
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(f.total_amount), 0), COUNT(*)
		FROM sales_facts f
		WHERE f.sale_date >= $1 AND f.sale_date <= $2
	`, p.From, p.To).Scan(&stats.Revenue, &stats.SalesCount)
	if err != nil {
		return PeriodStats{}, fmt.Errorf("period stats: %w", err)
	}
	if stats.SalesCount > 0 {
		stats.AverageCheck = stats.Revenue / float64(stats.SalesCount)
	}
	return stats, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

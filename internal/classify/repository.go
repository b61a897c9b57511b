package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MonthlyDemandRow is one product-month demand aggregate.
type MonthlyDemandRow struct {
	ProductID int64
	Name      string
	Year      int
	Month     int
	Quantity  float64
}

// Repository reads classification inputs from the fact table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the classification repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ProductRevenues sums revenue per product over the window. Products with no
// sales in the window do not appear.
func (r *Repository) ProductRevenues(ctx context.Context, from, to time.Time) ([]ProductMetric, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, COALESCE(SUM(f.total_amount), 0) AS revenue
		FROM sales_facts f
		JOIN products p ON p.id = f.product_id
		WHERE f.sale_date >= $1 AND f.sale_date <= $2
		GROUP BY p.id, p.name
		ORDER BY revenue DESC, p.id ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("product revenues: %w", err)
	}
	defer rows.Close()

	metrics := []ProductMetric{}
	for rows.Next() {
		var m ProductMetric
		if err := rows.Scan(&m.ProductID, &m.Name, &m.Revenue); err != nil {
			return nil, fmt.Errorf("product revenues scan: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// MonthlyDemand sums quantity per product per calendar month over the window.
func (r *Repository) MonthlyDemand(ctx context.Context, from, to time.Time) ([]MonthlyDemandRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, f.sale_year, f.sale_month, COALESCE(SUM(f.quantity), 0)
		FROM sales_facts f
		JOIN products p ON p.id = f.product_id
		WHERE f.sale_date >= $1 AND f.sale_date <= $2
		GROUP BY p.id, p.name, f.sale_year, f.sale_month
		ORDER BY p.id, f.sale_year, f.sale_month
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("monthly demand: %w", err)
	}
	defer rows.Close()

	out := []MonthlyDemandRow{}
	for rows.Next() {
		var d MonthlyDemandRow
		if err := rows.Scan(&d.ProductID, &d.Name, &d.Year, &d.Month, &d.Quantity); err != nil {
			return nil, fmt.Errorf("monthly demand scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

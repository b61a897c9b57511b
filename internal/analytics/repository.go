package analytics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository answers analytics queries with aggregation SQL over sales_facts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// filterClause renders the shared WHERE fragment for a fact-table filter.
// Returned args start at $1; extra args appended by callers continue the
// numbering.
func filterClause(f Filter) (string, []interface{}) {
	clause := "f.sale_date >= $1 AND f.sale_date <= $2"
	args := []interface{}{f.From, f.To}
	if f.CustomerID != nil {
		args = append(args, *f.CustomerID)
		clause += " AND f.customer_id = $" + strconv.Itoa(len(args))
	}
	if f.ProductID != nil {
		args = append(args, *f.ProductID)
		clause += " AND f.product_id = $" + strconv.Itoa(len(args))
	}
	if f.StoreID != nil {
		args = append(args, *f.StoreID)
		clause += " AND f.store_id = $" + strconv.Itoa(len(args))
	}
	return clause, args
}

// Dashboard computes headline totals for the range.
func (r *Repository) Dashboard(ctx context.Context, f Filter) (Dashboard, error) {
	clause, args := filterClause(f)
	query := `
		SELECT COALESCE(SUM(f.total_amount), 0),
		       COUNT(*),
		       COALESCE(SUM(f.quantity), 0),
		       COUNT(DISTINCT f.customer_id),
		       COUNT(DISTINCT f.store_id),
		       MIN(f.sale_date),
		       MAX(f.sale_date)
		FROM sales_facts f
		WHERE ` + clause

	var d Dashboard
	var first, last *time.Time
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&d.TotalRevenue, &d.SalesCount, &d.UnitsSold,
		&d.UniqueBuyers, &d.ActiveStores, &first, &last,
	)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard query: %w", err)
	}
	if first != nil {
		v := first.Format("2006-01-02")
		d.FirstSaleDate = &v
	}
	if last != nil {
		v := last.Format("2006-01-02")
		d.LastSaleDate = &v
	}
	return d, nil
}

// TopCustomers ranks customers by revenue within the range. Ties break on
// ascending id so rankings are reproducible run to run.
func (r *Repository) TopCustomers(ctx context.Context, f Filter, limit int) ([]TopEntry, error) {
	clause, args := filterClause(f)
	args = append(args, limit)
	query := `
		SELECT c.id, c.name, COALESCE(SUM(f.total_amount), 0) AS revenue, COUNT(*)
		FROM sales_facts f
		JOIN customers c ON c.id = f.customer_id
		WHERE ` + clause + `
		GROUP BY c.id, c.name
		ORDER BY revenue DESC, c.id ASC
		LIMIT $` + strconv.Itoa(len(args))
	return r.queryTop(ctx, query, args)
}

// TopProducts ranks products by revenue within the range.
func (r *Repository) TopProducts(ctx context.Context, f Filter, limit int) ([]TopEntry, error) {
	clause, args := filterClause(f)
	args = append(args, limit)
	query := `
		SELECT p.id, p.name, COALESCE(SUM(f.total_amount), 0) AS revenue, COUNT(*)
		FROM sales_facts f
		JOIN products p ON p.id = f.product_id
		WHERE ` + clause + `
		GROUP BY p.id, p.name
		ORDER BY revenue DESC, p.id ASC
		LIMIT $` + strconv.Itoa(len(args))
	return r.queryTop(ctx, query, args)
}

func (r *Repository) queryTop(ctx context.Context, query string, args []interface{}) ([]TopEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("top query: %w", err)
	}
	defer rows.Close()

	entries := []TopEntry{}
	for rows.Next() {
		var e TopEntry
		if err := rows.Scan(&e.EntityID, &e.Name, &e.Revenue, &e.SalesCount); err != nil {
			return nil, fmt.Errorf("top scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RangeRevenue returns total revenue in the range, used as the denominator
// for ranking shares.
func (r *Repository) RangeRevenue(ctx context.Context, f Filter) (float64, error) {
	clause, args := filterClause(f)
	var total float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(f.total_amount), 0) FROM sales_facts f WHERE `+clause, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("range revenue: %w", err)
	}
	return total, nil
}

// Trend buckets revenue by calendar period. Period labels are ISO formatted
// so lexicographic order matches chronological order.
func (r *Repository) Trend(ctx context.Context, f Filter, g Granularity) ([]TrendPoint, error) {
	var periodExpr string
	switch g {
	case GranularityWeek:
		periodExpr = `to_char(f.sale_date, 'IYYY-"W"IW')`
	case GranularityMonth:
		periodExpr = `to_char(f.sale_date, 'YYYY-MM')`
	default:
		periodExpr = `to_char(f.sale_date, 'YYYY-MM-DD')`
	}
	clause, args := filterClause(f)
	query := `
		SELECT ` + periodExpr + ` AS period,
		       COALESCE(SUM(f.total_amount), 0),
		       COUNT(*),
		       COALESCE(SUM(f.quantity), 0)
		FROM sales_facts f
		WHERE ` + clause + `
		GROUP BY period
		ORDER BY period ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("trend query: %w", err)
	}
	defer rows.Close()

	points := []TrendPoint{}
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Period, &p.Revenue, &p.SalesCount, &p.UnitsSold); err != nil {
			return nil, fmt.Errorf("trend scan: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

// Storage is the query surface the service needs from the database.
type Storage interface {
	Dashboard(ctx context.Context, f Filter) (Dashboard, error)
	TopCustomers(ctx context.Context, f Filter, limit int) ([]TopEntry, error)
	TopProducts(ctx context.Context, f Filter, limit int) ([]TopEntry, error)
	RangeRevenue(ctx context.Context, f Filter) (float64, error)
	Trend(ctx context.Context, f Filter, g Granularity) ([]TrendPoint, error)
}

// Service computes analytics results, memoizing them in the versioned cache.
type Service struct {
	storage Storage
	cache   *Cache
	logger  *slog.Logger
}

// NewService wires the analytics service.
func NewService(storage Storage, cache *Cache, logger *slog.Logger) *Service {
	return &Service{storage: storage, cache: cache, logger: logger}
}

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
	overviewLimit   = 5
)

// GetDashboard returns headline totals for the filter range.
func (s *Service) GetDashboard(ctx context.Context, f Filter) (Dashboard, error) {
	if err := f.Validate(); err != nil {
		return Dashboard{}, err
	}
	key, err := s.cache.BuildKey(ctx, "dashboard", f.CacheParams()...)
	if err != nil {
		return Dashboard{}, err
	}
	var out Dashboard
	err = s.cache.FetchJSON(ctx, key, f.Force, &out, func(ctx context.Context) (interface{}, error) {
		d, err := s.storage.Dashboard(ctx, f)
		if err != nil {
			return nil, err
		}
		if d.SalesCount > 0 {
			d.AverageCheck = d.TotalRevenue / float64(d.SalesCount)
		}
		return d, nil
	})
	return out, err
}

// GetTopCustomers ranks customers by revenue, with each entry's share of the
// whole range's revenue.
func (s *Service) GetTopCustomers(ctx context.Context, f Filter, limit int) ([]TopEntry, error) {
	return s.top(ctx, "top_customers", f, limit, s.storage.TopCustomers)
}

// GetTopProducts ranks products by revenue.
func (s *Service) GetTopProducts(ctx context.Context, f Filter, limit int) ([]TopEntry, error) {
	return s.top(ctx, "top_products", f, limit, s.storage.TopProducts)
}

func (s *Service) top(ctx context.Context, op string, f Filter, limit int, query func(context.Context, Filter, int) ([]TopEntry, error)) ([]TopEntry, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = defaultTopLimit
	}
	if limit < 1 || limit > maxTopLimit {
		return nil, ErrInvalidLimit
	}
	params := append(f.CacheParams(), strconv.Itoa(limit))
	key, err := s.cache.BuildKey(ctx, op, params...)
	if err != nil {
		return nil, err
	}
	out := []TopEntry{}
	err = s.cache.FetchJSON(ctx, key, f.Force, &out, func(ctx context.Context) (interface{}, error) {
		entries, err := query(ctx, f, limit)
		if err != nil {
			return nil, err
		}
		total, err := s.storage.RangeRevenue(ctx, f)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			if total > 0 {
				entries[i].Share = entries[i].Revenue / total
			}
		}
		return entries, nil
	})
	return out, err
}

// GetTrend returns the revenue-over-time series. By default the series is
// sparse: buckets without sales are omitted. With dense set, every bucket
// between From and To appears, zero-valued when empty.
func (s *Service) GetTrend(ctx context.Context, f Filter, g Granularity, dense bool) ([]TrendPoint, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	params := append(f.CacheParams(), string(g), strconv.FormatBool(dense))
	key, err := s.cache.BuildKey(ctx, "trend", params...)
	if err != nil {
		return nil, err
	}
	out := []TrendPoint{}
	err = s.cache.FetchJSON(ctx, key, f.Force, &out, func(ctx context.Context) (interface{}, error) {
		points, err := s.storage.Trend(ctx, f, g)
		if err != nil {
			return nil, err
		}
		if dense {
			return densify(points, f.From, f.To, g), nil
		}
		return points, nil
	})
	return out, err
}

// Overview bundles the dashboard with short leader boards, fetched
// concurrently.
type Overview struct {
	Dashboard    Dashboard  `json:"dashboard"`
	TopCustomers []TopEntry `json:"top_customers"`
	TopProducts  []TopEntry `json:"top_products"`
}

// GetOverview fans the three queries out in parallel.
func (s *Service) GetOverview(ctx context.Context, f Filter) (Overview, error) {
	if err := f.Validate(); err != nil {
		return Overview{}, err
	}
	var out Overview
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := s.GetDashboard(ctx, f)
		out.Dashboard = d
		return err
	})
	g.Go(func() error {
		entries, err := s.GetTopCustomers(ctx, f, overviewLimit)
		out.TopCustomers = entries
		return err
	})
	g.Go(func() error {
		entries, err := s.GetTopProducts(ctx, f, overviewLimit)
		out.TopProducts = entries
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return out, nil
}

// CacheStats reports live cache contents.
func (s *Service) CacheStats(ctx context.Context) (Stats, error) {
	return s.cache.Stats(ctx)
}

// RefreshCache discards every cached analytics result.
func (s *Service) RefreshCache(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// densify zero-fills the buckets the query returned nothing for.
func densify(points []TrendPoint, from, to time.Time, g Granularity) []TrendPoint {
	byPeriod := make(map[string]TrendPoint, len(points))
	for _, p := range points {
		byPeriod[p.Period] = p
	}
	keys := periodKeys(from, to, g)
	dense := make([]TrendPoint, 0, len(keys))
	for _, key := range keys {
		if p, ok := byPeriod[key]; ok {
			dense = append(dense, p)
			continue
		}
		dense = append(dense, TrendPoint{Period: key})
	}
	return dense
}

// periodKeys enumerates bucket labels covering [from, to] inclusive.
func periodKeys(from, to time.Time, g Granularity) []string {
	keys := []string{}
	seen := map[string]bool{}
	switch g {
	case GranularityMonth:
		cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
		for !cur.After(end) {
			keys = append(keys, cur.Format("2006-01"))
			cur = cur.AddDate(0, 1, 0)
		}
	case GranularityWeek:
		for cur := from; !cur.After(to); cur = cur.AddDate(0, 0, 1) {
			year, week := cur.ISOWeek()
			key := fmt.Sprintf("%04d-W%02d", year, week)
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	default:
		for cur := from; !cur.After(to); cur = cur.AddDate(0, 0, 1) {
			keys = append(keys, cur.Format("2006-01-02"))
		}
	}
	return keys
}

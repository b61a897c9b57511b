package classify

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/salespulse/salespulse/internal/analytics"
)

// ErrInvalidWindow signals an inverted or empty analysis window.
var ErrInvalidWindow = errors.New("classify: date_from must not be after date_to")

// Storage is the data surface classification needs.
type Storage interface {
	ProductRevenues(ctx context.Context, from, to time.Time) ([]ProductMetric, error)
	MonthlyDemand(ctx context.Context, from, to time.Time) ([]MonthlyDemandRow, error)
}

// Service builds ABC/XYZ reports, memoized in the shared analytics cache.
type Service struct {
	storage Storage
	cache   *analytics.Cache
	logger  *slog.Logger
}

// NewService wires the classification service.
func NewService(storage Storage, cache *analytics.Cache, logger *slog.Logger) *Service {
	return &Service{storage: storage, cache: cache, logger: logger}
}

// GetReport classifies every product sold in [from, to].
func (s *Service) GetReport(ctx context.Context, from, to time.Time, force bool) (Report, error) {
	if from.After(to) {
		return Report{}, ErrInvalidWindow
	}
	key, err := s.cache.BuildKey(ctx, "abc_xyz", from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return Report{}, err
	}
	var out Report
	err = s.cache.FetchJSON(ctx, key, force, &out, func(ctx context.Context) (interface{}, error) {
		return s.compute(ctx, from, to)
	})
	return out, err
}

func (s *Service) compute(ctx context.Context, from, to time.Time) (Report, error) {
	metrics, err := s.storage.ProductRevenues(ctx, from, to)
	if err != nil {
		return Report{}, err
	}
	demand, err := s.storage.MonthlyDemand(ctx, from, to)
	if err != nil {
		return Report{}, err
	}

	abc := ComputeABC(metrics)
	xyz := ComputeXYZ(buildSeries(demand, from, to))
	abcCounts, xyzCounts := CountClasses(abc, xyz)
	return Report{
		DateFrom:  from.Format("2006-01-02"),
		DateTo:    to.Format("2006-01-02"),
		ABC:       abc,
		XYZ:       xyz,
		Matrix:    BuildMatrix(abc, xyz),
		ABCCounts: abcCounts,
		XYZCounts: xyzCounts,
	}, nil
}

// buildSeries turns sparse product-month aggregates into dense series
// covering every month of the window. Months without sales count as zero
// demand; dropping them would understate variability.
func buildSeries(rows []MonthlyDemandRow, from, to time.Time) []DemandSeries {
	months := monthIndex(from, to)
	names := map[int64]string{}
	values := map[int64][]float64{}
	for _, row := range rows {
		idx, ok := months[monthKey{row.Year, row.Month}]
		if !ok {
			continue
		}
		if _, seen := values[row.ProductID]; !seen {
			values[row.ProductID] = make([]float64, len(months))
			names[row.ProductID] = row.Name
		}
		values[row.ProductID][idx] += row.Quantity
	}

	ids := make([]int64, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	series := make([]DemandSeries, 0, len(ids))
	for _, id := range ids {
		series = append(series, DemandSeries{ProductID: id, Name: names[id], Monthly: values[id]})
	}
	return series
}

type monthKey struct {
	year  int
	month int
}

func monthIndex(from, to time.Time) map[monthKey]int {
	idx := map[monthKey]int{}
	cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; !cur.After(end); i++ {
		idx[monthKey{cur.Year(), int(cur.Month())}] = i
		cur = cur.AddDate(0, 1, 0)
	}
	return idx
}

package planfact

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/salespulse/salespulse/internal/analytics"
	"github.com/salespulse/salespulse/internal/platform/httpx"
)

type mockStorage struct {
	plans        []PlanTarget
	actuals      []MonthlyActual
	actualCalls  int
	statsByRange map[string]PeriodStats
	statsCalls   int
	nextID       int64
}

func (m *mockStorage) CreatePlan(ctx context.Context, target PlanTarget) (PlanTarget, error) {
	for _, p := range m.plans {
		if p.Year == target.Year && p.Month == target.Month {
			return PlanTarget{}, ErrDuplicatePlan
		}
	}
	m.nextID++
	target.ID = m.nextID
	m.plans = append(m.plans, target)
	return target, nil
}

func (m *mockStorage) UpdatePlan(ctx context.Context, id int64, revenue, quantity float64) (PlanTarget, error) {
	for i := range m.plans {
		if m.plans[i].ID == id {
			m.plans[i].PlannedRevenue = revenue
			m.plans[i].PlannedQuantity = quantity
			return m.plans[i], nil
		}
	}
	return PlanTarget{}, ErrPlanNotFound
}

func (m *mockStorage) DeletePlan(ctx context.Context, id int64) error {
	for i := range m.plans {
		if m.plans[i].ID == id {
			m.plans = append(m.plans[:i], m.plans[i+1:]...)
			return nil
		}
	}
	return ErrPlanNotFound
}

func (m *mockStorage) ListPlans(ctx context.Context, year int, storeID *int64) ([]PlanTarget, error) {
	out := []PlanTarget{}
	for _, p := range m.plans {
		if p.Year == year {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockStorage) MonthlyActuals(ctx context.Context, year int, storeID *int64) ([]MonthlyActual, error) {
	m.actualCalls++
	return m.actuals, nil
}

func (m *mockStorage) PeriodStats(ctx context.Context, p Period) (PeriodStats, error) {
	m.statsCalls++
	if stats, ok := m.statsByRange[p.From.Format("2006-01-02")]; ok {
		return stats, nil
	}
	return PeriodStats{From: p.From.Format("2006-01-02"), To: p.To.Format("2006-01-02")}, nil
}

func newTestService(t *testing.T, storage Storage) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := analytics.NewCache(client, time.Minute)
	return NewService(storage, cache, slog.Default())
}

func TestCreatePlanValidation(t *testing.T) {
	storage := &mockStorage{}
	svc := newTestService(t, storage)
	ctx := context.Background()

	_, err := svc.CreatePlan(ctx, PlanTarget{Year: 2025, Month: 13, PlannedRevenue: 100})
	require.Error(t, err)
	require.True(t, errors.Is(err, httpx.ErrValidation))

	_, err = svc.CreatePlan(ctx, PlanTarget{Year: 2025, Month: 3, PlannedRevenue: -1})
	require.Error(t, err)

	created, err := svc.CreatePlan(ctx, PlanTarget{Year: 2025, Month: 3, PlannedRevenue: 1000, PlannedQuantity: 50})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	_, err = svc.CreatePlan(ctx, PlanTarget{Year: 2025, Month: 3, PlannedRevenue: 500})
	require.ErrorIs(t, err, ErrDuplicatePlan)
}

func TestGetVarianceReportCachesUntilPlanWrite(t *testing.T) {
	storage := &mockStorage{
		actuals: []MonthlyActual{{Year: 2025, Month: 3, Revenue: 800, Quantity: 60}},
	}
	svc := newTestService(t, storage)
	ctx := context.Background()

	_, err := svc.CreatePlan(ctx, PlanTarget{Year: 2025, Month: 3, PlannedRevenue: 1000, PlannedQuantity: 50})
	require.NoError(t, err)

	report, err := svc.GetVarianceReport(ctx, 2025, nil, false)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	require.Equal(t, float64(-200), report.Rows[0].RevenueVariance)
	require.Equal(t, float64(80), report.Rows[0].RevenueFulfillment)
	require.Equal(t, 1, storage.actualCalls)

	// Second read hits the cache.
	_, err = svc.GetVarianceReport(ctx, 2025, nil, false)
	require.NoError(t, err)
	require.Equal(t, 1, storage.actualCalls)

	// Writing a plan invalidates cached reports.
	_, err = svc.CreatePlan(ctx, PlanTarget{Year: 2025, Month: 4, PlannedRevenue: 500})
	require.NoError(t, err)
	report, err = svc.GetVarianceReport(ctx, 2025, nil, false)
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)
	require.Equal(t, 2, storage.actualCalls)
}

func TestGetVarianceReportPlannedMonthWithoutSales(t *testing.T) {
	storage := &mockStorage{}
	svc := newTestService(t, storage)
	ctx := context.Background()

	_, err := svc.CreatePlan(ctx, PlanTarget{Year: 2025, Month: 7, PlannedRevenue: 900})
	require.NoError(t, err)

	report, err := svc.GetVarianceReport(ctx, 2025, nil, false)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	require.Equal(t, float64(0), report.Rows[0].ActualRevenue)
	require.Equal(t, float64(0), report.Rows[0].RevenueFulfillment)
	require.Equal(t, float64(-900), report.Rows[0].RevenueVariance)
}

func TestGetLFLReport(t *testing.T) {
	storage := &mockStorage{
		statsByRange: map[string]PeriodStats{
			"2025-03-01": {From: "2025-03-01", To: "2025-03-31", Revenue: 1200, SalesCount: 12, AverageCheck: 100},
			"2025-01-29": {From: "2025-01-29", To: "2025-02-28", Revenue: 1000, SalesCount: 10, AverageCheck: 100},
		},
	}
	svc := newTestService(t, storage)
	ctx := context.Background()

	current := Period{
		From: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	baseline := Period{
		From: time.Date(2025, 1, 29, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
	}

	report, err := svc.GetLFLReport(ctx, current, baseline, false)
	require.NoError(t, err)
	require.NotNil(t, report.RevenueChange)
	require.InDelta(t, 20, *report.RevenueChange, 1e-9)
	require.NotNil(t, report.AverageCheckChange)
	require.InDelta(t, 0, *report.AverageCheckChange, 1e-9)

	// Overlapping periods are rejected before any query runs.
	calls := storage.statsCalls
	_, err = svc.GetLFLReport(ctx, current, current, false)
	require.ErrorIs(t, err, ErrInvalidPeriods)
	require.Equal(t, calls, storage.statsCalls)
}

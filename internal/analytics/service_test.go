package analytics

import (
	"context"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockStorage struct {
	dashboard      Dashboard
	dashboardCalls int
	topCustomers   []TopEntry
	topCalls       int
	rangeRevenue   float64
	trendPoints    []TrendPoint
	trendCalls     int
}

func (m *mockStorage) Dashboard(ctx context.Context, f Filter) (Dashboard, error) {
	m.dashboardCalls++
	return m.dashboard, nil
}

func (m *mockStorage) TopCustomers(ctx context.Context, f Filter, limit int) ([]TopEntry, error) {
	m.topCalls++
	if limit < len(m.topCustomers) {
		return m.topCustomers[:limit], nil
	}
	return m.topCustomers, nil
}

func (m *mockStorage) TopProducts(ctx context.Context, f Filter, limit int) ([]TopEntry, error) {
	m.topCalls++
	return nil, nil
}

func (m *mockStorage) RangeRevenue(ctx context.Context, f Filter) (float64, error) {
	return m.rangeRevenue, nil
}

func (m *mockStorage) Trend(ctx context.Context, f Filter, g Granularity) ([]TrendPoint, error) {
	m.trendCalls++
	return m.trendPoints, nil
}

func newTestService(t *testing.T, storage Storage) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	return NewService(storage, cache, slog.Default())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGetDashboardCachesAndBumps(t *testing.T) {
	storage := &mockStorage{dashboard: Dashboard{TotalRevenue: 1000, SalesCount: 4}}
	svc := newTestService(t, storage)

	ctx := context.Background()
	f := Filter{From: day(2025, time.March, 1), To: day(2025, time.March, 31)}

	out, err := svc.GetDashboard(ctx, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.AverageCheck != 250 {
		t.Fatalf("expected average check 250 got %.2f", out.AverageCheck)
	}
	if storage.dashboardCalls != 1 {
		t.Fatalf("expected 1 storage call, got %d", storage.dashboardCalls)
	}

	// Second call should hit cache.
	if _, err := svc.GetDashboard(ctx, f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if storage.dashboardCalls != 1 {
		t.Fatalf("expected cached result, storage called %d times", storage.dashboardCalls)
	}

	// Bumping the cache should trigger reload.
	if err := svc.RefreshCache(ctx); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	storage.dashboard.TotalRevenue = 2000
	out, err = svc.GetDashboard(ctx, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TotalRevenue != 2000 {
		t.Fatalf("expected refreshed revenue 2000 got %.2f", out.TotalRevenue)
	}
	if storage.dashboardCalls != 2 {
		t.Fatalf("expected storage to refresh, calls %d", storage.dashboardCalls)
	}
}

func TestGetDashboardForceBypassesCache(t *testing.T) {
	storage := &mockStorage{dashboard: Dashboard{TotalRevenue: 100, SalesCount: 1}}
	svc := newTestService(t, storage)

	ctx := context.Background()
	f := Filter{From: day(2025, time.March, 1), To: day(2025, time.March, 31)}
	if _, err := svc.GetDashboard(ctx, f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.Force = true
	if _, err := svc.GetDashboard(ctx, f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if storage.dashboardCalls != 2 {
		t.Fatalf("expected force refresh to recompute, calls %d", storage.dashboardCalls)
	}
}

func TestGetDashboardEmptyRange(t *testing.T) {
	storage := &mockStorage{}
	svc := newTestService(t, storage)

	out, err := svc.GetDashboard(context.Background(), Filter{
		From: day(2025, time.January, 1), To: day(2025, time.January, 31),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TotalRevenue != 0 || out.SalesCount != 0 || out.AverageCheck != 0 {
		t.Fatalf("expected zeroed dashboard, got %+v", out)
	}
}

func TestGetDashboardRejectsInvertedRange(t *testing.T) {
	svc := newTestService(t, &mockStorage{})
	_, err := svc.GetDashboard(context.Background(), Filter{
		From: day(2025, time.March, 31), To: day(2025, time.March, 1),
	})
	if err != ErrInvalidRange {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestGetTopCustomersShares(t *testing.T) {
	storage := &mockStorage{
		topCustomers: []TopEntry{
			{EntityID: 1, Name: "Ivanov", Revenue: 800, SalesCount: 3},
			{EntityID: 2, Name: "Petrov", Revenue: 200, SalesCount: 1},
		},
		rangeRevenue: 1000,
	}
	svc := newTestService(t, storage)

	entries, err := svc.GetTopCustomers(context.Background(), Filter{
		From: day(2025, time.March, 1), To: day(2025, time.March, 31),
	}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Share != 0.8 || entries[1].Share != 0.2 {
		t.Fatalf("unexpected shares: %.2f, %.2f", entries[0].Share, entries[1].Share)
	}
}

func TestGetTopCustomersLimitBounds(t *testing.T) {
	svc := newTestService(t, &mockStorage{})
	f := Filter{From: day(2025, time.March, 1), To: day(2025, time.March, 31)}

	if _, err := svc.GetTopCustomers(context.Background(), f, -1); err != ErrInvalidLimit {
		t.Fatalf("expected ErrInvalidLimit for negative limit, got %v", err)
	}
	if _, err := svc.GetTopCustomers(context.Background(), f, 101); err != ErrInvalidLimit {
		t.Fatalf("expected ErrInvalidLimit above cap, got %v", err)
	}
	if _, err := svc.GetTopCustomers(context.Background(), f, 0); err != nil {
		t.Fatalf("zero limit should fall back to default: %v", err)
	}
}

func TestGetTrendDenseFill(t *testing.T) {
	storage := &mockStorage{
		trendPoints: []TrendPoint{
			{Period: "2025-03-01", Revenue: 100, SalesCount: 1},
			{Period: "2025-03-03", Revenue: 300, SalesCount: 2},
		},
	}
	svc := newTestService(t, storage)

	points, err := svc.GetTrend(context.Background(), Filter{
		From: day(2025, time.March, 1), To: day(2025, time.March, 4),
	}, GranularityDay, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 4 {
		t.Fatalf("expected 4 daily buckets, got %d", len(points))
	}
	if points[1].Period != "2025-03-02" || points[1].Revenue != 0 {
		t.Fatalf("expected zero-filled gap bucket, got %+v", points[1])
	}
	if points[2].Revenue != 300 {
		t.Fatalf("expected populated bucket preserved, got %+v", points[2])
	}
	if points[3].Period != "2025-03-04" || points[3].Revenue != 0 {
		t.Fatalf("expected trailing zero bucket, got %+v", points[3])
	}
}

func TestGetTrendSparseByDefault(t *testing.T) {
	storage := &mockStorage{
		trendPoints: []TrendPoint{
			{Period: "2025-03-01", Revenue: 100, SalesCount: 1},
			{Period: "2025-03-03", Revenue: 300, SalesCount: 2},
		},
	}
	svc := newTestService(t, storage)

	points, err := svc.GetTrend(context.Background(), Filter{
		From: day(2025, time.March, 1), To: day(2025, time.March, 4),
	}, GranularityDay, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected empty buckets omitted, got %d points", len(points))
	}
	if points[0].Period != "2025-03-01" || points[1].Period != "2025-03-03" {
		t.Fatalf("unexpected periods: %+v", points)
	}

	// Sparse and dense results are cached under distinct keys.
	dense, err := svc.GetTrend(context.Background(), Filter{
		From: day(2025, time.March, 1), To: day(2025, time.March, 4),
	}, GranularityDay, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dense) != 4 {
		t.Fatalf("expected 4 dense buckets, got %d", len(dense))
	}
	if storage.trendCalls != 2 {
		t.Fatalf("expected separate computations, got %d calls", storage.trendCalls)
	}
}

func TestPeriodKeysMonthAndWeek(t *testing.T) {
	months := periodKeys(day(2024, time.November, 15), day(2025, time.February, 10), GranularityMonth)
	want := []string{"2024-11", "2024-12", "2025-01", "2025-02"}
	if len(months) != len(want) {
		t.Fatalf("expected %d months, got %d", len(want), len(months))
	}
	for i := range want {
		if months[i] != want[i] {
			t.Fatalf("month %d: expected %s got %s", i, want[i], months[i])
		}
	}

	weeks := periodKeys(day(2025, time.March, 3), day(2025, time.March, 16), GranularityWeek)
	if len(weeks) != 2 {
		t.Fatalf("expected 2 ISO weeks, got %d (%v)", len(weeks), weeks)
	}
	if weeks[0] != "2025-W10" || weeks[1] != "2025-W11" {
		t.Fatalf("unexpected week labels: %v", weeks)
	}
}

func TestCacheStatsCountsLiveKeys(t *testing.T) {
	storage := &mockStorage{dashboard: Dashboard{TotalRevenue: 1, SalesCount: 1}}
	svc := newTestService(t, storage)

	ctx := context.Background()
	f := Filter{From: day(2025, time.March, 1), To: day(2025, time.March, 31)}
	if _, err := svc.GetDashboard(ctx, f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, err := svc.CacheStats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Entries != 1 {
		t.Fatalf("expected 1 live entry, got %d", stats.Entries)
	}

	// After a bump the old entry no longer counts.
	if err := svc.RefreshCache(ctx); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	stats, err = svc.CacheStats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Entries != 0 {
		t.Fatalf("expected stale entries excluded, got %d", stats.Entries)
	}
}

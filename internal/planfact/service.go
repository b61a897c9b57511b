package planfact

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/salespulse/salespulse/internal/analytics"
	"github.com/salespulse/salespulse/internal/platform/httpx"
)

// Storage is the persistence surface the service needs.
type Storage interface {
	CreatePlan(ctx context.Context, target PlanTarget) (PlanTarget, error)
	UpdatePlan(ctx context.Context, id int64, revenue, quantity float64) (PlanTarget, error)
	DeletePlan(ctx context.Context, id int64) error
	ListPlans(ctx context.Context, year int, storeID *int64) ([]PlanTarget, error)
	MonthlyActuals(ctx context.Context, year int, storeID *int64) ([]MonthlyActual, error)
	PeriodStats(ctx context.Context, p Period) (PeriodStats, error)
}

// Service manages plan targets and derives variance and like-for-like
// reports.
type Service struct {
	storage  Storage
	cache    *analytics.Cache
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService wires the plan-fact service.
func NewService(storage Storage, cache *analytics.Cache, logger *slog.Logger) *Service {
	return &Service{
		storage:  storage,
		cache:    cache,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreatePlan validates and stores a new target. Plans are inputs rather than
// derived results, so writes bypass the cache but still invalidate it.
func (s *Service) CreatePlan(ctx context.Context, target PlanTarget) (PlanTarget, error) {
	if err := s.validate.Struct(target); err != nil {
		return PlanTarget{}, fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	}
	created, err := s.storage.CreatePlan(ctx, target)
	if err != nil {
		return PlanTarget{}, err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("cache bump after plan create", slog.Any("error", err))
	}
	return created, nil
}

// UpdatePlan overwrites the amounts of an existing target.
func (s *Service) UpdatePlan(ctx context.Context, id int64, revenue, quantity float64) (PlanTarget, error) {
	if revenue < 0 || quantity < 0 {
		return PlanTarget{}, fmt.Errorf("%w: planned amounts must not be negative", httpx.ErrValidation)
	}
	updated, err := s.storage.UpdatePlan(ctx, id, revenue, quantity)
	if err != nil {
		return PlanTarget{}, err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("cache bump after plan update", slog.Any("error", err))
	}
	return updated, nil
}

// DeletePlan removes a target.
func (s *Service) DeletePlan(ctx context.Context, id int64) error {
	if err := s.storage.DeletePlan(ctx, id); err != nil {
		return err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("cache bump after plan delete", slog.Any("error", err))
	}
	return nil
}

// ListPlans returns the targets for a year.
func (s *Service) ListPlans(ctx context.Context, year int, storeID *int64) ([]PlanTarget, error) {
	return s.storage.ListPlans(ctx, year, storeID)
}

// GetVarianceReport compares every planned month of a year against actuals.
// Months with a plan but no sales report zero actuals; months with sales but
// no plan are omitted, the report answers "how did we do against plan".
func (s *Service) GetVarianceReport(ctx context.Context, year int, storeID *int64, force bool) (VarianceReport, error) {
	params := []string{strconv.Itoa(year), formatID(storeID)}
	key, err := s.cache.BuildKey(ctx, "planfact", params...)
	if err != nil {
		return VarianceReport{}, err
	}
	var out VarianceReport
	err = s.cache.FetchJSON(ctx, key, force, &out, func(ctx context.Context) (interface{}, error) {
		return s.computeVariance(ctx, year, storeID)
	})
	return out, err
}

func (s *Service) computeVariance(ctx context.Context, year int, storeID *int64) (VarianceReport, error) {
	plans, err := s.storage.ListPlans(ctx, year, storeID)
	if err != nil {
		return VarianceReport{}, err
	}
	actuals, err := s.storage.MonthlyActuals(ctx, year, storeID)
	if err != nil {
		return VarianceReport{}, err
	}
	byMonth := make(map[int]MonthlyActual, len(actuals))
	for _, a := range actuals {
		byMonth[a.Month] = a
	}

	report := VarianceReport{Year: year, StoreID: storeID, Rows: []VarianceRow{}}
	for _, plan := range plans {
		actual := byMonth[plan.Month]
		report.Rows = append(report.Rows, BuildVarianceRow(plan, actual.Revenue, actual.Quantity))
	}
	return report, nil
}

// GetLFLReport compares two equal-length disjoint periods.
func (s *Service) GetLFLReport(ctx context.Context, current, baseline Period, force bool) (LFLReport, error) {
	if err := ValidatePeriods(current, baseline); err != nil {
		return LFLReport{}, err
	}
	params := []string{
		current.From.Format("2006-01-02"), current.To.Format("2006-01-02"),
		baseline.From.Format("2006-01-02"), baseline.To.Format("2006-01-02"),
	}
	key, err := s.cache.BuildKey(ctx, "lfl", params...)
	if err != nil {
		return LFLReport{}, err
	}
	var out LFLReport
	err = s.cache.FetchJSON(ctx, key, force, &out, func(ctx context.Context) (interface{}, error) {
		cur, err := s.storage.PeriodStats(ctx, current)
		if err != nil {
			return nil, err
		}
		base, err := s.storage.PeriodStats(ctx, baseline)
		if err != nil {
			return nil, err
		}
		return BuildLFLReport(cur, base), nil
	})
	return out, err
}

func formatID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

package planfact

import (
	"errors"
	"time"
)

var (
	ErrPlanNotFound    = errors.New("planfact: plan target not found")
	ErrDuplicatePlan   = errors.New("planfact: plan target already exists for this period")
	ErrInvalidPeriods  = errors.New("planfact: comparison periods must not overlap")
	ErrUnequalPeriods  = errors.New("planfact: comparison periods must be the same length")
	ErrInvalidInterval = errors.New("planfact: date_from must not be after date_to")
	ErrUnknownMetric   = errors.New("planfact: metric must be revenue, sales_count or average_check")
)

// PlanTarget is a monthly sales target, optionally scoped to one store.
type PlanTarget struct {
	ID              int64     `json:"id"`
	Year            int       `json:"year" validate:"required,min=2000,max=2100"`
	Month           int       `json:"month" validate:"required,min=1,max=12"`
	StoreID         *int64    `json:"store_id,omitempty"`
	PlannedRevenue  float64   `json:"planned_revenue" validate:"min=0"`
	PlannedQuantity float64   `json:"planned_quantity" validate:"min=0"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// VarianceRow compares one month's plan against recorded facts.
type VarianceRow struct {
	Year                int     `json:"year"`
	Month               int     `json:"month"`
	StoreID             *int64  `json:"store_id,omitempty"`
	PlannedRevenue      float64 `json:"planned_revenue"`
	ActualRevenue       float64 `json:"actual_revenue"`
	RevenueVariance     float64 `json:"revenue_variance"`
	RevenueFulfillment  float64 `json:"revenue_fulfillment"`
	PlannedQuantity     float64 `json:"planned_quantity"`
	ActualQuantity      float64 `json:"actual_quantity"`
	QuantityVariance    float64 `json:"quantity_variance"`
	QuantityFulfillment float64 `json:"quantity_fulfillment"`
}

// VarianceReport is the plan-fact comparison for one year.
type VarianceReport struct {
	Year    int           `json:"year"`
	StoreID *int64        `json:"store_id,omitempty"`
	Rows    []VarianceRow `json:"rows"`
}

// Period is a closed date interval.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Days returns the period length in whole days, inclusive of both ends.
func (p Period) Days() int {
	return int(p.To.Sub(p.From).Hours()/24) + 1
}

// PeriodStats are the figures compared between like-for-like periods.
type PeriodStats struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	Revenue      float64 `json:"revenue"`
	SalesCount   int64   `json:"sales_count"`
	AverageCheck float64 `json:"average_check"`
}

// LFLReport compares a current period against an equal-length baseline.
// Change percentages are nil when the baseline value is zero: growth from
// nothing has no meaningful percentage.
type LFLReport struct {
	Current            PeriodStats `json:"current"`
	Baseline           PeriodStats `json:"baseline"`
	RevenueChange      *float64    `json:"revenue_change_percent"`
	SalesCountChange   *float64    `json:"sales_count_change_percent"`
	AverageCheckChange *float64    `json:"average_check_change_percent"`
}

// LFLMetricView is the report narrowed to one selected metric.
type LFLMetricView struct {
	Metric        string   `json:"metric"`
	CurrentValue  float64  `json:"current_value"`
	BaselineValue float64  `json:"baseline_value"`
	ChangePercent *float64 `json:"change_percent"`
	CurrentFrom   string   `json:"current_from"`
	CurrentTo     string   `json:"current_to"`
	BaselineFrom  string   `json:"baseline_from"`
	BaselineTo    string   `json:"baseline_to"`
}

package analytics

import (
	"errors"
	"strconv"
	"time"
)

// Granularity selects the trend bucket width.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity validates a granularity query value, defaulting to day.
func ParseGranularity(raw string) (Granularity, error) {
	switch raw {
	case "", string(GranularityDay):
		return GranularityDay, nil
	case string(GranularityWeek):
		return GranularityWeek, nil
	case string(GranularityMonth):
		return GranularityMonth, nil
	default:
		return "", ErrInvalidGranularity
	}
}

var (
	ErrInvalidRange       = errors.New("analytics: date_from must not be after date_to")
	ErrInvalidLimit       = errors.New("analytics: limit must be between 1 and 100")
	ErrInvalidGranularity = errors.New("analytics: granularity must be day, week or month")
)

// Filter scopes an analytics query to a date range and optional dimensions.
// Dates are inclusive on both ends.
type Filter struct {
	From       time.Time
	To         time.Time
	CustomerID *int64
	ProductID  *int64
	StoreID    *int64
	Force      bool
}

// Validate rejects inverted ranges.
func (f Filter) Validate() error {
	if f.From.After(f.To) {
		return ErrInvalidRange
	}
	return nil
}

// CacheParams renders the filter into stable cache key segments. The Force
// flag is a request directive, not an identity component, so it is excluded.
func (f Filter) CacheParams() []string {
	return []string{
		f.From.Format("2006-01-02"),
		f.To.Format("2006-01-02"),
		formatID(f.CustomerID),
		formatID(f.ProductID),
		formatID(f.StoreID),
	}
}

func formatID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

// Dashboard aggregates headline figures for the selected range.
type Dashboard struct {
	TotalRevenue  float64 `json:"total_revenue"`
	SalesCount    int64   `json:"sales_count"`
	UnitsSold     float64 `json:"units_sold"`
	AverageCheck  float64 `json:"average_check"`
	UniqueBuyers  int64   `json:"unique_buyers"`
	ActiveStores  int64   `json:"active_stores"`
	FirstSaleDate *string `json:"first_sale_date,omitempty"`
	LastSaleDate  *string `json:"last_sale_date,omitempty"`
}

// TopEntry is one row of a revenue ranking.
type TopEntry struct {
	EntityID   int64   `json:"id"`
	Name       string  `json:"name"`
	Revenue    float64 `json:"revenue"`
	SalesCount int64   `json:"sales_count"`
	Share      float64 `json:"share"`
}

// TrendPoint is one bucket of a revenue-over-time series.
type TrendPoint struct {
	Period     string  `json:"period"`
	Revenue    float64 `json:"revenue"`
	SalesCount int64   `json:"sales_count"`
	UnitsSold  float64 `json:"units_sold"`
}

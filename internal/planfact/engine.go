package planfact

// Fulfillment returns actual as a percentage of planned. A zero plan yields
// zero rather than a division error or an infinite percentage.
func Fulfillment(planned, actual float64) float64 {
	if planned == 0 {
		return 0
	}
	return actual / planned * 100
}

// ChangePercent returns the relative change from baseline to current, or nil
// when the baseline is zero.
func ChangePercent(current, baseline float64) *float64 {
	if baseline == 0 {
		return nil
	}
	v := (current - baseline) / baseline * 100
	return &v
}

// ValidatePeriods enforces that like-for-like periods are well formed, equal
// in length and disjoint.
func ValidatePeriods(current, baseline Period) error {
	if current.From.After(current.To) || baseline.From.After(baseline.To) {
		return ErrInvalidInterval
	}
	if current.Days() != baseline.Days() {
		return ErrUnequalPeriods
	}
	if !current.To.Before(baseline.From) && !baseline.To.Before(current.From) {
		return ErrInvalidPeriods
	}
	return nil
}

// BuildVarianceRow combines one month's target with its recorded actuals.
func BuildVarianceRow(target PlanTarget, actualRevenue, actualQuantity float64) VarianceRow {
	return VarianceRow{
		Year:                target.Year,
		Month:               target.Month,
		StoreID:             target.StoreID,
		PlannedRevenue:      target.PlannedRevenue,
		ActualRevenue:       actualRevenue,
		RevenueVariance:     actualRevenue - target.PlannedRevenue,
		RevenueFulfillment:  Fulfillment(target.PlannedRevenue, actualRevenue),
		PlannedQuantity:     target.PlannedQuantity,
		ActualQuantity:      actualQuantity,
		QuantityVariance:    actualQuantity - target.PlannedQuantity,
		QuantityFulfillment: Fulfillment(target.PlannedQuantity, actualQuantity),
	}
}

// BuildLFLReport derives the comparison figures for two period snapshots.
func BuildLFLReport(current, baseline PeriodStats) LFLReport {
	return LFLReport{
		Current:            current,
		Baseline:           baseline,
		RevenueChange:      ChangePercent(current.Revenue, baseline.Revenue),
		SalesCountChange:   ChangePercent(float64(current.SalesCount), float64(baseline.SalesCount)),
		AverageCheckChange: ChangePercent(current.AverageCheck, baseline.AverageCheck),
	}
}

// SelectMetric narrows a like-for-like report to a single metric.
func SelectMetric(report LFLReport, metric string) (LFLMetricView, error) {
	view := LFLMetricView{
		Metric:       metric,
		CurrentFrom:  report.Current.From,
		CurrentTo:    report.Current.To,
		BaselineFrom: report.Baseline.From,
		BaselineTo:   report.Baseline.To,
	}
	switch metric {
	case "revenue":
		view.CurrentValue = report.Current.Revenue
		view.BaselineValue = report.Baseline.Revenue
		view.ChangePercent = report.RevenueChange
	case "sales_count":
		view.CurrentValue = float64(report.Current.SalesCount)
		view.BaselineValue = float64(report.Baseline.SalesCount)
		view.ChangePercent = report.SalesCountChange
	case "average_check":
		view.CurrentValue = report.Current.AverageCheck
		view.BaselineValue = report.Baseline.AverageCheck
		view.ChangePercent = report.AverageCheckChange
	default:
		return LFLMetricView{}, ErrUnknownMetric
	}
	return view, nil
}

package imports

import (
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"01-02-06", // excelize renders short dates this way for default-styled cells
}

// ValidateSalesRow parses one raw row into a SalesRow candidate. A nil error
// means the candidate may proceed to entity resolution; otherwise the returned
// *ValidationError explains the rejection and the row is skipped.
func ValidateSalesRow(t *Table, row []string) (SalesRow, *ValidationError) {
	var out SalesRow

	rawDate := t.Cell(row, ColDate)
	if rawDate == "" {
		return out, &ValidationError{Field: "date", Reason: "required"}
	}
	date, ok := parseDate(rawDate)
	if !ok {
		return out, &ValidationError{Field: "date", Reason: "unparseable value " + strconv.Quote(rawDate)}
	}
	out.Date = date

	out.Customer = t.Cell(row, ColCustomer)
	if out.Customer == "" {
		return out, &ValidationError{Field: "customer", Reason: "required"}
	}

	// Product and store are optional: a fact may reference an unknown product.
	out.Product = t.Cell(row, ColProduct)
	out.Store = t.Cell(row, ColStore)
	out.Region = t.Cell(row, ColRegion)
	out.Category = t.Cell(row, ColCategory)

	rawQty := t.Cell(row, ColQuantity)
	if rawQty == "" {
		return out, &ValidationError{Field: "quantity", Reason: "required"}
	}
	qty, ok := parseNumber(rawQty)
	if !ok || qty <= 0 {
		return out, &ValidationError{Field: "quantity", Reason: "must be a positive number"}
	}
	out.Quantity = qty

	rawPrice := t.Cell(row, ColPrice)
	if rawPrice == "" {
		return out, &ValidationError{Field: "price", Reason: "required"}
	}
	price, ok := parseNumber(rawPrice)
	if !ok || price < 0 {
		return out, &ValidationError{Field: "price", Reason: "must be a non-negative number"}
	}
	out.UnitPrice = price

	if rawTotal := t.Cell(row, ColTotal); rawTotal != "" {
		total, ok := parseNumber(rawTotal)
		if !ok || total < 0 {
			return out, &ValidationError{Field: "total", Reason: "must be a non-negative number"}
		}
		out.Total = total
	} else {
		out.Total = out.Quantity * out.UnitPrice
	}

	return out, nil
}

// MasterRow is a validated master-data candidate from a customers/products upload.
type MasterRow struct {
	Name     string
	Region   string
	Category string
}

// ValidateMasterRow parses one raw row of a customers- or products-only upload.
func ValidateMasterRow(t *Table, row []string) (MasterRow, *ValidationError) {
	name := t.Cell(row, ColName)
	if name == "" {
		// Allow uploads that reuse the sales header layout.
		name = t.Cell(row, ColCustomer)
	}
	if name == "" {
		name = t.Cell(row, ColProduct)
	}
	if name == "" {
		return MasterRow{}, &ValidationError{Field: "name", Reason: "required"}
	}
	return MasterRow{
		Name:     name,
		Region:   t.Cell(row, ColRegion),
		Category: t.Cell(row, ColCategory),
	}, nil
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseNumber accepts both dot and comma decimal separators and tolerates
// thousands spaces, matching how spreadsheet exports format amounts.
func parseNumber(raw string) (float64, bool) {
	cleaned := strings.ReplaceAll(raw, " ", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

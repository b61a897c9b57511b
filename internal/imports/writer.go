package imports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FactStorage persists sales facts.
type FactStorage interface {
	InsertFact(ctx context.Context, fact SalesFact) error
}

// Writer persists one fact per accepted row, tagged with the owning job for
// cascade deletion.
type Writer struct {
	storage FactStorage
}

// NewWriter constructs a fact writer.
func NewWriter(storage FactStorage) *Writer {
	return &Writer{storage: storage}
}

// Write builds the fact from a resolved row and persists it. The total amount
// is immutable once written; corrections happen by deleting and re-importing.
func (w *Writer) Write(ctx context.Context, jobID uuid.UUID, row SalesRow, ref EntityRef) error {
	fact := NewFact(jobID, row, ref)
	if err := w.storage.InsertFact(ctx, fact); err != nil {
		return &StorageError{Op: "insert fact", Err: err}
	}
	return nil
}

// NewFact derives the persisted fact from a validated row. Calendar fields
// are computed here, once; recomputing them from Date yields the same values.
func NewFact(jobID uuid.UUID, row SalesRow, ref EntityRef) SalesFact {
	_, week := row.Date.ISOWeek()
	return SalesFact{
		Date:        row.Date,
		CustomerID:  ref.CustomerID,
		ProductID:   ref.ProductID,
		StoreID:     ref.StoreID,
		Quantity:    row.Quantity,
		UnitPrice:   row.UnitPrice,
		TotalAmount: row.Total,
		Year:        row.Date.Year(),
		Month:       int(row.Date.Month()),
		Week:        week,
		DayOfWeek:   isoWeekday(row.Date),
		JobID:       jobID,
	}
}

// isoWeekday maps Sunday-based time.Weekday to ISO numbering (Mon=1..Sun=7).
func isoWeekday(date time.Time) int {
	wd := int(date.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

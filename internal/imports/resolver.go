package imports

import (
	"context"
	"time"
)

// EntityStorage is the lookup-or-create and aggregate surface the resolver
// needs. Implementations must treat the normalized name as the authoritative
// key: a lookup-or-create that loses a creation race retries the lookup
// instead of failing.
type EntityStorage interface {
	EnsureCustomer(ctx context.Context, name, normalized, region string) (int64, error)
	EnsureProduct(ctx context.Context, name, normalized, category string) (int64, error)
	EnsureStore(ctx context.Context, name, normalized, region string) (int64, error)
	ApplyCustomerAggregate(ctx context.Context, id int64, amount float64, date time.Time) error
	ApplyProductAggregate(ctx context.Context, id int64, amount, quantity float64, date time.Time) error
	ApplyStoreAggregate(ctx context.Context, id int64, amount float64, date time.Time) error
}

// Resolver maps normalized names to master-data entities and applies the
// row's contribution to their running aggregates.
type Resolver struct {
	storage EntityStorage
}

// NewResolver constructs a resolver.
func NewResolver(storage EntityStorage) *Resolver {
	return &Resolver{storage: storage}
}

// Resolve looks up or creates the entities a sales row references and applies
// the row contribution to each. Aggregate updates are atomic per entity so
// concurrent jobs touching the same customer or product do not lose updates.
func (r *Resolver) Resolve(ctx context.Context, row SalesRow) (EntityRef, error) {
	var ref EntityRef

	customerID, err := r.storage.EnsureCustomer(ctx, row.Customer, NormalizeName(row.Customer), row.Region)
	if err != nil {
		return ref, &StorageError{Op: "resolve customer", Err: err}
	}
	if err := r.storage.ApplyCustomerAggregate(ctx, customerID, row.Total, row.Date); err != nil {
		return ref, &StorageError{Op: "apply customer aggregate", Err: err}
	}
	ref.CustomerID = &customerID

	if row.Product != "" {
		productID, err := r.storage.EnsureProduct(ctx, row.Product, NormalizeName(row.Product), row.Category)
		if err != nil {
			return ref, &StorageError{Op: "resolve product", Err: err}
		}
		if err := r.storage.ApplyProductAggregate(ctx, productID, row.Total, row.Quantity, row.Date); err != nil {
			return ref, &StorageError{Op: "apply product aggregate", Err: err}
		}
		ref.ProductID = &productID
	}

	if row.Store != "" {
		storeID, err := r.storage.EnsureStore(ctx, row.Store, NormalizeName(row.Store), row.Region)
		if err != nil {
			return ref, &StorageError{Op: "resolve store", Err: err}
		}
		if err := r.storage.ApplyStoreAggregate(ctx, storeID, row.Total, row.Date); err != nil {
			return ref, &StorageError{Op: "apply store aggregate", Err: err}
		}
		ref.StoreID = &storeID
	}

	return ref, nil
}

// Package typed offers type-safe access to a core.Store table.
package typed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/aether/pkg/core"
)

// Repository wraps one table of a core.Store, converting between rows and T.
type Repository[T any] struct {
	store core.Store
	table string
}

// NewRepository creates a new type-safe wrapper around a store table.
func NewRepository[T any](store core.Store, table string) *Repository[T] {
	return &Repository[T]{store: store, table: table}
}

// Table returns the wrapped table name.
func (r *Repository[T]) Table() string {
	return r.table
}

// Store returns the underlying store.
func (r *Repository[T]) Store() core.Store {
	return r.store
}

// Insert persists v as a new row.
func (r *Repository[T]) Insert(ctx context.Context, v T) (T, error) {
	fields, err := ToFields(v)
	if err != nil {
		return v, err
	}
	if fields.ID() == "" {
		return v, fmt.Errorf("%s row has no id", r.table)
	}
	if err := r.store.Insert(ctx, r.table, fields); err != nil {
		return v, err
	}
	return v, nil
}

// Get retrieves a row and unmarshals it.
func (r *Repository[T]) Get(ctx context.Context, id string) (T, error) {
	fields, err := r.store.Get(ctx, r.table, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return FromFields[T](fields)
}

// Update applies a partial patch and returns the stored row.
func (r *Repository[T]) Update(ctx context.Context, id string, patch core.Fields) (T, error) {
	fields, err := r.store.Update(ctx, r.table, id, patch)
	if err != nil {
		var zero T
		return zero, err
	}
	return FromFields[T](fields)
}

// Delete removes a row by id.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, r.table, id)
}

// QueryOption refines a Find.
type QueryOption func(*core.Query)

// OrderBy sorts by field.
func OrderBy(field string, descending bool) QueryOption {
	return func(q *core.Query) {
		q.OrderBy = field
		q.Descending = descending
	}
}

// Newest sorts by created_at, most recent first.
func Newest() QueryOption {
	return OrderBy("created_at", true)
}

// Limit caps the number of rows returned.
func Limit(n int) QueryOption {
	return func(q *core.Query) {
		q.Limit = n
	}
}

// Find returns every row matching filters.
func (r *Repository[T]) Find(ctx context.Context, filters []core.Filter, opts ...QueryOption) ([]T, error) {
	q := core.Query{Table: r.table, Filters: filters}
	for _, opt := range opts {
		opt(&q)
	}

	rows, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	result := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := FromFields[T](row)
		if err != nil {
			return nil, fmt.Errorf("failed to process %s row %s: %w", r.table, row.ID(), err)
		}
		result = append(result, v)
	}
	return result, nil
}

// First returns the first matching row, if any.
func (r *Repository[T]) First(ctx context.Context, filters []core.Filter, opts ...QueryOption) (T, bool, error) {
	opts = append(opts, Limit(1))
	rows, err := r.Find(ctx, filters, opts...)
	if err != nil || len(rows) == 0 {
		var zero T
		return zero, false, err
	}
	return rows[0], true, nil
}

// Exists reports whether any row matches filters.
func (r *Repository[T]) Exists(ctx context.Context, filters ...core.Filter) (bool, error) {
	rows, err := r.store.Query(ctx, core.Query{Table: r.table, Filters: filters, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Count returns the number of rows matching filters.
func (r *Repository[T]) Count(ctx context.Context, filters ...core.Filter) (int, error) {
	rows, err := r.store.Query(ctx, core.Query{Table: r.table, Filters: filters})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ToFields converts a struct into a row through its JSON representation.
func ToFields(v any) (core.Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal typed data: %w", err)
	}

	var fields core.Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to convert typed data to map: %w", err)
	}
	return fields, nil
}

// FromFields converts a row into T.
func FromFields[T any](fields core.Fields) (T, error) {
	var v T
	data, err := json.Marshal(fields)
	if err != nil {
		return v, fmt.Errorf("row marshal failed: %w", err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("unmarshal to target type failed: %w", err)
	}
	return v, nil
}

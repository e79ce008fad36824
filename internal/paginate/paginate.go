// Package paginate splits a lazily evaluated result set into numbered pages.
package paginate

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidPage is returned when the requested page number is below 1 or
// beyond the last page.
var ErrInvalidPage = errors.New("invalid page")

// Queryset is a countable, sliceable result set. store.EntityQuery satisfies
// it for entities.
type Queryset[T any] interface {
	Count(ctx context.Context) (int, error)
	Slice(ctx context.Context, offset, limit int) ([]T, error)
}

// Page is one page of a queryset.
type Page[T any] struct {
	Count          int // Total items across all pages
	NumPages       int
	Number         int
	Items          []T
	HasNext        bool
	NextPageNumber int // Zero when HasNext is false
}

// NumPages returns ceil(count / pageSize).
func NumPages(count, pageSize int) int {
	if count <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}

// Paginate loads page number (1-based) of qs at pageSize items per page.
//
// An empty queryset has zero pages, yet page 1 of it is valid and empty.
// Any other page outside [1, NumPages] returns ErrInvalidPage.
func Paginate[T any](ctx context.Context, qs Queryset[T], pageSize, number int) (Page[T], error) {
	if pageSize < 1 {
		return Page[T]{}, fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	count, err := qs.Count(ctx)
	if err != nil {
		return Page[T]{}, fmt.Errorf("paginate: %w", err)
	}
	numPages := NumPages(count, pageSize)

	if number < 1 || (number > numPages && !(number == 1 && count == 0)) {
		return Page[T]{}, fmt.Errorf("page %d of %d: %w", number, numPages, ErrInvalidPage)
	}

	items, err := qs.Slice(ctx, (number-1)*pageSize, pageSize)
	if err != nil {
		return Page[T]{}, fmt.Errorf("paginate: %w", err)
	}

	page := Page[T]{
		Count:    count,
		NumPages: numPages,
		Number:   number,
		Items:    items,
		HasNext:  number < numPages,
	}
	if page.HasNext {
		page.NextPageNumber = number + 1
	}
	return page, nil
}

// SliceQueryset adapts an in-memory slice to Queryset.
type SliceQueryset[T any] []T

// Count implements Queryset.
func (s SliceQueryset[T]) Count(context.Context) (int, error) {
	return len(s), nil
}

// Slice implements Queryset.
func (s SliceQueryset[T]) Slice(_ context.Context, offset, limit int) ([]T, error) {
	if offset >= len(s) {
		return []T{}, nil
	}
	end := min(offset+limit, len(s))
	return s[offset:end], nil
}

package eventsourcing

import (
	"context"
	"errors"
	"io"
)

// Iterator is a lazy, pull-based iterator. It is produced by stores for
// queries returning many read models and must be consumed by a single
// goroutine.
//
// The producing function returns io.EOF once exhausted; io.EOF is not
// reported by Err. Any other error stops iteration and is kept in Err.
type Iterator[T any] struct {
	nextFunc  func(ctx context.Context) (T, error)
	closeFunc func(ctx context.Context) error
	current   T
	err       error
	done      bool
	closed    bool
}

// NewIteratorFunc creates an Iterator from a function that produces the next
// item, or io.EOF when there are no more items.
func NewIteratorFunc[T any](next func(ctx context.Context) (T, error)) *Iterator[T] {
	return &Iterator[T]{nextFunc: next}
}

// NewIteratorWithClose is like NewIteratorFunc but releases resources with
// closeFn once the iterator is exhausted, fails or is closed.
func NewIteratorWithClose[T any](next func(ctx context.Context) (T, error), closeFn func(ctx context.Context) error) *Iterator[T] {
	return &Iterator[T]{nextFunc: next, closeFunc: closeFn}
}

// NewSliceIterator iterates over items in order.
func NewSliceIterator[T any](items []T) *Iterator[T] {
	index := 0
	return NewIteratorFunc(func(ctx context.Context) (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if index >= len(items) {
			return zero, io.EOF
		}
		item := items[index]
		index++
		return item, nil
	})
}

// Next advances the iterator. It returns false once the iterator is
// exhausted or an error occurred.
func (it *Iterator[T]) Next(ctx context.Context) bool {
	if it.done {
		return false
	}

	v, err := it.nextFunc(ctx)
	if err != nil {
		var zero T
		it.current = zero
		it.done = true
		if !errors.Is(err, io.EOF) {
			it.err = err
		}
		if cerr := it.Close(ctx); cerr != nil && it.err == nil {
			it.err = cerr
		}
		return false
	}

	it.current = v
	return true
}

// Value returns the current item.
func (it *Iterator[T]) Value() T {
	return it.current
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator[T]) Err() error {
	return it.err
}

// All consumes the iterator and returns all items in a slice.
func (it *Iterator[T]) All(ctx context.Context) ([]T, error) {
	var results []T
	for it.Next(ctx) {
		results = append(results, it.Value())
	}
	return results, it.Err()
}

// Close stops the iterator and releases its resources. It is safe to call
// more than once.
func (it *Iterator[T]) Close(ctx context.Context) error {
	it.done = true
	if it.closed {
		return nil
	}
	it.closed = true
	if it.closeFunc == nil {
		return nil
	}
	return it.closeFunc(ctx)
}

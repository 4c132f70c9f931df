package store

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
)

// Cursor decodes a backend result stream into entities.
type Cursor[T any, P EntityPtr[T]] struct {
	raw    RawCursor
	closed bool
}

func newCursor[T any, P EntityPtr[T]](raw RawCursor) *Cursor[T, P] {
	return &Cursor[T, P]{raw: raw}
}

// Next returns the next entity, or ErrCursorDone when the cursor is exhausted.
func (c *Cursor[T, P]) Next(ctx context.Context) (P, error) {
	if c.closed {
		return nil, fmt.Errorf("%w: cursor is closed", ErrCursor)
	}
	rec, err := c.raw.Next(ctx)
	if err != nil {
		return nil, err
	}
	return decode[T, P](rec)
}

// All iterates the remaining entities. Iteration stops at the first error,
// which is yielded with a nil entity.
func (c *Cursor[T, P]) All(ctx context.Context) iter.Seq2[P, error] {
	return func(yield func(P, error) bool) {
		for {
			e, err := c.Next(ctx)
			if errors.Is(err, ErrCursorDone) {
				return
			}
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

// Each calls fn for every remaining entity and closes the cursor on return,
// ignoring a cursor the backend already released.
func (c *Cursor[T, P]) Each(ctx context.Context, fn func(P) error) (err error) {
	defer func() {
		if _, cerr := c.Close(context.WithoutCancel(ctx), true); err == nil {
			err = cerr
		}
	}()
	for e, err := range c.All(ctx) {
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// ToList drains the cursor. The cursor is closed afterwards, also on failure.
func (c *Cursor[T, P]) ToList(ctx context.Context) ([]P, error) {
	var out []P
	err := c.Each(ctx, func(e P) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of results. Requires FindOptions.Count.
func (c *Cursor[T, P]) Len() (int, error) {
	if c.closed {
		return 0, fmt.Errorf("%w: cursor is closed", ErrCursor)
	}
	n, ok := c.raw.Count()
	if !ok {
		return 0, fmt.Errorf("%w: did you set Count?", ErrCountUnavailable)
	}
	return n, nil
}

// FullCount returns the number of matches ignoring the limit. Requires
// FindOptions.FullCount.
func (c *Cursor[T, P]) FullCount() (int, error) {
	if c.closed {
		return 0, fmt.Errorf("%w: cursor is closed", ErrCursor)
	}
	n, ok := c.raw.FullCount()
	if !ok {
		return 0, fmt.Errorf("%w: cursor statistics have no full count, did you set FullCount?", ErrCursor)
	}
	return n, nil
}

// Close releases backend resources. It returns true if the cursor was
// released, false if it was already gone and ignoreMissing is set.
// Otherwise a missing cursor fails with ErrCursorNotFound.
func (c *Cursor[T, P]) Close(ctx context.Context, ignoreMissing bool) (bool, error) {
	c.closed = true
	err := c.raw.Close(ctx)
	if errors.Is(err, ErrCursorNotFound) && ignoreMissing {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func decode[T any, P EntityPtr[T]](rec Record) (P, error) {
	e := P(new(T))
	if err := attributevalue.UnmarshalMap(rec, e); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrStore, err)
	}
	return e, nil
}

// emptyCursor matches nothing. It backs finds whose filter was refused.
type emptyCursor struct {
	q      Query
	closed bool
}

func (c *emptyCursor) Next(context.Context) (Record, error) { return nil, ErrCursorDone }

func (c *emptyCursor) Count() (int, bool) { return 0, c.q.Count }

func (c *emptyCursor) FullCount() (int, bool) { return 0, c.q.FullCount }

func (c *emptyCursor) Close(context.Context) error {
	if c.closed {
		return ErrCursorNotFound
	}
	c.closed = true
	return nil
}

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jacentio/canopy/store"
)

// cursor hands out a materialized result set in batches.
type cursor struct {
	mu        sync.Mutex
	results   []store.Record
	batch     []store.Record
	batchSize int
	count     int
	fullCount int
	q         store.Query
	closed    bool
}

func newCursor(results []store.Record, fullCount int, q store.Query) *cursor {
	size := q.BatchSize
	if size < 1 {
		size = len(results)
	}
	return &cursor{
		results:   results,
		batchSize: size,
		count:     len(results),
		fullCount: fullCount,
		q:         q,
	}
}

// Next implements store.RawCursor.
func (c *cursor) Next(context.Context) (store.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: cursor was released", store.ErrCursorNotFound)
	}
	if len(c.batch) == 0 {
		if len(c.results) == 0 {
			return nil, store.ErrCursorDone
		}
		n := min(c.batchSize, len(c.results))
		c.batch, c.results = c.results[:n], c.results[n:]
	}
	rec := c.batch[0]
	c.batch = c.batch[1:]
	return rec, nil
}

// Count implements store.RawCursor.
func (c *cursor) Count() (int, bool) { return c.count, c.q.Count }

// FullCount implements store.RawCursor.
func (c *cursor) FullCount() (int, bool) { return c.fullCount, c.q.FullCount }

// Close implements store.RawCursor.
func (c *cursor) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: cursor was already released", store.ErrCursorNotFound)
	}
	c.closed = true
	c.results, c.batch = nil, nil
	return nil
}

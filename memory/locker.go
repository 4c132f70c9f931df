package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jacentio/canopy/store"
)

var _ store.Locker = (*Locker)(nil)

// Locker is an in-process store.Locker.
type Locker struct {
	mu       sync.Mutex
	holders  map[string]string
	released map[string]chan struct{}
}

// NewLocker creates a Locker with no held locks.
func NewLocker() *Locker {
	return &Locker{
		holders:  make(map[string]string),
		released: make(map[string]chan struct{}),
	}
}

// Acquire implements store.Locker. An owner re-acquiring its own lock succeeds.
func (l *Locker) Acquire(ctx context.Context, name, owner string, block bool) (bool, error) {
	for {
		l.mu.Lock()
		holder, held := l.holders[name]
		if !held || holder == owner {
			l.holders[name] = owner
			l.mu.Unlock()
			return true, nil
		}
		if !block {
			l.mu.Unlock()
			return false, nil
		}
		ch, ok := l.released[name]
		if !ok {
			ch = make(chan struct{})
			l.released[name] = ch
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// Release implements store.Locker. A lock held by another owner is left alone
// and ErrLockLost is returned.
func (l *Locker) Release(_ context.Context, name, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holders[name] != owner {
		return fmt.Errorf("%w: %q is not held by %s", store.ErrLockLost, name, owner)
	}
	delete(l.holders, name)
	if ch, ok := l.released[name]; ok {
		close(ch)
		delete(l.released, name)
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Lock is an advisory lock handle on a Locker. Each handle is a distinct
// holder: two handles for the same name exclude each other.
type Lock struct {
	locker Locker
	name   string
	owner  string

	mu   sync.Mutex
	held bool
}

// NewLock creates a handle for the named lock. The lock is not acquired.
func NewLock(locker Locker, name string) *Lock {
	return &Lock{
		locker: locker,
		name:   name,
		owner:  uuid.NewString(),
	}
}

// Name returns the lock name.
func (l *Lock) Name() string { return l.name }

// Acquire takes the lock. With block set it waits until the lock is free or
// ctx is done; otherwise it returns false immediately when the lock is held.
func (l *Lock) Acquire(ctx context.Context, block bool) (bool, error) {
	if l.locker == nil {
		return false, fmt.Errorf("%w: no lock backend configured", ErrStore)
	}
	ok, err := l.locker.Acquire(ctx, l.name, l.owner, block)
	if err != nil {
		return false, err
	}
	if ok {
		l.mu.Lock()
		l.held = true
		l.mu.Unlock()
	}
	return ok, nil
}

// Release frees the lock. Releasing a lock that is not held is a no-op.
// ErrLockLost reports that another owner took the lock in the meantime.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	err := l.locker.Release(ctx, l.name, l.owner)
	if err != nil && !errors.Is(err, ErrLockLost) {
		return err
	}
	l.held = false
	return err
}

// Do acquires the lock, blocking until ctx is done, runs fn and releases the
// lock on every exit path, including cancellation of ctx. A lock lost while
// fn ran is reported alongside fn's result.
func (l *Lock) Do(ctx context.Context, fn func(context.Context) error) (err error) {
	ok, err := l.Acquire(ctx, true)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, l.name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockNotAcquired, l.name)
	}
	defer func() {
		if rerr := l.Release(context.WithoutCancel(ctx)); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	return fn(ctx)
}

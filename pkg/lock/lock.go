// Package lock provides the mutual exclusion used to run one poll pass at a time across processes.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires a named lock for at most ttl. The returned release func is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]time.Time), clock: time.Now}
}

func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if expires, ok := l.held[key]; ok && expires.After(now) {
		return nil, ErrNotAcquired
	}

	expires := now.Add(ttl)
	l.held[key] = expires

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()

		// A newer holder may own the key after our ttl ran out.
		if l.held[key].Equal(expires) {
			delete(l.held, key)
		}

		return nil
	}, nil
}

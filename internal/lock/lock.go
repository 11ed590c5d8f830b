// Package lock provides per-subject advisory locks so that only one pipeline
// run processes a given meeting at a time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrHeld is returned by TryLock when another holder owns the key.
var ErrHeld = errors.New("lock is held")

// Locker acquires advisory locks keyed by subject.
type Locker interface {
	// TryLock acquires key without waiting. The returned release func is
	// safe to call more than once.
	TryLock(ctx context.Context, key string) (release func(), err error)
}

// MemoryLocker is an in-process Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]string
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]string)}
}

func (l *MemoryLocker) TryLock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, key)
	}
	token := uuid.NewString()
	l.held[key] = token

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == token {
				delete(l.held, key)
			}
		})
	}, nil
}

// New builds the locker for the configured backend.
func New(backend, redisURL string, ttl time.Duration) (Locker, error) {
	switch backend {
	case "", "memory":
		return NewMemoryLocker(), nil
	case "redis":
		return NewRedisLockerFromURL(redisURL, ttl)
	default:
		return nil, fmt.Errorf("unknown lock backend %q", backend)
	}
}

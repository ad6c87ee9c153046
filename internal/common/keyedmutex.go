package common

import (
	"context"
	"sync"
)

// KeyedMutex serializes work per key. Foyer uses one instance, keyed by
// company ID, shared by every service that mutates a company's queue: all
// committed operations on one company are totally ordered, while different
// companies proceed independently.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the lock for key, respecting context cancellation.
// Returns ctx.Err() without holding the lock when the context ends first.
func (km *KeyedMutex) Lock(ctx context.Context, key string) error {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		km.release(key, l)
		return ctx.Err()
	}
}

// Unlock releases the lock for key. Must pair with a successful Lock.
func (km *KeyedMutex) Unlock(key string) {
	km.mu.Lock()
	l, ok := km.locks[key]
	km.mu.Unlock()
	if !ok {
		return
	}
	<-l.ch
	km.release(key, l)
}

// release drops one reference and forgets idle keys so the map stays
// bounded by the number of companies with in-flight operations.
func (km *KeyedMutex) release(key string, l *keyedLock) {
	km.mu.Lock()
	l.refs--
	if l.refs <= 0 {
		delete(km.locks, key)
	}
	km.mu.Unlock()
}

// WithLock runs fn while holding the lock for key.
func (km *KeyedMutex) WithLock(ctx context.Context, key string, fn func() error) error {
	if err := km.Lock(ctx, key); err != nil {
		return err
	}
	defer km.Unlock(key)
	return fn()
}

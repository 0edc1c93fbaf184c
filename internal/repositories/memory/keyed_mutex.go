package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/BradenHooton/enrollguard/internal/models"
)

// KeyedMutex serializes work per key. Locks are reference counted and
// dropped once no goroutine holds or waits for them, so memory stays
// proportional to the number of keys in use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates a new KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *KeyedMutex) acquireRef(key string) *keyedLock {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *KeyedMutex) releaseRef(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock blocks until key is held or ctx is done. The returned func releases
// the lock. A cancelled wait is reported as models.ErrStorageUnavailable.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: waiting for lock on %s: %v", models.ErrStorageUnavailable, key, err)
	}

	l := k.acquireRef(key)

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.releaseRef(key, l)
		return nil, fmt.Errorf("%w: waiting for lock on %s: %v", models.ErrStorageUnavailable, key, ctx.Err())
	}

	return func() {
		<-l.ch
		k.releaseRef(key, l)
	}, nil
}

// TryLock acquires key only if nobody holds it.
func (k *KeyedMutex) TryLock(key string) (func(), bool) {
	l := k.acquireRef(key)

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.releaseRef(key, l)
		}, true
	default:
		k.releaseRef(key, l)
		return nil, false
	}
}

// Len returns the number of keys currently tracked
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

package reconcile

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyedMutex hands out one context-aware mutex per key.
// Entries are reference counted and dropped when nobody holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	sem  chan struct{} // capacity 1; a send acquires
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
// On success the returned func releases the lock.
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			k.release(key, e)
		}, nil
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// size returns the number of live entries. Used by tests.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// readerWeight is the semaphore weight a writer takes; readers take 1.
const readerWeight = 1 << 30

// keyedRWMutex hands out one context-aware reader/writer lock per key with
// the same reference counting. Waiters are served in arrival order, so a
// queued writer holds back later readers.
type keyedRWMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedRWEntry
}

type keyedRWEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyedRWMutex() *keyedRWMutex {
	return &keyedRWMutex{locks: make(map[string]*keyedRWEntry)}
}

// RLock takes key in shared mode. On success the returned func releases it.
func (k *keyedRWMutex) RLock(ctx context.Context, key string) (func(), error) {
	return k.lock(ctx, key, 1)
}

// Lock takes key exclusively. On success the returned func releases it.
func (k *keyedRWMutex) Lock(ctx context.Context, key string) (func(), error) {
	return k.lock(ctx, key, readerWeight)
}

func (k *keyedRWMutex) lock(ctx context.Context, key string, weight int64) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedRWEntry{sem: semaphore.NewWeighted(readerWeight)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	if err := e.sem.Acquire(ctx, weight); err != nil {
		k.release(key, e)
		return nil, err
	}
	return func() {
		e.sem.Release(weight)
		k.release(key, e)
	}, nil
}

func (k *keyedRWMutex) release(key string, e *keyedRWEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// size returns the number of live entries. Used by tests.
func (k *keyedRWMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

package workflow

import (
	"context"
	"sync"
)

// lockEntry is a per-key binary semaphore with a reference count so idle keys
// can be dropped from the map.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// keyedLocks serializes work per scenario id.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*lockEntry)}
}

// lock blocks until key is held or ctx is done. The returned func releases it.
func (k *keyedLocks) lock(ctx context.Context, key string) (func(), error) {
	entry := k.acquire(key)
	select {
	case entry.sem <- struct{}{}:
		return func() {
			<-entry.sem
			k.release(key)
		}, nil
	case <-ctx.Done():
		k.release(key)
		return nil, ctx.Err()
	}
}

func (k *keyedLocks) acquire(key string) *lockEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		k.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (k *keyedLocks) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.locks[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(k.locks, key)
	}
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

package delivery

import (
	"context"
	"sync"
)

// keyedLocks is a set of FIFO mutexes keyed by message ID. Waiters acquire in
// arrival order so transitions apply in the order they were observed.
// Entries are removed once nobody holds or waits for them.
type keyedLocks struct {
	mu    sync.Mutex
	queue map[string]*lockQueue
}

type lockQueue struct {
	waiters []chan struct{}
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{queue: make(map[string]*lockQueue)}
}

// lock blocks until key is held or ctx is done. The returned func releases it.
func (k *keyedLocks) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	q, held := k.queue[key]
	if !held {
		k.queue[key] = &lockQueue{}
		k.mu.Unlock()
		return func() { k.unlock(key) }, nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	k.mu.Unlock()

	select {
	case <-ch:
		return func() { k.unlock(key) }, nil
	case <-ctx.Done():
		k.mu.Lock()
		for i, w := range q.waiters {
			if w == ch {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				k.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		k.mu.Unlock()
		// handed over concurrently with cancellation
		k.unlock(key)
		return nil, ctx.Err()
	}
}

func (k *keyedLocks) unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	q := k.queue[key]
	if q == nil {
		return
	}
	if len(q.waiters) == 0 {
		delete(k.queue, key)
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	close(next)
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.queue)
}

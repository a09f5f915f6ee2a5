// Package keymutex provides per-key mutual exclusion with FIFO fairness.
// It serializes configuration mutations for one tenant without blocking
// operations on other tenants.
package keymutex

import (
	"context"
	"sync"
)

type waiter chan struct{}

type entry struct {
	held    bool
	waiters []waiter
}

// KeyMutex is a set of independent mutexes addressed by string key. The zero
// value is not usable; call New.
type KeyMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *KeyMutex {
	return &KeyMutex{entries: make(map[string]*entry)}
}

// Acquire blocks until the mutex for key is free, or until ctx is done.
// Waiters are granted the lock in acquisition order. The returned release
// function is idempotent.
func (m *KeyMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e := m.entries[key]
	if e == nil {
		e = &entry{}
		m.entries[key] = e
	}
	if !e.held {
		e.held = true
		m.mu.Unlock()
		return m.releaseFunc(key), nil
	}

	w := make(waiter)
	e.waiters = append(e.waiters, w)
	m.mu.Unlock()

	select {
	case <-w:
		return m.releaseFunc(key), nil
	case <-ctx.Done():
		m.abandon(key, w)
		return nil, ctx.Err()
	}
}

// releaseFunc hands the lock to the next queued waiter, or clears it when
// the queue is empty. Entries with no holder and no waiters are removed so
// the map does not grow with the tenant population.
func (m *KeyMutex) releaseFunc(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()

			e := m.entries[key]
			if e == nil {
				return
			}
			if len(e.waiters) > 0 {
				next := e.waiters[0]
				e.waiters = e.waiters[1:]
				close(next)
				return
			}
			e.held = false
			delete(m.entries, key)
		})
	}
}

// abandon removes a canceled waiter from the queue. If the lock was handed to
// the waiter concurrently with cancellation, it is passed on immediately.
func (m *KeyMutex) abandon(key string, w waiter) {
	m.mu.Lock()
	e := m.entries[key]
	if e != nil {
		for i, qw := range e.waiters {
			if qw == w {
				e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
				m.mu.Unlock()
				return
			}
		}
	}
	m.mu.Unlock()

	// Not in the queue: the lock was already granted to w. Release it so the
	// next waiter is not stranded.
	select {
	case <-w:
		m.releaseFunc(key)()
	default:
	}
}

// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package locks provides named locks with bounded acquisition timeouts.
//
// The gateway serializes three kinds of shared-state access: row writes
// (keyed by brand+event id), auth failure counters (keyed by client id),
// and CSRF token consumption (keyed by token). Each key gets its own lock;
// acquisition never blocks past the configured timeout, so a contended key
// degrades to SERVICE_UNAVAILABLE instead of a pile-up.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAcquireTimeout is returned when a lock cannot be acquired within the
// bounded wait. Callers surface this as SERVICE_UNAVAILABLE.
var ErrAcquireTimeout = errors.New("lock acquisition timed out")

// Manager hands out per-key locks. Locks are created lazily and held in a
// map guarded by a single mutex; the per-key critical sections themselves
// run on buffered channels so acquisition can race a timer.
type Manager struct {
	mu      sync.Mutex
	locks   map[string]*namedLock
	timeout time.Duration
}

type namedLock struct {
	ch   chan struct{} // capacity 1; holding the token means holding the lock
	refs int
}

// NewManager creates a lock manager with the given default acquisition timeout.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		locks:   make(map[string]*namedLock),
		timeout: timeout,
	}
}

// Acquire obtains the lock for key, waiting at most the manager's timeout
// (or until ctx is done, whichever is earlier). On success the returned
// release function must be called exactly once.
func (m *Manager) Acquire(ctx context.Context, key string) (release func(), err error) {
	m.mu.Lock()
	nl, ok := m.locks[key]
	if !ok {
		nl = &namedLock{ch: make(chan struct{}, 1)}
		m.locks[key] = nl
	}
	nl.refs++
	m.mu.Unlock()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case nl.ch <- struct{}{}:
		return func() {
			<-nl.ch
			m.mu.Lock()
			nl.refs--
			if nl.refs == 0 {
				delete(m.locks, key)
			}
			m.mu.Unlock()
		}, nil
	case <-timer.C:
		m.drop(key, nl)
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		m.drop(key, nl)
		return nil, ctx.Err()
	}
}

// drop releases the waiter's reference after a failed acquisition.
func (m *Manager) drop(key string, nl *namedLock) {
	m.mu.Lock()
	nl.refs--
	if nl.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}

// Len reports the number of currently tracked keys. Used by tests and the
// readiness probe to confirm locks are not leaking.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

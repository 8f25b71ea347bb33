// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package locks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	m := NewManager(time.Second)
	release, err := m.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	release()
	if m.Len() != 0 {
		t.Errorf("Len() after release = %d, want 0 (lock leaked)", m.Len())
	}
}

func TestAcquireTimeout(t *testing.T) {
	m := NewManager(50 * time.Millisecond)

	release, err := m.Acquire(context.Background(), "contended")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	start := time.Now()
	_, err = m.Acquire(context.Background(), "contended")
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("Acquire() on held lock error = %v, want ErrAcquireTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Acquire() returned after %v, want the full bounded wait", elapsed)
	}
}

func TestAcquireContextCancel(t *testing.T) {
	m := NewManager(time.Minute)

	release, err := m.Acquire(context.Background(), "held")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = m.Acquire(ctx, "held")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestIndependentKeysDoNotBlock(t *testing.T) {
	m := NewManager(time.Second)

	releaseA, err := m.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("Acquire(a) error = %v", err)
	}
	defer releaseA()

	releaseB, err := m.Acquire(context.Background(), "b")
	if err != nil {
		t.Fatalf("Acquire(b) error = %v", err)
	}
	releaseB()
}

func TestAcquireSerializesWriters(t *testing.T) {
	m := NewManager(5 * time.Second)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		counter int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(context.Background(), "counter")
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer release()
			mu.Lock()
			counter++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if counter != 20 {
		t.Errorf("counter = %d, want 20", counter)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after all releases", m.Len())
	}
}

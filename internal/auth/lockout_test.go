// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marqueehq/marquee/internal/locks"
	"github.com/marqueehq/marquee/internal/store"
)

func newTestStore(t *testing.T) *store.BadgerStore {
	t.Helper()
	rows, err := store.Open("")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = rows.Close() })
	return rows
}

func TestLockoutAfterMaxFailures(t *testing.T) {
	m := NewLockoutManager(newTestStore(t), locks.NewManager(2*time.Second), 5, 15*time.Minute)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		locked, err := m.RecordFailure(ctx, "key:abc")
		if err != nil {
			t.Fatalf("RecordFailure(#%d) error = %v", i, err)
		}
		if locked {
			t.Fatalf("RecordFailure(#%d) locked = true before the threshold", i)
		}
	}

	locked, err := m.RecordFailure(ctx, "key:abc")
	if err != nil {
		t.Fatalf("RecordFailure(#5) error = %v", err)
	}
	if !locked {
		t.Fatal("RecordFailure(#5) locked = false, want lockout at the threshold")
	}

	isLocked, remaining, err := m.CheckLocked(ctx, "key:abc")
	if err != nil {
		t.Fatalf("CheckLocked() error = %v", err)
	}
	if !isLocked {
		t.Error("CheckLocked() = false, want locked")
	}
	if remaining <= 0 || remaining > 15*time.Minute {
		t.Errorf("CheckLocked() remaining = %v", remaining)
	}
}

func TestLockoutSuccessDoesNotClearActiveLockout(t *testing.T) {
	m := NewLockoutManager(newTestStore(t), locks.NewManager(2*time.Second), 2, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := m.RecordFailure(ctx, "key:abc"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}

	// Valid credentials during an active lockout must not lift it.
	if err := m.RecordSuccess(ctx, "key:abc"); err != nil {
		t.Fatalf("RecordSuccess() error = %v", err)
	}
	isLocked, _, err := m.CheckLocked(ctx, "key:abc")
	if err != nil {
		t.Fatalf("CheckLocked() error = %v", err)
	}
	if !isLocked {
		t.Error("CheckLocked() = false, success must not clear an active lockout")
	}
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	m := NewLockoutManager(newTestStore(t), locks.NewManager(2*time.Second), 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := m.RecordFailure(ctx, "key:abc"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	if err := m.RecordSuccess(ctx, "key:abc"); err != nil {
		t.Fatalf("RecordSuccess() error = %v", err)
	}

	// Counter starts over: two more failures stay below the threshold.
	for i := 0; i < 2; i++ {
		locked, err := m.RecordFailure(ctx, "key:abc")
		if err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
		if locked {
			t.Fatal("RecordFailure() locked after counter reset, want fresh count")
		}
	}
}

func TestLockoutExpires(t *testing.T) {
	m := NewLockoutManager(newTestStore(t), locks.NewManager(2*time.Second), 1, 30*time.Millisecond)
	ctx := context.Background()

	locked, err := m.RecordFailure(ctx, "key:abc")
	if err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	if !locked {
		t.Fatal("RecordFailure() locked = false with threshold 1")
	}

	time.Sleep(50 * time.Millisecond)

	isLocked, _, err := m.CheckLocked(ctx, "key:abc")
	if err != nil {
		t.Fatalf("CheckLocked() error = %v", err)
	}
	if isLocked {
		t.Error("CheckLocked() = true after the lockout window elapsed")
	}
}

func TestLockoutCountersAreIndependentPerClient(t *testing.T) {
	m := NewLockoutManager(newTestStore(t), locks.NewManager(2*time.Second), 2, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := m.RecordFailure(ctx, "key:abc"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}

	isLocked, _, err := m.CheckLocked(ctx, "key:other")
	if err != nil {
		t.Fatalf("CheckLocked() error = %v", err)
	}
	if isLocked {
		t.Error("CheckLocked(other) = true, counters must be per client identifier")
	}
}

func TestConcurrentFailuresCountExactly(t *testing.T) {
	m := NewLockoutManager(newTestStore(t), locks.NewManager(5*time.Second), 100, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.RecordFailure(ctx, "key:abc"); err != nil {
				t.Errorf("RecordFailure() error = %v", err)
			}
		}()
	}
	wg.Wait()

	entry, err := m.readEntry(ctx, "key:abc")
	if err != nil {
		t.Fatalf("readEntry() error = %v", err)
	}
	if entry == nil || entry.FailedAttempts != 20 {
		t.Errorf("entry = %+v, want 20 failed attempts", entry)
	}
}

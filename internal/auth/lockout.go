// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/marqueehq/marquee/internal/locks"
	"github.com/marqueehq/marquee/internal/logging"
	"github.com/marqueehq/marquee/internal/store"
)

// LockoutEntry tracks consecutive authentication failures for one client
// identifier. Once FailedAttempts reaches the configured maximum the client
// is locked until LockedUntil, even if later attempts carry valid credentials.
type LockoutEntry struct {
	ClientID       string    `json:"clientId"`
	FailedAttempts int       `json:"failedAttempts"`
	LastAttempt    time.Time `json:"lastAttempt"`
	LockedUntil    time.Time `json:"lockedUntil"`
}

// IsLocked reports whether the entry is currently locked out.
func (e *LockoutEntry) IsLocked() bool {
	return time.Now().Before(e.LockedUntil)
}

// LockoutManager persists failure counters in the row store and serializes
// increments per client identifier through the named-lock manager, so two
// concurrent failures cannot both read the same counter value.
type LockoutManager struct {
	rows        store.RowStore
	locks       *locks.Manager
	maxFailures int
	duration    time.Duration
}

// NewLockoutManager creates a lockout manager.
func NewLockoutManager(rows store.RowStore, lockMgr *locks.Manager, maxFailures int, duration time.Duration) *LockoutManager {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if duration <= 0 {
		duration = 15 * time.Minute
	}
	return &LockoutManager{
		rows:        rows,
		locks:       lockMgr,
		maxFailures: maxFailures,
		duration:    duration,
	}
}

// CheckLocked reports whether clientID is currently locked out, and the
// remaining lockout time if so.
func (m *LockoutManager) CheckLocked(ctx context.Context, clientID string) (bool, time.Duration, error) {
	entry, err := m.readEntry(ctx, clientID)
	if err != nil {
		return false, 0, err
	}
	if entry == nil || !entry.IsLocked() {
		return false, 0, nil
	}
	return true, time.Until(entry.LockedUntil), nil
}

// RecordFailure increments the failure counter under the client's named
// lock and triggers a lockout when the maximum is reached. Returns whether
// the client is now locked out.
func (m *LockoutManager) RecordFailure(ctx context.Context, clientID string) (bool, error) {
	release, err := m.locks.Acquire(ctx, "lockout:"+clientID)
	if err != nil {
		return false, fmt.Errorf("acquire lockout lock: %w", err)
	}
	defer release()

	entry, err := m.readEntry(ctx, clientID)
	if err != nil {
		return false, err
	}
	if entry == nil {
		entry = &LockoutEntry{ClientID: clientID}
	}

	entry.FailedAttempts++
	entry.LastAttempt = time.Now()

	locked := false
	if entry.FailedAttempts >= m.maxFailures {
		entry.LockedUntil = time.Now().Add(m.duration)
		locked = true
		logging.Ctx(ctx).Warn().
			Str("client_id", clientID).
			Int("failed_attempts", entry.FailedAttempts).
			Time("locked_until", entry.LockedUntil).
			Msg("client identifier locked out")
	}

	if err := m.writeEntry(ctx, entry); err != nil {
		return locked, err
	}
	return locked, nil
}

// RecordSuccess clears the failure counter after a successful authentication.
// A success during an active lockout does NOT clear it; the lockout applies
// regardless of credential validity until it expires.
func (m *LockoutManager) RecordSuccess(ctx context.Context, clientID string) error {
	release, err := m.locks.Acquire(ctx, "lockout:"+clientID)
	if err != nil {
		return fmt.Errorf("acquire lockout lock: %w", err)
	}
	defer release()

	entry, err := m.readEntry(ctx, clientID)
	if err != nil || entry == nil {
		return err
	}
	if entry.IsLocked() {
		return nil
	}

	if err := m.rows.DeleteRow(ctx, store.SheetLockout, clientID); err != nil && !errors.Is(err, store.ErrRowNotFound) {
		return fmt.Errorf("clear lockout entry: %w", err)
	}
	return nil
}

// readEntry loads the lockout row for clientID, nil if absent.
func (m *LockoutManager) readEntry(ctx context.Context, clientID string) (*LockoutEntry, error) {
	row, err := m.rows.ReadRow(ctx, store.SheetLockout, clientID)
	if errors.Is(err, store.ErrRowNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lockout entry: %w", err)
	}

	var entry LockoutEntry
	if err := json.Unmarshal(row.Data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal lockout entry: %w", err)
	}
	return &entry, nil
}

// writeEntry persists the entry, overwriting whatever version is stored.
// The named lock already serializes writers, so the row version check is
// bypassed by re-reading the current version.
func (m *LockoutManager) writeEntry(ctx context.Context, entry *LockoutEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal lockout entry: %w", err)
	}

	expected := ""
	if row, err := m.rows.ReadRow(ctx, store.SheetLockout, entry.ClientID); err == nil {
		expected = row.Version
	}

	if _, err := m.rows.WriteRow(ctx, store.SheetLockout, store.Row{Key: entry.ClientID, Data: data}, expected); err != nil {
		return fmt.Errorf("write lockout entry: %w", err)
	}
	return nil
}

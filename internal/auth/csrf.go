// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/marqueehq/marquee/internal/locks"
	"github.com/marqueehq/marquee/internal/store"
)

// CSRF errors.
var (
	// ErrCSRFTokenMissing indicates no CSRF token was provided.
	ErrCSRFTokenMissing = errors.New("CSRF token missing")

	// ErrCSRFTokenInvalid indicates the token is unknown or already spent.
	ErrCSRFTokenInvalid = errors.New("CSRF token invalid or already used")

	// ErrCSRFTokenExpired indicates the token outlived its TTL.
	ErrCSRFTokenExpired = errors.New("CSRF token expired")
)

// CSRFHeader is the request header carrying the single-use token.
const CSRFHeader = "X-CSRF-Token"

// csrfTokenLength is the byte length of generated tokens.
const csrfTokenLength = 32

// csrfRecord is the persisted token state.
type csrfRecord struct {
	ClientID  string    `json:"clientId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CSRFManager issues and consumes single-use CSRF tokens. Consumption is
// validate-and-invalidate under a short-lived per-token lock, so a token
// presented concurrently by two requests is spent by exactly one of them.
type CSRFManager struct {
	rows  store.RowStore
	locks *locks.Manager
	ttl   time.Duration
}

// NewCSRFManager creates a CSRF token manager.
func NewCSRFManager(rows store.RowStore, lockMgr *locks.Manager, ttl time.Duration) *CSRFManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CSRFManager{rows: rows, locks: lockMgr, ttl: ttl}
}

// Issue mints a new single-use token bound to the authenticated client.
func (m *CSRFManager) Issue(ctx context.Context, clientID string) (string, error) {
	raw := make([]byte, csrfTokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate CSRF token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now()
	record := csrfRecord{
		ClientID:  clientID,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal CSRF record: %w", err)
	}

	if _, err := m.rows.WriteRow(ctx, store.SheetCSRF, store.Row{Key: token, Data: data}, ""); err != nil {
		return "", fmt.Errorf("store CSRF token: %w", err)
	}
	return token, nil
}

// Consume validates and invalidates token atomically. A second consumption
// of the same token fails with ErrCSRFTokenInvalid regardless of timing.
func (m *CSRFManager) Consume(ctx context.Context, token, clientID string) error {
	if token == "" {
		return ErrCSRFTokenMissing
	}

	release, err := m.locks.Acquire(ctx, "csrf:"+token)
	if err != nil {
		return fmt.Errorf("acquire CSRF lock: %w", err)
	}
	defer release()

	row, err := m.rows.ReadRow(ctx, store.SheetCSRF, token)
	if errors.Is(err, store.ErrRowNotFound) {
		return ErrCSRFTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("read CSRF token: %w", err)
	}

	var record csrfRecord
	if err := json.Unmarshal(row.Data, &record); err != nil {
		return fmt.Errorf("unmarshal CSRF record: %w", err)
	}

	// Invalidate before judging expiry: an expired token is still spent.
	if err := m.rows.DeleteRow(ctx, store.SheetCSRF, token); err != nil && !errors.Is(err, store.ErrRowNotFound) {
		return fmt.Errorf("invalidate CSRF token: %w", err)
	}

	if time.Now().After(record.ExpiresAt) {
		return ErrCSRFTokenExpired
	}
	if record.ClientID != clientID {
		return ErrCSRFTokenInvalid
	}
	return nil
}

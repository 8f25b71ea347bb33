// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package shortlink resolves opaque tokens to tracked target URLs. An
// unknown token is a structured NOT_FOUND, never a default redirect. Click
// accounting is fire-and-forget: the redirect is neither delayed by nor
// failed because of the analytics append.
package shortlink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/hydrate"
	"github.com/marqueehq/marquee/internal/locks"
	"github.com/marqueehq/marquee/internal/logging"
	"github.com/marqueehq/marquee/internal/models"
	"github.com/marqueehq/marquee/internal/store"
)

// tokenLength is the generated token length in characters.
const tokenLength = 8

// clickAppendTimeout bounds the detached click-append goroutine; it must
// not inherit the request's context, which dies with the redirect.
const clickAppendTimeout = 5 * time.Second

// ClickSink receives fire-and-forget click records.
type ClickSink interface {
	Append(ctx context.Context, record models.AnalyticsRecord) error
}

// Service resolves and creates shortlinks.
type Service struct {
	rows   store.RowStore
	locks  *locks.Manager
	clicks ClickSink
}

// NewService creates the shortlink service. clicks may be nil, disabling
// click analytics.
func NewService(rows store.RowStore, lockMgr *locks.Manager, clicks ClickSink) *Service {
	return &Service{rows: rows, locks: lockMgr, clicks: clicks}
}

// Create mints a shortlink for targetURL. eventID is optional and only
// used to attribute click records.
func (s *Service) Create(ctx context.Context, targetURL, eventID string) (*models.ShortLink, error) {
	if !hydrate.IsAbsoluteURL(targetURL) {
		return nil, apperr.New(apperr.CodeBadInput, "targetUrl must be an absolute http(s) URL")
	}

	link := &models.ShortLink{
		Token:        newToken(),
		TargetURL:    targetURL,
		EventID:      eventID,
		CreatedAtISO: time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(link)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "marshal shortlink", err)
	}
	if _, err := s.rows.WriteRow(ctx, store.SheetShortLink, store.Row{Key: link.Token, Data: data}, ""); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "store shortlink", err)
	}
	return link, nil
}

// Resolve looks up token and increments its click counter. The returned
// target URL is ready for a 302. The click AnalyticsRecord is appended on
// a detached goroutine after the lookup succeeds.
func (s *Service) Resolve(ctx context.Context, token, clientRef string) (string, error) {
	link, _, err := s.read(ctx, token)
	if err != nil {
		return "", err
	}

	if err := s.incrementClicks(ctx, token); err != nil {
		// The counter is best-effort bookkeeping; the redirect still happens.
		logging.Ctx(ctx).Warn().Err(err).Str("token", token).Msg("click counter increment failed")
	}

	if s.clicks != nil && link.EventID != "" {
		s.appendClickDetached(link, clientRef, logging.CorrelationIDFromContext(ctx))
	}
	return link.TargetURL, nil
}

// Get returns the stored link record, click count included.
func (s *Service) Get(ctx context.Context, token string) (*models.ShortLink, error) {
	link, _, err := s.read(ctx, token)
	return link, err
}

// read loads a shortlink row.
func (s *Service) read(ctx context.Context, token string) (*models.ShortLink, string, error) {
	row, err := s.rows.ReadRow(ctx, store.SheetShortLink, token)
	if errors.Is(err, store.ErrRowNotFound) {
		return nil, "", apperr.Newf(apperr.CodeNotFound, "unknown shortlink token %q", token)
	}
	if err != nil {
		return nil, "", apperr.Wrap(apperr.CodeInternal, "read shortlink", err)
	}

	var link models.ShortLink
	if err := json.Unmarshal(row.Data, &link); err != nil {
		return nil, "", apperr.Wrap(apperr.CodeInternal, "decode shortlink", err)
	}
	return &link, row.Version, nil
}

// incrementClicks bumps the monotonic counter under the token's named
// lock; the re-read inside the lock is authoritative.
func (s *Service) incrementClicks(ctx context.Context, token string) error {
	release, err := s.locks.Acquire(ctx, "shortlink:"+token)
	if err != nil {
		return fmt.Errorf("acquire shortlink lock: %w", err)
	}
	defer release()

	link, current, err := s.read(ctx, token)
	if err != nil {
		return err
	}
	link.ClickCount++

	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("marshal shortlink: %w", err)
	}
	if _, err := s.rows.WriteRow(ctx, store.SheetShortLink, store.Row{Key: token, Data: data}, current); err != nil {
		return fmt.Errorf("write shortlink: %w", err)
	}
	return nil
}

// appendClickDetached records the click on its own context so the redirect
// response is never delayed by, nor fails because of, the append.
func (s *Service) appendClickDetached(link *models.ShortLink, clientRef, correlationID string) {
	record := models.AnalyticsRecord{
		ID:        uuid.New().String(),
		EventID:   link.EventID,
		Surface:   string(models.SurfacePublic),
		Metric:    models.MetricClick,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ClientRef: clientRef,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), clickAppendTimeout)
		defer cancel()
		ctx = logging.ContextWithCorrelationID(ctx, correlationID)

		if err := s.clicks.Append(ctx, record); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("token", link.Token).Msg("click analytics append failed")
		}
	}()
}

// newToken derives a short URL-safe token from a UUID.
func newToken() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return raw[:tokenLength]
}

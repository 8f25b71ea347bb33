// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/locks"
	"github.com/marqueehq/marquee/internal/logging"
	"github.com/marqueehq/marquee/internal/models"
	"github.com/marqueehq/marquee/internal/store"
)

// maxSlugAttempts bounds collision-suffix retries on create.
const maxSlugAttempts = 50

// NativeAdapter serves events directly from the row store. Writes to a
// given brand+id are serialized through a named lock with a bounded wait;
// version checks provide optimistic concurrency on top, since the store
// has no native transactions spanning read-modify-write.
type NativeAdapter struct {
	rows  store.RowStore
	locks *locks.Manager
}

// NewNativeAdapter creates the native store adapter.
func NewNativeAdapter(rows store.RowStore, lockMgr *locks.Manager) *NativeAdapter {
	return &NativeAdapter{rows: rows, locks: lockMgr}
}

// Name identifies the backend in diagnostics.
func (a *NativeAdapter) Name() string { return "native" }

// Get fetches a raw event record by id, scoped to brand.
func (a *NativeAdapter) Get(ctx context.Context, brandID, id string) (*models.Event, error) {
	event, _, err := a.read(ctx, id)
	if err != nil {
		return nil, err
	}
	if brandID != "" && event.BrandID != brandID {
		return nil, apperr.Newf(apperr.CodeNotFound, "event %s not found", id)
	}
	return event, nil
}

// List scans events in key order with brand filtering and cursor pagination.
func (a *NativeAdapter) List(ctx context.Context, filter Filter) ([]models.Event, *Page, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rowFilter := func(row *store.Row) bool {
		if filter.BrandID == "" {
			return true
		}
		var probe struct {
			BrandID string `json:"brandId"`
		}
		if err := json.Unmarshal(row.Data, &probe); err != nil {
			return false
		}
		return probe.BrandID == filter.BrandID
	}

	rows, hasMore, err := a.rows.ReadRows(ctx, store.SheetEvents, rowFilter, limit, filter.Cursor)
	if err != nil {
		return nil, nil, a.classify(err, "list events")
	}

	events := make([]models.Event, 0, len(rows))
	for i := range rows {
		event, err := decodeEvent(&rows[i])
		if err != nil {
			return nil, nil, err
		}
		events = append(events, *event)
	}

	page := &Page{HasMore: hasMore}
	if hasMore && len(events) > 0 {
		page.NextCursor = events[len(events)-1].ID
	}
	return events, page, nil
}

// Create generates an id and a brand-unique slug, retrying slug generation
// with a numeric suffix on collision, and persists the new record.
func (a *NativeAdapter) Create(ctx context.Context, input models.EventInput) (*models.Event, error) {
	id := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)

	release, err := a.locks.Acquire(ctx, "event:"+input.BrandID+":create")
	if err != nil {
		return nil, a.classify(err, "acquire create lock")
	}
	defer release()

	slug, err := a.uniqueSlug(ctx, input.BrandID, input.Name)
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		ID:           id,
		BrandID:      input.BrandID,
		Slug:         slug,
		Name:         input.Name,
		StartDateISO: input.StartDateISO,
		Venue:        input.Venue,
		SignupURL:    input.SignupURL,
		TemplateID:   input.TemplateID,
		CTAs:         input.CTAs,
		Settings:     input.Settings,
		Sponsors:     input.Sponsors,
		CreatedAtISO: now,
		UpdatedAtISO: now,
	}

	version, err := a.write(ctx, event, "")
	if err != nil {
		return nil, err
	}
	event.Version = version

	logging.Ctx(ctx).Info().Str("event_id", id).Str("brand_id", input.BrandID).Str("slug", slug).Msg("event created")
	return event, nil
}

// Update merges the patch onto the current record under the brand+id named
// lock. The caller's expectedVersion must match the stored version; a stale
// version is a CONFLICT, never a silent overwrite.
func (a *NativeAdapter) Update(ctx context.Context, brandID, id string, patch models.EventPatch, expectedVersion string) (*models.Event, error) {
	if expectedVersion == "" {
		return nil, apperr.New(apperr.CodeBadInput, "expectedVersion is required for updates")
	}

	release, err := a.locks.Acquire(ctx, "event:"+brandID+":"+id)
	if err != nil {
		return nil, a.classify(err, "acquire write lock")
	}
	defer release()

	event, version, err := a.read(ctx, id)
	if err != nil {
		return nil, err
	}
	if brandID != "" && event.BrandID != brandID {
		return nil, apperr.Newf(apperr.CodeNotFound, "event %s not found", id)
	}
	if version != expectedVersion {
		return nil, apperr.New(apperr.CodeConflict, "event was modified since it was read; re-fetch and retry")
	}

	applyPatch(event, &patch)
	event.UpdatedAtISO = time.Now().UTC().Format(time.RFC3339)

	newVersion, err := a.write(ctx, event, expectedVersion)
	if err != nil {
		return nil, err
	}
	event.Version = newVersion
	return event, nil
}

// Delete removes the record atomically under the brand+id named lock.
func (a *NativeAdapter) Delete(ctx context.Context, brandID, id string) error {
	release, err := a.locks.Acquire(ctx, "event:"+brandID+":"+id)
	if err != nil {
		return a.classify(err, "acquire write lock")
	}
	defer release()

	event, _, err := a.read(ctx, id)
	if err != nil {
		return err
	}
	if brandID != "" && event.BrandID != brandID {
		return apperr.Newf(apperr.CodeNotFound, "event %s not found", id)
	}

	if err := a.rows.DeleteRow(ctx, store.SheetEvents, id); err != nil {
		return a.classify(err, "delete event")
	}
	logging.Ctx(ctx).Info().Str("event_id", id).Msg("event deleted")
	return nil
}

// read loads and decodes an event row, returning the stored version.
func (a *NativeAdapter) read(ctx context.Context, id string) (*models.Event, string, error) {
	row, err := a.rows.ReadRow(ctx, store.SheetEvents, id)
	if err != nil {
		return nil, "", a.classify(err, "read event")
	}
	event, err := decodeEvent(row)
	if err != nil {
		return nil, "", err
	}
	return event, row.Version, nil
}

// write persists an event under the row store's version discipline.
func (a *NativeAdapter) write(ctx context.Context, event *models.Event, expectedVersion string) (string, error) {
	// The row version is authoritative; keep the embedded copy out of the
	// stored payload so the two can never disagree.
	stored := *event
	stored.Version = ""
	stored.Links = models.Links{}
	stored.QR = nil

	data, err := json.Marshal(stored)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "marshal event", err)
	}

	version, err := a.rows.WriteRow(ctx, store.SheetEvents, store.Row{Key: event.ID, Data: data}, expectedVersion)
	if err != nil {
		return "", a.classify(err, "write event")
	}
	return version, nil
}

// uniqueSlug derives the brand-unique slug for name, suffixing -2, -3, ...
// while the unsuffixed form is taken. The original holder keeps its slug.
func (a *NativeAdapter) uniqueSlug(ctx context.Context, brandID, name string) (string, error) {
	base := Slugify(name)

	taken := map[string]bool{}
	cursor := ""
	for {
		rows, hasMore, err := a.rows.ReadRows(ctx, store.SheetEvents, nil, 100, cursor)
		if err != nil {
			return "", a.classify(err, "scan slugs")
		}
		for i := range rows {
			// Advance past undecodable rows too, or a page of them
			// would be re-read forever.
			cursor = rows[i].Key
			event, err := decodeEvent(&rows[i])
			if err != nil {
				continue
			}
			if event.BrandID == brandID {
				taken[event.Slug] = true
			}
		}
		if !hasMore {
			break
		}
	}

	if !taken[base] {
		return base, nil
	}
	for n := 2; n < maxSlugAttempts; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !taken[candidate] {
			return candidate, nil
		}
	}
	return "", apperr.Newf(apperr.CodeInternal, "could not find a free slug for %q", base)
}

// classify maps store and lock errors onto the gateway taxonomy.
func (a *NativeAdapter) classify(err error, action string) *apperr.Error {
	switch {
	case errors.Is(err, store.ErrRowNotFound):
		return apperr.New(apperr.CodeNotFound, "event not found")
	case errors.Is(err, store.ErrVersionMismatch):
		return apperr.New(apperr.CodeConflict, "event was modified since it was read; re-fetch and retry")
	case errors.Is(err, store.ErrRowExists):
		return apperr.New(apperr.CodeConflict, "event already exists")
	case errors.Is(err, locks.ErrAcquireTimeout):
		return apperr.New(apperr.CodeServiceUnavailable, "store is busy; retry shortly")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.CodeServiceUnavailable, "request cancelled", err)
	default:
		return apperr.Wrap(apperr.CodeInternal, action+" failed", err)
	}
}

// decodeEvent unmarshals a row payload, syncing the row version.
func decodeEvent(row *store.Row) (*models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(row.Data, &event); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "decode event row", err)
	}
	event.Version = row.Version
	return &event, nil
}

// applyPatch merges set fields of the patch onto the event.
func applyPatch(event *models.Event, patch *models.EventPatch) {
	if patch.Name != nil {
		event.Name = *patch.Name
	}
	if patch.StartDateISO != nil {
		event.StartDateISO = *patch.StartDateISO
	}
	if patch.Venue != nil {
		event.Venue = *patch.Venue
	}
	if patch.SignupURL != nil {
		event.SignupURL = *patch.SignupURL
	}
	if patch.TemplateID != nil {
		event.TemplateID = *patch.TemplateID
	}
	if patch.CTAs != nil {
		event.CTAs = *patch.CTAs
	}
	if patch.Settings != nil {
		event.Settings = *patch.Settings
	}
	if patch.Sponsors != nil {
		event.Sponsors = *patch.Sponsors
	}
}

// Slugify lowercases name and collapses non-alphanumeric runs to single
// hyphens: "Summer Bash!" -> "summer-bash".
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

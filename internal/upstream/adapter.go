// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package upstream

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/backend"
	"github.com/marqueehq/marquee/internal/metrics"
	"github.com/marqueehq/marquee/internal/models"
)

// LegacyAdapter implements backend.Adapter over the raw legacy client,
// with every response passing through Classify before it is trusted.
type LegacyAdapter struct {
	client *backend.LegacyClient
}

// NewLegacyAdapter wraps a legacy client in the response validator.
func NewLegacyAdapter(client *backend.LegacyClient) *LegacyAdapter {
	return &LegacyAdapter{client: client}
}

// Name identifies the backend in diagnostics.
func (a *LegacyAdapter) Name() string { return "legacy" }

// listValue is the legacy list payload shape.
type listValue struct {
	Events     []models.Event `json:"events"`
	HasMore    bool           `json:"hasMore"`
	NextCursor string         `json:"nextCursor"`
}

// call executes one validated legacy operation.
func (a *LegacyAdapter) call(ctx context.Context, op string, payload interface{}) (json.RawMessage, *apperr.Error) {
	raw, err := a.client.Do(ctx, op, payload)
	var millis int64
	if raw != nil {
		millis = raw.UpstreamMillis
		metrics.RecordUpstream("legacy", op, time.Duration(millis)*time.Millisecond)
	}
	// Transport failures still count as a call: the request touched legacy.
	recordCall(ctx, millis)
	value, appErr := Classify(ctx, raw, err)
	if appErr != nil {
		metrics.RecordUpstreamError("legacy", string(appErr.Code))
	}
	return value, appErr
}

// decode unmarshals a trusted envelope value; a value that does not match
// the expected shape is still an upstream shape error.
func decode(value json.RawMessage, target interface{}) *apperr.Error {
	if err := json.Unmarshal(value, target); err != nil {
		return apperr.Wrap(apperr.CodeUpstreamInvalidShape, "legacy envelope value has unexpected shape", err)
	}
	return nil
}

// Get fetches one raw event record from the legacy runtime.
func (a *LegacyAdapter) Get(ctx context.Context, brandID, id string) (*models.Event, error) {
	value, appErr := a.call(ctx, backend.OpGet, map[string]string{"brandId": brandID, "id": id})
	if appErr != nil {
		return nil, appErr
	}
	var event models.Event
	if err := decode(value, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// List fetches a page of raw event records.
func (a *LegacyAdapter) List(ctx context.Context, filter backend.Filter) ([]models.Event, *backend.Page, error) {
	value, appErr := a.call(ctx, backend.OpList, map[string]interface{}{
		"brandId": filter.BrandID,
		"limit":   filter.Limit,
		"cursor":  filter.Cursor,
	})
	if appErr != nil {
		return nil, nil, appErr
	}
	var list listValue
	if err := decode(value, &list); err != nil {
		return nil, nil, err
	}
	return list.Events, &backend.Page{HasMore: list.HasMore, NextCursor: list.NextCursor}, nil
}

// Create forwards the write to the legacy runtime.
func (a *LegacyAdapter) Create(ctx context.Context, input models.EventInput) (*models.Event, error) {
	value, appErr := a.call(ctx, backend.OpCreate, input)
	if appErr != nil {
		return nil, appErr
	}
	var event models.Event
	if err := decode(value, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Update forwards the patch with its expected version.
func (a *LegacyAdapter) Update(ctx context.Context, brandID, id string, patch models.EventPatch, expectedVersion string) (*models.Event, error) {
	value, appErr := a.call(ctx, backend.OpUpdate, map[string]interface{}{
		"brandId":         brandID,
		"id":              id,
		"patch":           patch,
		"expectedVersion": expectedVersion,
	})
	if appErr != nil {
		return nil, appErr
	}
	var event models.Event
	if err := decode(value, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Delete forwards the delete.
func (a *LegacyAdapter) Delete(ctx context.Context, brandID, id string) error {
	_, appErr := a.call(ctx, backend.OpDelete, map[string]string{"brandId": brandID, "id": id})
	if appErr != nil {
		return appErr
	}
	return nil
}

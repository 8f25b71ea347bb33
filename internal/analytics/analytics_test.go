// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package analytics

import (
	"context"
	"fmt"
	"testing"

	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/models"
	"github.com/marqueehq/marquee/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	rows, err := store.Open("")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = rows.Close() })
	return NewService(rows)
}

func record(eventID, sponsorID, surface, metric string) models.AnalyticsRecord {
	return models.AnalyticsRecord{
		EventID:   eventID,
		SponsorID: sponsorID,
		Surface:   surface,
		Metric:    metric,
	}
}

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	s := newTestService(t)

	if err := s.Append(context.Background(), record("ev-1", "", "public", models.MetricImpression)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	summary, err := s.Aggregate(context.Background(), Query{EventID: "ev-1"})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if summary.Scanned != 1 {
		t.Errorf("Aggregate() scanned = %d, want 1", summary.Scanned)
	}
}

func TestAppendRejectsInvalidRecord(t *testing.T) {
	s := newTestService(t)

	tests := []models.AnalyticsRecord{
		record("", "", "public", models.MetricImpression), // no event
		record("ev-1", "", "billboard", models.MetricImpression), // unknown surface
		record("ev-1", "", "public", "hover"),             // unknown metric
	}
	for i, rec := range tests {
		if err := s.Append(context.Background(), rec); !apperr.IsCode(err, apperr.CodeBadInput) {
			t.Errorf("Append() case %d error = %v, want BAD_INPUT", i, err)
		}
	}
}

func TestCollectBatch(t *testing.T) {
	s := newTestService(t)

	batch := models.AnalyticsBatch{Records: []models.AnalyticsRecord{
		record("ev-1", "", "public", models.MetricImpression),
		record("ev-1", "", "public", models.MetricClick),
	}}
	appended, err := s.Collect(context.Background(), batch)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if appended != 2 {
		t.Errorf("Collect() appended = %d, want 2", appended)
	}
}

func TestCollectRejectsEmptyBatch(t *testing.T) {
	s := newTestService(t)

	_, err := s.Collect(context.Background(), models.AnalyticsBatch{})
	if !apperr.IsCode(err, apperr.CodeBadInput) {
		t.Errorf("Collect() empty batch error = %v, want BAD_INPUT", err)
	}
}

func TestAggregateCTRBySurfaceAndSponsor(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	seed := []models.AnalyticsRecord{
		record("ev-1", "sp-1", "public", models.MetricImpression),
		record("ev-1", "sp-1", "public", models.MetricImpression),
		record("ev-1", "sp-1", "public", models.MetricImpression),
		record("ev-1", "sp-1", "public", models.MetricImpression),
		record("ev-1", "sp-1", "public", models.MetricClick),
		record("ev-1", "", "display", models.MetricImpression),
		record("ev-2", "", "public", models.MetricImpression), // other event, excluded
	}
	for i, rec := range seed {
		rec.Timestamp = fmt.Sprintf("2026-08-30T12:00:%02dZ", i)
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	summary, err := s.Aggregate(ctx, Query{EventID: "ev-1"})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if summary.Scanned != 6 {
		t.Errorf("Aggregate() scanned = %d, want 6", summary.Scanned)
	}

	if len(summary.BySurface) != 2 {
		t.Fatalf("Aggregate() bySurface = %+v, want display and public", summary.BySurface)
	}
	// Sorted by surface name: display first.
	display, public := summary.BySurface[0], summary.BySurface[1]
	if display.Surface != "display" || display.Impressions != 1 || display.Clicks != 0 {
		t.Errorf("Aggregate() display stats = %+v", display)
	}
	if public.Surface != "public" || public.Impressions != 4 || public.Clicks != 1 {
		t.Errorf("Aggregate() public stats = %+v", public)
	}
	if public.CTR != 0.25 {
		t.Errorf("Aggregate() public ctr = %v, want 0.25", public.CTR)
	}

	if len(summary.BySponsor) != 1 {
		t.Fatalf("Aggregate() bySponsor = %+v, want one sponsor", summary.BySponsor)
	}
	sponsor := summary.BySponsor[0]
	if sponsor.SponsorID != "sp-1" || sponsor.Impressions != 4 || sponsor.Clicks != 1 || sponsor.CTR != 0.25 {
		t.Errorf("Aggregate() sponsor stats = %+v", sponsor)
	}
}

func TestAggregateSponsorFilter(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	for i, rec := range []models.AnalyticsRecord{
		record("ev-1", "sp-1", "sponsor", models.MetricImpression),
		record("ev-1", "sp-2", "sponsor", models.MetricImpression),
	} {
		rec.Timestamp = fmt.Sprintf("2026-08-30T13:00:%02dZ", i)
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	summary, err := s.Aggregate(ctx, Query{EventID: "ev-1", SponsorID: "sp-2"})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if summary.Scanned != 1 {
		t.Errorf("Aggregate() scanned = %d, want 1", summary.Scanned)
	}
	if len(summary.BySponsor) != 1 || summary.BySponsor[0].SponsorID != "sp-2" {
		t.Errorf("Aggregate() bySponsor = %+v", summary.BySponsor)
	}
}

func TestAggregateRequiresEventID(t *testing.T) {
	s := newTestService(t)

	_, err := s.Aggregate(context.Background(), Query{})
	if !apperr.IsCode(err, apperr.CodeBadInput) {
		t.Errorf("Aggregate() error = %v, want BAD_INPUT", err)
	}
}

func TestAggregateWindowCursor(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := record("ev-1", "", "public", models.MetricImpression)
		rec.Timestamp = fmt.Sprintf("2026-08-30T14:00:%02dZ", i)
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	first, err := s.Aggregate(ctx, Query{EventID: "ev-1", Limit: 3})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if first.Scanned != 3 || first.NextCursor == "" {
		t.Fatalf("Aggregate() first window = %+v, want 3 scanned and a cursor", first)
	}

	rest, err := s.Aggregate(ctx, Query{EventID: "ev-1", Limit: 3, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("Aggregate() second window error = %v", err)
	}
	if rest.Scanned != 2 || rest.NextCursor != "" {
		t.Errorf("Aggregate() second window = %+v, want 2 scanned and no cursor", rest)
	}
}

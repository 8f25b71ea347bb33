// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package analytics appends client-submitted impression/click records and
// computes CTR aggregates at read time. Records are append-only and never
// updated or deleted; there is no background pre-aggregation job. Reads
// scan a bounded, paginated window of the analytics sheet.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/logging"
	"github.com/marqueehq/marquee/internal/metrics"
	"github.com/marqueehq/marquee/internal/models"
	"github.com/marqueehq/marquee/internal/store"
	"github.com/marqueehq/marquee/internal/validation"
)

// maxScanWindow bounds how many rows one aggregate call may scan.
const maxScanWindow = 5000

// Query scopes an aggregate read.
type Query struct {
	EventID   string
	SponsorID string
	Limit     int
	Cursor    string
}

// Service appends and aggregates analytics records.
type Service struct {
	rows store.RowStore
}

// NewService creates the analytics service.
func NewService(rows store.RowStore) *Service {
	return &Service{rows: rows}
}

// Append stores a single record. Used by the shortlink click path.
func (s *Service) Append(ctx context.Context, record models.AnalyticsRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp == "" {
		record.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if err := validation.ValidateStruct(&record); err != nil {
		return apperr.New(apperr.CodeBadInput, err.Error())
	}

	data, err := json.Marshal(record)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "marshal analytics record", err)
	}

	// Keys sort by timestamp so windowed reads scan in arrival order.
	key := fmt.Sprintf("%s:%s", record.Timestamp, record.ID)
	if _, err := s.rows.WriteRow(ctx, store.SheetAnalytics, store.Row{Key: key, Data: data}, ""); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "append analytics record", err)
	}
	metrics.AnalyticsRecords.WithLabelValues(record.Metric).Inc()
	return nil
}

// Collect appends a validated batch. The batch is all-or-nothing at the
// validation stage but records append independently: a storage failure
// midway leaves earlier records in place, which is acceptable for
// best-effort telemetry.
func (s *Service) Collect(ctx context.Context, batch models.AnalyticsBatch) (int, error) {
	if err := validation.ValidateStruct(&batch); err != nil {
		return 0, apperr.New(apperr.CodeBadInput, err.Error())
	}

	for i := range batch.Records {
		if err := s.Append(ctx, batch.Records[i]); err != nil {
			logging.Ctx(ctx).Error().Err(err).Int("appended", i).Msg("analytics batch append aborted")
			return i, err
		}
	}
	return len(batch.Records), nil
}

// Aggregate scans a bounded window of records for the queried event and
// computes impressions, clicks and CTR by surface and by sponsor.
func (s *Service) Aggregate(ctx context.Context, query Query) (*models.AnalyticsSummary, error) {
	if query.EventID == "" {
		return nil, apperr.New(apperr.CodeBadInput, "eventId is required")
	}
	limit := query.Limit
	if limit <= 0 || limit > maxScanWindow {
		limit = 1000
	}

	filter := func(row *store.Row) bool {
		var probe struct {
			EventID   string `json:"eventId"`
			SponsorID string `json:"sponsorId"`
		}
		if err := json.Unmarshal(row.Data, &probe); err != nil {
			return false
		}
		if probe.EventID != query.EventID {
			return false
		}
		return query.SponsorID == "" || probe.SponsorID == query.SponsorID
	}

	rows, hasMore, err := s.rows.ReadRows(ctx, store.SheetAnalytics, filter, limit, query.Cursor)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "scan analytics records", err)
	}

	bySurface := map[string]*counter{}
	bySponsor := map[string]*counter{}

	for i := range rows {
		var record models.AnalyticsRecord
		if err := json.Unmarshal(rows[i].Data, &record); err != nil {
			continue
		}

		surface := bySurface[record.Surface]
		if surface == nil {
			surface = &counter{}
			bySurface[record.Surface] = surface
		}
		tally(surface, record.Metric)

		if record.SponsorID != "" {
			sponsor := bySponsor[record.SponsorID]
			if sponsor == nil {
				sponsor = &counter{}
				bySponsor[record.SponsorID] = sponsor
			}
			tally(sponsor, record.Metric)
		}
	}

	summary := &models.AnalyticsSummary{
		EventID: query.EventID,
		Scanned: len(rows),
	}
	if hasMore && len(rows) > 0 {
		summary.NextCursor = rows[len(rows)-1].Key
	}

	for surface, c := range bySurface {
		summary.BySurface = append(summary.BySurface, models.SurfaceStats{
			Surface:     surface,
			Impressions: c.impressions,
			Clicks:      c.clicks,
			CTR:         ctr(c.impressions, c.clicks),
		})
	}
	sort.Slice(summary.BySurface, func(i, j int) bool {
		return summary.BySurface[i].Surface < summary.BySurface[j].Surface
	})

	for sponsorID, c := range bySponsor {
		summary.BySponsor = append(summary.BySponsor, models.SponsorStats{
			SponsorID:   sponsorID,
			Impressions: c.impressions,
			Clicks:      c.clicks,
			CTR:         ctr(c.impressions, c.clicks),
		})
	}
	sort.Slice(summary.BySponsor, func(i, j int) bool {
		return summary.BySponsor[i].SponsorID < summary.BySponsor[j].SponsorID
	})

	return summary, nil
}

// counter accumulates one grouping bucket.
type counter struct{ impressions, clicks int64 }

// tally is a tiny helper shared by both groupings.
func tally(c *counter, metric string) {
	switch metric {
	case models.MetricImpression:
		c.impressions++
	case models.MetricClick:
		c.clicks++
	}
}

// ctr computes clicks per impression, zero when there are no impressions.
func ctr(impressions, clicks int64) float64 {
	if impressions == 0 {
		return 0
	}
	return float64(clicks) / float64(impressions)
}

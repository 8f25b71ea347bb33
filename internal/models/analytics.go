// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package models

// Analytics metric kinds. Records are append-only; aggregates are computed
// at read time by scanning a bounded window.
const (
	MetricImpression = "impression"
	MetricClick      = "click"
)

// AnalyticsRecord is a single append-only impression or click observation.
// Records are never updated or deleted after the initial write.
type AnalyticsRecord struct {
	ID        string `json:"id"`
	EventID   string `json:"eventId" validate:"required"`
	SponsorID string `json:"sponsorId,omitempty"`
	Surface   string `json:"surface" validate:"required,surface"`
	Metric    string `json:"metric" validate:"required,oneof=impression click"`
	Timestamp string `json:"timestamp" validate:"required,rfc3339"`
	ClientRef string `json:"clientRef,omitempty" validate:"omitempty,max=128"`
}

// AnalyticsBatch is the client-submitted collect payload. Batches are
// flushed by the client on a timer or page-hide and land as one request.
type AnalyticsBatch struct {
	Records []AnalyticsRecord `json:"records" validate:"required,min=1,max=500,dive"`
}

// SurfaceStats aggregates one surface's records within the scanned window.
type SurfaceStats struct {
	Surface     string  `json:"surface"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	CTR         float64 `json:"ctr"`
}

// SponsorStats aggregates one sponsor's records within the scanned window.
type SponsorStats struct {
	SponsorID   string  `json:"sponsorId"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	CTR         float64 `json:"ctr"`
}

// AnalyticsSummary is the read-time aggregate for one event.
type AnalyticsSummary struct {
	EventID    string         `json:"eventId"`
	Scanned    int            `json:"scanned"`
	BySurface  []SurfaceStats `json:"bySurface"`
	BySponsor  []SponsorStats `json:"bySponsor,omitempty"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// ShortLink maps an opaque token to a tracked target URL. ClickCount is
// monotonic and incremented on every successful resolve.
type ShortLink struct {
	Token        string `json:"token"`
	TargetURL    string `json:"targetUrl" validate:"required,url"`
	EventID      string `json:"eventId,omitempty"`
	CreatedAtISO string `json:"createdAtISO"`
	ClickCount   int64  `json:"clickCount"`
}

// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package api

import (
	"net/http"

	"github.com/marqueehq/marquee/internal/analytics"
	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/models"
)

// collectResponse reports how many records of a batch were appended.
type collectResponse struct {
	Appended int `json:"appended"`
}

// CollectAnalytics appends a batch of impression/click records. The batch is
// all-or-nothing on validation but append failures after that are partial:
// the response says how many made it.
func (h *Handler) CollectAnalytics(w http.ResponseWriter, r *http.Request) {
	var batch models.AnalyticsBatch
	if err := decodeBody(r, &batch); err != nil {
		respondError(w, r, err)
		return
	}

	appended, err := h.analytics.Collect(r.Context(), batch)
	if err != nil && appended == 0 {
		respondError(w, r, err)
		return
	}

	respondValue(w, http.StatusAccepted, collectResponse{Appended: appended}, nil)
}

// AnalyticsSummary aggregates per-surface and per-sponsor counters with
// click-through rates for one event.
func (h *Handler) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	query := analytics.Query{
		EventID:   r.URL.Query().Get("eventId"),
		SponsorID: r.URL.Query().Get("sponsorId"),
		Limit:     getIntParam(r, "limit", 0),
		Cursor:    r.URL.Query().Get("cursor"),
	}
	if query.EventID == "" {
		respondError(w, r, apperr.New(apperr.CodeBadInput, "eventId parameter is required"))
		return
	}

	summary, err := h.analytics.Aggregate(r.Context(), query)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondValue(w, http.StatusOK, summary, nil)
}

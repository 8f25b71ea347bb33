// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/metrics"
)

// shortLinkInput is the create-shortlink request body.
type shortLinkInput struct {
	TargetURL string `json:"targetUrl" validate:"required,url"`
	EventID   string `json:"eventId,omitempty" validate:"omitempty,max=64"`
}

// CreateShortLink mints an opaque token for an absolute target URL.
func (h *Handler) CreateShortLink(w http.ResponseWriter, r *http.Request) {
	var input shortLinkInput
	if err := decodeBody(r, &input); err != nil {
		respondError(w, r, err)
		return
	}

	link, err := h.shortlinks.Create(r.Context(), input.TargetURL, input.EventID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondValue(w, http.StatusCreated, link, nil)
}

// ResolveShortLink redirects a public token to its target and records the
// click. Unknown tokens get the NOT_FOUND envelope rather than a redirect.
func (h *Handler) ResolveShortLink(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		respondError(w, r, apperr.New(apperr.CodeBadInput, "shortlink token is required"))
		return
	}

	target, err := h.shortlinks.Resolve(r.Context(), token, clientRef(r))
	if err != nil {
		metrics.ShortlinkResolves.WithLabelValues("miss").Inc()
		respondError(w, r, err)
		return
	}

	metrics.ShortlinkResolves.WithLabelValues("hit").Inc()
	http.Redirect(w, r, target, http.StatusFound)
}

// GetShortLink returns the stored shortlink record, click count included.
func (h *Handler) GetShortLink(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	link, err := h.shortlinks.Get(r.Context(), token)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondValue(w, http.StatusOK, link, nil)
}

// clientRef derives an anonymous client reference for click records. The
// remote address is enough; no cookies, no fingerprinting.
func clientRef(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

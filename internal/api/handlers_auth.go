// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package api

import (
	"net/http"
	"time"

	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/auth"
)

// csrfTokenResponse carries a freshly issued single-use token.
type csrfTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresInSeconds"`
}

// IssueCSRFToken mints a single-use CSRF token bound to the authenticated
// client. Mutating requests must spend it via the X-CSRF-Token header.
func (h *Handler) IssueCSRFToken(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		respondError(w, r, apperr.New(apperr.CodeUnauthorized, "authentication required"))
		return
	}

	token, err := h.csrf.Issue(r.Context(), identity.ClientID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondValue(w, http.StatusCreated, csrfTokenResponse{
		Token:     token,
		ExpiresIn: int64(h.cfg.Auth.CSRFTokenTTL / time.Second),
	}, nil)
}

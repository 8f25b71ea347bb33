// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package api

import (
	"net/http"
	"time"
)

var startTime = time.Now()

// healthStatus is the liveness payload.
type healthStatus struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Backend       string `json:"backend"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// Health reports liveness plus the configured backend mode. It sits outside
// the authenticated group so probes need no credentials.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondValue(w, http.StatusOK, healthStatus{
		Status:        "ok",
		Version:       h.version,
		Backend:       h.cfg.Backend.Mode,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
	}, nil)
}

// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Chi middleware factories built on the production-hardened Chi ecosystem:
// go-chi/cors for CORS and go-chi/httprate for sliding-window rate limiting.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/marqueehq/marquee/internal/config"
	"github.com/marqueehq/marquee/internal/logging"
	"github.com/marqueehq/marquee/internal/metrics"
	"github.com/marqueehq/marquee/internal/models"

	"github.com/goccy/go-json"
)

// ChiMiddleware provides Chi-compatible middleware factories configured
// from the immutable gateway config.
type ChiMiddleware struct {
	cors      func(http.Handler) http.Handler
	rateLimit config.RateLimitConfig
	keyFunc   httprate.KeyFunc
}

// NewChiMiddleware builds the middleware factory. keyFunc buckets requests
// by client identifier for rate limiting; nil falls back to IP.
func NewChiMiddleware(corsOrigins []string, rateLimit config.RateLimitConfig, keyFunc httprate.KeyFunc) *ChiMiddleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-API-Key", "X-CSRF-Token"},
		AllowCredentials: false,
		MaxAge:           86400,
	})

	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}

	return &ChiMiddleware{
		cors:      corsHandler,
		rateLimit: rateLimit,
		keyFunc:   keyFunc,
	}
}

// CORS returns the CORS middleware.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns a sliding-window limiter keyed by client identifier.
// Rejections carry a RATE_LIMITED envelope and a Retry-After hint.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	if m.rateLimit.Disabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	window := m.rateLimit.Window
	if window <= 0 {
		window = time.Minute
	}

	return httprate.Limit(
		m.rateLimit.Requests,
		window,
		httprate.WithKeyFuncs(m.keyFunc),
		httprate.WithLimitHandler(rateLimitHandler(window)),
	)
}

// RateLimitPublic returns an IP-keyed limiter for unauthenticated routes,
// where no client identifier exists yet.
func (m *ChiMiddleware) RateLimitPublic() func(http.Handler) http.Handler {
	if m.rateLimit.Disabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	window := m.rateLimit.Window
	if window <= 0 {
		window = time.Minute
	}

	return httprate.Limit(
		m.rateLimit.Requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitHandler(window)),
	)
}

// rateLimitHandler writes the 429 envelope.
func rateLimitHandler(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(window.Round(time.Second).Seconds()))

	return func(w http.ResponseWriter, r *http.Request) {
		metrics.RateLimited.Inc()
		logging.Ctx(r.Context()).Warn().Str("path", sanitizeLogValue(r.URL.Path)).Msg("request rate limited")

		envelope := models.Envelope{
			OK:            false,
			Code:          "RATE_LIMITED",
			Message:       "too many requests; retry after " + retryAfter + "s",
			CorrelationID: logging.CorrelationIDFromContext(r.Context()),
		}
		data, err := json.Marshal(envelope)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", retryAfter)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write(data)
	}
}

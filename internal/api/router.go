// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package api wires the Chi router: request identity, CORS, rate limiting,
// authentication, then the event, bundle, shortlink and analytics handlers.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/auth"
	"github.com/marqueehq/marquee/internal/middleware"
)

// Router assembles the HTTP surface from the wired handler and middleware.
type Router struct {
	handler       *Handler
	authMw        *auth.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter builds the router facade.
func NewRouter(handler *Handler, authMw *auth.Middleware, chiMw *ChiMiddleware) *Router {
	return &Router{
		handler:       handler,
		authMw:        authMw,
		chiMiddleware: chiMw,
	}
}

// Setup returns the fully wired chi.Router.
func (router *Router) Setup() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight works

	// Liveness probe, no credentials.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/", router.handler.Health)
	})

	// Prometheus scrape endpoint.
	r.Handle("/metrics", promhttp.Handler())

	// Public shortlink resolver. IP-keyed rate limit; resolves redirect
	// with 302 or return the NOT_FOUND envelope.
	r.Route("/l", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitPublic())
		r.Use(middleware.PrometheusMetrics)
		r.Get("/{token}", router.handler.ResolveShortLink)
	})

	// CSRF token issuance. Authenticated but exempt from CSRF itself,
	// otherwise no client could ever obtain a first token.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.authMw.Authenticate)
		r.Post("/csrf", router.handler.IssueCSRFToken)
	})

	// Authenticated gateway surface.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.authMw.Authenticate)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", router.handler.ListEvents)
			r.Post("/", router.handler.CreateEvent)
			r.Get("/{id}", router.handler.GetEvent)
			r.Put("/{id}", router.handler.UpdateEvent)
			r.Delete("/{id}", router.handler.DeleteEvent)
			r.Get("/{id}/bundle", router.handler.GetBundle)
		})

		r.Route("/shortlinks", func(r chi.Router) {
			r.Post("/", router.handler.CreateShortLink)
			r.Get("/{token}", router.handler.GetShortLink)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Post("/collect", router.handler.CollectAnalytics)
			r.Get("/summary", router.handler.AnalyticsSummary)
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, apperr.Newf(apperr.CodeNotFound, "no route for %s", sanitizeLogValue(req.URL.Path)))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, apperr.Newf(apperr.CodeBadInput, "method %s not allowed", req.Method))
	})

	return r
}

// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/marqueehq/marquee/internal/analytics"
	"github.com/marqueehq/marquee/internal/auth"
	"github.com/marqueehq/marquee/internal/backend"
	"github.com/marqueehq/marquee/internal/bundle"
	"github.com/marqueehq/marquee/internal/config"
	"github.com/marqueehq/marquee/internal/hydrate"
	"github.com/marqueehq/marquee/internal/locks"
	"github.com/marqueehq/marquee/internal/models"
	"github.com/marqueehq/marquee/internal/shortlink"
	"github.com/marqueehq/marquee/internal/store"
	"github.com/marqueehq/marquee/internal/upstream"
)

// legacyExec is a scripted legacy runtime: each op name maps to a canned
// responder.
type legacyExec struct {
	responses map[string]func(w http.ResponseWriter)
}

func (l *legacyExec) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Op string `json:"op"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respond, ok := l.responses[req.Op]
	if !ok {
		http.Error(w, "unscripted op "+req.Op, http.StatusTeapot)
		return
	}
	respond(w)
}

func jsonOK(body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

// newLegacyTestServer wires the router in legacy mode against legacyURL.
func newLegacyTestServer(t *testing.T, legacyURL string) *httptest.Server {
	t.Helper()

	cfg := testConfig()
	cfg.Backend = config.BackendConfig{
		Mode:            config.ModeLegacy,
		LegacyURL:       legacyURL,
		LegacyTimeout:   5 * time.Second,
		BreakerFailures: 100,
		BreakerCooldown: time.Minute,
	}

	rows, err := store.Open("")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = rows.Close() })

	lockMgr := locks.NewManager(cfg.Store.WriteLockTimeout)
	legacyAdapter := upstream.NewLegacyAdapter(backend.NewLegacyClient(cfg.Backend))
	selector := backend.NewSelector(cfg.Backend, legacyAdapter, backend.NewNativeAdapter(rows, lockMgr))

	analyticsSvc := analytics.NewService(rows)
	validator := auth.NewValidator(cfg.Auth)
	lockouts := auth.NewLockoutManager(rows, lockMgr, cfg.Auth.MaxFailures, cfg.Auth.LockoutDuration)
	csrf := auth.NewCSRFManager(rows, lockMgr, cfg.Auth.CSRFTokenTTL)
	authMw := auth.NewMiddleware(validator, lockouts, csrf, []string{"/api/v1/auth/csrf", "/api/v1/analytics/collect"})

	handler := NewHandler(
		selector,
		hydrate.New(cfg.Server.BaseURL),
		bundle.New(cfg.Bundle, "test"),
		analyticsSvc,
		shortlink.NewService(rows, lockMgr, analyticsSvc),
		csrf,
		nil,
		cfg,
		"test",
	)
	chiMw := NewChiMiddleware(nil, cfg.RateLimit, authMw.ClientKey)
	router := NewRouter(handler, authMw, chiMw)

	ts := httptest.NewServer(router.Setup())
	t.Cleanup(ts.Close)
	return ts
}

// scriptLegacy starts the scripted runtime and a router pointed at it.
func scriptLegacy(t *testing.T, legacy *legacyExec) *httptest.Server {
	t.Helper()
	upstreamServer := httptest.NewServer(legacy)
	t.Cleanup(upstreamServer.Close)
	return newLegacyTestServer(t, upstreamServer.URL)
}

func TestLegacyModeGetHydrates(t *testing.T) {
	ts := scriptLegacy(t, &legacyExec{responses: map[string]func(http.ResponseWriter){
		backend.OpGet: jsonOK(`{"ok":true,"value":{"id":"ev-9","brandId":"acme","slug":"gala","name":"Gala","startDateISO":"2026-10-01T19:00:00Z","venue":"Hall A"}}`),
	}})

	status, header, envelope := doJSON(t, ts, http.MethodGet, "/api/v1/events/ev-9?brand=acme", "", nil)
	if status != http.StatusOK || !envelope.OK {
		t.Fatalf("get: status %d, envelope %+v", status, envelope)
	}
	if header.Get(HeaderBackend) != "legacy" {
		t.Errorf("X-Backend = %q, want legacy", header.Get(HeaderBackend))
	}
	if header.Get(HeaderUpstreamMs) == "" {
		t.Error("X-Upstream-Ms header missing on legacy path")
	}

	var event models.Event
	if err := json.Unmarshal(envelope.Value, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Links.PublicURL == "" || !event.Settings["publicVisible"] {
		t.Error("legacy event not hydrated")
	}
}

func TestLegacyModeHTMLBecomesStructuredError(t *testing.T) {
	ts := scriptLegacy(t, &legacyExec{responses: map[string]func(http.ResponseWriter){
		backend.OpGet: func(w http.ResponseWriter) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>permission denied</html>"))
		},
	}})

	status, _, envelope := doJSON(t, ts, http.MethodGet, "/api/v1/events/ev-9?brand=acme", "", nil)
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", status)
	}
	if envelope.Code != "UPSTREAM_NON_STRUCTURED" {
		t.Errorf("code = %q, want UPSTREAM_NON_STRUCTURED", envelope.Code)
	}
	if envelope.UpstreamStatus != 200 {
		t.Errorf("upstreamStatus = %d, want 200", envelope.UpstreamStatus)
	}
}

func TestLegacyModeDomainErrorPassthrough(t *testing.T) {
	ts := scriptLegacy(t, &legacyExec{responses: map[string]func(http.ResponseWriter){
		backend.OpGet: jsonOK(`{"ok":false,"code":"NOT_FOUND","message":"no such event"}`),
	}})

	status, _, envelope := doJSON(t, ts, http.MethodGet, "/api/v1/events/ev-9?brand=acme", "", nil)
	if status != http.StatusNotFound || envelope.Code != "NOT_FOUND" {
		t.Errorf("status %d, envelope %+v, want passthrough NOT_FOUND", status, envelope)
	}
}

func TestLegacyModeUnreachableBackend(t *testing.T) {
	// A closed port: transport failures classify as network errors.
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	ts := newLegacyTestServer(t, deadURL)
	status, _, envelope := doJSON(t, ts, http.MethodGet, "/api/v1/events/ev-9?brand=acme", "", nil)
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", status)
	}
	if envelope.Code != "UPSTREAM_NETWORK_ERROR" {
		t.Errorf("code = %q, want UPSTREAM_NETWORK_ERROR", envelope.Code)
	}
}

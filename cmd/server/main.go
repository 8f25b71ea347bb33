// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Command server runs the Marquee gateway: authenticated event CRUD over a
// switchable legacy/native backend, per-surface bundles, shortlinks and
// analytics collection.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marqueehq/marquee/internal/analytics"
	"github.com/marqueehq/marquee/internal/api"
	"github.com/marqueehq/marquee/internal/auth"
	"github.com/marqueehq/marquee/internal/backend"
	"github.com/marqueehq/marquee/internal/bundle"
	"github.com/marqueehq/marquee/internal/config"
	"github.com/marqueehq/marquee/internal/forms"
	"github.com/marqueehq/marquee/internal/hydrate"
	"github.com/marqueehq/marquee/internal/locks"
	"github.com/marqueehq/marquee/internal/logging"
	"github.com/marqueehq/marquee/internal/shortlink"
	"github.com/marqueehq/marquee/internal/store"
	"github.com/marqueehq/marquee/internal/upstream"
)

// Version is set at build time via -ldflags.
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config errors land on the default logger; config is not available.
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Str("version", Version).
		Str("backend_mode", cfg.Backend.Mode).
		Str("store_path", cfg.Store.Path).
		Msg("starting marquee gateway")

	rows, err := store.Open(cfg.Store.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open row store")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Error().Err(err).Msg("row store close failed")
		}
	}()

	lockMgr := locks.NewManager(cfg.Store.WriteLockTimeout)

	// Backend adapters. The legacy client is only wired when a mode can
	// reach it; native is always available as the row-store adapter.
	native := backend.NewNativeAdapter(rows, lockMgr)
	var legacy backend.Adapter
	if cfg.Backend.Mode != config.ModeNative {
		legacy = upstream.NewLegacyAdapter(backend.NewLegacyClient(cfg.Backend))
	}
	selector := backend.NewSelector(cfg.Backend, legacy, native)

	hydrator := hydrate.New(cfg.Server.BaseURL)
	assembler := bundle.New(cfg.Bundle, Version)

	analyticsSvc := analytics.NewService(rows)
	shortlinks := shortlink.NewService(rows, lockMgr, analyticsSvc)

	var formsClient forms.Client
	if cfg.Form.Enabled {
		formsClient = forms.NewHTTPClient(cfg.Form.BaseURL, cfg.Form.Timeout)
	}

	// Auth stack: credential validation, lockout counters, CSRF tokens.
	validator := auth.NewValidator(cfg.Auth)
	lockouts := auth.NewLockoutManager(rows, lockMgr, cfg.Auth.MaxFailures, cfg.Auth.LockoutDuration)
	csrf := auth.NewCSRFManager(rows, lockMgr, cfg.Auth.CSRFTokenTTL)
	authMw := auth.NewMiddleware(validator, lockouts, csrf, []string{"/api/v1/auth/csrf", "/api/v1/analytics/collect"})

	handler := api.NewHandler(selector, hydrator, assembler, analyticsSvc, shortlinks, csrf, formsClient, cfg, Version)
	chiMw := api.NewChiMiddleware(cfg.Server.CORSOrigins, cfg.RateLimit, authMw.ClientKey)
	router := api.NewRouter(handler, authMw, chiMw)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logging.Fatal().Err(err).Msg("http server failed")
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown incomplete")
	}
	logging.Info().Msg("shutdown complete")
}

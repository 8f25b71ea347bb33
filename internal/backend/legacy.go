// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/marqueehq/marquee/internal/config"
	"github.com/marqueehq/marquee/internal/logging"
)

// maxLegacyBodySize caps how much of a legacy response body is buffered.
// Legacy error pages can be arbitrarily large HTML; 1MB is plenty for any
// legitimate envelope.
const maxLegacyBodySize = 1 << 20

// RawResponse is an untouched legacy response: body, status, and content
// type exactly as received. The legacy client never judges success or
// failure; classification belongs to the upstream validator.
type RawResponse struct {
	Status      int
	ContentType string
	Body        []byte

	// UpstreamMillis is the wall time spent on the call, for the
	// X-Upstream-Ms diagnostic header.
	UpstreamMillis int64
}

// LegacyClient issues one HTTP call per operation to the legacy runtime
// service. Each call carries its own timeout, strictly below the server's
// request budget, so timeouts classify cleanly instead of the request being
// killed mid-flight. A circuit breaker sheds load when the runtime is down.
type LegacyClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*RawResponse]
	timeout time.Duration
}

// legacyRequest is the wire shape of a legacy operation call.
type legacyRequest struct {
	Op      string      `json:"op"`
	Payload interface{} `json:"payload,omitempty"`
}

// NewLegacyClient creates the legacy runtime client.
func NewLegacyClient(cfg config.BackendConfig) *LegacyClient {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}

	breaker := gobreaker.NewCircuitBreaker[*RawResponse](gobreaker.Settings{
		Name:        "legacy-runtime",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("legacy circuit breaker state change")
		},
	})

	return &LegacyClient{
		baseURL: cfg.LegacyURL,
		client:  &http.Client{Timeout: cfg.LegacyTimeout},
		breaker: breaker,
		timeout: cfg.LegacyTimeout,
	}
}

// IsBreakerOpen reports whether err came from the open circuit breaker.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Do executes one operation call and returns the raw response untouched.
// Transport-level failures (including timeouts) are returned as errors;
// any HTTP response, whatever its status, is returned as a RawResponse.
func (c *LegacyClient) Do(ctx context.Context, op string, payload interface{}) (*RawResponse, error) {
	return c.breaker.Execute(func() (*RawResponse, error) {
		return c.do(ctx, op, payload)
	})
}

func (c *LegacyClient) do(ctx context.Context, op string, payload interface{}) (*RawResponse, error) {
	body, err := json.Marshal(legacyRequest{Op: op, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal legacy request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/exec", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build legacy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxLegacyBodySize))
	if err != nil {
		return nil, fmt.Errorf("read legacy response: %w", err)
	}

	return &RawResponse{
		Status:         resp.StatusCode,
		ContentType:    resp.Header.Get("Content-Type"),
		Body:           raw,
		UpstreamMillis: time.Since(start).Milliseconds(),
	}, nil
}

// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package forms calls the external form/registration collaborator. The
// gateway only invokes it from the write path and stores the returned URL
// as a signup CTA; nothing here interprets the form beyond its URL.
package forms

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Client creates registration forms for events.
type Client interface {
	CreateForm(ctx context.Context, eventID, templateID string) (string, error)
}

// HTTPClient is the production implementation.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a form service client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// CreateForm requests a registration form and returns its URL.
func (c *HTTPClient) CreateForm(ctx context.Context, eventID, templateID string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"eventId":    eventID,
		"templateId": templateID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal form request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build form request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("form service call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("form service returned HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read form response: %w", err)
	}

	var result struct {
		FormURL string `json:"formUrl"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode form response: %w", err)
	}
	if result.FormURL == "" {
		return "", fmt.Errorf("form service returned no formUrl")
	}
	return result.FormURL, nil
}

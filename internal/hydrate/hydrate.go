// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package hydrate normalizes raw stored event records into the canonical
// Event every surface consumes. Hydration is a pure, deterministic,
// idempotent transform: default settings are filled for missing keys, the
// links map is computed from (baseUrl, brandId, id) with fixed per-purpose
// templates, and a qr entry exists for a purpose iff its link is a
// well-formed absolute URL. Re-hydrating a canonical Event recomputes the
// derived fields from the base fields and yields an identical result.
package hydrate

import (
	"encoding/base64"
	"fmt"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/marqueehq/marquee/internal/models"
)

// qrImageSize is the rendered QR PNG edge length in pixels.
const qrImageSize = 256

// DefaultSettings are the named boolean settings every canonical Event
// carries. Missing keys are filled with these values; keys the record
// already has are left alone.
var DefaultSettings = map[string]bool{
	"publicVisible": true,
	"showSponsors":  true,
	"showSchedule":  true,
	"allowSignup":   true,
	"showQR":        true,
}

// Hydrator computes canonical Events. It carries only immutable link
// configuration and is safe for concurrent use.
type Hydrator struct {
	baseURL string
}

// New creates a hydrator building links on baseURL.
func New(baseURL string) *Hydrator {
	return &Hydrator{baseURL: baseURL}
}

// Hydrate returns the canonical form of event. The input is not mutated.
func (h *Hydrator) Hydrate(event models.Event) models.Event {
	event.Settings = fillSettings(event.Settings)
	event.Links = h.links(&event)
	event.QR = qrEntries(event.Links)
	return event
}

// HydrateAll hydrates a slice of raw records in place order.
func (h *Hydrator) HydrateAll(events []models.Event) []models.Event {
	out := make([]models.Event, len(events))
	for i := range events {
		out[i] = h.Hydrate(events[i])
	}
	return out
}

// fillSettings copies settings, adding defaults for missing keys only.
func fillSettings(settings map[string]bool) map[string]bool {
	filled := make(map[string]bool, len(DefaultSettings))
	for key, value := range DefaultSettings {
		filled[key] = value
	}
	for key, value := range settings {
		filled[key] = value
	}
	return filled
}

// links computes the per-purpose URLs from fixed templates.
func (h *Hydrator) links(event *models.Event) models.Links {
	query := url.Values{}
	query.Set("brand", event.BrandID)
	query.Set("id", event.ID)
	encoded := query.Encode()

	return models.Links{
		PublicURL:  fmt.Sprintf("%s/e?%s", h.baseURL, encoded),
		DisplayURL: fmt.Sprintf("%s/display?%s", h.baseURL, encoded),
		PosterURL:  fmt.Sprintf("%s/poster?%s", h.baseURL, encoded),
		SignupURL:  event.SignupURL,
	}
}

// qrEntries renders a QR data URI per purpose whose link is a well-formed
// absolute URL. A purpose with no valid URL gets no entry at all: a QR code
// is never emitted for a broken or absent link.
func qrEntries(links models.Links) map[string]string {
	entries := make(map[string]string)
	for purpose, target := range map[string]string{
		models.LinkPurposePublic:  links.PublicURL,
		models.LinkPurposeDisplay: links.DisplayURL,
		models.LinkPurposePoster:  links.PosterURL,
		models.LinkPurposeSignup:  links.SignupURL,
	} {
		if !IsAbsoluteURL(target) {
			continue
		}
		png, err := qrcode.Encode(target, qrcode.Medium, qrImageSize)
		if err != nil {
			// Encoding only fails for content beyond QR capacity; such a
			// link gets no entry, same as an absent one.
			continue
		}
		entries[purpose] = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}
	if len(entries) == 0 {
		return nil
	}
	return entries
}

// IsAbsoluteURL reports whether s is a well-formed absolute http(s) URL.
func IsAbsoluteURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package models

// Envelope is the standard response wrapper used by every HTTP endpoint.
//
// Success:
//
//	{"ok": true, "value": {...}}
//
// Failure:
//
//	{"ok": false, "code": "CONFLICT", "message": "...", "correlationId": "ab12cd34"}
//
// List payloads additionally carry Pagination. Upstream-classified failures
// carry the original upstream HTTP status for operational comparison; raw
// upstream bodies are never forwarded.
type Envelope struct {
	OK             bool            `json:"ok"`
	Value          interface{}     `json:"value,omitempty"`
	Pagination     *PaginationInfo `json:"pagination,omitempty"`
	Code           string          `json:"code,omitempty"`
	Message        string          `json:"message,omitempty"`
	CorrelationID  string          `json:"correlationId,omitempty"`
	UpstreamStatus int             `json:"upstreamStatus,omitempty"`
}

// PaginationInfo carries cursor-based pagination metadata for list payloads.
// Cursors are opaque to clients.
type PaginationInfo struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package upstream validates legacy-runtime responses before anything else
// trusts them. An HTTP 200 is never taken as proof of success: the legacy
// runtime is known to return permission-denied HTML pages with a success
// status, which would otherwise masquerade as well-formed data. Every
// response is structurally checked against the documented {ok: bool, ...}
// envelope and any deviation classifies into the fixed taxonomy; raw
// upstream bodies are never forwarded on failure paths.
package upstream

import (
	"context"
	"errors"
	"mime"
	"net"
	"strings"

	"github.com/goccy/go-json"

	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/backend"
	"github.com/marqueehq/marquee/internal/logging"
)

// envelope is the documented legacy response shape. OK is a pointer so a
// parsed body that simply lacks the field is distinguishable from ok:false.
type envelope struct {
	OK      *bool           `json:"ok"`
	Value   json.RawMessage `json:"value"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

// passthroughCodes are legacy-reported domain errors the gateway surfaces
// under their own code rather than as an upstream fault.
var passthroughCodes = map[string]apperr.Code{
	"BAD_INPUT":    apperr.CodeBadInput,
	"UNAUTHORIZED": apperr.CodeUnauthorized,
	"NOT_FOUND":    apperr.CodeNotFound,
	"CONFLICT":     apperr.CodeConflict,
}

// Classify turns a legacy call result into either the trusted envelope
// value or a classified error. raw may be nil when callErr is set.
func Classify(ctx context.Context, raw *backend.RawResponse, callErr error) (json.RawMessage, *apperr.Error) {
	if callErr != nil {
		return nil, classifyTransport(callErr)
	}

	if !isJSONContentType(raw.ContentType) {
		logging.Ctx(ctx).Warn().
			Int("upstream_status", raw.Status).
			Str("content_type", raw.ContentType).
			Msg("legacy returned non-structured body")
		return nil, apperr.New(apperr.CodeUpstreamNonStructured,
			"legacy backend returned a non-structured response").WithUpstreamStatus(raw.Status)
	}

	var env envelope
	if err := json.Unmarshal(raw.Body, &env); err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstreamParseError,
			"legacy backend response could not be parsed", err).WithUpstreamStatus(raw.Status)
	}

	if env.OK == nil {
		return nil, apperr.New(apperr.CodeUpstreamInvalidShape,
			"legacy backend response lacks the required envelope").WithUpstreamStatus(raw.Status)
	}

	if raw.Status < 200 || raw.Status > 299 {
		return nil, apperr.Newf(apperr.CodeUpstreamHTTPError,
			"legacy backend returned HTTP %d", raw.Status).WithUpstreamStatus(raw.Status)
	}

	if !*env.OK {
		if code, ok := passthroughCodes[env.Code]; ok {
			return nil, apperr.New(code, env.Message)
		}
		return nil, apperr.Newf(apperr.CodeUpstreamInvalidShape,
			"legacy backend reported failure with unrecognized code %q", env.Code).WithUpstreamStatus(raw.Status)
	}

	return env.Value, nil
}

// classifyTransport maps call errors onto the taxonomy.
func classifyTransport(err error) *apperr.Error {
	switch {
	case backend.IsBreakerOpen(err):
		return apperr.Wrap(apperr.CodeServiceUnavailable, "legacy backend circuit is open", err)
	case errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return apperr.Wrap(apperr.CodeUpstreamTimeout, "legacy backend timed out", err)
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.CodeUpstreamNetworkError, "legacy call cancelled", err)
	default:
		return apperr.Wrap(apperr.CodeUpstreamNetworkError, "legacy backend unreachable", err)
	}
}

// isTimeout detects net-level timeouts wrapped in url.Error values.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isJSONContentType accepts application/json and its +json structured
// syntax suffixes.
func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

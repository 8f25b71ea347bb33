// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/logging"
	"github.com/marqueehq/marquee/internal/models"
	"github.com/marqueehq/marquee/internal/validation"
)

// maxRequestBody caps decoded request bodies.
const maxRequestBody = 1 << 20

// sanitizeLogValue replaces control characters so attacker-supplied strings
// cannot forge log entries.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondEnvelope writes an envelope with the given status.
func respondEnvelope(w http.ResponseWriter, status int, envelope *models.Envelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal response envelope")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("failed to write response")
	}
}

// respondValue writes a success envelope.
func respondValue(w http.ResponseWriter, status int, value interface{}, pagination *models.PaginationInfo) {
	respondEnvelope(w, status, &models.Envelope{
		OK:         true,
		Value:      value,
		Pagination: pagination,
	})
}

// respondError classifies err and writes a failure envelope carrying the
// correlation id. Underlying causes are logged, never serialized.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.From(err)

	logEvent := logging.Ctx(r.Context()).Error().
		Str("code", string(appErr.Code)).
		Str("path", sanitizeLogValue(r.URL.Path))
	if appErr.Err != nil {
		logEvent = logEvent.Err(appErr.Err)
	}
	logEvent.Msg(sanitizeLogValue(appErr.Message))

	respondEnvelope(w, appErr.HTTPStatus(), &models.Envelope{
		OK:             false,
		Code:           string(appErr.Code),
		Message:        appErr.Message,
		CorrelationID:  logging.CorrelationIDFromContext(r.Context()),
		UpstreamStatus: appErr.UpstreamStatus,
	})
}

// decodeBody decodes and validates a JSON request body into target.
func decodeBody(r *http.Request, target interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return apperr.Wrap(apperr.CodeBadInput, "request body unreadable", err)
	}
	if len(body) == 0 {
		return apperr.New(apperr.CodeBadInput, "request body is required")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return apperr.Wrap(apperr.CodeBadInput, "request body is not valid JSON", err)
	}
	if err := validation.ValidateStruct(target); err != nil {
		return apperr.New(apperr.CodeBadInput, err.Error())
	}
	return nil
}

// getIntParam extracts an integer query parameter with a default.
func getIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

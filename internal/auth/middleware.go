// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package auth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/logging"
	"github.com/marqueehq/marquee/internal/metrics"
	"github.com/marqueehq/marquee/internal/models"
)

type contextKey string

// IdentityContextKey stores the authenticated *Identity in the request context.
const IdentityContextKey contextKey = "identity"

// maxBodyBytes caps how much request body the middleware buffers when
// probing for the shared-secret credential form.
const maxBodyBytes = 1 << 20 // 1MB

// csrfExemptMethods are safe methods per RFC 7231.
var csrfExemptMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// Middleware enforces authentication, lockout, and CSRF for protected routes.
type Middleware struct {
	validator *Validator
	lockouts  *LockoutManager
	csrf      *CSRFManager

	// csrfExemptPaths are state-changing endpoints that do not consume a
	// CSRF token: the token issue endpoint itself and client telemetry.
	csrfExemptPaths map[string]bool
}

// NewMiddleware creates the auth middleware.
func NewMiddleware(validator *Validator, lockouts *LockoutManager, csrf *CSRFManager, csrfExemptPaths []string) *Middleware {
	exempt := make(map[string]bool, len(csrfExemptPaths))
	for _, p := range csrfExemptPaths {
		exempt[p] = true
	}
	return &Middleware{
		validator:       validator,
		lockouts:        lockouts,
		csrf:            csrf,
		csrfExemptPaths: exempt,
	}
}

// ClientKey is the rate-limiter key function: requests are bucketed by the
// same client identifier the lockout tracker uses.
func (m *Middleware) ClientKey(r *http.Request) (string, error) {
	return m.validator.ClientID(r), nil
}

// Authenticate enforces credentials, lockout, and (for state-changing
// methods) single-use CSRF tokens. The authenticated Identity is stored in
// the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		clientID := m.validator.ClientID(r)

		locked, remaining, err := m.lockouts.CheckLocked(ctx, clientID)
		if err != nil {
			m.respondAuthError(ctx, w, apperr.Wrap(apperr.CodeInternal, "lockout check failed", err))
			return
		}
		if locked {
			logging.Ctx(ctx).Warn().Str("client_id", clientID).Dur("remaining", remaining).Msg("locked-out client rejected")
			w.Header().Set("Retry-After", RetryAfter(remaining))
			m.respondAuthError(ctx, w, apperr.New(apperr.CodeUnauthorized, "client is temporarily locked out"))
			return
		}

		body, err := bufferBody(r)
		if err != nil {
			m.respondAuthError(ctx, w, apperr.New(apperr.CodeBadInput, "request body too large or unreadable"))
			return
		}

		identity, err := m.validator.Validate(r, body)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				metrics.AuthFailures.WithLabelValues("invalid_credentials").Inc()
				// Serialized failure accounting; errors here must not mask
				// the credential failure.
				nowLocked, lockErr := m.lockouts.RecordFailure(ctx, clientID)
				if lockErr != nil {
					logging.Ctx(ctx).Error().Err(lockErr).Str("client_id", clientID).Msg("failure accounting error")
				}
				if nowLocked {
					metrics.Lockouts.Inc()
				}
			} else {
				metrics.AuthFailures.WithLabelValues("no_credentials").Inc()
			}
			m.respondAuthError(ctx, w, apperr.New(apperr.CodeUnauthorized, "authentication required"))
			return
		}

		if err := m.lockouts.RecordSuccess(ctx, clientID); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("client_id", clientID).Msg("failure counter reset error")
		}

		if !csrfExemptMethods[r.Method] && !m.csrfExemptPaths[r.URL.Path] {
			if err := m.csrf.Consume(ctx, r.Header.Get(CSRFHeader), identity.ClientID); err != nil {
				m.respondCSRFError(ctx, w, err)
				return
			}
		}

		ctx = context.WithValue(ctx, IdentityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// respondCSRFError maps CSRF failures to the envelope.
func (m *Middleware) respondCSRFError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCSRFTokenMissing):
		m.respondAuthError(ctx, w, apperr.New(apperr.CodeUnauthorized, "CSRF token required for state-changing requests"))
	case errors.Is(err, ErrCSRFTokenExpired):
		m.respondAuthError(ctx, w, apperr.New(apperr.CodeUnauthorized, "CSRF token expired"))
	case errors.Is(err, ErrCSRFTokenInvalid):
		m.respondAuthError(ctx, w, apperr.New(apperr.CodeUnauthorized, "CSRF token invalid or already used"))
	default:
		m.respondAuthError(ctx, w, apperr.From(err))
	}
}

// respondAuthError writes a failure envelope without depending on the api
// package (which imports this one).
func (m *Middleware) respondAuthError(ctx context.Context, w http.ResponseWriter, appErr *apperr.Error) {
	if appErr.Err != nil {
		logging.Ctx(ctx).Error().Err(appErr.Err).Str("code", string(appErr.Code)).Msg("auth middleware error")
	}

	envelope := models.Envelope{
		OK:            false,
		Code:          string(appErr.Code),
		Message:       appErr.Message,
		CorrelationID: logging.CorrelationIDFromContext(ctx),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus())
	_, _ = w.Write(data)
}

// IdentityFromContext retrieves the authenticated identity, nil if absent.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(IdentityContextKey).(*Identity); ok {
		return id
	}
	return nil
}

// bufferBody reads and restores the request body so both the credential
// probe and the handler can consume it.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	if len(body) > maxBodyBytes {
		return nil, errors.New("request body exceeds limit")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// RetryAfter formats a lockout or rate-limit wait as whole seconds for the
// Retry-After response header.
func RetryAfter(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

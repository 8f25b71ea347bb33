// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package auth validates inbound credentials, enforces single-use CSRF
// tokens on state-changing requests, and locks out client identifiers
// after repeated authentication failures.
//
// Three credential forms are accepted, any one sufficing:
//
//   - Authorization: Bearer <jwt> (HS256, brand claim)
//   - a named API-key header (X-API-Key by default)
//   - a shared per-brand secret carried as a "secret" field in the JSON body
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/marqueehq/marquee/internal/config"
)

// Authentication errors.
var (
	// ErrNoCredentials indicates no recognized credential was presented.
	ErrNoCredentials = errors.New("no credentials presented")

	// ErrInvalidCredentials indicates a credential was presented but failed
	// validation.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLockedOut indicates the client identifier is under lockout.
	ErrLockedOut = errors.New("client identifier is locked out")
)

// Method names the credential form that satisfied authentication.
type Method string

const (
	MethodBearer      Method = "bearer"
	MethodAPIKey      Method = "api_key"
	MethodBrandSecret Method = "brand_secret"
)

// Identity is the authenticated caller.
type Identity struct {
	// ClientID identifies the caller for rate limiting and lockout.
	ClientID string

	// BrandID scopes the caller to a brand, when the credential carries one.
	BrandID string

	// Method is the credential form that succeeded.
	Method Method
}

// Claims are the bearer-token claims.
type Claims struct {
	BrandID string `json:"brand"`
	jwt.RegisteredClaims
}

// secretBody is the minimal body shape probed for the shared-secret form.
type secretBody struct {
	BrandID string `json:"brandId"`
	Secret  string `json:"secret"`
}

// Validator validates the three credential forms against static config.
type Validator struct {
	cfg config.AuthConfig
}

// NewValidator creates a credential validator from auth configuration.
func NewValidator(cfg config.AuthConfig) *Validator {
	return &Validator{cfg: cfg}
}

// ClientID derives the rate-limit/lockout key for a request without
// validating anything: API key if present, else bearer subject (unverified,
// used only as a bucketing key), else the remote IP.
func (v *Validator) ClientID(r *http.Request) string {
	if key := r.Header.Get(v.cfg.APIKeyHeader); key != "" {
		return v.apiKeyClient(key)
	}
	if token := bearerToken(r); token != "" {
		if sub := unverifiedSubject(token); sub != "" {
			return "sub:" + sub
		}
	}
	// RealIP middleware has already resolved X-Forwarded-For.
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return "ip:" + host
}

// Validate checks the request's credentials. body is the already-read
// request body (may be nil for bodyless requests); it is only probed for
// the shared-secret form.
func (v *Validator) Validate(r *http.Request, body []byte) (*Identity, error) {
	presented := false

	if token := bearerToken(r); token != "" {
		presented = true
		if id, err := v.validateBearer(token); err == nil {
			return id, nil
		}
	}

	if key := r.Header.Get(v.cfg.APIKeyHeader); key != "" {
		presented = true
		if id, err := v.validateAPIKey(key); err == nil {
			return id, nil
		}
	}

	if len(body) > 0 {
		if id, ok, err := v.validateBrandSecret(body); err == nil && id != nil {
			return id, nil
		} else if ok {
			presented = true
		}
	}

	if presented {
		return nil, ErrInvalidCredentials
	}
	return nil, ErrNoCredentials
}

// validateBearer validates an HS256 bearer token.
func (v *Validator) validateBearer(tokenString string) (*Identity, error) {
	if v.cfg.JWTSecret == "" {
		return nil, ErrInvalidCredentials
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidCredentials
	}

	return &Identity{
		ClientID: "sub:" + claims.Subject,
		BrandID:  claims.BrandID,
		Method:   MethodBearer,
	}, nil
}

// apiKeyClient buckets an API key by its configured client identifier.
// Unknown keys bucket by digest so lockout and rate limiting still work
// per key without the raw secret ever reaching logs or metric labels.
func (v *Validator) apiKeyClient(key string) string {
	for configured, clientID := range v.cfg.APIKeys {
		if clientID != "" && subtle.ConstantTimeCompare([]byte(configured), []byte(key)) == 1 {
			return "key:" + clientID
		}
	}
	sum := sha256.Sum256([]byte(key))
	return "key:" + hex.EncodeToString(sum[:8])
}

// validateAPIKey checks the header credential against configured keys.
func (v *Validator) validateAPIKey(key string) (*Identity, error) {
	for configured, clientID := range v.cfg.APIKeys {
		if clientID != "" && subtle.ConstantTimeCompare([]byte(configured), []byte(key)) == 1 {
			return &Identity{
				ClientID: "key:" + clientID,
				Method:   MethodAPIKey,
			}, nil
		}
	}
	return nil, ErrInvalidCredentials
}

// validateBrandSecret probes the body for {brandId, secret} and checks it
// against the per-brand shared secrets. The second return reports whether
// a secret field was present at all (for failure accounting).
func (v *Validator) validateBrandSecret(body []byte) (*Identity, bool, error) {
	var probe secretBody
	if err := json.Unmarshal(body, &probe); err != nil || probe.Secret == "" {
		return nil, false, nil
	}

	configured, ok := v.cfg.BrandSecrets[probe.BrandID]
	if !ok {
		return nil, true, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(configured), []byte(probe.Secret)) != 1 {
		return nil, true, ErrInvalidCredentials
	}

	return &Identity{
		ClientID: "brand:" + probe.BrandID,
		BrandID:  probe.BrandID,
		Method:   MethodBrandSecret,
	}, true, nil
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// unverifiedSubject decodes the token payload without signature validation,
// solely to derive a stable bucketing key. Never used for authentication.
func unverifiedSubject(tokenString string) string {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return ""
	}
	if claims, ok := token.Claims.(*Claims); ok {
		return claims.Subject
	}
	return ""
}

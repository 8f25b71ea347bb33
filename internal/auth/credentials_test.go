// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package auth

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marqueehq/marquee/internal/config"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:    testJWTSecret,
		APIKeyHeader: "X-API-Key",
		APIKeys:      map[string]string{"k-valid": "partner-a"},
		BrandSecrets: map[string]string{"acme": "s3cret"},
	}
}

func signToken(t *testing.T, secret, subject, brand string, expires time.Time) string {
	t.Helper()
	claims := Claims{
		BrandID: brand,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestValidateBearer(t *testing.T) {
	v := NewValidator(testAuthConfig())

	r := httptest.NewRequest("GET", "/api/v1/events", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, testJWTSecret, "user-1", "acme", time.Now().Add(time.Hour)))

	id, err := v.Validate(r, nil)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if id.Method != MethodBearer || id.BrandID != "acme" || id.ClientID != "sub:user-1" {
		t.Errorf("Validate() identity = %+v", id)
	}
}

func TestValidateBearerRejectsBadSignature(t *testing.T) {
	v := NewValidator(testAuthConfig())

	r := httptest.NewRequest("GET", "/api/v1/events", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret-wrong-secret-wrong!", "user-1", "acme", time.Now().Add(time.Hour)))

	if _, err := v.Validate(r, nil); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Validate() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateBearerRejectsExpired(t *testing.T) {
	v := NewValidator(testAuthConfig())

	r := httptest.NewRequest("GET", "/api/v1/events", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, testJWTSecret, "user-1", "acme", time.Now().Add(-time.Minute)))

	if _, err := v.Validate(r, nil); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Validate() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator(testAuthConfig())

	r := httptest.NewRequest("GET", "/api/v1/events", nil)
	r.Header.Set("X-API-Key", "k-valid")

	id, err := v.Validate(r, nil)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if id.Method != MethodAPIKey || id.BrandID != "" {
		t.Errorf("Validate() identity = %+v, api keys carry no brand scope", id)
	}
	if id.ClientID != "key:partner-a" {
		t.Errorf("Validate() ClientID = %q, want the configured identifier key:partner-a", id.ClientID)
	}
}

func TestValidateAPIKeyRejectsUnknown(t *testing.T) {
	v := NewValidator(testAuthConfig())

	r := httptest.NewRequest("GET", "/api/v1/events", nil)
	r.Header.Set("X-API-Key", "k-bogus")

	if _, err := v.Validate(r, nil); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Validate() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateBrandSecret(t *testing.T) {
	v := NewValidator(testAuthConfig())

	r := httptest.NewRequest("POST", "/api/v1/events", strings.NewReader("{}"))
	body := []byte(`{"brandId":"acme","secret":"s3cret","name":"Launch"}`)

	id, err := v.Validate(r, body)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if id.Method != MethodBrandSecret || id.BrandID != "acme" || id.ClientID != "brand:acme" {
		t.Errorf("Validate() identity = %+v", id)
	}
}

func TestValidateBrandSecretRejectsWrongSecret(t *testing.T) {
	v := NewValidator(testAuthConfig())

	r := httptest.NewRequest("POST", "/api/v1/events", nil)
	if _, err := v.Validate(r, []byte(`{"brandId":"acme","secret":"guess"}`)); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Validate() error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := v.Validate(r, []byte(`{"brandId":"ghost","secret":"s3cret"}`)); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Validate() unknown brand error = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateNoCredentials(t *testing.T) {
	v := NewValidator(testAuthConfig())

	r := httptest.NewRequest("GET", "/api/v1/events", nil)
	if _, err := v.Validate(r, []byte(`{"name":"Launch"}`)); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Validate() error = %v, want ErrNoCredentials", err)
	}
}

func TestClientIDBuckets(t *testing.T) {
	v := NewValidator(testAuthConfig())

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-API-Key", "k-valid")
	if got := v.ClientID(r); got != "key:partner-a" {
		t.Errorf("ClientID() = %q, want key:partner-a", got)
	}

	// Unknown keys bucket per key without exposing the raw secret.
	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-API-Key", "k-bogus")
	got := v.ClientID(r)
	if !strings.HasPrefix(got, "key:") || strings.Contains(got, "k-bogus") {
		t.Errorf("ClientID() = %q, want a key: digest not containing the raw key", got)
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, testJWTSecret, "user-1", "acme", time.Now().Add(time.Hour)))
	if got := v.ClientID(r); got != "sub:user-1" {
		t.Errorf("ClientID() = %q, want sub:user-1", got)
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.9:4242"
	if got := v.ClientID(r); got != "ip:203.0.113.9" {
		t.Errorf("ClientID() = %q, want ip:203.0.113.9", got)
	}
}

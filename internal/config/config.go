// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package config loads gateway configuration via Koanf v2 with layered
// sources (highest priority wins): environment variables, YAML config file,
// built-in defaults. The resulting Config is immutable after construction
// and passed into the router at wiring time; nothing mutates it at runtime.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/marqueehq/marquee/internal/validation"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/marquee/config.yaml",
	"/etc/marquee/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "MARQUEE_CONFIG_PATH"

// envPrefix namespaces all environment overrides, e.g.
// MARQUEE_SERVER_PORT=8080 -> server.port.
const envPrefix = "MARQUEE_"

// Backend modes.
const (
	ModeLegacy = "legacy"
	ModeNative = "native"
	ModeMixed  = "mixed"
)

// Config is the root configuration object.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Backend   BackendConfig   `koanf:"backend"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Store     StoreConfig     `koanf:"store"`
	Logging   LoggingConfig   `koanf:"logging"`
	Bundle    BundleConfig    `koanf:"bundle"`
	Form      FormConfig      `koanf:"form"`
}

// ServerConfig holds the HTTP server and link-building settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`

	// Timeout is the overall per-request budget. Every upstream call uses a
	// timeout strictly below this so classification beats cancellation.
	Timeout time.Duration `koanf:"timeout"`

	// BaseURL is the public base used by the hydrator's link templates.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// CORSOrigins lists allowed CORS origins. Empty disables cross-origin access.
	CORSOrigins []string `koanf:"cors_origins"`
}

// BackendConfig selects which adapter serves each operation.
type BackendConfig struct {
	// Mode is legacy, native, or mixed.
	Mode string `koanf:"mode" validate:"oneof=legacy native mixed"`

	// Routes maps operation names (events.get, events.list, events.create,
	// events.update, events.delete) to a backend. Consulted only in mixed
	// mode; a missing entry is an INTERNAL config error at request time.
	Routes map[string]string `koanf:"routes"`

	// LegacyURL is the base URL of the legacy runtime service.
	LegacyURL string `koanf:"legacy_url" validate:"omitempty,url"`

	// LegacyTimeout bounds each legacy call; must stay below Server.Timeout.
	LegacyTimeout time.Duration `koanf:"legacy_timeout"`

	// BreakerFailures is the consecutive-failure count that opens the
	// legacy circuit breaker; BreakerCooldown is the open period.
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

// AuthConfig holds the three credential forms plus CSRF and lockout tuning.
type AuthConfig struct {
	// BrandSecrets maps brandId -> shared secret (body-field credential).
	BrandSecrets map[string]string `koanf:"brand_secrets"`

	// JWTSecret signs/validates bearer tokens (HS256). 32+ chars.
	JWTSecret string `koanf:"jwt_secret" validate:"omitempty,min=32"`

	// APIKeys maps api key -> client identifier (header credential).
	APIKeys map[string]string `koanf:"api_keys"`

	// APIKeyHeader is the header carrying the API key.
	APIKeyHeader string `koanf:"api_key_header"`

	// CSRFTokenTTL bounds how long an issued CSRF token may be spent.
	CSRFTokenTTL time.Duration `koanf:"csrf_token_ttl"`

	// MaxFailures is the consecutive-failure count that triggers lockout;
	// LockoutDuration is how long the client identifier stays locked.
	MaxFailures     int           `koanf:"max_failures" validate:"min=1"`
	LockoutDuration time.Duration `koanf:"lockout_duration"`

	// LockTimeout bounds named-lock acquisition for counters and tokens.
	LockTimeout time.Duration `koanf:"lock_timeout"`
}

// RateLimitConfig tunes the sliding-window limiter.
type RateLimitConfig struct {
	Requests int           `koanf:"requests" validate:"min=1"`
	Window   time.Duration `koanf:"window"`
	Disabled bool          `koanf:"disabled"`
}

// StoreConfig locates the row store.
type StoreConfig struct {
	// Path is the BadgerDB directory. Empty means in-memory (tests only).
	Path string `koanf:"path"`

	// WriteLockTimeout bounds per-row named-lock acquisition.
	WriteLockTimeout time.Duration `koanf:"write_lock_timeout"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// BundleConfig holds per-surface assembly extras.
type BundleConfig struct {
	// DisplayRotationSeconds is the venue display's rotation interval.
	DisplayRotationSeconds int `koanf:"display_rotation_seconds" validate:"min=1"`

	// PosterPageSize and PosterMarginMM are print hints for the poster surface.
	PosterPageSize string `koanf:"poster_page_size"`
	PosterMarginMM int    `koanf:"poster_margin_mm" validate:"min=0"`
}

// FormConfig wires the external form/registration collaborator.
type FormConfig struct {
	Enabled bool          `koanf:"enabled"`
	BaseURL string        `koanf:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `koanf:"timeout"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Timeout:     30 * time.Second,
			BaseURL:     "http://localhost:8080",
			CORSOrigins: []string{},
		},
		Backend: BackendConfig{
			Mode:            ModeNative,
			Routes:          map[string]string{},
			LegacyURL:       "",
			LegacyTimeout:   10 * time.Second,
			BreakerFailures: 3,
			BreakerCooldown: 60 * time.Second,
		},
		Auth: AuthConfig{
			BrandSecrets:    map[string]string{},
			JWTSecret:       "",
			APIKeys:         map[string]string{},
			APIKeyHeader:    "X-API-Key",
			CSRFTokenTTL:    time.Hour,
			MaxFailures:     5,
			LockoutDuration: 15 * time.Minute,
			LockTimeout:     2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Requests: 10,
			Window:   60 * time.Second,
			Disabled: false,
		},
		Store: StoreConfig{
			Path:             "/data/marquee",
			WriteLockTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Bundle: BundleConfig{
			DisplayRotationSeconds: 15,
			PosterPageSize:         "A3",
			PosterMarginMM:         10,
		},
		Form: FormConfig{
			Enabled: false,
			BaseURL: "",
			Timeout: 10 * time.Second,
		},
	}
}

// Load loads configuration with layered sources: defaults, then an optional
// YAML file, then MARQUEE_* environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// MARQUEE_BACKEND_LEGACY_URL -> backend.legacy_url requires knowing where
	// section names end, so transform against the known top-level sections.
	envProvider := env.Provider(envPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// topLevelSections maps the env-style section prefix to its koanf path.
// Longest prefixes are matched first.
var topLevelSections = []string{
	"RATE_LIMIT", "SERVER", "BACKEND", "AUTH", "STORE", "LOGGING", "BUNDLE", "FORM",
}

// envTransform converts MARQUEE_SECTION_SOME_KEY to section.some_key.
func envTransform(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	for _, section := range topLevelSections {
		if strings.HasPrefix(s, section+"_") {
			key := strings.ToLower(strings.TrimPrefix(s, section+"_"))
			return strings.ToLower(section) + "." + key
		}
	}
	return strings.ToLower(s)
}

// findConfigFile locates the config file via env override or default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks structural validity plus the cross-field rules that
// validate tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	switch c.Backend.Mode {
	case ModeLegacy:
		if c.Backend.LegacyURL == "" {
			return fmt.Errorf("backend.legacy_url is required in legacy mode")
		}
	case ModeMixed:
		if c.Backend.LegacyURL == "" {
			return fmt.Errorf("backend.legacy_url is required in mixed mode")
		}
		for op, backend := range c.Backend.Routes {
			if backend != ModeLegacy && backend != ModeNative {
				return fmt.Errorf("backend.routes[%s]: unknown backend %q", op, backend)
			}
		}
	}

	if c.Backend.LegacyTimeout >= c.Server.Timeout {
		return fmt.Errorf("backend.legacy_timeout (%s) must be below server.timeout (%s)",
			c.Backend.LegacyTimeout, c.Server.Timeout)
	}

	if len(c.Auth.BrandSecrets) == 0 && c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth: at least one credential form must be configured")
	}

	return nil
}

// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package backend defines the adapter interface shared by the two
// interchangeable event backends (legacy runtime over HTTP, native row
// store) and the mode selector that picks exactly one per operation.
//
// Selection is configuration-driven and deterministic: the gateway never
// falls back from one backend to the other on failure, since silent
// fallback would hide which backend is authoritative during a migration.
package backend

import (
	"context"
	"fmt"

	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/config"
	"github.com/marqueehq/marquee/internal/models"
)

// Operation names used by the mixed-mode route table.
const (
	OpGet    = "events.get"
	OpList   = "events.list"
	OpCreate = "events.create"
	OpUpdate = "events.update"
	OpDelete = "events.delete"
)

// Filter narrows a list scan.
type Filter struct {
	BrandID string
	Limit   int
	Cursor  string
}

// Page reports list pagination state.
type Page struct {
	HasMore    bool
	NextCursor string
}

// Adapter is the common interface of both backends. Returned events are
// raw records: derived fields (links, qr) are absent until hydration.
// All failures are classified *apperr.Error values.
type Adapter interface {
	// Name identifies the backend in diagnostic headers and logs.
	Name() string

	Get(ctx context.Context, brandID, id string) (*models.Event, error)
	List(ctx context.Context, filter Filter) ([]models.Event, *Page, error)
	Create(ctx context.Context, input models.EventInput) (*models.Event, error)
	Update(ctx context.Context, brandID, id string, patch models.EventPatch, expectedVersion string) (*models.Event, error)
	Delete(ctx context.Context, brandID, id string) error
}

// Selector picks the adapter serving a given operation from immutable
// configuration. In mixed mode every operation must appear in the route
// table; a missing entry is an INTERNAL config error, never a crash or a
// guess.
type Selector struct {
	mode   string
	routes map[string]string
	legacy Adapter
	native Adapter
}

// NewSelector builds the mode selector. legacy may be nil in native mode
// (and vice versa); selecting an unconfigured backend is INTERNAL.
func NewSelector(cfg config.BackendConfig, legacy, native Adapter) *Selector {
	return &Selector{
		mode:   cfg.Mode,
		routes: cfg.Routes,
		legacy: legacy,
		native: native,
	}
}

// For returns the adapter serving op.
func (s *Selector) For(op string) (Adapter, error) {
	switch s.mode {
	case config.ModeLegacy:
		return s.adapter(config.ModeLegacy, op)
	case config.ModeNative:
		return s.adapter(config.ModeNative, op)
	case config.ModeMixed:
		backendName, ok := s.routes[op]
		if !ok {
			return nil, apperr.Newf(apperr.CodeInternal, "mixed mode route table has no entry for %s", op)
		}
		return s.adapter(backendName, op)
	default:
		return nil, apperr.Newf(apperr.CodeInternal, "unknown backend mode %q", s.mode)
	}
}

// adapter resolves a backend name to its adapter instance.
func (s *Selector) adapter(name, op string) (Adapter, error) {
	switch name {
	case config.ModeLegacy:
		if s.legacy == nil {
			return nil, apperr.Newf(apperr.CodeInternal, "legacy backend selected for %s but not configured", op)
		}
		return s.legacy, nil
	case config.ModeNative:
		if s.native == nil {
			return nil, apperr.Newf(apperr.CodeInternal, "native backend selected for %s but not configured", op)
		}
		return s.native, nil
	default:
		return nil, apperr.New(apperr.CodeInternal, fmt.Sprintf("unknown backend %q for %s", name, op))
	}
}

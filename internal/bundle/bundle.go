// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package bundle assembles per-surface response envelopes from a canonical
// Event. Full-event surfaces (admin, public, display, poster) receive the
// whole canonical Event plus surface extras; thin-DTO surfaces (sponsor,
// report) receive only the fixed {id, name, startDateISO, venue, templateId}
// subset. The thin subset is a data-minimization policy: the assembler
// rejects any attempt to widen it.
package bundle

import (
	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/config"
	"github.com/marqueehq/marquee/internal/models"
)

// thinReservedKeys are the thin DTO's own field names; extras may not
// shadow them on thin surfaces.
var thinReservedKeys = map[string]bool{
	"id":           true,
	"name":         true,
	"startDateISO": true,
	"venue":        true,
	"templateId":   true,
}

// Assembler builds Bundles from immutable surface configuration.
type Assembler struct {
	cfg     config.BundleConfig
	version string
}

// New creates a bundle assembler. version is the gateway build version
// reported in admin diagnostics.
func New(cfg config.BundleConfig, version string) *Assembler {
	return &Assembler{cfg: cfg, version: version}
}

// Assemble emits exactly one of the two documented Bundle shapes for
// surface. extras carries caller-supplied surface data (analytics
// aggregates for sponsor/report, backend diagnostics for admin) and is
// merged with the assembler's configured extras.
func (a *Assembler) Assemble(event *models.Event, surface models.Surface, extras map[string]interface{}) (*models.Bundle, error) {
	if !models.ValidSurface(surface) {
		return nil, apperr.Newf(apperr.CodeBadInput, "unknown surface %q", surface)
	}

	// One level of map merging so caller diagnostics join the configured
	// ones instead of replacing them.
	merged := a.surfaceExtras(surface)
	for key, value := range extras {
		if existing, ok := merged[key].(map[string]interface{}); ok {
			if addition, ok := value.(map[string]interface{}); ok {
				for k, v := range addition {
					existing[k] = v
				}
				continue
			}
		}
		merged[key] = value
	}

	if models.ThinDTOSurfaces[surface] {
		for key := range merged {
			if thinReservedKeys[key] {
				return nil, apperr.Newf(apperr.CodeInternal,
					"surface %q extras may not carry thin DTO field %q", surface, key)
			}
		}
		return &models.Bundle{
			Surface: surface,
			Event:   event.ThinDTO(),
			Extras:  emptyAsNil(merged),
		}, nil
	}

	return &models.Bundle{
		Surface: surface,
		Event:   *event,
		Extras:  emptyAsNil(merged),
	}, nil
}

// surfaceExtras returns the configured extras for a surface.
func (a *Assembler) surfaceExtras(surface models.Surface) map[string]interface{} {
	extras := make(map[string]interface{})
	switch surface {
	case models.SurfaceDisplay:
		extras["rotationSeconds"] = a.cfg.DisplayRotationSeconds
	case models.SurfacePoster:
		extras["printHints"] = map[string]interface{}{
			"pageSize": a.cfg.PosterPageSize,
			"marginMm": a.cfg.PosterMarginMM,
		}
	case models.SurfaceAdmin:
		extras["diagnostics"] = map[string]interface{}{
			"gatewayVersion": a.version,
		}
	}
	return extras
}

// emptyAsNil drops empty extras maps so bundles omit the field entirely.
func emptyAsNil(m map[string]interface{}) map[string]interface{} {
	if len(m) == 0 {
		return nil
	}
	return m
}

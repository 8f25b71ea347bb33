// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package bundle

import (
	"testing"

	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/config"
	"github.com/marqueehq/marquee/internal/models"
)

func testAssembler() *Assembler {
	return New(config.BundleConfig{
		DisplayRotationSeconds: 15,
		PosterPageSize:         "A3",
		PosterMarginMM:         10,
	}, "1.2.3")
}

func testEvent() *models.Event {
	return &models.Event{
		ID:           "ev-1",
		BrandID:      "acme",
		Slug:         "summer-bash",
		Name:         "Summer Bash",
		StartDateISO: "2026-09-12T18:00:00Z",
		Venue:        "Pier 9",
		TemplateID:   "tpl-7",
		SignupURL:    "https://forms.example.com/f/1",
		Sponsors:     []models.Sponsor{{ID: "sp-1", Name: "MegaCorp"}},
	}
}

func TestAssembleFullSurfaceCarriesWholeEvent(t *testing.T) {
	a := testAssembler()

	b, err := a.Assemble(testEvent(), models.SurfacePublic, nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	event, ok := b.Event.(models.Event)
	if !ok {
		t.Fatalf("Assemble() event type = %T, want models.Event", b.Event)
	}
	if len(event.Sponsors) != 1 {
		t.Error("Assemble() public surface lost the sponsor list")
	}
	if b.Extras != nil {
		t.Errorf("Assemble() public extras = %v, want none", b.Extras)
	}
}

func TestAssembleThinSurfaceStripsEvent(t *testing.T) {
	a := testAssembler()

	for _, surface := range []models.Surface{models.SurfaceSponsor, models.SurfaceReport} {
		b, err := a.Assemble(testEvent(), surface, nil)
		if err != nil {
			t.Fatalf("Assemble(%s) error = %v", surface, err)
		}
		dto, ok := b.Event.(models.ThinEventDTO)
		if !ok {
			t.Fatalf("Assemble(%s) event type = %T, want models.ThinEventDTO", surface, b.Event)
		}
		if dto.ID != "ev-1" || dto.Name != "Summer Bash" || dto.Venue != "Pier 9" || dto.TemplateID != "tpl-7" {
			t.Errorf("Assemble(%s) dto = %+v", surface, dto)
		}
	}
}

func TestAssembleSurfaceExtras(t *testing.T) {
	a := testAssembler()

	display, err := a.Assemble(testEvent(), models.SurfaceDisplay, nil)
	if err != nil {
		t.Fatalf("Assemble(display) error = %v", err)
	}
	if got := display.Extras["rotationSeconds"]; got != 15 {
		t.Errorf("display rotationSeconds = %v, want 15", got)
	}

	poster, err := a.Assemble(testEvent(), models.SurfacePoster, nil)
	if err != nil {
		t.Fatalf("Assemble(poster) error = %v", err)
	}
	hints, ok := poster.Extras["printHints"].(map[string]interface{})
	if !ok {
		t.Fatalf("poster printHints type = %T", poster.Extras["printHints"])
	}
	if hints["pageSize"] != "A3" {
		t.Errorf("poster pageSize = %v, want A3", hints["pageSize"])
	}

	admin, err := a.Assemble(testEvent(), models.SurfaceAdmin, nil)
	if err != nil {
		t.Fatalf("Assemble(admin) error = %v", err)
	}
	diag, ok := admin.Extras["diagnostics"].(map[string]interface{})
	if !ok {
		t.Fatalf("admin diagnostics type = %T", admin.Extras["diagnostics"])
	}
	if diag["gatewayVersion"] != "1.2.3" {
		t.Errorf("admin gatewayVersion = %v, want 1.2.3", diag["gatewayVersion"])
	}
}

func TestAssembleCallerExtrasMerged(t *testing.T) {
	a := testAssembler()

	b, err := a.Assemble(testEvent(), models.SurfaceSponsor, map[string]interface{}{
		"impressions": 42,
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if b.Extras["impressions"] != 42 {
		t.Errorf("Assemble() extras = %v, caller extra missing", b.Extras)
	}
}

func TestAssembleNestedDiagnosticsMerge(t *testing.T) {
	a := testAssembler()

	b, err := a.Assemble(testEvent(), models.SurfaceAdmin, map[string]interface{}{
		"diagnostics": map[string]interface{}{"backend": "native"},
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	diag, ok := b.Extras["diagnostics"].(map[string]interface{})
	if !ok {
		t.Fatalf("diagnostics type = %T", b.Extras["diagnostics"])
	}
	if diag["backend"] != "native" {
		t.Errorf("diagnostics backend = %v, want native", diag["backend"])
	}
	if diag["gatewayVersion"] != "1.2.3" {
		t.Errorf("diagnostics gatewayVersion = %v, caller extras must merge, not replace", diag["gatewayVersion"])
	}
}

func TestAssembleThinSurfaceRejectsReservedExtras(t *testing.T) {
	a := testAssembler()

	for _, key := range []string{"id", "name", "startDateISO", "venue", "templateId"} {
		_, err := a.Assemble(testEvent(), models.SurfaceReport, map[string]interface{}{key: "x"})
		if !apperr.IsCode(err, apperr.CodeInternal) {
			t.Errorf("Assemble() with reserved extra %q error = %v, want INTERNAL", key, err)
		}
	}
}

func TestAssembleFullSurfaceAllowsAnyExtras(t *testing.T) {
	a := testAssembler()

	b, err := a.Assemble(testEvent(), models.SurfaceAdmin, map[string]interface{}{"name": "shadowed"})
	if err != nil {
		t.Fatalf("Assemble() error = %v (reserved keys only bind thin surfaces)", err)
	}
	if b.Extras["name"] != "shadowed" {
		t.Error("Assemble() dropped caller extra on full surface")
	}
}

func TestAssembleUnknownSurface(t *testing.T) {
	a := testAssembler()

	_, err := a.Assemble(testEvent(), "billboard", nil)
	if !apperr.IsCode(err, apperr.CodeBadInput) {
		t.Errorf("Assemble() unknown surface error = %v, want BAD_INPUT", err)
	}
}

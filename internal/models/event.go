// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package models defines the core domain types shared across the gateway:
// the canonical Event, Sponsor, Bundle envelopes, analytics records, and
// the standard API response envelope.
package models

// Surface names the client surfaces an Event is served to. Admin, public,
// display and poster receive the full canonical Event; sponsor and report
// receive only the thin DTO subset.
type Surface string

const (
	SurfaceAdmin   Surface = "admin"
	SurfacePublic  Surface = "public"
	SurfaceDisplay Surface = "display"
	SurfacePoster  Surface = "poster"
	SurfaceSponsor Surface = "sponsor"
	SurfaceReport  Surface = "report"
)

// FullEventSurfaces lists surfaces that receive the whole canonical Event.
var FullEventSurfaces = map[Surface]bool{
	SurfaceAdmin:   true,
	SurfacePublic:  true,
	SurfaceDisplay: true,
	SurfacePoster:  true,
}

// ThinDTOSurfaces lists surfaces restricted to the fixed thin subset.
// This is a data-minimization policy, enforced by the bundle assembler.
var ThinDTOSurfaces = map[Surface]bool{
	SurfaceSponsor: true,
	SurfaceReport:  true,
}

// ValidSurface reports whether s names a known surface.
func ValidSurface(s Surface) bool {
	return FullEventSurfaces[s] || ThinDTOSurfaces[s]
}

// CTA is a call-to-action attached to an event, rendered per surface.
// Kind is one of "signup", "info", "custom".
type CTA struct {
	Label string `json:"label" validate:"required,max=120"`
	URL   string `json:"url" validate:"required,url"`
	Kind  string `json:"kind" validate:"required,oneof=signup info custom"`
}

// Sponsor references a sponsoring organization with per-surface placement flags.
type Sponsor struct {
	ID         string          `json:"id" validate:"required"`
	Name       string          `json:"name" validate:"required,max=200"`
	LogoURL    string          `json:"logoUrl,omitempty" validate:"omitempty,url"`
	LinkURL    string          `json:"linkUrl,omitempty" validate:"omitempty,url"`
	Tier       string          `json:"tier,omitempty"`
	Placements map[string]bool `json:"placements,omitempty"`
}

// Links holds the derived per-purpose URLs computed by the hydrator from
// (baseUrl, brandId, id). SignupURL mirrors the event's own signupUrl.
type Links struct {
	PublicURL  string `json:"publicUrl,omitempty"`
	DisplayURL string `json:"displayUrl,omitempty"`
	PosterURL  string `json:"posterUrl,omitempty"`
	SignupURL  string `json:"signupUrl,omitempty"`
}

// Link purposes, used as keys of the Event QR map.
const (
	LinkPurposePublic  = "public"
	LinkPurposeDisplay = "display"
	LinkPurposePoster  = "poster"
	LinkPurposeSignup  = "signup"
)

// Event is the canonical event representation. Raw store rows are never
// handed to callers: everything passes through the hydrator, which fills
// default settings and computes the derived Links and QR fields.
//
// Version is an opaque concurrency token regenerated on every write; writers
// must present the version they read, and a mismatch is a CONFLICT.
type Event struct {
	ID           string            `json:"id"`
	BrandID      string            `json:"brandId"`
	Slug         string            `json:"slug"`
	Name         string            `json:"name"`
	StartDateISO string            `json:"startDateISO"`
	Venue        string            `json:"venue"`
	SignupURL    string            `json:"signupUrl,omitempty"`
	TemplateID   string            `json:"templateId,omitempty"`
	CTAs         []CTA             `json:"ctas,omitempty"`
	Settings     map[string]bool   `json:"settings"`
	Sponsors     []Sponsor         `json:"sponsors,omitempty"`
	Links        Links             `json:"links"`
	QR           map[string]string `json:"qr,omitempty"`
	CreatedAtISO string            `json:"createdAtISO"`
	UpdatedAtISO string            `json:"updatedAtISO"`
	Version      string            `json:"version"`
}

// EventInput is the write-path payload for creating an event.
type EventInput struct {
	BrandID      string          `json:"brandId" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	StartDateISO string          `json:"startDateISO" validate:"required,rfc3339"`
	Venue        string          `json:"venue" validate:"required,max=200"`
	SignupURL    string          `json:"signupUrl,omitempty" validate:"omitempty,url"`
	TemplateID   string          `json:"templateId,omitempty" validate:"omitempty,max=64"`
	CTAs         []CTA           `json:"ctas,omitempty" validate:"omitempty,dive"`
	Settings     map[string]bool `json:"settings,omitempty"`
	Sponsors     []Sponsor       `json:"sponsors,omitempty" validate:"omitempty,dive"`
}

// EventPatch carries the mutable fields of an update. Nil pointers mean
// "leave unchanged"; the update path merges the patch onto a hydrated copy
// of the current event.
type EventPatch struct {
	Name         *string          `json:"name,omitempty" validate:"omitempty,max=200"`
	StartDateISO *string          `json:"startDateISO,omitempty" validate:"omitempty,rfc3339"`
	Venue        *string          `json:"venue,omitempty" validate:"omitempty,max=200"`
	SignupURL    *string          `json:"signupUrl,omitempty"`
	TemplateID   *string          `json:"templateId,omitempty" validate:"omitempty,max=64"`
	CTAs         *[]CTA           `json:"ctas,omitempty" validate:"omitempty,dive"`
	Settings     *map[string]bool `json:"settings,omitempty"`
	Sponsors     *[]Sponsor       `json:"sponsors,omitempty" validate:"omitempty,dive"`
}

// ThinEventDTO is the statically fixed subset exposed to thin-DTO surfaces
// (sponsor portal, shared report). No other event field may ever appear here.
type ThinEventDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	StartDateISO string `json:"startDateISO"`
	Venue        string `json:"venue"`
	TemplateID   string `json:"templateId,omitempty"`
}

// ThinDTO projects the canonical Event onto the fixed thin subset.
func (e *Event) ThinDTO() ThinEventDTO {
	return ThinEventDTO{
		ID:           e.ID,
		Name:         e.Name,
		StartDateISO: e.StartDateISO,
		Venue:        e.Venue,
		TemplateID:   e.TemplateID,
	}
}

// Bundle is a surface-tagged response envelope wrapping either the full
// canonical Event or the thin DTO, plus surface-specific extras.
type Bundle struct {
	Surface Surface                `json:"surface"`
	Event   interface{}            `json:"event"`
	Extras  map[string]interface{} `json:"extras,omitempty"`
}

// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marqueehq/marquee/internal/analytics"
	"github.com/marqueehq/marquee/internal/apperr"
	"github.com/marqueehq/marquee/internal/auth"
	"github.com/marqueehq/marquee/internal/backend"
	"github.com/marqueehq/marquee/internal/bundle"
	"github.com/marqueehq/marquee/internal/config"
	"github.com/marqueehq/marquee/internal/forms"
	"github.com/marqueehq/marquee/internal/hydrate"
	"github.com/marqueehq/marquee/internal/logging"
	"github.com/marqueehq/marquee/internal/models"
	"github.com/marqueehq/marquee/internal/shortlink"
	"github.com/marqueehq/marquee/internal/upstream"
)

// Diagnostic headers attached to event responses.
const (
	HeaderBackend    = "X-Backend"
	HeaderVersion    = "X-Marquee-Version"
	HeaderTotalMs    = "X-Total-Ms"
	HeaderUpstreamMs = "X-Upstream-Ms"
)

// Handler carries the wired services behind the HTTP surface.
type Handler struct {
	selector   *backend.Selector
	hydrator   *hydrate.Hydrator
	assembler  *bundle.Assembler
	analytics  *analytics.Service
	shortlinks *shortlink.Service
	csrf       *auth.CSRFManager
	forms      forms.Client
	cfg        *config.Config
	version    string
}

// NewHandler wires the handler. forms may be nil when the form collaborator
// is disabled.
func NewHandler(
	selector *backend.Selector,
	hydrator *hydrate.Hydrator,
	assembler *bundle.Assembler,
	analyticsSvc *analytics.Service,
	shortlinks *shortlink.Service,
	csrf *auth.CSRFManager,
	formsClient forms.Client,
	cfg *config.Config,
	version string,
) *Handler {
	return &Handler{
		selector:   selector,
		hydrator:   hydrator,
		assembler:  assembler,
		analytics:  analyticsSvc,
		shortlinks: shortlinks,
		csrf:       csrf,
		forms:      formsClient,
		cfg:        cfg,
		version:    version,
	}
}

// brandScope resolves the effective brand for a request. Credentials bound
// to a brand may only act within that brand; unscoped credentials (API keys)
// must name the brand explicitly.
func brandScope(r *http.Request, requested string) (string, error) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		return "", apperr.New(apperr.CodeUnauthorized, "authentication required")
	}
	if identity.BrandID != "" {
		if requested != "" && requested != identity.BrandID {
			return "", apperr.New(apperr.CodeUnauthorized, "credential is not scoped to the requested brand")
		}
		return identity.BrandID, nil
	}
	if requested == "" {
		return "", apperr.New(apperr.CodeBadInput, "brand parameter is required")
	}
	return requested, nil
}

// diagnostics stamps backend and timing headers onto the response. Call it
// before the first body write.
func (h *Handler) diagnostics(w http.ResponseWriter, adapterName string, start time.Time, timing *upstream.Timing) {
	w.Header().Set(HeaderBackend, adapterName)
	w.Header().Set(HeaderVersion, h.version)
	w.Header().Set(HeaderTotalMs, strconv.FormatInt(time.Since(start).Milliseconds(), 10))
	if timing != nil && timing.Calls > 0 {
		w.Header().Set(HeaderUpstreamMs, strconv.FormatInt(timing.UpstreamMillis, 10))
	}
}

// GetEvent fetches one event, hydrated.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	brandID, err := brandScope(r, r.URL.Query().Get("brand"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	adapter, err := h.selector.For(backend.OpGet)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx, timing := upstream.WithTiming(r.Context())
	event, err := adapter.Get(ctx, brandID, chi.URLParam(r, "id"))
	if err != nil {
		h.diagnostics(w, adapter.Name(), start, timing)
		respondError(w, r, err)
		return
	}

	hydrated := h.hydrator.Hydrate(*event)
	h.diagnostics(w, adapter.Name(), start, timing)
	respondValue(w, http.StatusOK, hydrated, nil)
}

// ListEvents fetches a page of events for the scoped brand, hydrated.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	brandID, err := brandScope(r, r.URL.Query().Get("brand"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	adapter, err := h.selector.For(backend.OpList)
	if err != nil {
		respondError(w, r, err)
		return
	}

	filter := backend.Filter{
		BrandID: brandID,
		Limit:   getIntParam(r, "limit", 20),
		Cursor:  r.URL.Query().Get("cursor"),
	}

	ctx, timing := upstream.WithTiming(r.Context())
	events, page, err := adapter.List(ctx, filter)
	if err != nil {
		h.diagnostics(w, adapter.Name(), start, timing)
		respondError(w, r, err)
		return
	}

	var pagination *models.PaginationInfo
	if page != nil {
		pagination = &models.PaginationInfo{
			Limit:      filter.Limit,
			HasMore:    page.HasMore,
			NextCursor: page.NextCursor,
		}
	}

	hydrated := h.hydrator.HydrateAll(events)
	h.diagnostics(w, adapter.Name(), start, timing)
	respondValue(w, http.StatusOK, hydrated, pagination)
}

// CreateEvent creates an event from validated input, provisions a signup
// form when a template is attached, and returns the hydrated result.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var input models.EventInput
	if err := decodeBody(r, &input); err != nil {
		respondError(w, r, err)
		return
	}

	brandID, err := brandScope(r, input.BrandID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	input.BrandID = brandID

	adapter, err := h.selector.For(backend.OpCreate)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx, timing := upstream.WithTiming(r.Context())
	event, err := adapter.Create(ctx, input)
	if err != nil {
		h.diagnostics(w, adapter.Name(), start, timing)
		respondError(w, r, err)
		return
	}

	event = h.provisionForm(r, adapter, event)

	hydrated := h.hydrator.Hydrate(*event)
	h.diagnostics(w, adapter.Name(), start, timing)
	respondValue(w, http.StatusCreated, hydrated, nil)
}

// provisionForm asks the form collaborator for a signup URL when the event
// carries a template but no signup link yet. Failures are logged, never
// fatal: the event already exists and the URL can be attached later.
func (h *Handler) provisionForm(r *http.Request, adapter backend.Adapter, event *models.Event) *models.Event {
	if h.forms == nil || !h.cfg.Form.Enabled {
		return event
	}
	if event.TemplateID == "" || event.SignupURL != "" {
		return event
	}

	log := logging.Ctx(r.Context())
	formURL, err := h.forms.CreateForm(r.Context(), event.ID, event.TemplateID)
	if err != nil {
		log.Warn().Err(err).Str("event_id", event.ID).Msg("form provisioning failed; continuing without signup url")
		return event
	}
	if !hydrate.IsAbsoluteURL(formURL) {
		log.Warn().Str("event_id", event.ID).Msg("form service returned a non-absolute url; ignoring")
		return event
	}

	// The provisioned form is stored both as the signup link and as a
	// signup CTA so surfaces that render CTA lists pick it up.
	ctas := append(append([]models.CTA(nil), event.CTAs...), models.CTA{
		Label: "Sign up",
		URL:   formURL,
		Kind:  "signup",
	})
	patch := models.EventPatch{SignupURL: &formURL, CTAs: &ctas}
	updated, err := adapter.Update(r.Context(), event.BrandID, event.ID, patch, event.Version)
	if err != nil {
		log.Warn().Err(err).Str("event_id", event.ID).Msg("attaching signup url failed; continuing")
		return event
	}
	return updated
}

// UpdateEvent applies a partial update under optimistic concurrency. The
// expected version comes from the If-Match header.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	brandID, err := brandScope(r, r.URL.Query().Get("brand"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	var patch models.EventPatch
	if err := decodeBody(r, &patch); err != nil {
		respondError(w, r, err)
		return
	}

	expectedVersion := r.Header.Get("If-Match")
	if expectedVersion == "" {
		respondError(w, r, apperr.New(apperr.CodeBadInput, "If-Match header with the current event version is required"))
		return
	}

	adapter, err := h.selector.For(backend.OpUpdate)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx, timing := upstream.WithTiming(r.Context())
	event, err := adapter.Update(ctx, brandID, chi.URLParam(r, "id"), patch, expectedVersion)
	if err != nil {
		h.diagnostics(w, adapter.Name(), start, timing)
		respondError(w, r, err)
		return
	}

	hydrated := h.hydrator.Hydrate(*event)
	h.diagnostics(w, adapter.Name(), start, timing)
	respondValue(w, http.StatusOK, hydrated, nil)
}

// DeleteEvent removes an event within the scoped brand.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	brandID, err := brandScope(r, r.URL.Query().Get("brand"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	adapter, err := h.selector.For(backend.OpDelete)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx, timing := upstream.WithTiming(r.Context())
	if err := adapter.Delete(ctx, brandID, chi.URLParam(r, "id")); err != nil {
		h.diagnostics(w, adapter.Name(), start, timing)
		respondError(w, r, err)
		return
	}

	h.diagnostics(w, adapter.Name(), start, timing)
	respondValue(w, http.StatusOK, map[string]string{"deleted": chi.URLParam(r, "id")}, nil)
}

// GetBundle assembles the per-surface payload for one event.
func (h *Handler) GetBundle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	brandID, err := brandScope(r, r.URL.Query().Get("brand"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	surface := models.Surface(r.URL.Query().Get("surface"))
	if surface == "" {
		respondError(w, r, apperr.New(apperr.CodeBadInput, "surface parameter is required"))
		return
	}

	adapter, err := h.selector.For(backend.OpGet)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx, timing := upstream.WithTiming(r.Context())
	event, err := adapter.Get(ctx, brandID, chi.URLParam(r, "id"))
	if err != nil {
		h.diagnostics(w, adapter.Name(), start, timing)
		respondError(w, r, err)
		return
	}

	extras := map[string]interface{}{}
	switch {
	case models.ThinDTOSurfaces[surface]:
		// Thin surfaces carry their aggregated analytics, optionally
		// scoped to one sponsor.
		summary, err := h.analytics.Aggregate(r.Context(), analytics.Query{
			EventID:   event.ID,
			SponsorID: r.URL.Query().Get("sponsorId"),
		})
		if err != nil {
			h.diagnostics(w, adapter.Name(), start, timing)
			respondError(w, r, err)
			return
		}
		extras["analytics"] = summary
	case surface == models.SurfaceAdmin:
		extras["diagnostics"] = map[string]interface{}{
			"backend": adapter.Name(),
		}
	}

	hydrated := h.hydrator.Hydrate(*event)
	assembled, err := h.assembler.Assemble(&hydrated, surface, extras)
	if err != nil {
		h.diagnostics(w, adapter.Name(), start, timing)
		respondError(w, r, err)
		return
	}

	h.diagnostics(w, adapter.Name(), start, timing)
	respondValue(w, http.StatusOK, assembled, nil)
}

// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package upstream

import "context"

type timingContextKey struct{}

// Timing collects per-request upstream wall time so the HTTP layer can
// surface it as a diagnostic header. Calls counts legacy calls made under
// the context: a sub-millisecond call still happened and must still be
// tagged, so presence is tracked separately from the accumulated millis.
type Timing struct {
	Calls          int
	UpstreamMillis int64
}

// WithTiming attaches a fresh Timing collector to the context. The returned
// pointer accumulates the upstream wall time of every legacy call made with
// the derived context.
func WithTiming(ctx context.Context) (context.Context, *Timing) {
	t := &Timing{}
	return context.WithValue(ctx, timingContextKey{}, t), t
}

// recordCall notes one legacy call and adds its millis to the context's
// collector, if any.
func recordCall(ctx context.Context, millis int64) {
	if t, ok := ctx.Value(timingContextKey{}).(*Timing); ok {
		t.Calls++
		t.UpstreamMillis += millis
	}
}

// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

package upstream

import (
	"context"
	"testing"
)

func TestTimingCountsSubMillisecondCalls(t *testing.T) {
	ctx, timing := WithTiming(context.Background())

	// A loopback call finishing in under a millisecond still happened.
	recordCall(ctx, 0)
	if timing.Calls != 1 {
		t.Errorf("Calls = %d, want 1", timing.Calls)
	}
	if timing.UpstreamMillis != 0 {
		t.Errorf("UpstreamMillis = %d, want 0", timing.UpstreamMillis)
	}
}

func TestTimingAccumulatesAcrossCalls(t *testing.T) {
	ctx, timing := WithTiming(context.Background())

	recordCall(ctx, 12)
	recordCall(ctx, 0)
	recordCall(ctx, 5)

	if timing.Calls != 3 {
		t.Errorf("Calls = %d, want 3", timing.Calls)
	}
	if timing.UpstreamMillis != 17 {
		t.Errorf("UpstreamMillis = %d, want 17", timing.UpstreamMillis)
	}
}

func TestRecordCallWithoutCollector(t *testing.T) {
	// A context with no collector must be a no-op, not a panic.
	recordCall(context.Background(), 3)
}

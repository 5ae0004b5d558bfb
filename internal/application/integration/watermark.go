package integration

import (
	"time"

	"github.com/erp/ordersync/internal/domain/integration"
)

// WatermarkPolicy derives the incremental sync window from per-store watermarks
type WatermarkPolicy struct {
	ActiveStoreWindow time.Duration
	Buffer            time.Duration
	IdleLookback      time.Duration
	ColdStartLookback time.Duration
}

// DefaultWatermarkPolicy returns the production thresholds
func DefaultWatermarkPolicy() WatermarkPolicy {
	return WatermarkPolicy{
		ActiveStoreWindow: 72 * time.Hour,
		Buffer:            2 * time.Hour,
		IdleLookback:      24 * time.Hour,
		ColdStartLookback: 30 * 24 * time.Hour,
	}
}

// Anchor returns the oldest latest-purchase among active stores. Stores whose
// newest order is older than ActiveStoreWindow are ignored. With history but
// no active store the anchor is now-IdleLookback; with no history at all it is
// now-ColdStartLookback.
func (p WatermarkPolicy) Anchor(now time.Time, marks []integration.StoreWatermark) time.Time {
	if len(marks) == 0 {
		return now.Add(-p.ColdStartLookback)
	}

	activeSince := now.Add(-p.ActiveStoreWindow)
	var anchor time.Time
	for _, m := range marks {
		if m.LastPurchase.Before(activeSince) {
			continue
		}
		if anchor.IsZero() || m.LastPurchase.Before(anchor) {
			anchor = m.LastPurchase
		}
	}
	if anchor.IsZero() {
		return now.Add(-p.IdleLookback)
	}
	return anchor
}

// Window returns the incremental window [anchor-Buffer, now)
func (p WatermarkPolicy) Window(now time.Time, marks []integration.StoreWatermark) integration.TimeRange {
	return integration.TimeRange{
		Start: p.Anchor(now, marks).Add(-p.Buffer).UTC(),
		End:   now.UTC(),
	}
}

package report

import (
	"fmt"
	"sort"
	"time"
)

// Window is one of the four comparison buckets of a sales rollup
type Window string

const (
	WindowToday     Window = "today"
	WindowYesterday Window = "yesterday"
	WindowLastWeek  Window = "last_week"
	WindowLastYear  Window = "last_year"
)

// AllWindows lists the buckets in display order
var AllWindows = []Window{WindowToday, WindowYesterday, WindowLastWeek, WindowLastYear}

// TimeRange is a half-open [Start, End) range in UTC
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// MarketplaceWindows holds the four UTC ranges of one marketplace at a given instant
type MarketplaceWindows struct {
	MarketplaceID string
	Offset        time.Duration
	Ranges        map[Window]TimeRange
}

// Span returns the smallest range covering every window
func (w MarketplaceWindows) Span() TimeRange {
	var span TimeRange
	for _, r := range w.Ranges {
		if span.Start.IsZero() || r.Start.Before(span.Start) {
			span.Start = r.Start
		}
		if r.End.After(span.End) {
			span.End = r.End
		}
	}
	return span
}

// defaultMarketplaceOffsets maps marketplace ids to fixed offsets (minutes east
// of UTC). Offsets approximate local standard time and ignore DST.
var defaultMarketplaceOffsets = map[string]int{
	"ATVPDKIKX0DER":  -8 * 60,   // US
	"A2EUQ1WTGCTBG2": -8 * 60,   // CA
	"A1AM78C64UM0Y8": -6 * 60,   // MX
	"A2Q3Y263D00KWC": -3 * 60,   // BR
	"A1F83G8C2ARO7P": 0,         // UK
	"A1PA6795UKMFR9": 60,        // DE
	"A13V1IB3VIYZZH": 60,        // FR
	"APJ6JRA9NG5V4":  60,        // IT
	"A1RKKUPIHCS9HS": 60,        // ES
	"A1805IZSGTT6HS": 60,        // NL
	"A2NODRKZP88ZB9": 60,        // SE
	"A1C3SOZRARQ6R3": 60,        // PL
	"AMEN7PMS3EDWL":  60,        // BE
	"ARBP9OOSHTCHU":  2 * 60,    // EG
	"A33AVAJ2PDY3EV": 3 * 60,    // TR
	"A17E79C6D8DWNP": 3 * 60,    // SA
	"A2VIGQ35RCS4UG": 4 * 60,    // AE
	"A21TJRUUN4KGV":  5*60 + 30, // IN
	"A19VAU5U5O7RUS": 8 * 60,    // SG
	"A1VC38T7YXB528": 9 * 60,    // JP
	"A39IBJ37TRP1C6": 10 * 60,   // AU
}

// MarketplaceZones is an immutable marketplace -> UTC offset table.
// Build it once at startup and share it.
type MarketplaceZones struct {
	offsets map[string]time.Duration
	ids     []string
}

// DefaultMarketplaceZones returns the built-in offset table
func DefaultMarketplaceZones() *MarketplaceZones {
	z, _ := NewMarketplaceZones(nil)
	return z
}

// NewMarketplaceZones builds the table from the defaults plus overrides
// (minutes east of UTC). Overrides outside +-14h are rejected.
func NewMarketplaceZones(overrides map[string]int) (*MarketplaceZones, error) {
	offsets := make(map[string]time.Duration, len(defaultMarketplaceOffsets)+len(overrides))
	for id, minutes := range defaultMarketplaceOffsets {
		offsets[id] = time.Duration(minutes) * time.Minute
	}
	for id, minutes := range overrides {
		if minutes < -14*60 || minutes > 14*60 {
			return nil, fmt.Errorf("report: offset %d minutes for marketplace %s out of range", minutes, id)
		}
		offsets[id] = time.Duration(minutes) * time.Minute
	}

	ids := make([]string, 0, len(offsets))
	for id := range offsets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &MarketplaceZones{offsets: offsets, ids: ids}, nil
}

// Offset returns the offset of a marketplace
func (z *MarketplaceZones) Offset(marketplaceID string) (time.Duration, bool) {
	off, ok := z.offsets[marketplaceID]
	return off, ok
}

// Known reports whether the marketplace is in the table
func (z *MarketplaceZones) Known(marketplaceID string) bool {
	_, ok := z.offsets[marketplaceID]
	return ok
}

// IDs returns the known marketplace ids in sorted order
func (z *MarketplaceZones) IDs() []string {
	out := make([]string, len(z.ids))
	copy(out, z.ids)
	return out
}

// LocalMidnight returns the UTC instant of the marketplace's local midnight on the day containing now
func (z *MarketplaceZones) LocalMidnight(marketplaceID string, now time.Time) (time.Time, bool) {
	off, ok := z.offsets[marketplaceID]
	if !ok {
		return time.Time{}, false
	}
	return localMidnight(now, off), true
}

// WindowsAt computes the four comparison ranges of a marketplace at instant now
func (z *MarketplaceZones) WindowsAt(marketplaceID string, now time.Time) (MarketplaceWindows, bool) {
	off, ok := z.offsets[marketplaceID]
	if !ok {
		return MarketplaceWindows{}, false
	}

	today := localMidnight(now, off)
	local := today.Add(off)
	lastYear := time.Date(local.Year()-1, local.Month(), local.Day(), 0, 0, 0, 0, time.UTC).Add(-off)
	day := 24 * time.Hour

	return MarketplaceWindows{
		MarketplaceID: marketplaceID,
		Offset:        off,
		Ranges: map[Window]TimeRange{
			WindowToday:     {Start: today, End: today.Add(day)},
			WindowYesterday: {Start: today.Add(-day), End: today},
			WindowLastWeek:  {Start: today.Add(-7 * day), End: today.Add(-6 * day)},
			WindowLastYear:  {Start: lastYear, End: lastYear.Add(day)},
		},
	}, true
}

// localMidnight shifts now into the fixed offset, truncates to the day and shifts back to UTC
func localMidnight(now time.Time, off time.Duration) time.Time {
	local := now.UTC().Add(off)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(-off)
}

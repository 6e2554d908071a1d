// Package slot models the one-hour market cycles the engine trades and the queue that feeds them.
package slot

import (
	"fmt"
	"sort"
	"time"
)

// Asset is one of the four instruments covered by every slot.
type Asset string

const (
	BTC Asset = "BTC"
	ETH Asset = "ETH"
	SOL Asset = "SOL"
	XRP Asset = "XRP"
)

// Assets lists the instruments in display order.
var Assets = []Asset{BTC, ETH, SOL, XRP}

// Side is the outcome token of a binary market.
type Side string

const (
	Yes Side = "YES"
	No  Side = "NO"
)

// Duration is the length of every slot window.
const Duration = time.Hour

// LabelLayout renders slot labels such as "2026-02-20 05:00 AM EST".
const LabelLayout = "2006-01-02 03:04 PM MST"

// Pair holds the two outcome token ids of an asset's market.
type Pair struct {
	YesID string
	NoID  string
	URL   string
}

// ID returns the token id for the side.
func (p Pair) ID(side Side) string {
	if side == No {
		return p.NoID
	}
	return p.YesID
}

// Complete reports whether both ids are present.
func (p Pair) Complete() bool { return p.YesID != "" && p.NoID != "" }

// Slot is an immutable one-hour window over the four assets.
type Slot struct {
	Label   string
	Start   time.Time
	End     time.Time
	Markets map[Asset]Pair
}

// New builds a slot whose end is one hour after start.
func New(label string, start time.Time, markets map[Asset]Pair) Slot {
	copied := make(map[Asset]Pair, len(markets))
	for asset, pair := range markets {
		copied[asset] = pair
	}
	return Slot{Label: label, Start: start, End: start.Add(Duration), Markets: copied}
}

// Valid reports whether every asset is present with both token ids.
func (s Slot) Valid() bool {
	for _, asset := range Assets {
		pair, ok := s.Markets[asset]
		if !ok || !pair.Complete() {
			return false
		}
	}
	return true
}

// ValidAssets counts assets whose pair is complete.
func (s Slot) ValidAssets() int {
	n := 0
	for _, asset := range Assets {
		if pair, ok := s.Markets[asset]; ok && pair.Complete() {
			n++
		}
	}
	return n
}

// Expired reports whether the slot window has ended at now.
func (s Slot) Expired(now time.Time) bool { return !now.Before(s.End) }

// Label renders the canonical label for a start time in loc.
func Label(start time.Time, loc *time.Location) string {
	return start.In(loc).Format(LabelLayout)
}

// ParseLabel reads a start time back out of a label. The clock reading is taken as
// wall time in loc; the zone abbreviation is not trusted, so "EST" labels written
// during daylight time still resolve to the right instant.
func ParseLabel(label string, loc *time.Location) (time.Time, error) {
	ts, err := time.Parse(LabelLayout, label)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot label %q: %w", label, err)
	}
	return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), 0, 0, loc), nil
}

// Sort orders slots ascending by start time, label breaking ties.
func Sort(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Label < slots[j].Label
		}
		return slots[i].Start.Before(slots[j].Start)
	})
}

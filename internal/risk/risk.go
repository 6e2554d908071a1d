// Package risk gates simulated entries before a trade is opened.
package risk

// Limits bounds a single trade. A zero MaxNotionalPerTrade disables the cap.
type Limits struct {
	MaxNotionalPerTrade float64
}

// Allow reports whether a trade at entry for notional may be opened.
func (l Limits) Allow(entry, notional float64) bool {
	if entry <= 0 || notional <= 0 {
		return false
	}
	if l.MaxNotionalPerTrade > 0 && notional > l.MaxNotionalPerTrade {
		return false
	}
	return true
}

// Shares returns the position size bought with notional at entry.
func Shares(notional, entry float64) float64 {
	if entry <= 0 {
		return 0
	}
	return notional / entry
}

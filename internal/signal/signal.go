// Package signal standardizes payloads shared between data ingestion and the trading engine.
package signal

import "time"

// Tick is a top-of-book observation for one outcome token.
type Tick struct {
	AssetID string
	Bid     float64
	Ask     float64
	Ts      time.Time
}

// Mid returns the midpoint of bid and ask.
func (t Tick) Mid() float64 { return (t.Bid + t.Ask) / 2 }

// Spread returns ask minus bid.
func (t Tick) Spread() float64 { return t.Ask - t.Bid }

// Quote is the last-known price state for an asset id.
type Quote struct {
	Bid float64
	Ask float64
	Mid float64
}

// Quote converts the tick into the last-known price state.
func (t Tick) Quote() Quote {
	return Quote{Bid: t.Bid, Ask: t.Ask, Mid: t.Mid()}
}

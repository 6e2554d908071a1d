// Package strategy decides which side of each market a slot trades.
package strategy

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"slotbot-go/internal/slot"
)

const defaultWorkers = 8

// Quoter returns a buy price for an outcome token, 0 when unavailable.
type Quoter interface {
	Price(ctx context.Context, assetID string, side slot.Side) float64
}

// Selection is the chosen side of one asset's market.
type Selection struct {
	Asset      slot.Asset
	Side       slot.Side
	AssetID    string
	EntryPrice float64
	YesPrice   float64
	NoPrice    float64
}

// Tradable reports whether a position can be opened at the entry price.
func (s Selection) Tradable() bool { return s.EntryPrice > 0 }

// Choose picks the more expensive side. Ties go to YES.
func Choose(yes, no float64) slot.Side {
	if yes >= no {
		return slot.Yes
	}
	return slot.No
}

// SideSelector quotes both sides of every market in a slot and keeps the favourite.
type SideSelector struct {
	log     zerolog.Logger
	quoter  Quoter
	workers int
}

// NewSideSelector constructs a selector fetching at most workers quotes at once.
func NewSideSelector(log zerolog.Logger, quoter Quoter, workers int) *SideSelector {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &SideSelector{log: log, quoter: quoter, workers: workers}
}

type quoteJob struct {
	asset slot.Asset
	side  slot.Side
	id    string
}

// Select returns one selection per asset present in the slot. It returns after
// every quote has completed or failed.
func (s *SideSelector) Select(ctx context.Context, sl slot.Slot) map[slot.Asset]Selection {
	var jobs []quoteJob
	for _, asset := range slot.Assets {
		pair, ok := sl.Markets[asset]
		if !ok {
			continue
		}
		jobs = append(jobs,
			quoteJob{asset: asset, side: slot.Yes, id: pair.YesID},
			quoteJob{asset: asset, side: slot.No, id: pair.NoID},
		)
	}

	prices := make([]float64, len(jobs))
	p := pool.New().WithMaxGoroutines(s.workers)
	for i, job := range jobs {
		i, job := i, job
		p.Go(func() {
			if job.id == "" {
				return
			}
			prices[i] = s.quoter.Price(ctx, job.id, job.side)
		})
	}
	p.Wait()

	out := make(map[slot.Asset]Selection, len(jobs)/2)
	for i := 0; i+1 < len(jobs); i += 2 {
		asset := jobs[i].asset
		yes, no := prices[i], prices[i+1]
		sel := Selection{Asset: asset, YesPrice: yes, NoPrice: no, Side: Choose(yes, no)}
		pair := sl.Markets[asset]
		sel.AssetID = pair.ID(sel.Side)
		if sel.Side == slot.Yes {
			sel.EntryPrice = yes
		} else {
			sel.EntryPrice = no
		}
		out[asset] = sel

		s.log.Info().
			Str("slot", sl.Label).
			Str("asset", string(asset)).
			Float64("yes", yes).
			Float64("no", no).
			Str("side", string(sel.Side)).
			Float64("entry", sel.EntryPrice).
			Msg("side selected")
	}
	return out
}

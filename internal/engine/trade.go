package engine

import (
	"sync/atomic"
	"time"

	"slotbot-go/internal/paper"
	"slotbot-go/internal/slot"
)

// Trade is one open position of a slot. Entry terms never change; the close
// transition happens at most once.
type Trade struct {
	ID          string
	SlotLabel   string
	Asset       slot.Asset
	Side        slot.Side
	AssetID     string
	EntryPrice  float64
	TargetPrice float64
	Shares      float64
	AmountUSD   float64
	OpenedAt    time.Time

	closed atomic.Bool

	// Guarded by the owning Book's lock.
	lastBid    float64
	lastAsk    float64
	ticked     bool
	excursion  paper.Excursion
	exitReason paper.ExitReason
	exitPrice  float64
}

func newTrade(id, slotLabel string, asset slot.Asset, side slot.Side, assetID string, entry, target, shares, amount float64, openedAt time.Time) *Trade {
	return &Trade{
		ID:          id,
		SlotLabel:   slotLabel,
		Asset:       asset,
		Side:        side,
		AssetID:     assetID,
		EntryPrice:  entry,
		TargetPrice: target,
		Shares:      shares,
		AmountUSD:   amount,
		OpenedAt:    openedAt,
		excursion:   paper.NewExcursion(entry),
	}
}

// Label is the display name such as "BTC YES".
func (t *Trade) Label() string { return string(t.Asset) + " " + string(t.Side) }

// Closed reports whether the trade has left the open state.
func (t *Trade) Closed() bool { return t.closed.Load() }

// tryClose performs the single open-to-closed transition. Only the first caller wins.
func (t *Trade) tryClose(reason paper.ExitReason, exit float64) bool {
	if !t.closed.CompareAndSwap(false, true) {
		return false
	}
	t.exitReason = reason
	t.exitPrice = exit
	return true
}

func (t *Trade) observe(bid, ask float64, at time.Time) {
	t.lastBid, t.lastAsk, t.ticked = bid, ask, true
	t.excursion.Observe((bid+ask)/2, at)
}

func (t *Trade) limitReached(bid float64) bool { return bid >= t.TargetPrice }

// expiryExit is the last known bid, or the entry when no tick was ever seen.
func (t *Trade) expiryExit() float64 {
	if t.ticked {
		return t.lastBid
	}
	return t.EntryPrice
}

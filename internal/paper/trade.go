package paper

import (
	"time"

	"github.com/shopspring/decimal"

	"slotbot-go/internal/slot"
)

// ExitReason names the transition that closed a trade.
type ExitReason string

const (
	ExitLimitHit ExitReason = "limit_hit"
	ExitExpired  ExitReason = "slot_expired"
)

// Outcome classifies a trade for reporting.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
)

// OpenParams describes a simulated BUY at slot activation.
type OpenParams struct {
	SlotLabel   string
	Asset       slot.Asset
	Side        slot.Side
	AssetID     string
	EntryPrice  float64
	YesPrice    float64
	NoPrice     float64
	Shares      float64
	TargetPrice float64
	AmountUSD   float64
}

// CloseResult is returned by the store when a trade closes.
type CloseResult struct {
	TradeID     string        `json:"trade_id"`
	SlotLabel   string        `json:"slot_label"`
	Asset       slot.Asset    `json:"asset"`
	Side        slot.Side     `json:"side"`
	EntryPrice  float64       `json:"entry_price"`
	ExitPrice   float64       `json:"exit_price"`
	Reason      ExitReason    `json:"exit_reason"`
	PnL         float64       `json:"pnl_usd"`
	PnLPct      float64       `json:"pnl_pct"`
	Outcome     Outcome       `json:"outcome"`
	FillLatency time.Duration `json:"fill_latency_ns"`
	EquityAfter float64       `json:"equity_after"`
	ClosedAt    time.Time     `json:"closed_at"`
}

// TradeRecord is the persisted view of a trade.
type TradeRecord struct {
	ID              string
	SlotLabel       string
	Asset           slot.Asset
	Side            slot.Side
	AssetID         string
	EntryTime       time.Time
	HourOfDay       int
	DayOfWeek       string
	EntryPrice      float64
	YesPrice        float64
	NoPrice         float64
	SideDelta       float64
	Shares          float64
	AmountUSD       float64
	TargetPrice     float64
	MinPrice        float64
	MaxPrice        float64
	MinPriceTime    *time.Time
	MaxPriceTime    *time.Time
	MaxAdversePct   float64
	MaxFavorablePct float64
	NumTicks        int
	ExitPrice       *float64
	ExitTime        *time.Time
	ExitReason      ExitReason
	FillLatency     time.Duration
	PnL             float64
	PnLPct          float64
	Outcome         Outcome
	EquityBefore    float64
	EquityAfter     float64
}

// Closed reports whether the trade has left the pending state.
func (r TradeRecord) Closed() bool { return r.Outcome != OutcomePending }

// TickRecord is one persisted quote observation for a trade.
type TickRecord struct {
	TradeID string
	Ts      time.Time
	Bid     float64
	Ask     float64
	Mid     float64
	Spread  float64
}

// Stats summarizes every trade in the store.
type Stats struct {
	TotalTrades  int
	Wins         int
	Losses       int
	Pending      int
	TotalPnL     float64
	AvgPnL       float64
	AvgLatency   time.Duration
	AvgAdverse   float64
	AvgFavorable float64
	Equity       float64
	WinRate      float64
}

// ComputePnL returns absolute and percentage P&L of selling shares bought at entry for exit.
func ComputePnL(entry, exit, shares float64) (float64, float64) {
	e := decimal.NewFromFloat(entry)
	x := decimal.NewFromFloat(exit)
	diff := x.Sub(e)
	pnl := diff.Mul(decimal.NewFromFloat(shares))
	pct := decimal.Zero
	if e.IsPositive() {
		pct = diff.Div(e).Mul(decimal.NewFromInt(100))
	}
	return pnl.InexactFloat64(), pct.InexactFloat64()
}

// TargetPrice returns entry plus offset rounded through decimal arithmetic, so
// 0.60 + 0.05 is exactly the double nearest 0.65.
func TargetPrice(entry, offset float64) float64 {
	return decimal.NewFromFloat(entry).Add(decimal.NewFromFloat(offset)).InexactFloat64()
}

// OutcomeFor classifies a realized P&L. Break-even counts as a win.
func OutcomeFor(pnl float64) Outcome {
	if pnl >= 0 {
		return OutcomeWin
	}
	return OutcomeLoss
}

// Excursion tracks the most favorable and most adverse mid seen since entry.
type Excursion struct {
	Entry    float64
	Min      float64
	Max      float64
	MinAt    time.Time
	MaxAt    time.Time
	NumTicks int
}

// NewExcursion starts min and max at the entry price.
func NewExcursion(entry float64) Excursion {
	return Excursion{Entry: entry, Min: entry, Max: entry}
}

// Observe folds a mid price into the excursion.
func (e *Excursion) Observe(mid float64, at time.Time) {
	e.NumTicks++
	if mid < e.Min {
		e.Min = mid
		e.MinAt = at
	}
	if mid > e.Max {
		e.Max = mid
		e.MaxAt = at
	}
}

// AdversePct is the worst drawdown from entry in percent.
func (e Excursion) AdversePct() float64 {
	if e.Entry <= 0 {
		return 0
	}
	return (e.Entry - e.Min) / e.Entry * 100
}

// FavorablePct is the best run-up from entry in percent.
func (e Excursion) FavorablePct() float64 {
	if e.Entry <= 0 {
		return 0
	}
	return (e.Max - e.Entry) / e.Entry * 100
}

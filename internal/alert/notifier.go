// Package alert pushes trade notifications to Telegram and answers bot commands.
package alert

import (
	"slotbot-go/internal/paper"
	"slotbot-go/internal/slot"
)

// Opened describes a freshly opened trade and its resting exit.
type Opened struct {
	TradeID     string
	SlotLabel   string
	Asset       slot.Asset
	Side        slot.Side
	EntryPrice  float64
	Shares      float64
	AmountUSD   float64
	TargetPrice float64
	Equity      float64
}

// Notifier receives trade lifecycle events. Implementations must not block the caller.
type Notifier interface {
	TradeOpened(Opened)
	LimitHit(paper.CloseResult)
	SlotSummary(label string, results []paper.CloseResult, equity float64)
}

// Nop discards every event.
type Nop struct{}

func (Nop) TradeOpened(Opened)                               {}
func (Nop) LimitHit(paper.CloseResult)                       {}
func (Nop) SlotSummary(string, []paper.CloseResult, float64) {}

var _ Notifier = Nop{}

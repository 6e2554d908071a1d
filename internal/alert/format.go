package alert

import (
	"fmt"
	"html"
	"strings"
	"time"

	"slotbot-go/internal/paper"
)

const rule = "━━━━━━━━━━━━━━━━━━"

// FormatOpened renders the trade-opened message.
func FormatOpened(o Opened) string {
	return fmt.Sprintf(
		"🟢 <b>TRADE OPENED</b>\n%s\n<b>%s</b> %s @ <b>$%.3f</b>\nShares: %.1f | Amount: $%.2f\n🎯 Limit Sell: <b>$%.3f</b> (+$%.2f)\n📅 Slot: %s\n💰 Equity: <b>$%.2f</b>",
		rule, o.Asset, o.Side, o.EntryPrice, o.Shares, o.AmountUSD,
		o.TargetPrice, o.TargetPrice-o.EntryPrice, html.EscapeString(o.SlotLabel), o.Equity,
	)
}

// FormatLimitPlaced renders the resting limit SELL message.
func FormatLimitPlaced(o Opened) string {
	return fmt.Sprintf(
		"📋 <b>LIMIT SELL PLACED</b>\n<b>%s</b> %s\nEntry: $%.3f → Target: <b>$%.3f</b>",
		o.Asset, o.Side, o.EntryPrice, o.TargetPrice,
	)
}

// FormatLimitHit renders the limit-hit message with the fill time as minutes and seconds.
func FormatLimitHit(r paper.CloseResult) string {
	return fmt.Sprintf(
		"🎯 <b>LIMIT SELL HIT!</b> ✅\n%s\n<b>%s</b> %s @ <b>$%.3f</b>\nP&L: <b>$%+.2f</b> (%+.1f%%)\n⏱ Fill time: %s\n💰 Equity: <b>$%.2f</b>",
		rule, r.Asset, r.Side, r.ExitPrice, r.PnL, r.PnLPct, FillTime(r.FillLatency), r.EquityAfter,
	)
}

// FormatSlotSummary renders the per-slot result digest.
func FormatSlotSummary(label string, results []paper.CloseResult, equity float64) string {
	var wins, losses int
	var total float64
	for _, r := range results {
		if r.Outcome == paper.OutcomeWin {
			wins++
		} else {
			losses++
		}
		total += r.PnL
	}
	lines := []string{
		"📊 <b>SLOT SUMMARY</b>",
		rule,
		"📅 " + html.EscapeString(label),
		fmt.Sprintf("✅ Wins: %d | ❌ Losses: %d", wins, losses),
		fmt.Sprintf("💵 Slot P&L: <b>$%+.2f</b>", total),
		"",
	}
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%s %s: $%+.2f (%+.1f%%)", outcomeIcon(r.Outcome), r.Asset, r.PnL, r.PnLPct))
	}
	lines = append(lines, fmt.Sprintf("\n💰 Equity: <b>$%.2f</b>", equity))
	return strings.Join(lines, "\n")
}

// FillTime renders a latency as "3m 7s" style minutes and seconds.
func FillTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

func outcomeIcon(o paper.Outcome) string {
	if o == paper.OutcomeWin {
		return "✅"
	}
	return "❌"
}

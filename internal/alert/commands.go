package alert

import (
	"context"
	"fmt"
	"html"
	"strings"

	"slotbot-go/internal/paper"
	"slotbot-go/internal/store"
)

const recentTrades = 5

// Responder answers bot commands from the store's read side.
type Responder struct {
	reader         store.Reader
	recent         *paper.Ledger
	startingEquity float64
}

// NewResponder constructs a responder over reader.
func NewResponder(reader store.Reader, startingEquity float64) *Responder {
	if startingEquity <= 0 {
		startingEquity = 1000
	}
	return &Responder{reader: reader, startingEquity: startingEquity}
}

// WithRecent lists recent closes from ledger instead of scanning every trade.
// The store is still used while the ledger is empty.
func (r *Responder) WithRecent(ledger *paper.Ledger) *Responder {
	r.recent = ledger
	return r
}

// Respond returns the reply for a command message such as "/status".
func (r *Responder) Respond(ctx context.Context, text string) string {
	fields := strings.Fields(strings.ToLower(text))
	cmd := ""
	if len(fields) > 0 {
		cmd = fields[0]
	}
	// Group chats address commands as /status@botname.
	cmd, _, _ = strings.Cut(cmd, "@")

	var (
		reply string
		err   error
	)
	switch cmd {
	case "/start", "/help":
		reply = helpText()
	case "/status":
		reply, err = r.status(ctx)
	case "/trades":
		reply, err = r.trades(ctx)
	case "/pnl":
		reply, err = r.pnl(ctx)
	case "/equity":
		reply, err = r.equity(ctx)
	default:
		reply = fmt.Sprintf("❓ Unknown command: %s\nType /help for available commands.", html.EscapeString(cmd))
	}
	if err != nil {
		return "⚠️ Database not available."
	}
	return reply
}

func helpText() string {
	return "💎 <b>Slotbot</b>\n" + rule + "\n" +
		"/status - Portfolio overview\n" +
		"/trades - Active positions\n" +
		"/pnl - P&L summary\n" +
		"/equity - Equity curve\n" +
		"/help - This message"
}

func (r *Responder) status(ctx context.Context) (string, error) {
	st, err := r.reader.Stats(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"📊 <b>PORTFOLIO STATUS</b>\n%s\n💰 Equity: <b>$%.2f</b>\n💵 Total P&L: <b>$%+.2f</b>\n📈 Win Rate: <b>%.1f%%</b>\n✅ Wins: %d | ❌ Losses: %d | ⏳ Pending: %d\n📊 Total Trades: %d\n📉 Avg Adverse: %.1f%%\n📈 Avg Favorable: %.1f%%",
		rule, st.Equity, st.TotalPnL, st.WinRate, st.Wins, st.Losses, st.Pending,
		st.TotalTrades, st.AvgAdverse, st.AvgFavorable,
	), nil
}

func (r *Responder) trades(ctx context.Context) (string, error) {
	pending, err := r.reader.PendingTrades(ctx)
	if err != nil {
		return "", err
	}
	if len(pending) == 0 {
		return "✅ No active trades right now.", nil
	}
	lines := []string{fmt.Sprintf("⚡ <b>ACTIVE TRADES (%d)</b>\n%s", len(pending), rule)}
	for _, t := range pending {
		current, ok, err := r.reader.LatestMid(ctx, t.ID)
		if err != nil {
			return "", err
		}
		if !ok {
			current = t.EntryPrice
		}
		var pct float64
		if t.EntryPrice > 0 {
			pct = (current - t.EntryPrice) / t.EntryPrice * 100
		}
		lines = append(lines, fmt.Sprintf(
			"\n🪙 <b>%s</b> %s @ $%.3f\n   💵 Current: <b>$%.3f</b> (%+.1f%%)\n   🎯 Target: $%.3f\n   📊 Ticks: %d | 📅 %s",
			t.Asset, t.Side, t.EntryPrice, current, pct, t.TargetPrice, t.NumTicks, html.EscapeString(t.SlotLabel),
		))
	}
	return strings.Join(lines, "\n"), nil
}

func (r *Responder) pnl(ctx context.Context) (string, error) {
	st, err := r.reader.Stats(ctx)
	if err != nil {
		return "", err
	}
	resolved, err := r.recentCloses(ctx)
	if err != nil {
		return "", err
	}
	lines := []string{
		"💵 <b>P&L SUMMARY</b>\n" + rule,
		fmt.Sprintf("💰 Equity: <b>$%.2f</b>", st.Equity),
		fmt.Sprintf("Total P&L: <b>$%+.2f</b>", st.TotalPnL),
		fmt.Sprintf("Avg P&L/Trade: $%.2f", st.AvgPnL),
		fmt.Sprintf("Avg Fill Latency: %.1f min", st.AvgLatency.Minutes()),
		"",
		fmt.Sprintf("<b>Last %d Trades:</b>", recentTrades),
	}
	for _, t := range resolved {
		lines = append(lines, fmt.Sprintf("%s %s %s: $%+.2f (%+.1f%%)", outcomeIcon(t.Outcome), t.Asset, t.Side, t.PnL, t.PnLPct))
	}
	return strings.Join(lines, "\n"), nil
}

func (r *Responder) recentCloses(ctx context.Context) ([]paper.CloseResult, error) {
	if r.recent != nil && r.recent.Len() > 0 {
		return r.recent.Last(recentTrades), nil
	}
	all, err := r.reader.AllTrades(ctx)
	if err != nil {
		return nil, err
	}
	var resolved []paper.CloseResult
	for _, t := range all {
		if t.Closed() {
			resolved = append(resolved, paper.CloseResult{Asset: t.Asset, Side: t.Side, PnL: t.PnL, PnLPct: t.PnLPct, Outcome: t.Outcome})
		}
	}
	if len(resolved) > recentTrades {
		resolved = resolved[len(resolved)-recentTrades:]
	}
	return resolved, nil
}

func (r *Responder) equity(ctx context.Context) (string, error) {
	st, err := r.reader.Stats(ctx)
	if err != nil {
		return "", err
	}
	pct := st.TotalPnL / r.startingEquity * 100
	return fmt.Sprintf(
		"💰 <b>EQUITY</b>\n%s\nStarting: $%.2f\nCurrent:  <b>$%.2f</b>\nChange:   <b>$%+.2f</b> (%+.1f%%)\n[%s]",
		rule, r.startingEquity, st.Equity, st.TotalPnL, pct, equityBar(pct),
	), nil
}

// equityBar maps -50%..+50% onto a 20-cell gauge.
func equityBar(pct float64) string {
	v := pct + 50
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	filled := int(v / 5)
	return strings.Repeat("█", filled) + strings.Repeat("░", 20-filled)
}

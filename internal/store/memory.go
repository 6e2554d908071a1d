package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"slotbot-go/internal/paper"
	"slotbot-go/internal/slot"
)

type memTrade struct {
	record    paper.TradeRecord
	excursion paper.Excursion
	ticks     []paper.TickRecord
}

// Memory is an in-process Backend. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	trades  map[string]*memTrade
	order   []string
	account *paper.Account
	opts    options
}

var _ Backend = (*Memory)(nil)

// NewMemory constructs an empty in-memory store.
func NewMemory(opts ...Option) *Memory {
	o := applyOptions(opts)
	return &Memory{
		trades:  make(map[string]*memTrade),
		account: paper.NewAccount(o.startingEquity),
		opts:    o,
	}
}

// OpenTrade inserts a pending trade and returns its id.
func (m *Memory) OpenTrade(_ context.Context, p paper.OpenParams) (string, error) {
	now := m.opts.now()
	id := uuid.NewString()
	rec := newTradeRecord(id, p, now, m.opts.loc, m.account.Equity())

	m.mu.Lock()
	m.trades[id] = &memTrade{record: rec, excursion: paper.NewExcursion(p.EntryPrice)}
	m.order = append(m.order, id)
	m.mu.Unlock()
	return id, nil
}

// RecordTick appends a quote to a pending trade and updates its excursion.
func (m *Memory) RecordTick(_ context.Context, tradeID string, bid, ask float64) error {
	now := m.opts.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[tradeID]
	if !ok || t.record.Closed() {
		return nil
	}
	tick := newTickRecord(tradeID, bid, ask, now)
	t.ticks = append(t.ticks, tick)
	t.excursion.Observe(tick.Mid, now)
	applyExcursion(&t.record, t.excursion)
	return nil
}

// CloseTrade resolves a pending trade and books its P&L.
func (m *Memory) CloseTrade(_ context.Context, tradeID string, exitPrice float64, reason paper.ExitReason) (*paper.CloseResult, error) {
	now := m.opts.now()
	m.mu.Lock()
	t, ok := m.trades[tradeID]
	if !ok || t.record.Closed() {
		m.mu.Unlock()
		return nil, nil
	}
	pnl, pct := paper.ComputePnL(t.record.EntryPrice, exitPrice, t.record.Shares)
	equityAfter := m.account.Realize(pnl)
	closeRecord(&t.record, exitPrice, reason, now, pnl, pct, equityAfter)
	result := resultFor(t.record)
	m.mu.Unlock()

	if m.opts.recorder != nil {
		m.opts.recorder.Record(result)
	}
	return &result, nil
}

// CurrentEquity returns starting equity plus realized P&L.
func (m *Memory) CurrentEquity(context.Context) (float64, error) {
	return m.account.Equity(), nil
}

// PendingTrades lists open trades in insertion order.
func (m *Memory) PendingTrades(context.Context) ([]paper.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []paper.TradeRecord
	for _, id := range m.order {
		if r := m.trades[id].record; !r.Closed() {
			out = append(out, r)
		}
	}
	return out, nil
}

// AllTrades lists every trade in insertion order.
func (m *Memory) AllTrades(context.Context) ([]paper.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]paper.TradeRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.trades[id].record)
	}
	return out, nil
}

// Ticks returns the tick history of a trade, oldest first.
func (m *Memory) Ticks(_ context.Context, tradeID string) ([]paper.TickRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[tradeID]
	if !ok {
		return nil, nil
	}
	out := make([]paper.TickRecord, len(t.ticks))
	copy(out, t.ticks)
	return out, nil
}

// LatestMid returns the mid of the newest tick.
func (m *Memory) LatestMid(_ context.Context, tradeID string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[tradeID]
	if !ok || len(t.ticks) == 0 {
		return 0, false, nil
	}
	return t.ticks[len(t.ticks)-1].Mid, true, nil
}

// Stats summarizes all trades.
func (m *Memory) Stats(ctx context.Context) (paper.Stats, error) {
	all, _ := m.AllTrades(ctx)
	return paper.Summarize(all, m.account.StartingEquity()), nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func newTradeRecord(id string, p paper.OpenParams, now time.Time, loc *time.Location, equity float64) paper.TradeRecord {
	local := now.In(loc)
	other := p.NoPrice
	if p.Side == slot.No {
		other = p.YesPrice
	}
	return paper.TradeRecord{
		ID:           id,
		SlotLabel:    p.SlotLabel,
		Asset:        p.Asset,
		Side:         p.Side,
		AssetID:      p.AssetID,
		EntryTime:    now.UTC(),
		HourOfDay:    local.Hour(),
		DayOfWeek:    local.Weekday().String(),
		EntryPrice:   p.EntryPrice,
		YesPrice:     p.YesPrice,
		NoPrice:      p.NoPrice,
		SideDelta:    p.EntryPrice - other,
		Shares:       p.Shares,
		AmountUSD:    p.AmountUSD,
		TargetPrice:  p.TargetPrice,
		MinPrice:     p.EntryPrice,
		MaxPrice:     p.EntryPrice,
		Outcome:      paper.OutcomePending,
		EquityBefore: equity,
	}
}

func newTickRecord(tradeID string, bid, ask float64, at time.Time) paper.TickRecord {
	return paper.TickRecord{
		TradeID: tradeID,
		Ts:      at.UTC(),
		Bid:     bid,
		Ask:     ask,
		Mid:     (bid + ask) / 2,
		Spread:  ask - bid,
	}
}

func applyExcursion(r *paper.TradeRecord, e paper.Excursion) {
	r.MinPrice = e.Min
	r.MaxPrice = e.Max
	if !e.MinAt.IsZero() {
		at := e.MinAt.UTC()
		r.MinPriceTime = &at
	}
	if !e.MaxAt.IsZero() {
		at := e.MaxAt.UTC()
		r.MaxPriceTime = &at
	}
	r.MaxAdversePct = e.AdversePct()
	r.MaxFavorablePct = e.FavorablePct()
	r.NumTicks = e.NumTicks
}

func closeRecord(r *paper.TradeRecord, exitPrice float64, reason paper.ExitReason, now time.Time, pnl, pct, equityAfter float64) {
	exit := exitPrice
	at := now.UTC()
	r.ExitPrice = &exit
	r.ExitTime = &at
	r.ExitReason = reason
	r.FillLatency = at.Sub(r.EntryTime)
	r.PnL = pnl
	r.PnLPct = pct
	r.Outcome = paper.OutcomeFor(pnl)
	r.EquityAfter = equityAfter
}

func resultFor(r paper.TradeRecord) paper.CloseResult {
	res := paper.CloseResult{
		TradeID:     r.ID,
		SlotLabel:   r.SlotLabel,
		Asset:       r.Asset,
		Side:        r.Side,
		EntryPrice:  r.EntryPrice,
		Reason:      r.ExitReason,
		PnL:         r.PnL,
		PnLPct:      r.PnLPct,
		Outcome:     r.Outcome,
		FillLatency: r.FillLatency,
		EquityAfter: r.EquityAfter,
	}
	if r.ExitPrice != nil {
		res.ExitPrice = *r.ExitPrice
	}
	if r.ExitTime != nil {
		res.ClosedAt = *r.ExitTime
	}
	return res
}

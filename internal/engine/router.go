package engine

import (
	"context"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"slotbot-go/internal/alert"
	"slotbot-go/internal/exchange"
	"slotbot-go/internal/metrics"
	"slotbot-go/internal/paper"
	"slotbot-go/internal/signal"
	"slotbot-go/internal/store"
)

// Router applies stream events to the book. Handle is called from the stream reader only.
type Router struct {
	log    zerolog.Logger
	book   *Book
	store  store.Store
	alerts alert.Notifier
	clock  clockwork.Clock
	seen   atomic.Bool
}

// NewRouter constructs a router.
func NewRouter(log zerolog.Logger, book *Book, st store.Store, alerts alert.Notifier, clock clockwork.Clock) *Router {
	if alerts == nil {
		alerts = alert.Nop{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Router{log: log, book: book, store: st, alerts: alerts, clock: clock}
}

// Handle processes one decoded stream frame.
func (r *Router) Handle(ctx context.Context, events []exchange.Event) {
	for _, ev := range events {
		if r.seen.CompareAndSwap(false, true) {
			r.log.Info().Str("event_type", exchange.EventType(ev)).Msg("first stream message received")
		}
		q, ok := ev.(exchange.QuoteUpdate)
		if !ok {
			continue
		}
		r.onQuote(ctx, q)
	}
}

func (r *Router) onQuote(ctx context.Context, q exchange.QuoteUpdate) {
	tick := signal.Tick{AssetID: q.AssetID, Bid: q.BestBid, Ask: q.BestAsk, Ts: r.clock.Now()}
	res := r.book.observe(tick)
	if res.trade == nil {
		return
	}
	t := res.trade
	metrics.TicksTotal.WithLabelValues(string(t.Asset)).Inc()
	if res.print {
		r.log.Info().
			Str("trade", res.label).
			Float64("mid", tick.Mid()).
			Float64("bid", tick.Bid).
			Float64("ask", tick.Ask).
			Float64("spread", tick.Spread()).
			Msg("tick")
	}
	if err := r.store.RecordTick(ctx, t.ID, tick.Bid, tick.Ask); err != nil {
		r.log.Warn().Err(err).Str("trade_id", t.ID).Msg("record tick failed")
	}
	if res.closed {
		r.closeLimitHit(ctx, t, tick.Bid)
	}
}

func (r *Router) closeLimitHit(ctx context.Context, t *Trade, bid float64) {
	metrics.TradesClosed.WithLabelValues(string(paper.ExitLimitHit)).Inc()
	result, err := r.store.CloseTrade(ctx, t.ID, bid, paper.ExitLimitHit)
	if err != nil {
		r.log.Error().Err(err).Str("trade_id", t.ID).Msg("persist limit hit failed")
		return
	}
	if result == nil {
		return
	}
	metrics.Equity.Set(result.EquityAfter)
	r.alerts.LimitHit(*result)
	r.log.Info().
		Str("trade", t.Label()).
		Str("slot", t.SlotLabel).
		Float64("exit", bid).
		Float64("pnl", result.PnL).
		Dur("fill_latency", result.FillLatency).
		Msg("limit hit, unsubscribed")
}

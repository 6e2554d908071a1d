// Package engine runs the slot lifecycle: activation, tick routing and expiry.
package engine

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"slotbot-go/internal/alert"
	"slotbot-go/internal/execution"
	"slotbot-go/internal/metrics"
	"slotbot-go/internal/paper"
	"slotbot-go/internal/risk"
	"slotbot-go/internal/slot"
	"slotbot-go/internal/store"
	"slotbot-go/internal/strategy"
)

// SlotSource lists every known slot.
type SlotSource interface {
	Slots() []slot.Slot
}

// Selector picks the side traded for each asset of a slot.
type Selector interface {
	Select(ctx context.Context, s slot.Slot) map[slot.Asset]strategy.Selection
}

// Config tunes the scheduler.
type Config struct {
	TradeAmountUSD     float64
	LimitOffset        float64
	WindowSize         int
	MaxConcurrentSlots int
	SweepInterval      time.Duration
	ErrorPause         time.Duration
	Limits             risk.Limits
}

func (c *Config) applyDefaults() {
	if c.TradeAmountUSD <= 0 {
		c.TradeAmountUSD = 30
	}
	if c.LimitOffset <= 0 {
		c.LimitOffset = 0.05
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 5
	}
	if c.MaxConcurrentSlots <= 0 {
		c.MaxConcurrentSlots = 2
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Second
	}
	if c.ErrorPause <= 0 {
		c.ErrorPause = 5 * time.Second
	}
}

// Deps are the scheduler's collaborators.
type Deps struct {
	Book     *Book
	Source   SlotSource
	Selector Selector
	Store    store.Store
	Alerts   alert.Notifier
	Executor *execution.Executor
	Clock    clockwork.Clock
}

// Scheduler keeps up to MaxConcurrentSlots slots trading and retires them when they end.
// Sweep and TopUp are called from a single goroutine.
type Scheduler struct {
	log      zerolog.Logger
	cfg      Config
	book     *Book
	source   SlotSource
	selector Selector
	store    store.Store
	alerts   alert.Notifier
	exec     *execution.Executor
	clock    clockwork.Clock
}

// NewScheduler constructs a scheduler.
func NewScheduler(log zerolog.Logger, cfg Config, deps Deps) *Scheduler {
	cfg.applyDefaults()
	if deps.Alerts == nil {
		deps.Alerts = alert.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Executor == nil {
		deps.Executor = execution.NewExecutor(log)
	}
	return &Scheduler{
		log:      log,
		cfg:      cfg,
		book:     deps.Book,
		source:   deps.Source,
		selector: deps.Selector,
		store:    deps.Store,
		alerts:   deps.Alerts,
		exec:     deps.Executor,
		clock:    deps.Clock,
	}
}

// Run tops up immediately, then sweeps and tops up every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.guard(ctx, func() { s.TopUp(ctx) })

	ticker := s.clock.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.guard(ctx, func() {
				s.Sweep(ctx)
				s.TopUp(ctx)
			})
		}
	}
}

// guard runs a step and pauses after a panic.
func (s *Scheduler) guard(ctx context.Context, step func()) {
	if !s.recovered(step) {
		return
	}
	select {
	case <-ctx.Done():
	case <-s.clock.After(s.cfg.ErrorPause):
	}
}

func (s *Scheduler) recovered(step func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			s.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Dur("pause", s.cfg.ErrorPause).Msg("scheduler step panicked")
		}
	}()
	step()
	return false
}

// Sweep retires every active slot whose window has ended. It returns how many were retired.
func (s *Scheduler) Sweep(ctx context.Context) int {
	expired := s.book.expire(s.clock.Now())
	for _, e := range expired {
		s.log.Info().Str("slot", e.slot.Label).Int("closing", len(e.closed)).Msg("slot expired")
		results := make([]paper.CloseResult, 0, len(e.closed))
		for _, t := range e.closed {
			metrics.TradesClosed.WithLabelValues(string(paper.ExitExpired)).Inc()
			res, err := s.store.CloseTrade(ctx, t.ID, t.exitPrice, paper.ExitExpired)
			if err != nil {
				s.log.Error().Err(err).Str("trade_id", t.ID).Msg("persist expiry failed")
				continue
			}
			if res == nil {
				continue
			}
			s.log.Info().Str("trade", t.Label()).Float64("exit", res.ExitPrice).Float64("pnl", res.PnL).Msg("trade expired")
			results = append(results, *res)
		}
		if len(results) > 0 {
			s.alerts.SlotSummary(e.slot.Label, results, s.equity(ctx))
		}
	}
	if len(expired) > 0 {
		s.status(ctx)
	}
	return len(expired)
}

// TopUp activates queued slots until the active set is full or the queue is empty.
// It returns how many slots were activated.
func (s *Scheduler) TopUp(ctx context.Context) int {
	now := s.clock.Now()
	if s.book.QueueLen() == 0 {
		queue := slot.BuildQueue(s.source.Slots(), now, s.cfg.WindowSize)
		s.book.refill(queue)
		s.log.Debug().Int("queued", len(queue)).Msg("slot queue refilled")
	}
	activated := 0
	for {
		as, skipped := s.book.reserve(now, s.cfg.MaxConcurrentSlots)
		for _, sk := range skipped {
			s.log.Info().Str("slot", sk.label).Str("reason", sk.reason).Msg("skipping slot")
		}
		if as == nil {
			break
		}
		s.activate(ctx, as)
		activated++
	}
	if activated > 0 {
		s.status(ctx)
	}
	return activated
}

func (s *Scheduler) activate(ctx context.Context, as *ActiveSlot) {
	sl := as.Slot
	s.log.Info().Str("slot", sl.Label).Time("end", sl.End).Msg("opening trades")

	// Every trade the store accepted is attached, even when a later step panics,
	// so the sweep still closes it at slot end.
	var trades []*Trade
	defer func() { s.book.attach(as, trades) }()

	selections := s.selector.Select(ctx, sl)
	equity := s.equity(ctx)
	for _, asset := range slot.Assets {
		sel, ok := selections[asset]
		if !ok || !sel.Tradable() {
			s.log.Warn().Str("slot", sl.Label).Str("asset", string(asset)).Msg("no price, trade not opened")
			continue
		}
		if !s.cfg.Limits.Allow(sel.EntryPrice, s.cfg.TradeAmountUSD) {
			s.log.Warn().Str("slot", sl.Label).Str("asset", string(asset)).Float64("entry", sel.EntryPrice).Msg("rejected by risk limits")
			continue
		}
		t, err := s.open(ctx, sl, sel)
		if err != nil {
			s.log.Error().Err(err).Str("slot", sl.Label).Str("asset", string(asset)).Msg("open trade failed")
			continue
		}
		trades = append(trades, t)
		s.placed(t, equity)
	}
}

// open persists the trade and returns its in-memory state.
func (s *Scheduler) open(ctx context.Context, sl slot.Slot, sel strategy.Selection) (*Trade, error) {
	amount := s.cfg.TradeAmountUSD
	shares := risk.Shares(amount, sel.EntryPrice)
	target := paper.TargetPrice(sel.EntryPrice, s.cfg.LimitOffset)
	id, err := s.store.OpenTrade(ctx, paper.OpenParams{
		SlotLabel:   sl.Label,
		Asset:       sel.Asset,
		Side:        sel.Side,
		AssetID:     sel.AssetID,
		EntryPrice:  sel.EntryPrice,
		YesPrice:    sel.YesPrice,
		NoPrice:     sel.NoPrice,
		Shares:      shares,
		TargetPrice: target,
		AmountUSD:   amount,
	})
	if err != nil {
		return nil, err
	}
	return newTrade(id, sl.Label, sel.Asset, sel.Side, sel.AssetID, sel.EntryPrice, target, shares, amount, s.clock.Now()), nil
}

// placed records the simulated orders of an opened trade and announces it.
func (s *Scheduler) placed(t *Trade, equity float64) {
	if err := s.exec.Bracket(t.ID, t.Asset, t.Side, t.AssetID, t.Shares, t.EntryPrice, t.TargetPrice); err != nil {
		s.log.Warn().Err(err).Str("trade_id", t.ID).Msg("simulated order rejected")
	}
	metrics.TradesOpened.WithLabelValues(string(t.Asset), string(t.Side)).Inc()
	s.log.Info().Str("trade", t.Label()).Str("trade_id", t.ID).Float64("entry", t.EntryPrice).Float64("target", t.TargetPrice).Float64("shares", t.Shares).Msg("trade opened")
	s.alerts.TradeOpened(alert.Opened{
		TradeID:     t.ID,
		SlotLabel:   t.SlotLabel,
		Asset:       t.Asset,
		Side:        t.Side,
		EntryPrice:  t.EntryPrice,
		Shares:      t.Shares,
		AmountUSD:   t.AmountUSD,
		TargetPrice: t.TargetPrice,
		Equity:      equity,
	})
}

func (s *Scheduler) equity(ctx context.Context) float64 {
	eq, err := s.store.CurrentEquity(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("equity lookup failed")
		return 0
	}
	metrics.Equity.Set(eq)
	return eq
}

func (s *Scheduler) status(ctx context.Context) {
	s.log.Info().
		Strs("active", s.book.ActiveLabels()).
		Int("open_trades", s.book.OpenTrades()).
		Strs("queued", s.book.QueuedLabels()).
		Float64("equity", s.equity(ctx)).
		Msg("status")
}

package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbot-go/internal/alert"
	"slotbot-go/internal/exchange"
	"slotbot-go/internal/paper"
	"slotbot-go/internal/slot"
	"slotbot-go/internal/store"
	"slotbot-go/internal/strategy"
)

var t0 = time.Date(2025, 11, 14, 15, 0, 0, 0, time.UTC)

type priceQuoter struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (q *priceQuoter) Price(_ context.Context, assetID string, _ slot.Side) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.prices[assetID]
}

type listSource struct{ slots []slot.Slot }

func (s listSource) Slots() []slot.Slot { return s.slots }

type recordingNotifier struct {
	mu        sync.Mutex
	opened    []alert.Opened
	limitHits []paper.CloseResult
	summaries map[string][]paper.CloseResult
}

func (n *recordingNotifier) TradeOpened(o alert.Opened) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.opened = append(n.opened, o)
}

func (n *recordingNotifier) LimitHit(r paper.CloseResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.limitHits = append(n.limitHits, r)
}

func (n *recordingNotifier) SlotSummary(label string, results []paper.CloseResult, _ float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.summaries == nil {
		n.summaries = make(map[string][]paper.CloseResult)
	}
	n.summaries[label] = append(n.summaries[label], results...)
}

func (n *recordingNotifier) closedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := len(n.limitHits)
	for _, rs := range n.summaries {
		total += len(rs)
	}
	return total
}

func testSlot(name string, start time.Time) slot.Slot {
	markets := make(map[slot.Asset]slot.Pair, len(slot.Assets))
	for _, a := range slot.Assets {
		id := name + "-" + strings.ToLower(string(a))
		markets[a] = slot.Pair{YesID: id + "-yes", NoID: id + "-no", URL: "https://polymarket.com/event/" + id}
	}
	return slot.New(name, start, markets)
}

type harness struct {
	clock    clockwork.FakeClock
	quoter   *priceQuoter
	subs     *exchange.SubscriptionManager
	store    *store.Memory
	alerts   *recordingNotifier
	book     *Book
	router   *Router
	sched    *Scheduler
	selector Selector
	notifier alert.Notifier
}

type harnessOption func(*harness, *Config)

func withNotifier(n alert.Notifier) harnessOption {
	return func(h *harness, _ *Config) { h.notifier = n }
}

func withPrintEvery(d time.Duration) harnessOption {
	return func(h *harness, _ *Config) { h.book.printEvery = d }
}

func newHarness(t *testing.T, slots []slot.Slot, opts ...harnessOption) *harness {
	t.Helper()
	log := zerolog.Nop()
	h := &harness{
		clock:  clockwork.NewFakeClockAt(t0),
		quoter: &priceQuoter{prices: map[string]float64{}},
		subs:   exchange.NewSubscriptionManager(log),
		alerts: &recordingNotifier{},
	}
	h.store = store.NewMemory(store.WithClock(h.clock.Now), store.WithStartingEquity(1000))
	h.book = NewBook(h.subs, time.Second)
	h.selector = strategy.NewSideSelector(log, h.quoter, 4)
	cfg := Config{
		TradeAmountUSD:     30,
		LimitOffset:        0.05,
		WindowSize:         5,
		MaxConcurrentSlots: 2,
		SweepInterval:      5 * time.Second,
		ErrorPause:         5 * time.Second,
	}
	for _, opt := range opts {
		opt(h, &cfg)
	}
	if h.notifier == nil {
		h.notifier = h.alerts
	}
	h.router = NewRouter(log, h.book, h.store, h.notifier, h.clock)
	h.sched = NewScheduler(log, cfg, Deps{
		Book:     h.book,
		Source:   listSource{slots: slots},
		Selector: h.selector,
		Store:    h.store,
		Alerts:   h.notifier,
		Clock:    h.clock,
	})
	return h
}

func (h *harness) advanceTo(at time.Time) {
	h.clock.Advance(at.Sub(h.clock.Now()))
}

// blockUntil waits for n clock waiters, failing the test instead of hanging.
func (h *harness) blockUntil(t *testing.T, n int) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		h.clock.BlockUntil(n)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("clock never reached %d waiters", n)
	}
}

func (h *harness) price(id string, p float64) {
	h.quoter.mu.Lock()
	h.quoter.prices[id] = p
	h.quoter.mu.Unlock()
}

func (h *harness) quote(id string, bid, ask float64) {
	h.router.Handle(context.Background(), []exchange.Event{exchange.QuoteUpdate{AssetID: id, BestBid: bid, BestAsk: ask}})
}

func TestLimitHitClosesTrade(t *testing.T) {
	a := testSlot("A", t0.Add(30*time.Minute))
	h := newHarness(t, []slot.Slot{a})
	h.price("A-btc-yes", 0.60)
	h.price("A-btc-no", 0.55)
	ctx := context.Background()

	require.Equal(t, 1, h.sched.TopUp(ctx))
	require.Len(t, h.alerts.opened, 1)
	opened := h.alerts.opened[0]
	assert.Equal(t, slot.BTC, opened.Asset)
	assert.Equal(t, slot.Yes, opened.Side)
	assert.InDelta(t, 0.65, opened.TargetPrice, 1e-9)
	assert.InDelta(t, 50, opened.Shares, 1e-9)
	assert.Equal(t, []string{"A-btc-yes"}, h.subs.IDs())

	h.quote("A-btc-yes", 0.62, 0.63)
	pending, err := h.store.PendingTrades(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	h.clock.Advance(90 * time.Second)
	h.quote("A-btc-yes", 0.66, 0.67)

	require.Len(t, h.alerts.limitHits, 1)
	hit := h.alerts.limitHits[0]
	assert.Equal(t, paper.ExitLimitHit, hit.Reason)
	assert.InDelta(t, 0.66, hit.ExitPrice, 1e-9)
	assert.InDelta(t, 3.0, hit.PnL, 1e-9)
	assert.Equal(t, 90*time.Second, hit.FillLatency)
	assert.Empty(t, h.subs.IDs())
	assert.Equal(t, 0, h.book.OpenTrades())
	assert.Equal(t, []string{"A"}, h.book.ActiveLabels())

	equity, err := h.store.CurrentEquity(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1003.0, equity, 1e-9)

	// Later quotes for the closed id are ignored.
	h.quote("A-btc-yes", 0.70, 0.71)
	assert.Len(t, h.alerts.limitHits, 1)
	ticks, err := h.store.Ticks(ctx, hit.TradeID)
	require.NoError(t, err)
	assert.Len(t, ticks, 2)
}

func TestExpiryWithoutTicksExitsAtEntry(t *testing.T) {
	a := testSlot("A", t0.Add(10*time.Minute))
	h := newHarness(t, []slot.Slot{a})
	h.price("A-eth-yes", 0.40)
	h.price("A-eth-no", 0.58)
	ctx := context.Background()

	require.Equal(t, 1, h.sched.TopUp(ctx))
	assert.Equal(t, 0, h.sched.Sweep(ctx))

	h.advanceTo(a.End)
	require.Equal(t, 1, h.sched.Sweep(ctx))

	results := h.alerts.summaries["A"]
	require.Len(t, results, 1)
	assert.Equal(t, slot.ETH, results[0].Asset)
	assert.Equal(t, slot.No, results[0].Side)
	assert.Equal(t, paper.ExitExpired, results[0].Reason)
	assert.InDelta(t, 0.58, results[0].ExitPrice, 1e-9)
	assert.InDelta(t, 0, results[0].PnL, 1e-9)
	assert.Empty(t, h.book.ActiveLabels())
	assert.Empty(t, h.subs.IDs())
}

func TestExpiryUsesLastBid(t *testing.T) {
	a := testSlot("A", t0.Add(10*time.Minute))
	h := newHarness(t, []slot.Slot{a})
	h.price("A-sol-yes", 0.70)
	h.price("A-sol-no", 0.30)
	ctx := context.Background()

	h.sched.TopUp(ctx)
	h.quote("A-sol-yes", 0.64, 0.66)
	h.advanceTo(a.End.Add(time.Second))
	h.sched.Sweep(ctx)

	results := h.alerts.summaries["A"]
	require.Len(t, results, 1)
	assert.InDelta(t, 0.64, results[0].ExitPrice, 1e-9)
	assert.Equal(t, paper.OutcomeLoss, results[0].Outcome)
}

func TestMaxActiveAndRefillAfterExpiry(t *testing.T) {
	a := testSlot("A", t0.Add(10*time.Minute))
	b := testSlot("B", t0.Add(70*time.Minute))
	c := testSlot("C", t0.Add(130*time.Minute))
	h := newHarness(t, []slot.Slot{c, a, b})
	for _, name := range []string{"A", "B", "C"} {
		h.price(name+"-xrp-yes", 0.52)
		h.price(name+"-xrp-no", 0.48)
	}
	ctx := context.Background()

	require.Equal(t, 2, h.sched.TopUp(ctx))
	assert.Equal(t, []string{"A", "B"}, h.book.ActiveLabels())
	assert.Equal(t, []string{"C"}, h.book.QueuedLabels())
	assert.Equal(t, 0, h.sched.TopUp(ctx))

	h.advanceTo(a.End)
	require.Equal(t, 1, h.sched.Sweep(ctx))
	require.Equal(t, 1, h.sched.TopUp(ctx))
	assert.Equal(t, []string{"B", "C"}, h.book.ActiveLabels())
	assert.Equal(t, []string{"B-xrp-yes", "C-xrp-yes"}, h.subs.IDs())
	assert.Equal(t, h.book.TrackedIDs(), h.subs.IDs())
}

func TestTopUpSkipsIneligibleSlots(t *testing.T) {
	expired := testSlot("old", t0.Add(-2*time.Hour))
	invalid := testSlot("partial", t0.Add(20*time.Minute))
	delete(invalid.Markets, slot.XRP)
	a := testSlot("A", t0.Add(30*time.Minute))
	h := newHarness(t, nil)
	h.price("A-btc-yes", 0.50)
	h.price("A-btc-no", 0.50)
	h.book.refill([]slot.Slot{expired, invalid, a, a})

	require.Equal(t, 1, h.sched.TopUp(context.Background()))
	assert.Equal(t, []string{"A"}, h.book.ActiveLabels())
	assert.Equal(t, 0, h.book.QueueLen())
	require.Len(t, h.alerts.opened, 1)
	assert.Equal(t, slot.Yes, h.alerts.opened[0].Side, "ties go to YES")
}

func TestSlotWithoutTradesStaysActive(t *testing.T) {
	a := testSlot("A", t0.Add(10*time.Minute))
	h := newHarness(t, []slot.Slot{a})
	ctx := context.Background()

	require.Equal(t, 1, h.sched.TopUp(ctx))
	assert.Equal(t, []string{"A"}, h.book.ActiveLabels())
	assert.Equal(t, 0, h.book.OpenTrades())
	assert.Empty(t, h.subs.IDs())

	h.advanceTo(a.End)
	require.Equal(t, 1, h.sched.Sweep(ctx))
	assert.Empty(t, h.alerts.summaries)
}

func TestRouterIgnoresUnrelatedEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.router.Handle(context.Background(), []exchange.Event{
		exchange.Pong{},
		exchange.Unknown{Type: "book"},
		exchange.QuoteUpdate{AssetID: "nobody", BestBid: 0.99, BestAsk: 1},
	})
	_, ok := h.book.Price("nobody")
	assert.False(t, ok)
	assert.Empty(t, h.alerts.limitHits)
}

func TestThrottledTickStillChecksLimit(t *testing.T) {
	a := testSlot("A", t0.Add(10*time.Minute))
	h := newHarness(t, []slot.Slot{a}, withPrintEvery(time.Hour))
	h.price("A-btc-yes", 0.30)
	h.price("A-btc-no", 0.70)
	ctx := context.Background()
	h.sched.TopUp(ctx)

	h.quote("A-btc-no", 0.71, 0.72)
	h.clock.Advance(time.Second)
	h.quote("A-btc-no", 0.75, 0.76)

	require.Len(t, h.alerts.limitHits, 1)
	assert.InDelta(t, 0.75, h.alerts.limitHits[0].ExitPrice, 1e-9)
}

func TestLimitAndExpiryRaceClosesOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		a := testSlot(fmt.Sprintf("A%d", i), t0.Add(10*time.Minute))
		h := newHarness(t, []slot.Slot{a})
		yes := a.Markets[slot.BTC].YesID
		h.price(yes, 0.60)
		h.price(a.Markets[slot.BTC].NoID, 0.40)
		ctx := context.Background()
		h.sched.TopUp(ctx)
		h.advanceTo(a.End)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.quote(yes, 0.70, 0.71)
		}()
		go func() {
			defer wg.Done()
			h.sched.Sweep(ctx)
		}()
		wg.Wait()

		require.Equal(t, 1, h.alerts.closedCount())
		all, err := h.store.AllTrades(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		require.NotNil(t, all[0].ExitTime)
		assert.Empty(t, h.subs.IDs())
	}
}

type panicOnceSelector struct {
	inner Selector
	calls atomic.Int32
}

func (p *panicOnceSelector) Select(ctx context.Context, s slot.Slot) map[slot.Asset]strategy.Selection {
	if p.calls.Add(1) == 1 {
		panic("quote service exploded")
	}
	return p.inner.Select(ctx, s)
}

func TestRunRecoversFromPanicAndStopsOnCancel(t *testing.T) {
	a := testSlot("A", t0.Add(10*time.Minute))
	b := testSlot("B", t0.Add(70*time.Minute))
	h := newHarness(t, []slot.Slot{a, b})
	h.selector = &panicOnceSelector{inner: h.selector}
	h.sched.selector = h.selector
	for _, asset := range slot.Assets {
		id := "B-" + strings.ToLower(string(asset))
		h.price(id+"-yes", 0.55)
		h.price(id+"-no", 0.45)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sched.Run(ctx) }()

	// The panicked top-up pauses on one timer; the loop ticker replaces it.
	h.blockUntil(t, 1)
	h.clock.Advance(5 * time.Second)
	h.blockUntil(t, 1)
	h.clock.Advance(5 * time.Second)

	require.Eventually(t, func() bool { return h.book.OpenTrades() == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"A", "B"}, h.book.ActiveLabels())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}

type panickingNotifier struct{ recordingNotifier }

func (*panickingNotifier) TradeOpened(alert.Opened) { panic("alert transport exploded") }

func TestPanicAfterOpenStillExpiresTrade(t *testing.T) {
	a := testSlot("A", t0.Add(10*time.Minute))
	h := newHarness(t, []slot.Slot{a}, withNotifier(&panickingNotifier{}))
	h.price("A-btc-yes", 0.60)
	h.price("A-btc-no", 0.40)
	h.price("A-eth-yes", 0.30)
	h.price("A-eth-no", 0.70)
	ctx := context.Background()

	require.True(t, h.sched.recovered(func() { h.sched.TopUp(ctx) }))
	pending, err := h.store.PendingTrades(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, []string{"A"}, h.book.ActiveLabels())
	assert.Equal(t, []string{"A-btc-yes"}, h.book.TrackedIDs())
	assert.Equal(t, h.book.TrackedIDs(), h.subs.IDs())

	h.advanceTo(a.End)
	require.Equal(t, 1, h.sched.Sweep(ctx))
	pending, err = h.store.PendingTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	all, err := h.store.AllTrades(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, paper.ExitExpired, all[0].ExitReason)
	assert.Empty(t, h.subs.IDs())
}

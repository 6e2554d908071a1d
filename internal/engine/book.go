package engine

import (
	"sort"
	"sync"
	"time"

	"slotbot-go/internal/metrics"
	"slotbot-go/internal/paper"
	"slotbot-go/internal/signal"
	"slotbot-go/internal/slot"
)

// Subscriber maintains the stream's subscribed id set. Calls must not block.
type Subscriber interface {
	Subscribe(ids []string)
	Unsubscribe(ids []string)
}

// ActiveSlot is a slot being traded and the trades opened for it.
type ActiveSlot struct {
	Slot   slot.Slot
	Trades []*Trade
}

type registration struct {
	trade     *Trade
	label     string
	lastPrint time.Time
}

// tickResult reports what a routed tick did.
type tickResult struct {
	trade  *Trade
	label  string
	print  bool
	closed bool
}

// expiry is a slot removed by the sweep and the trades the sweep closed.
type expiry struct {
	slot   slot.Slot
	closed []*Trade
}

// Book holds the subscription table, last prices, active slots and the slot queue
// behind one lock. The lock is never held across network or store calls.
type Book struct {
	mu         sync.Mutex
	subs       map[string]*registration
	prices     map[string]signal.Quote
	active     []*ActiveSlot
	queue      *slot.Queue
	subscriber Subscriber
	printEvery time.Duration
}

// NewBook constructs an empty book. Tick prints are limited to one per id per printEvery.
func NewBook(subscriber Subscriber, printEvery time.Duration) *Book {
	return &Book{
		subs:       make(map[string]*registration),
		prices:     make(map[string]signal.Quote),
		queue:      slot.NewQueue(nil),
		subscriber: subscriber,
		printEvery: printEvery,
	}
}

// ActiveCount returns the number of active slots.
func (b *Book) ActiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

// ActiveLabels lists active slot labels in activation order.
func (b *Book) ActiveLabels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.active))
	for i, as := range b.active {
		out[i] = as.Slot.Label
	}
	return out
}

// OpenTrades returns the number of registered open trades.
func (b *Book) OpenTrades() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// TrackedIDs returns the asset ids of every registered open trade, sorted.
func (b *Book) TrackedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.subs))
	for id := range b.subs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Price returns the last quote seen for an id.
func (b *Book) Price(assetID string) (signal.Quote, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.prices[assetID]
	return q, ok
}

// QueueLen returns the number of queued slots.
func (b *Book) QueueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// QueuedLabels lists queued slot labels in pop order.
func (b *Book) QueuedLabels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Labels()
}

func (b *Book) refill(slots []slot.Slot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queue.Len() == 0 {
		b.queue.Push(slots...)
	}
}

// reserve pops the next eligible slot and marks it active. Expired, invalid and
// already active slots are dropped with the reason returned in skipped.
func (b *Book) reserve(now time.Time, max int) (*ActiveSlot, []skippedSlot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var skipped []skippedSlot
	for len(b.active) < max {
		next, ok := b.queue.Pop()
		if !ok {
			return nil, skipped
		}
		switch {
		case !next.End.After(now):
			skipped = append(skipped, skippedSlot{label: next.Label, reason: "expired"})
		case !next.Valid():
			skipped = append(skipped, skippedSlot{label: next.Label, reason: "missing market data"})
		case b.activeLocked(next.Label):
			skipped = append(skipped, skippedSlot{label: next.Label, reason: "already active"})
		default:
			as := &ActiveSlot{Slot: next}
			b.active = append(b.active, as)
			b.gaugesLocked()
			return as, skipped
		}
	}
	return nil, skipped
}

type skippedSlot struct {
	label  string
	reason string
}

// attach registers the opened trades of an active slot and subscribes their ids in one batch.
func (b *Book) attach(as *ActiveSlot, trades []*Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()
	as.Trades = append(as.Trades, trades...)
	ids := make([]string, 0, len(trades))
	for _, t := range trades {
		if t.Closed() {
			continue
		}
		b.subs[t.AssetID] = &registration{trade: t, label: t.Label()}
		ids = append(ids, t.AssetID)
	}
	if len(ids) > 0 {
		b.subscriber.Subscribe(ids)
	}
	b.gaugesLocked()
}

// observe routes a quote to its trade and performs the limit-hit close when the bid reaches target.
func (b *Book) observe(tick signal.Tick) tickResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	reg, ok := b.subs[tick.AssetID]
	if !ok || reg.trade.Closed() {
		return tickResult{}
	}
	b.prices[tick.AssetID] = tick.Quote()
	t := reg.trade
	t.observe(tick.Bid, tick.Ask, tick.Ts)

	res := tickResult{trade: t, label: reg.label}
	if reg.lastPrint.IsZero() || tick.Ts.Sub(reg.lastPrint) >= b.printEvery {
		reg.lastPrint = tick.Ts
		res.print = true
	}
	if t.limitReached(tick.Bid) && t.tryClose(paper.ExitLimitHit, tick.Bid) {
		b.releaseLocked([]*Trade{t})
		res.closed = true
	}
	return res
}

// expire closes the open trades of every slot ended at now and removes those slots.
func (b *Book) expire(now time.Time) []expiry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var (
		out  []expiry
		kept = b.active[:0]
	)
	for _, as := range b.active {
		if !as.Slot.Expired(now) {
			kept = append(kept, as)
			continue
		}
		e := expiry{slot: as.Slot}
		for _, t := range as.Trades {
			if t.tryClose(paper.ExitExpired, t.expiryExit()) {
				e.closed = append(e.closed, t)
			}
		}
		b.releaseLocked(as.Trades)
		out = append(out, e)
	}
	for i := len(kept); i < len(b.active); i++ {
		b.active[i] = nil
	}
	b.active = kept
	b.gaugesLocked()
	return out
}

// releaseLocked drops the trades' registrations and prices and unsubscribes their ids.
func (b *Book) releaseLocked(trades []*Trade) {
	var ids []string
	for _, t := range trades {
		reg, ok := b.subs[t.AssetID]
		if !ok || reg.trade != t {
			continue
		}
		delete(b.subs, t.AssetID)
		delete(b.prices, t.AssetID)
		ids = append(ids, t.AssetID)
	}
	if len(ids) > 0 {
		b.subscriber.Unsubscribe(ids)
	}
	b.gaugesLocked()
}

func (b *Book) activeLocked(label string) bool {
	for _, as := range b.active {
		if as.Slot.Label == label {
			return true
		}
	}
	return false
}

func (b *Book) gaugesLocked() {
	metrics.ActiveSlots.Set(float64(len(b.active)))
	metrics.OpenTrades.Set(float64(len(b.subs)))
}

// Package store persists paper trades and their tick history.
package store

import (
	"context"
	"time"

	"slotbot-go/internal/paper"
)

// Store is the write side used by the trading engine.
//
// CloseTrade returns a nil result and a nil error when the id is unknown or the trade is
// already closed. RecordTick on a closed trade is ignored.
type Store interface {
	OpenTrade(ctx context.Context, params paper.OpenParams) (string, error)
	RecordTick(ctx context.Context, tradeID string, bid, ask float64) error
	CloseTrade(ctx context.Context, tradeID string, exitPrice float64, reason paper.ExitReason) (*paper.CloseResult, error)
	CurrentEquity(ctx context.Context) (float64, error)
}

// Reader is the read side used by reports and bot commands.
type Reader interface {
	PendingTrades(ctx context.Context) ([]paper.TradeRecord, error)
	AllTrades(ctx context.Context) ([]paper.TradeRecord, error)
	Ticks(ctx context.Context, tradeID string) ([]paper.TickRecord, error)
	// LatestMid returns the most recent tick mid, false when the trade has no ticks.
	LatestMid(ctx context.Context, tradeID string) (float64, bool, error)
	Stats(ctx context.Context) (paper.Stats, error)
}

// Backend is a store that can be read and closed.
type Backend interface {
	Store
	Reader
	Close() error
}

// Option configures store construction.
type Option func(*options)

type options struct {
	startingEquity float64
	loc            *time.Location
	now            func() time.Time
	recorder       paper.ResultRecorder
	retry          RetryPolicy
}

func defaultOptions() options {
	return options{
		startingEquity: 1000,
		loc:            time.UTC,
		now:            time.Now,
		retry:          DefaultRetryPolicy(),
	}
}

// WithStartingEquity sets the bankroll realized P&L is added to.
func WithStartingEquity(v float64) Option {
	return func(o *options) {
		if v > 0 {
			o.startingEquity = v
		}
	}
}

// WithLocation sets the zone used for the hour-of-day and weekday columns.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRecorder receives every close result after it is committed.
func WithRecorder(r paper.ResultRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithRetry sets the contention retry policy.
func WithRetry(p RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Package execution records the simulated orders behind each paper trade.
package execution

import (
	"fmt"

	"github.com/rs/zerolog"

	"slotbot-go/internal/metrics"
	"slotbot-go/internal/slot"
)

// Side enumerates order directions used by the executor.
type Side string

const (
	// Buy opens a position.
	Buy Side = "BUY"
	// Sell closes a position.
	Sell Side = "SELL"
)

// Kind distinguishes immediate entries from resting exits.
type Kind string

const (
	Market Kind = "market"
	Limit  Kind = "limit"
)

// Order is one simulated placement. Nothing is sent to a venue.
type Order struct {
	TradeID string
	Asset   slot.Asset
	Outcome slot.Side
	AssetID string
	Side    Side
	Kind    Kind
	Qty     float64
	Price   float64
}

// Executor logs simulated orders and counts them.
type Executor struct{ log zerolog.Logger }

// NewExecutor wraps a zerolog logger for order records.
func NewExecutor(log zerolog.Logger) *Executor { return &Executor{log: log} }

// Submit validates and records an order.
func (executor *Executor) Submit(order Order) error {
	if order.Qty <= 0 || order.Price <= 0 {
		return fmt.Errorf("invalid order %s %s qty=%.4f px=%.4f", order.Asset, order.Side, order.Qty, order.Price)
	}
	metrics.OrdersTotal.WithLabelValues(string(order.Asset), string(order.Side)).Inc()
	executor.log.Info().
		Str("trade_id", order.TradeID).
		Str("asset", string(order.Asset)).
		Str("outcome", string(order.Outcome)).
		Str("side", string(order.Side)).
		Str("kind", string(order.Kind)).
		Float64("qty", order.Qty).
		Float64("px", order.Price).
		Msg("simulated order")
	return nil
}

// Bracket records the entry BUY and the resting limit SELL of a new trade.
func (executor *Executor) Bracket(tradeID string, asset slot.Asset, outcome slot.Side, assetID string, shares, entry, target float64) error {
	base := Order{TradeID: tradeID, Asset: asset, Outcome: outcome, AssetID: assetID, Qty: shares}
	buy := base
	buy.Side, buy.Kind, buy.Price = Buy, Market, entry
	if err := executor.Submit(buy); err != nil {
		return err
	}
	sell := base
	sell.Side, sell.Kind, sell.Price = Sell, Limit, target
	return executor.Submit(sell)
}

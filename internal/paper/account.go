package paper

import (
	"sync"

	"github.com/shopspring/decimal"
)

// ResultRecorder captures close results for later inspection.
type ResultRecorder interface {
	Record(CloseResult)
}

// Account tracks starting equity and realized P&L of the paper book.
type Account struct {
	mu             sync.Mutex
	startingEquity decimal.Decimal
	realized       decimal.Decimal
}

// NewAccount constructs an account with the given starting equity.
func NewAccount(startingEquity float64) *Account {
	return &Account{startingEquity: decimal.NewFromFloat(startingEquity)}
}

// StartingEquity returns the initial bankroll.
func (a *Account) StartingEquity() float64 { return a.startingEquity.InexactFloat64() }

// Realize books a closed trade's P&L and returns equity after it.
func (a *Account) Realize(pnl float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.realized = a.realized.Add(decimal.NewFromFloat(pnl))
	return a.startingEquity.Add(a.realized).InexactFloat64()
}

// Equity returns starting equity plus all realized P&L.
func (a *Account) Equity() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startingEquity.Add(a.realized).InexactFloat64()
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realized.InexactFloat64()
}

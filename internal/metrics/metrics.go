package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Quote updates routed to open trades"},
		[]string{"asset"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Simulated orders logged"},
		[]string{"asset", "side"},
	)
	TradesOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_opened_total", Help: "Paper trades opened"},
		[]string{"asset", "side"},
	)
	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_closed_total", Help: "Paper trades closed by reason"},
		[]string{"reason"},
	)
	QuoteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "quote_failures_total", Help: "Quote fetches that fell back to price 0"},
	)
	StreamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "stream_reconnects_total", Help: "Market stream disconnects followed by a redial"},
	)
	StreamResyncs = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "stream_resyncs_total", Help: "Sessions dropped because a subscription frame did not fit the write buffer"},
	)
	ActiveSlots = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "active_slots", Help: "Slots currently trading"},
	)
	OpenTrades = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "open_trades", Help: "Trades registered in the subscription table"},
	)
	Equity = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "paper_equity_usd", Help: "Starting equity plus realized P&L"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, OrdersTotal, TradesOpened, TradesClosed,
		QuoteFailures, StreamReconnects, StreamResyncs, ActiveSlots, OpenTrades, Equity,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"slotbot-go/internal/alert"
	"slotbot-go/internal/config"
	"slotbot-go/internal/engine"
	"slotbot-go/internal/exchange"
	"slotbot-go/internal/execution"
	"slotbot-go/internal/metrics"
	"slotbot-go/internal/paper"
	"slotbot-go/internal/risk"
	"slotbot-go/internal/store"
	"slotbot-go/internal/strategy"
	"slotbot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "configs/slotbot.yaml", "path to the YAML config")
	flag.Parse()

	cfg, log, err := loadConfig(*configPath)
	if err != nil {
		boot := util.NewLogger("info", true)
		boot.Fatal().Err(err).Msg("load config")
	}
	loc, _ := time.LoadLocation(cfg.Discovery.Timezone)

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	recent := paper.NewLedger(64)
	backend, closeStore := openStore(ctx, log, cfg, loc, recent)
	defer closeStore()

	catalog := exchange.NewCatalog(util.Component(log, "catalog"), cfg.Discovery.MarketsFile, loc)
	startDiscovery(ctx, log, cfg, catalog)
	if catalog.Len() == 0 {
		log.Fatal().Str("file", cfg.Discovery.MarketsFile).Msg("no slots available, nothing to trade")
	}
	log.Info().Int("slots", catalog.Len()).Msg("slot catalog ready")

	srv := metrics.Serve(cfg.App.MetricsAddr)
	defer srv.Close()
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	var notifier alert.Notifier = alert.Nop{}
	var telegram *alert.Telegram
	if cfg.Alerts.Enabled {
		telegram = alert.NewTelegram(util.Component(log, "telegram"), cfg.Alerts)
		notifier = telegram
	}

	quotes := exchange.NewQuoteClient(util.Component(log, "quotes"), cfg.Quote.BaseURL, config.Millis(cfg.Quote.TimeoutMs))
	selector := strategy.NewSideSelector(util.Component(log, "selector"), quotes, cfg.Quote.Workers)
	subs := exchange.NewSubscriptionManager(util.Component(log, "subscriptions"))
	book := engine.NewBook(subs, config.Millis(cfg.Trading.TickLogIntervalMs))
	router := engine.NewRouter(util.Component(log, "router"), book, backend, notifier, clockwork.NewRealClock())
	stream := exchange.NewStream(util.Component(log, "stream"), cfg.Stream.URL, subs,
		exchange.WithReconnectDelay(config.Millis(cfg.Stream.ReconnectDelayMs)),
		exchange.WithPingInterval(config.Millis(cfg.Stream.PingIntervalMs)),
		exchange.WithWriteBuffer(cfg.Stream.WriteBuffer),
	)
	scheduler := engine.NewScheduler(util.Component(log, "scheduler"), engine.Config{
		TradeAmountUSD:     cfg.Trading.TradeAmountUSD,
		LimitOffset:        cfg.Trading.LimitOffset,
		WindowSize:         cfg.Trading.WindowSize,
		MaxConcurrentSlots: cfg.Trading.MaxConcurrentSlots,
		SweepInterval:      config.Millis(cfg.Trading.SweepIntervalMs),
		ErrorPause:         config.Millis(cfg.Trading.ErrorPauseMs),
		Limits:             risk.Limits{MaxNotionalPerTrade: cfg.Trading.MaxNotionalUSD},
	}, engine.Deps{
		Book:     book,
		Source:   catalog,
		Selector: selector,
		Store:    backend,
		Alerts:   notifier,
		Executor: execution.NewExecutor(util.Component(log, "executor")),
	})

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := stream.Run(ctx, func(events []exchange.Event) { router.Handle(ctx, events) }); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("market stream stopped")
			cancel()
		}
	})
	if telegram != nil {
		wg.Go(func() { telegram.Run(ctx) })
		if cfg.Alerts.PollCommand {
			responder := alert.NewResponder(backend, cfg.Paper.StartingEquity).WithRecent(recent)
			wg.Go(func() { telegram.PollCommands(ctx, responder) })
		}
	}
	wg.Go(func() {
		log.Info().
			Float64("trade_amount_usd", cfg.Trading.TradeAmountUSD).
			Float64("limit_offset", cfg.Trading.LimitOffset).
			Int("max_concurrent_slots", cfg.Trading.MaxConcurrentSlots).
			Msg("slot engine started")
		if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("scheduler stopped")
		}
		cancel()
	})
	wg.Wait()
	log.Info().Msg("shutting down")
}

// loadConfig reads the file, applies environment overrides and validates the result.
func loadConfig(path string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid config: %w", err)
	}
	return cfg, util.NewLogger(cfg.App.LogLevel, cfg.App.PrettyLog), nil
}

func openStore(ctx context.Context, log zerolog.Logger, cfg *config.Config, loc *time.Location, recent *paper.Ledger) (store.Backend, func()) {
	opts := []store.Option{
		store.WithStartingEquity(cfg.Paper.StartingEquity),
		store.WithLocation(loc),
		store.WithRetry(store.RetryPolicy{
			MaxAttempts: cfg.Store.RetryAttempts,
			Backoff:     store.FixedBackoff(config.Millis(cfg.Store.RetryBackoffMs)),
			Retryable:   store.IsBusy,
		}),
	}
	recorders := paper.MultiRecorder{recent}
	var journal *paper.JSONLRecorder
	if cfg.Paper.JournalPath != "" {
		j, err := paper.NewJSONLRecorder(cfg.Paper.JournalPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Paper.JournalPath).Msg("open journal")
		}
		journal = j
		recorders = append(recorders, j)
	}
	opts = append(opts, store.WithRecorder(recorders))

	var backend store.Backend
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := store.OpenPostgres(ctx, cfg.Store.DSN, opts...)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres store")
		}
		backend = pg
	default:
		backend = store.NewMemory(opts...)
	}
	log.Info().Str("driver", cfg.Store.Driver).Float64("starting_equity", cfg.Paper.StartingEquity).Msg("trade store ready")

	return backend, func() {
		if err := backend.Close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
		if journal != nil {
			_ = journal.Close()
		}
	}
}

// startDiscovery rebuilds the catalog from the Gamma API, or loads it from disk when discovery is off.
func startDiscovery(ctx context.Context, log zerolog.Logger, cfg *config.Config, catalog *exchange.Catalog) {
	if !cfg.Discovery.Enabled {
		if err := catalog.Load(); err != nil {
			log.Fatal().Err(err).Msg("load slot catalog")
		}
		return
	}
	if err := catalog.Reset(); err != nil {
		log.Fatal().Err(err).Msg("reset slot catalog")
	}
	discovery, err := exchange.NewDiscovery(util.Component(log, "discovery"), cfg.Discovery, catalog)
	if err != nil {
		log.Fatal().Err(err).Msg("init discovery")
	}
	added, err := discovery.Refresh(ctx)
	if err != nil {
		log.Error().Err(err).Msg("initial slot discovery failed")
	}
	log.Info().Int("added", added).Msg("initial slot discovery done")
	discovery.Start(ctx)
}

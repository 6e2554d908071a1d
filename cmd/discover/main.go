// Binary discover refreshes the upcoming-markets file once and prints what it found.
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

	"slotbot-go/internal/config"
	"slotbot-go/internal/exchange"
	"slotbot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "configs/slotbot.yaml", "path to the YAML config")
	count := flag.Int("count", 0, "number of upcoming hourly slots to query (0 keeps the config value)")
	reset := flag.Bool("reset", false, "truncate the markets file before discovering")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if *count > 0 {
		cfg.Discovery.Count = *count
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.PrettyLog)
	loc, err := time.LoadLocation(cfg.Discovery.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("load timezone")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	catalog := exchange.NewCatalog(util.Component(log, "catalog"), cfg.Discovery.MarketsFile, loc)
	if *reset {
		err = catalog.Reset()
	} else {
		err = catalog.Load()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("prepare catalog")
	}

	discovery, err := exchange.NewDiscovery(util.Component(log, "discovery"), cfg.Discovery, catalog)
	if err != nil {
		log.Fatal().Err(err).Msg("init discovery")
	}
	added, err := discovery.Refresh(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("discovery failed")
	}

	fmt.Printf("added %d new slot(s), %d known\n\n", added, catalog.Len())
	fmt.Print(exchange.FormatCatalog(catalog.Slots()))
}

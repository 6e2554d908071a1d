// Binary report is an interactive terminal menu over the trade store and the config file.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"slotbot-go/internal/alert"
	"slotbot-go/internal/config"
	"slotbot-go/internal/paper"
	"slotbot-go/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/slotbot.yaml", "path to the YAML config")
	flag.Parse()
	reader := bufio.NewReader(os.Stdin)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	var trades store.Reader
	if cfg.Store.Driver == "postgres" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := store.OpenPostgres(ctx, cfg.Store.DSN, store.WithStartingEquity(cfg.Paper.StartingEquity))
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "database unavailable: %v\n", err)
		} else {
			defer pg.Close()
			trades = pg
		}
	}

	for {
		fmt.Println("\n=== SlotBot Report ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit trading knobs")
		fmt.Println("3) Save config")
		fmt.Println("4) Performance summary")
		fmt.Println("5) Open trades")
		fmt.Println("6) Recent trades")
		fmt.Println("7) Ticks for a trade")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editTrading(reader, cfg)
		case "3":
			if err := config.Save(*configPath, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "4", "5", "6", "7":
			if trades == nil {
				fmt.Println("no database configured (store.driver must be postgres)")
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := report(ctx, reader, trades, choice); err != nil {
				fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
			}
			cancel()
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Starting equity: $%.2f\n", cfg.Paper.StartingEquity)
	fmt.Printf("Trade amount: $%.2f | limit offset: +%.2f\n", cfg.Trading.TradeAmountUSD, cfg.Trading.LimitOffset)
	fmt.Printf("Per-trade notional cap: $%.2f\n", cfg.Trading.MaxNotionalUSD)
	fmt.Printf("Window: %d slots | max concurrent: %d\n", cfg.Trading.WindowSize, cfg.Trading.MaxConcurrentSlots)
	fmt.Printf("Discovery: enabled=%t count=%d workers=%d tz=%s\n", cfg.Discovery.Enabled, cfg.Discovery.Count, cfg.Discovery.Workers, cfg.Discovery.Timezone)
	fmt.Printf("Store: %s | alerts: %t\n", cfg.Store.Driver, cfg.Alerts.Enabled)
}

func editTrading(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Trading ---")
	cfg.Paper.StartingEquity = promptFloat(reader, "Starting equity (USD)", cfg.Paper.StartingEquity)
	cfg.Trading.TradeAmountUSD = promptFloat(reader, "Trade amount (USD)", cfg.Trading.TradeAmountUSD)
	cfg.Trading.LimitOffset = promptFloat(reader, "Limit offset", cfg.Trading.LimitOffset)
	cfg.Trading.MaxNotionalUSD = promptFloat(reader, "Max notional per trade (USD, 0 = none)", cfg.Trading.MaxNotionalUSD)
	cfg.Trading.MaxConcurrentSlots = int(promptFloat(reader, "Max concurrent slots", float64(cfg.Trading.MaxConcurrentSlots)))
	cfg.Trading.WindowSize = int(promptFloat(reader, "Slot window size", float64(cfg.Trading.WindowSize)))
}

func report(ctx context.Context, reader *bufio.Reader, trades store.Reader, choice string) error {
	switch choice {
	case "4":
		stats, err := trades.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Println("\n--- Performance ---")
		fmt.Printf("Trades: %d (won %d, lost %d, pending %d)\n", stats.TotalTrades, stats.Wins, stats.Losses, stats.Pending)
		fmt.Printf("Win rate: %.1f%%\n", stats.WinRate)
		fmt.Printf("Total P&L: $%+.2f | avg $%+.2f\n", stats.TotalPnL, stats.AvgPnL)
		fmt.Printf("Avg fill: %s\n", alert.FillTime(stats.AvgLatency))
		fmt.Printf("Avg adverse: %.2f%% | avg favorable: %.2f%%\n", stats.AvgAdverse, stats.AvgFavorable)
		fmt.Printf("Equity: $%.2f\n", stats.Equity)
	case "5":
		pending, err := trades.PendingTrades(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\n--- Open trades (%d) ---\n", len(pending))
		for _, r := range pending {
			printTrade(r)
			if mid, ok, err := trades.LatestMid(ctx, r.ID); err == nil && ok {
				fmt.Printf("    last mid %.4f (%+.2f%% from entry)\n", mid, (mid-r.EntryPrice)/r.EntryPrice*100)
			}
		}
	case "6":
		all, err := trades.AllTrades(ctx)
		if err != nil {
			return err
		}
		if len(all) > 20 {
			all = all[len(all)-20:]
		}
		fmt.Printf("\n--- Recent trades (%d) ---\n", len(all))
		for _, r := range all {
			printTrade(r)
		}
	case "7":
		fmt.Print("Trade id: ")
		line, _ := reader.ReadString('\n')
		ticks, err := trades.Ticks(ctx, strings.TrimSpace(line))
		if err != nil {
			return err
		}
		for _, tk := range ticks {
			fmt.Printf("%s bid %.4f ask %.4f mid %.4f spread %.4f\n", tk.Ts.Format(time.TimeOnly), tk.Bid, tk.Ask, tk.Mid, tk.Spread)
		}
		fmt.Printf("%d tick(s)\n", len(ticks))
	}
	return nil
}

func printTrade(r paper.TradeRecord) {
	exit := "-"
	if r.ExitPrice != nil {
		exit = fmt.Sprintf("%.4f", *r.ExitPrice)
	}
	fmt.Printf("%s | %s | %s %s | entry %.4f target %.4f exit %s | %s $%+.2f\n",
		r.ID, r.SlotLabel, r.Asset, r.Side, r.EntryPrice, r.TargetPrice, exit, r.Outcome, r.PnL)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

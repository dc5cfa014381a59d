package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"winnow/internal/config"
	"winnow/internal/data"
	"winnow/internal/engine"
	"winnow/internal/store"
	"winnow/internal/strategy"
	"winnow/internal/util"
)

func main() {
	strategies := flag.String("strategies", "", "comma-separated strategy names to compare (default: all registered)")
	workers := flag.Int("workers", 4, "max concurrent backtest runs")
	flag.Parse()

	cfgPath := "config/winnow.yaml"
	if p := os.Getenv("WINNOW_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(util.LogOptions{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	names := strategy.Names()
	if *strategies != "" {
		names = strings.Split(*strategies, ",")
	}

	if err := runSweep(ctx, cfg, names, *workers); err != nil {
		log.Fatalf("sweep error: %v", err)
	}
}

func runSweep(ctx context.Context, cfg *config.Config, names []string, workers int) error {
	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	var fstore store.FundamentalStore
	if cfg.Storage.SQLitePath != "" {
		sqlStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening sqlite store: %w", err)
		}
		defer sqlStore.Close()
		fstore = sqlStore
	}

	symbols := append([]string{}, cfg.Backtest.Universe...)
	opts := data.Options{
		LookbackDays: cfg.Backtest.PriceLookbackDays,
		HistoryDays:  400,
	}
	if cfg.Backtest.Benchmark != "" {
		symbols = append(symbols, cfg.Backtest.Benchmark)
		opts.PriceOnly = []string{cfg.Backtest.Benchmark}
	}

	// One shared read-only provider serves every run.
	provider, err := data.Load(ctx, pstore, fstore, symbols,
		cfg.Backtest.Start(), cfg.Backtest.End(), opts)
	if err != nil {
		return fmt.Errorf("loading historical data: %w", err)
	}

	limits := strategy.Limits{
		MaxPositions: cfg.Backtest.MaxPositions,
		MinWeight:    cfg.Backtest.MinPositionSize,
		MaxWeight:    cfg.Backtest.MaxPositionSize,
	}

	runs := make([]engine.Run, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		strat, err := strategy.New(name, cfg.Strategy.Params, limits)
		if err != nil {
			return err
		}
		runs = append(runs, engine.Run{Name: name, Engine: engine.New(cfg.Backtest, provider, strat)})
	}

	results := engine.Sweep(ctx, runs, workers)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "run %s failed: %v\n", res.Name, res.Err)
			continue
		}
		fmt.Print(res.Report.Text())
		fmt.Println()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(results))
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"winnow/internal/config"
	"winnow/internal/data"
	"winnow/internal/engine"
	"winnow/internal/report"
	"winnow/internal/store"
	"winnow/internal/strategy"
	"winnow/internal/util"
)

func main() {
	statesOut := flag.String("states-csv", "", "write the daily portfolio state series to this CSV file")
	tradesOut := flag.String("trades-csv", "", "write the trade log to this CSV file")
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

	rep, err := runBacktest(ctx, cfg)
	if err != nil {
		log.Fatalf("backtest error: %v", err)
	}

	fmt.Print(rep.Text())

	if *statesOut != "" {
		if err := writeCSV(*statesOut, rep.WriteStatesCSV); err != nil {
			log.Fatalf("writing states csv: %v", err)
		}
	}
	if *tradesOut != "" {
		if err := writeCSV(*tradesOut, rep.WriteTradesCSV); err != nil {
			log.Fatalf("writing trades csv: %v", err)
		}
	}
}

func runBacktest(ctx context.Context, cfg *config.Config) (*report.Report, error) {
	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	var fstore store.FundamentalStore
	if cfg.Storage.SQLitePath != "" {
		sqlStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		defer sqlStore.Close()
		fstore = sqlStore
	}

	symbols := append([]string{}, cfg.Backtest.Universe...)
	// 400 calendar days of preload covers a full trading year of trailing
	// closes on the first rebalance date.
	opts := data.Options{
		LookbackDays: cfg.Backtest.PriceLookbackDays,
		HistoryDays:  400,
	}
	if cfg.Backtest.Benchmark != "" {
		symbols = append(symbols, cfg.Backtest.Benchmark)
		opts.PriceOnly = []string{cfg.Backtest.Benchmark}
	}

	provider, err := data.Load(ctx, pstore, fstore, symbols,
		cfg.Backtest.Start(), cfg.Backtest.End(), opts)
	if err != nil {
		return nil, fmt.Errorf("loading historical data: %w", err)
	}

	strat, err := strategy.New(cfg.Strategy.Name, cfg.Strategy.Params, strategy.Limits{
		MaxPositions: cfg.Backtest.MaxPositions,
		MinWeight:    cfg.Backtest.MinPositionSize,
		MaxWeight:    cfg.Backtest.MaxPositionSize,
	})
	if err != nil {
		return nil, err
	}

	eng := engine.New(cfg.Backtest, provider, strat)
	return eng.Run(ctx)
}

func writeCSV(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return write(f)
}

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"winnow/internal/config"
	"winnow/internal/gather"
	"winnow/internal/store"
	"winnow/internal/util"
)

func main() {
	fetchBars := flag.Bool("fetch-bars", false, "fetch daily bars from Alpaca into the parquet store")
	fundamentalsCSV := flag.String("fundamentals-csv", "", "import fundamentals from this CSV file into sqlite")
	membershipCSV := flag.String("membership-csv", "", "import universe membership from this CSV file into sqlite")
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

	var gatherers []gather.Gatherer

	if *fetchBars {
		start := cfg.Backtest.Start()
		if cfg.Gather.StartDate != "" {
			start, err = time.Parse("2006-01-02", cfg.Gather.StartDate)
			if err != nil {
				log.Fatalf("parsing gather start_date: %v", err)
			}
		}
		symbols := append([]string{}, cfg.Backtest.Universe...)
		if cfg.Backtest.Benchmark != "" {
			symbols = append(symbols, cfg.Backtest.Benchmark)
		}
		pstore := store.NewParquetStore(cfg.Storage.DataDir)
		gatherers = append(gatherers, gather.NewDailyBarGatherer(
			cfg.Alpaca.APIKey,
			cfg.Alpaca.APISecret,
			cfg.Alpaca.DataURL,
			pstore,
			symbols,
			start,
			cfg.Backtest.End(),
			cfg.Gather.BatchSize,
			cfg.Gather.RateLimitPerMin,
		))
	}

	if *fundamentalsCSV != "" || *membershipCSV != "" {
		if cfg.Storage.SQLitePath == "" {
			log.Fatalf("storage.sqlite_path is required for CSV imports")
		}
		sqlStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening sqlite store: %v", err)
		}
		defer sqlStore.Close()
		gatherers = append(gatherers, gather.NewCSVImporter(sqlStore, *fundamentalsCSV, *membershipCSV))
	}

	if len(gatherers) == 0 {
		log.Fatalf("nothing to do: pass -fetch-bars, -fundamentals-csv, or -membership-csv")
	}

	for _, g := range gatherers {
		if err := g.Run(ctx); err != nil {
			log.Fatalf("%s error: %v", g.Name(), err)
		}
	}
}

package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"winnow/internal/domain"
	"winnow/internal/store"
	"winnow/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*DailyBarGatherer)(nil)

// DailyBarGatherer fetches daily close prices for a fixed symbol list from
// the Alpaca market-data API and writes them to the price store. It is
// idempotent: re-running merges into existing Parquet files without
// duplicating records.
type DailyBarGatherer struct {
	client    *marketdata.Client
	store     store.PriceStore
	symbols   []string
	start     time.Time
	end       time.Time
	batchSize int
	limiter   *util.RateLimiter
	log       *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer for the given symbols and
// date range.
func NewDailyBarGatherer(apiKey, apiSecret, dataURL string, s store.PriceStore, symbols []string, start, end time.Time, batchSize, rateLimitPerMin int) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 200
	}

	return &DailyBarGatherer{
		client:    marketdata.NewClient(opts),
		store:     s,
		symbols:   symbols,
		start:     start,
		end:       end,
		batchSize: batchSize,
		limiter:   util.NewRateLimiter(rateLimitPerMin, 5),
		log:       slog.Default().With("gatherer", "daily-bars"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "daily-bars" }

// Run fetches daily bars for all configured symbols in batches and writes
// them to the price store.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	totalBatches := (len(g.symbols) + g.batchSize - 1) / g.batchSize
	g.log.Info("starting daily-bar gather",
		"symbols", len(g.symbols),
		"batches", totalBatches,
		"start", g.start.Format("2006-01-02"),
		"end", g.end.Format("2006-01-02"),
	)

	for i := 0; i < len(g.symbols); i += g.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+g.batchSize, len(g.symbols))
		batch := g.symbols[i:end]

		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		var points []domain.PricePoint
		err := util.Retry(ctx, 3, time.Second, func() error {
			var ferr error
			points, ferr = g.fetchBatch(batch)
			return ferr
		})
		if err != nil {
			return fmt.Errorf("fetching batch %d/%d: %w", i/g.batchSize+1, totalBatches, err)
		}

		if err := g.store.WritePrices(ctx, points); err != nil {
			return fmt.Errorf("writing batch %d/%d: %w", i/g.batchSize+1, totalBatches, err)
		}
		g.log.Info("batch written",
			"batch", fmt.Sprintf("%d/%d", i/g.batchSize+1, totalBatches),
			"points", len(points),
		)
	}
	return nil
}

// fetchBatch fetches daily bars for multiple symbols in a single API call
// and converts them to price points, normalized to midnight UTC.
func (g *DailyBarGatherer) fetchBatch(symbols []string) ([]domain.PricePoint, error) {
	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     g.start,
		End:       g.end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var points []domain.PricePoint
	for symbol, bars := range multiBars {
		for _, b := range bars {
			d := b.Timestamp.UTC()
			points = append(points, domain.PricePoint{
				Symbol:   strings.ToUpper(symbol),
				Date:     time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
				Close:    b.Close,
				AdjClose: b.Close,
			})
		}
	}
	return points, nil
}

package engine

import (
	"context"
	"log/slog"
	"sync"

	"winnow/internal/report"
)

// Run pairs a name with a ready-to-run engine for batch comparison.
type Run struct {
	Name   string
	Engine *Engine
}

// RunResult is the outcome of one sweep entry.
type RunResult struct {
	Name   string
	Report *report.Report
	Err    error
}

// Sweep executes independent backtest runs concurrently on up to workers
// goroutines. Runs share no mutable state: each engine owns its portfolio
// and series, and the data provider is read-only, so across-run parallelism
// is safe. Cancellation is cooperative and checked before each run starts,
// never mid-run, since an interrupted run would leave a partial series that
// the metrics calculator could not trust. Cancelled runs report ctx.Err().
// Results are returned in input order.
func Sweep(ctx context.Context, runs []Run, workers int) []RunResult {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(runs) {
		workers = len(runs)
	}

	results := make([]RunResult, len(runs))
	indexes := make(chan int, len(runs))
	for i := range runs {
		indexes <- i
	}
	close(indexes)

	log := slog.Default().With("component", "sweep")

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				run := runs[i]
				if err := ctx.Err(); err != nil {
					results[i] = RunResult{Name: run.Name, Err: err}
					continue
				}
				log.Info("sweep run starting", "name", run.Name)
				rep, err := run.Engine.Run(ctx)
				results[i] = RunResult{Name: run.Name, Report: rep, Err: err}
				if err != nil {
					log.Error("sweep run failed", "name", run.Name, "err", err)
				}
			}
		}()
	}
	wg.Wait()

	return results
}

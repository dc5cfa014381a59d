// Package gather implements the data-preparation phase: fetching historical
// prices from the Alpaca market-data API and importing fundamentals from CSV
// into the local stores. Gathering always runs as a separate step before a
// backtest; the simulation itself never performs network or disk fetches.
package gather

import "context"

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run executes the gathering process until complete or ctx is cancelled.
	Run(ctx context.Context) error
}

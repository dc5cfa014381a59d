// Package store defines storage interfaces for historical market data and
// provides Parquet and SQLite implementations. Stores are populated during
// the data-preparation phase and read once when a backtest provider is
// loaded; nothing in the simulation loop touches them.
package store

import (
	"context"
	"time"

	"winnow/internal/domain"
)

// PriceStore persists and retrieves daily closing prices.
type PriceStore interface {
	// WritePrices persists a batch of price points.
	WritePrices(ctx context.Context, points []domain.PricePoint) error

	// ReadPrices returns price points for the given symbol within [start, end],
	// sorted by date.
	ReadPrices(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error)

	// ListSymbols returns all distinct symbols with price data.
	ListSymbols(ctx context.Context) ([]string, error)
}

// FundamentalStore persists and retrieves fundamental snapshots and universe
// membership records.
type FundamentalStore interface {
	// WriteFundamentals persists a batch of fundamental snapshots.
	WriteFundamentals(ctx context.Context, snaps []domain.FundamentalSnapshot) error

	// ReadFundamentals returns all snapshots for the symbol whose availability
	// date is <= until, sorted by availability date.
	ReadFundamentals(ctx context.Context, symbol string, until time.Time) ([]domain.FundamentalSnapshot, error)

	// WriteMemberships persists universe membership records, replacing any
	// existing record for the same symbol.
	WriteMemberships(ctx context.Context, members []domain.Membership) error

	// ReadMemberships returns all membership records, sorted by symbol.
	ReadMemberships(ctx context.Context) ([]domain.Membership, error)
}

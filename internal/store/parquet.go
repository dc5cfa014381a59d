package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"winnow/internal/domain"
)

// Compile-time interface check.
var _ PriceStore = (*ParquetStore)(nil)

// ParquetStore implements PriceStore using Parquet files on disk, one file
// per symbol and year.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// PriceRecord is the Parquet schema for daily closing prices.
type PriceRecord struct {
	Symbol   string  `parquet:"symbol"`
	Date     int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, midnight UTC
	Close    float64 `parquet:"close"`
	AdjClose float64 `parquet:"adj_close"`
}

// ---------------------------------------------------------------------------
// PriceStore implementation
// ---------------------------------------------------------------------------

// WritePrices writes price points to Parquet files organized by symbol and
// year. Each symbol+year combination produces a separate file at:
//
//	<DataDir>/prices/<SYMBOL>/<YYYY>.parquet
//
// Existing records for the same (symbol, date) are replaced.
func (s *ParquetStore) WritePrices(_ context.Context, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]PriceRecord)
	for _, p := range points {
		k := key{symbol: p.Symbol, year: p.Date.Year()}
		groups[k] = append(groups[k], PriceRecord{
			Symbol:   p.Symbol,
			Date:     p.Date.UnixMilli(),
			Close:    p.Close,
			AdjClose: p.AdjClose,
		})
	}

	for k, records := range groups {
		path := s.pricePath(k.symbol, k.year)

		// Read existing records to merge.
		existing, _ := readParquetFile[PriceRecord](path)
		merged := mergePriceRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing prices for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadPrices reads price points from Parquet files for the given symbol and
// date range, sorted by date.
func (s *ParquetStore) ReadPrices(_ context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	var points []domain.PricePoint
	for year := start.Year(); year <= end.Year(); year++ {
		path := s.pricePath(symbol, year)

		records, err := readParquetFile[PriceRecord](path)
		if err != nil {
			// No file for this year, skip.
			continue
		}

		for _, r := range records {
			d := time.UnixMilli(r.Date).UTC()
			if (d.Equal(start) || d.After(start)) && (d.Equal(end) || d.Before(end)) {
				points = append(points, domain.PricePoint{
					Symbol:   r.Symbol,
					Date:     d,
					Close:    r.Close,
					AdjClose: r.AdjClose,
				})
			}
		}
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	return points, nil
}

// ListSymbols lists all symbols that have price data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	dir := filepath.Join(s.DataDir, "prices")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Path and file helpers
// ---------------------------------------------------------------------------

// pricePath returns the filesystem path for a price Parquet file.
// Layout: <dataDir>/prices/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) pricePath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "prices", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergePriceRecords deduplicates price records by (symbol, date), preferring
// new records over existing ones. Results are sorted by date.
func mergePriceRecords(existing, incoming []PriceRecord) []PriceRecord {
	type key struct {
		symbol string
		date   int64
	}
	seen := make(map[key]PriceRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Date}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Date}] = r
	}

	merged := make([]PriceRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}

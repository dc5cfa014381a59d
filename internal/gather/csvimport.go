package gather

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"winnow/internal/domain"
	"winnow/internal/store"
)

// Compile-time interface check.
var _ Gatherer = (*CSVImporter)(nil)

// CSVImporter loads fundamentals and universe membership from CSV files into
// the fundamental store.
//
// Fundamentals file format (header required):
//
//	symbol,as_of,available_at,field,value
//	AAPL,2023-12-31,2024-02-02,earnings_per_share,6.13
//
// Membership file format (header required, delisted_at may be empty):
//
//	symbol,sector,listed_at,delisted_at
//	AAPL,Technology,1980-12-12,
type CSVImporter struct {
	store            store.FundamentalStore
	fundamentalsPath string
	membershipPath   string
	log              *slog.Logger
}

// NewCSVImporter creates a CSVImporter. Either path may be empty to skip
// that import.
func NewCSVImporter(s store.FundamentalStore, fundamentalsPath, membershipPath string) *CSVImporter {
	return &CSVImporter{
		store:            s,
		fundamentalsPath: fundamentalsPath,
		membershipPath:   membershipPath,
		log:              slog.Default().With("gatherer", "csv-import"),
	}
}

// Name returns the gatherer identifier.
func (im *CSVImporter) Name() string { return "csv-import" }

// Run imports the configured CSV files.
func (im *CSVImporter) Run(ctx context.Context) error {
	if im.fundamentalsPath != "" {
		n, err := im.importFundamentals(ctx)
		if err != nil {
			return fmt.Errorf("importing fundamentals from %s: %w", im.fundamentalsPath, err)
		}
		im.log.Info("fundamentals imported", "rows", n)
	}
	if im.membershipPath != "" {
		n, err := im.importMembership(ctx)
		if err != nil {
			return fmt.Errorf("importing membership from %s: %w", im.membershipPath, err)
		}
		im.log.Info("membership imported", "rows", n)
	}
	return nil
}

func (im *CSVImporter) importFundamentals(ctx context.Context) (int, error) {
	rows, err := readCSV(im.fundamentalsPath, 5)
	if err != nil {
		return 0, err
	}

	// Group rows into one snapshot per (symbol, as-of).
	type key struct {
		symbol string
		asOf   string
	}
	snaps := make(map[key]*domain.FundamentalSnapshot)
	var order []key
	for i, row := range rows {
		asOf, err := time.Parse("2006-01-02", row[1])
		if err != nil {
			return 0, fmt.Errorf("row %d: parsing as_of %q: %w", i+2, row[1], err)
		}
		availableAt, err := time.Parse("2006-01-02", row[2])
		if err != nil {
			return 0, fmt.Errorf("row %d: parsing available_at %q: %w", i+2, row[2], err)
		}
		if availableAt.Before(asOf) {
			return 0, fmt.Errorf("row %d: available_at %s precedes as_of %s", i+2, row[2], row[1])
		}
		value, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return 0, fmt.Errorf("row %d: parsing value %q: %w", i+2, row[4], err)
		}

		k := key{symbol: row[0], asOf: row[1]}
		snap, ok := snaps[k]
		if !ok {
			snap = &domain.FundamentalSnapshot{
				Symbol:      row[0],
				AsOf:        asOf,
				AvailableAt: availableAt,
				Fields:      make(map[string]float64),
			}
			snaps[k] = snap
			order = append(order, k)
		}
		snap.Fields[row[3]] = value
	}

	batch := make([]domain.FundamentalSnapshot, 0, len(order))
	for _, k := range order {
		batch = append(batch, *snaps[k])
	}
	return len(rows), im.store.WriteFundamentals(ctx, batch)
}

func (im *CSVImporter) importMembership(ctx context.Context) (int, error) {
	rows, err := readCSV(im.membershipPath, 4)
	if err != nil {
		return 0, err
	}

	members := make([]domain.Membership, 0, len(rows))
	for i, row := range rows {
		listedAt, err := time.Parse("2006-01-02", row[2])
		if err != nil {
			return 0, fmt.Errorf("row %d: parsing listed_at %q: %w", i+2, row[2], err)
		}
		m := domain.Membership{
			Symbol:   row[0],
			Sector:   row[1],
			ListedAt: listedAt,
		}
		if row[3] != "" {
			m.DelistedAt, err = time.Parse("2006-01-02", row[3])
			if err != nil {
				return 0, fmt.Errorf("row %d: parsing delisted_at %q: %w", i+2, row[3], err)
			}
		}
		members = append(members, m)
	}
	return len(rows), im.store.WriteMemberships(ctx, members)
}

// readCSV reads all records after the header, requiring the given number of
// fields per row.
func readCSV(path string, fields int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = fields

	// Skip header.
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

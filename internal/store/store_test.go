package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"winnow/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParquetStoreRoundTrip(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()

	points := []domain.PricePoint{
		{Symbol: "AAPL", Date: date(2020, 12, 30), Close: 133.72, AdjClose: 131.1},
		{Symbol: "AAPL", Date: date(2020, 12, 31), Close: 132.69, AdjClose: 130.08},
		// Spans a year boundary: two files are written.
		{Symbol: "AAPL", Date: date(2021, 1, 4), Close: 129.41, AdjClose: 126.86},
		{Symbol: "MSFT", Date: date(2020, 12, 31), Close: 222.42, AdjClose: 218.6},
	}
	if err := s.WritePrices(ctx, points); err != nil {
		t.Fatalf("WritePrices error: %v", err)
	}

	got, err := s.ReadPrices(ctx, "AAPL", date(2020, 1, 1), date(2021, 12, 31))
	if err != nil {
		t.Fatalf("ReadPrices error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d points, want 3: %v", len(got), got)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Date.After(got[i-1].Date) {
			t.Fatalf("points not sorted by date: %v", got)
		}
	}
	if got[0].Close != 133.72 || got[0].AdjClose != 131.1 {
		t.Errorf("got[0] = %+v, want the 12/30 close", got[0])
	}

	// Range filtering is inclusive on both ends.
	got, _ = s.ReadPrices(ctx, "AAPL", date(2020, 12, 31), date(2020, 12, 31))
	if len(got) != 1 || got[0].Close != 132.69 {
		t.Errorf("single-day read = %v, want the 12/31 close", got)
	}

	symbols, err := s.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols error: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "MSFT" {
		t.Errorf("ListSymbols() = %v, want [AAPL MSFT]", symbols)
	}
}

func TestParquetStoreRewriteReplaces(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()

	first := []domain.PricePoint{{Symbol: "AAPL", Date: date(2020, 6, 1), Close: 100}}
	if err := s.WritePrices(ctx, first); err != nil {
		t.Fatalf("WritePrices error: %v", err)
	}

	// Same date again with a corrected close, plus a new date.
	second := []domain.PricePoint{
		{Symbol: "AAPL", Date: date(2020, 6, 1), Close: 101},
		{Symbol: "AAPL", Date: date(2020, 6, 2), Close: 102},
	}
	if err := s.WritePrices(ctx, second); err != nil {
		t.Fatalf("WritePrices error: %v", err)
	}

	got, err := s.ReadPrices(ctx, "AAPL", date(2020, 6, 1), date(2020, 6, 30))
	if err != nil {
		t.Fatalf("ReadPrices error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d points, want 2 (replaced, not duplicated): %v", len(got), got)
	}
	if got[0].Close != 101 {
		t.Errorf("got[0].Close = %v, want the corrected 101", got[0].Close)
	}
}

func TestParquetStoreMissingSymbol(t *testing.T) {
	s := NewParquetStore(t.TempDir())

	got, err := s.ReadPrices(context.Background(), "NOPE", date(2020, 1, 1), date(2020, 12, 31))
	if err != nil {
		t.Fatalf("ReadPrices error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d points for unknown symbol, want 0", len(got))
	}
}

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteFundamentalsAvailability(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	snaps := []domain.FundamentalSnapshot{
		{
			Symbol:      "AAPL",
			AsOf:        date(2019, 12, 31),
			AvailableAt: date(2020, 2, 3),
			Fields:      map[string]float64{"eps": 4.5, "revenue": 91e9},
		},
		{
			Symbol:      "AAPL",
			AsOf:        date(2020, 3, 31),
			AvailableAt: date(2020, 5, 1),
			Fields:      map[string]float64{"eps": 4.8},
		},
		{
			Symbol:      "MSFT",
			AsOf:        date(2019, 12, 31),
			AvailableAt: date(2020, 1, 30),
			Fields:      map[string]float64{"eps": 5.8},
		},
	}
	if err := s.WriteFundamentals(ctx, snaps); err != nil {
		t.Fatalf("WriteFundamentals error: %v", err)
	}

	// Only the snapshot published by the cutoff comes back.
	got, err := s.ReadFundamentals(ctx, "AAPL", date(2020, 3, 1))
	if err != nil {
		t.Fatalf("ReadFundamentals error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d snapshots, want 1: %v", len(got), got)
	}
	if got[0].Fields["eps"] != 4.5 || got[0].Fields["revenue"] != 91e9 {
		t.Errorf("fields = %v, want the Q4 snapshot regrouped", got[0].Fields)
	}
	if !got[0].AvailableAt.Equal(date(2020, 2, 3)) {
		t.Errorf("AvailableAt = %v, want 2020-02-03", got[0].AvailableAt)
	}

	// A later cutoff returns both, ascending by availability.
	got, err = s.ReadFundamentals(ctx, "AAPL", date(2020, 12, 31))
	if err != nil {
		t.Fatalf("ReadFundamentals error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(got))
	}
	if !got[0].AvailableAt.Before(got[1].AvailableAt) {
		t.Errorf("snapshots not sorted by availability: %v then %v", got[0].AvailableAt, got[1].AvailableAt)
	}
	if got[1].Fields["eps"] != 4.8 {
		t.Errorf("second snapshot eps = %v, want 4.8", got[1].Fields["eps"])
	}

	// Other symbols never leak in.
	got, _ = s.ReadFundamentals(ctx, "MSFT", date(2020, 12, 31))
	if len(got) != 1 || got[0].Symbol != "MSFT" {
		t.Errorf("MSFT read = %v, want only its own snapshot", got)
	}
}

func TestSQLiteFundamentalsRewrite(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	snap := domain.FundamentalSnapshot{
		Symbol:      "AAPL",
		AsOf:        date(2019, 12, 31),
		AvailableAt: date(2020, 2, 3),
		Fields:      map[string]float64{"eps": 4.5},
	}
	if err := s.WriteFundamentals(ctx, []domain.FundamentalSnapshot{snap}); err != nil {
		t.Fatalf("WriteFundamentals error: %v", err)
	}

	// A restated value for the same (symbol, as-of, field) replaces the row.
	snap.Fields["eps"] = 4.6
	if err := s.WriteFundamentals(ctx, []domain.FundamentalSnapshot{snap}); err != nil {
		t.Fatalf("WriteFundamentals error: %v", err)
	}

	got, err := s.ReadFundamentals(ctx, "AAPL", date(2020, 12, 31))
	if err != nil {
		t.Fatalf("ReadFundamentals error: %v", err)
	}
	if len(got) != 1 || got[0].Fields["eps"] != 4.6 {
		t.Errorf("got %v, want one snapshot with eps 4.6", got)
	}
}

func TestSQLiteMemberships(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	members := []domain.Membership{
		{Symbol: "MSFT", Sector: "Technology", ListedAt: date(1986, 3, 13)},
		{Symbol: "LEHM", Sector: "Financials", ListedAt: date(1994, 5, 1), DelistedAt: date(2008, 9, 15)},
	}
	if err := s.WriteMemberships(ctx, members); err != nil {
		t.Fatalf("WriteMemberships error: %v", err)
	}

	got, err := s.ReadMemberships(ctx)
	if err != nil {
		t.Fatalf("ReadMemberships error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d memberships, want 2", len(got))
	}
	// Sorted by symbol.
	if got[0].Symbol != "LEHM" || got[1].Symbol != "MSFT" {
		t.Errorf("order = %s, %s, want LEHM, MSFT", got[0].Symbol, got[1].Symbol)
	}
	if !got[0].DelistedAt.Equal(date(2008, 9, 15)) {
		t.Errorf("LEHM DelistedAt = %v, want 2008-09-15", got[0].DelistedAt)
	}
	// A zero DelistedAt round-trips through the nullable column.
	if !got[1].DelistedAt.IsZero() {
		t.Errorf("MSFT DelistedAt = %v, want zero (still listed)", got[1].DelistedAt)
	}

	// Re-writing a symbol replaces its record.
	if err := s.WriteMemberships(ctx, []domain.Membership{
		{Symbol: "MSFT", Sector: "Information Technology", ListedAt: date(1986, 3, 13)},
	}); err != nil {
		t.Fatalf("WriteMemberships error: %v", err)
	}
	got, _ = s.ReadMemberships(ctx)
	if len(got) != 2 || got[1].Sector != "Information Technology" {
		t.Errorf("after rewrite got %v, want updated MSFT sector", got)
	}
}

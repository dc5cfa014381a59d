package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"winnow/internal/domain"
)

// Compile-time interface check.
var _ FundamentalStore = (*SQLiteStore)(nil)

// SQLiteStore implements FundamentalStore backed by a SQLite database.
// Fundamentals are stored one row per (symbol, as-of, field) so that the
// availability date can be indexed for point-in-time queries.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS fundamentals (
	symbol       TEXT    NOT NULL,
	as_of        INTEGER NOT NULL,
	available_at INTEGER NOT NULL,
	field        TEXT    NOT NULL,
	value        REAL    NOT NULL,
	PRIMARY KEY (symbol, as_of, field)
);
CREATE INDEX IF NOT EXISTS idx_fundamentals_avail ON fundamentals(symbol, available_at);

CREATE TABLE IF NOT EXISTS membership (
	symbol      TEXT PRIMARY KEY,
	sector      TEXT,
	listed_at   INTEGER NOT NULL,
	delisted_at INTEGER
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Fundamentals
// ---------------------------------------------------------------------------

// WriteFundamentals inserts or replaces fundamental snapshots. Each snapshot
// is flattened into one row per field.
func (s *SQLiteStore) WriteFundamentals(ctx context.Context, snaps []domain.FundamentalSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO fundamentals (symbol, as_of, available_at, field, value)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, snap := range snaps {
		for field, value := range snap.Fields {
			if _, err := stmt.ExecContext(ctx,
				snap.Symbol, snap.AsOf.UnixMilli(), snap.AvailableAt.UnixMilli(), field, value,
			); err != nil {
				return fmt.Errorf("inserting fundamental %s/%s: %w", snap.Symbol, field, err)
			}
		}
	}
	return tx.Commit()
}

// ReadFundamentals returns all snapshots for the symbol whose availability
// date is <= until, sorted by availability date ascending. Rows are
// re-grouped into one snapshot per as-of date.
func (s *SQLiteStore) ReadFundamentals(ctx context.Context, symbol string, until time.Time) ([]domain.FundamentalSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT as_of, available_at, field, value
		FROM fundamentals
		WHERE symbol = ? AND available_at <= ?
		ORDER BY available_at, as_of`,
		symbol, until.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byAsOf := make(map[int64]*domain.FundamentalSnapshot)
	var order []int64
	for rows.Next() {
		var asOf, availableAt int64
		var field string
		var value float64
		if err := rows.Scan(&asOf, &availableAt, &field, &value); err != nil {
			return nil, err
		}
		snap, ok := byAsOf[asOf]
		if !ok {
			snap = &domain.FundamentalSnapshot{
				Symbol:      symbol,
				AsOf:        time.UnixMilli(asOf).UTC(),
				AvailableAt: time.UnixMilli(availableAt).UTC(),
				Fields:      make(map[string]float64),
			}
			byAsOf[asOf] = snap
			order = append(order, asOf)
		}
		snap.Fields[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snaps := make([]domain.FundamentalSnapshot, 0, len(order))
	for _, asOf := range order {
		snaps = append(snaps, *byAsOf[asOf])
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].AvailableAt.Before(snaps[j].AvailableAt)
	})
	return snaps, nil
}

// ---------------------------------------------------------------------------
// Membership
// ---------------------------------------------------------------------------

// WriteMemberships inserts or replaces universe membership records.
func (s *SQLiteStore) WriteMemberships(ctx context.Context, members []domain.Membership) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO membership (symbol, sector, listed_at, delisted_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range members {
		var delisted any
		if !m.DelistedAt.IsZero() {
			delisted = m.DelistedAt.UnixMilli()
		}
		if _, err := stmt.ExecContext(ctx, m.Symbol, m.Sector, m.ListedAt.UnixMilli(), delisted); err != nil {
			return fmt.Errorf("inserting membership %s: %w", m.Symbol, err)
		}
	}
	return tx.Commit()
}

// ReadMemberships returns all membership records sorted by symbol.
func (s *SQLiteStore) ReadMemberships(ctx context.Context) ([]domain.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, sector, listed_at, delisted_at FROM membership ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.Membership
	for rows.Next() {
		var m domain.Membership
		var sector sql.NullString
		var listedAt int64
		var delistedAt sql.NullInt64
		if err := rows.Scan(&m.Symbol, &sector, &listedAt, &delistedAt); err != nil {
			return nil, err
		}
		m.Sector = sector.String
		m.ListedAt = time.UnixMilli(listedAt).UTC()
		if delistedAt.Valid {
			m.DelistedAt = time.UnixMilli(delistedAt.Int64).UTC()
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

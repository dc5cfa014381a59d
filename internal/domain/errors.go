package domain

import (
	"fmt"
	"time"
)

// GapKind identifies which kind of data point was missing.
type GapKind string

const (
	GapPrice       GapKind = "price"
	GapFundamental GapKind = "fundamental"
)

// DataGapError reports a missing price or fundamental for one instrument on
// one date. It is recoverable: the caller excludes the instrument from the
// current rebalance or carries the last known price forward, per policy.
type DataGapError struct {
	Symbol string
	Date   time.Time
	Kind   GapKind
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("data gap: no %s for %s as of %s", e.Kind, e.Symbol, e.Date.Format("2006-01-02"))
}

// DataIntegrityError reports a systemic data problem that would make backtest
// results meaningless, such as missing prices for too large a fraction of the
// universe on one date. It is fatal: the run aborts rather than producing
// distorted metrics.
type DataIntegrityError struct {
	Date     time.Time
	Missing  int
	Universe int
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: %d of %d universe instruments missing prices on %s",
		e.Missing, e.Universe, e.Date.Format("2006-01-02"))
}

// InsufficientCashError reports a trade that would drive cash negative. The
// executor sizes buys against available cash, so reaching this error
// indicates a logic defect; it is fatal.
type InsufficientCashError struct {
	Symbol   string
	Date     time.Time
	Cash     float64
	Required float64
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("insufficient cash: buying %s on %s requires %.2f but only %.2f available",
		e.Symbol, e.Date.Format("2006-01-02"), e.Required, e.Cash)
}

// SequenceError reports out-of-order portfolio states or trades detected by
// the metrics calculator. It indicates an engine bug, not a data problem.
type SequenceError struct {
	Index int
	Prev  time.Time
	Next  time.Time
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("sequence error at index %d: %s does not follow %s",
		e.Index, e.Next.Format("2006-01-02"), e.Prev.Format("2006-01-02"))
}

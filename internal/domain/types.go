// Package domain defines the core value types shared across the backtest
// engine: instruments, price and fundamental data points, positions, trades,
// and portfolio snapshots.
package domain

import (
	"math"
	"time"
)

// Instrument is an immutable reference entity identifying a tradeable
// security. Instruments are created once per backtest run from the
// configured universe.
type Instrument struct {
	Symbol string
	Sector string
}

// PricePoint is a single daily closing price for an instrument.
type PricePoint struct {
	Symbol   string
	Date     time.Time
	Close    float64
	AdjClose float64
}

// FundamentalSnapshot is a set of named fundamental fields for an instrument
// as of a fiscal reporting date. AvailableAt is the publish date: the first
// simulated date on which the snapshot may be observed. AsOf alone must never
// be used for visibility decisions, since financial data is not knowable the
// instant a fiscal period ends.
type FundamentalSnapshot struct {
	Symbol      string
	AsOf        time.Time
	AvailableAt time.Time
	Fields      map[string]float64
}

// Membership records an instrument's presence in the investable universe.
// A zero DelistedAt means the instrument is still listed.
type Membership struct {
	Symbol     string
	Sector     string
	ListedAt   time.Time
	DelistedAt time.Time
}

// Active reports whether the instrument is tradeable on the given date.
func (m Membership) Active(date time.Time) bool {
	if date.Before(m.ListedAt) {
		return false
	}
	if !m.DelistedAt.IsZero() && !date.Before(m.DelistedAt) {
		return false
	}
	return true
}

// Position is a holding of a single instrument. CostBasis is the average
// cost per share of the open lot.
type Position struct {
	Symbol    string
	Shares    float64
	CostBasis float64
}

// MarketValue returns the position's value at the given price.
func (p Position) MarketValue(price float64) float64 {
	return p.Shares * price
}

// Trade is a single executed buy or sell. Shares is signed: positive for
// buys, negative for sells. Price is the quoted close; Cost and Slippage are
// the dollar amounts charged against the portfolio on top of (buys) or out of
// (sells) the quoted notional. Trades are immutable once recorded.
type Trade struct {
	Symbol   string
	Date     time.Time
	Shares   float64
	Price    float64
	Cost     float64
	Slippage float64
}

// Notional returns the absolute quoted value of the trade, |shares| * price.
func (t Trade) Notional() float64 {
	return math.Abs(t.Shares) * t.Price
}

// PortfolioState is a mark-to-market snapshot of the portfolio on one
// simulated date. The ordered sequence of PortfolioStates over a run forms
// the performance record consumed by the metrics calculator.
type PortfolioState struct {
	Date       time.Time
	Cash       float64
	Positions  map[string]Position
	TotalValue float64

	// Stale lists symbols valued at a carried-forward price because no
	// quote was available on Date.
	Stale []string
}

// RebalanceFrequency is the schedule on which target weights are recomputed.
type RebalanceFrequency string

const (
	Monthly   RebalanceFrequency = "monthly"
	Quarterly RebalanceFrequency = "quarterly"
	Annually  RebalanceFrequency = "annually"
)

// Valid reports whether f is a recognized frequency.
func (f RebalanceFrequency) Valid() bool {
	switch f {
	case Monthly, Quarterly, Annually:
		return true
	}
	return false
}

// PeriodsPerYear returns the annualization base for the frequency.
func (f RebalanceFrequency) PeriodsPerYear() float64 {
	switch f {
	case Monthly:
		return 12
	case Quarterly:
		return 4
	case Annually:
		return 1
	}
	return 12
}

// Months returns the calendar length of one rebalance period.
func (f RebalanceFrequency) Months() int {
	switch f {
	case Monthly:
		return 1
	case Quarterly:
		return 3
	case Annually:
		return 12
	}
	return 1
}

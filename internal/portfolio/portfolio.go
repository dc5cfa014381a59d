// Package portfolio holds the portfolio state machine and the trade
// executor. The portfolio owns cash, positions, and the append-only trade
// history; the executor is the only component that mutates it during a
// rebalance.
package portfolio

import (
	"errors"
	"math"
	"sort"
	"time"

	"winnow/internal/domain"
)

// PriceFunc looks up the price of a symbol as of a date. A
// *domain.DataGapError return marks the price as unavailable.
type PriceFunc func(symbol string, date time.Time) (float64, error)

// cashTolerance absorbs floating-point residue when checking the
// non-negative-cash invariant.
const cashTolerance = 1e-6

// Portfolio tracks cash, open positions, and the trade history of one
// backtest run. It is exclusively owned by that run and not safe for
// concurrent use.
type Portfolio struct {
	cash      float64
	positions map[string]domain.Position
	trades    []domain.Trade

	// lastMarks remembers the most recent observed price per symbol so a
	// position can be valued across a quote gap.
	lastMarks map[string]float64

	// carryStale controls gap handling during mark-to-market: when true a
	// gapped position is valued at its last known mark and flagged stale;
	// when false the gap is a hard error.
	carryStale bool
}

// New creates a Portfolio holding only cash. carryStale selects the
// stale-price policy applied by MarkToMarket.
func New(initialCapital float64, carryStale bool) *Portfolio {
	return &Portfolio{
		cash:       initialCapital,
		positions:  make(map[string]domain.Position),
		lastMarks:  make(map[string]float64),
		carryStale: carryStale,
	}
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() float64 { return p.cash }

// Shares returns the share count held for a symbol, zero if not held.
func (p *Portfolio) Shares(symbol string) float64 {
	return p.positions[symbol].Shares
}

// Positions returns a copy of the current positions keyed by symbol.
func (p *Portfolio) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(p.positions))
	for sym, pos := range p.positions {
		out[sym] = pos
	}
	return out
}

// Trades returns a copy of the trade history in execution order.
func (p *Portfolio) Trades() []domain.Trade {
	return append([]domain.Trade(nil), p.trades...)
}

// LastMark returns the most recent observed price for a symbol.
func (p *Portfolio) LastMark(symbol string) (float64, bool) {
	m, ok := p.lastMarks[symbol]
	return m, ok
}

// ApplyTrade updates cash and positions for one trade and appends it to the
// history. Buys debit the quoted notional plus cost and slippage; sells
// credit the quoted notional minus cost and slippage. A buy that would drive
// cash negative returns *domain.InsufficientCashError: the executor sizes
// buys against available cash, so hitting it means a logic defect upstream.
func (p *Portfolio) ApplyTrade(t domain.Trade) error {
	if t.Shares == 0 {
		return nil
	}
	notional := t.Notional()

	if t.Shares > 0 {
		required := notional + t.Cost + t.Slippage
		if required > p.cash+cashTolerance {
			return &domain.InsufficientCashError{
				Symbol:   t.Symbol,
				Date:     t.Date,
				Cash:     p.cash,
				Required: required,
			}
		}
		p.cash -= required
		if p.cash < 0 {
			p.cash = 0
		}

		pos := p.positions[t.Symbol]
		newShares := pos.Shares + t.Shares
		pos.CostBasis = (pos.CostBasis*pos.Shares + t.Price*t.Shares) / newShares
		pos.Shares = newShares
		pos.Symbol = t.Symbol
		p.positions[t.Symbol] = pos
	} else {
		p.cash += notional - t.Cost - t.Slippage

		pos := p.positions[t.Symbol]
		pos.Shares += t.Shares // t.Shares is negative
		if pos.Shares < 1e-9 {
			delete(p.positions, t.Symbol)
		} else {
			p.positions[t.Symbol] = pos
		}
	}

	p.lastMarks[t.Symbol] = t.Price
	p.trades = append(p.trades, t)
	return nil
}

// MarkToMarket values every position at the given date and returns the
// resulting snapshot. Positions whose price is gapped are valued at the
// last known mark (or cost basis if none was ever observed) and listed in
// the snapshot's Stale field; with the strict policy the gap is returned as
// an error instead. The snapshot satisfies cash + sum(position values) ==
// total by construction.
func (p *Portfolio) MarkToMarket(date time.Time, price PriceFunc) (domain.PortfolioState, error) {
	state := domain.PortfolioState{
		Date:      date,
		Cash:      p.cash,
		Positions: make(map[string]domain.Position, len(p.positions)),
	}

	symbols := make([]string, 0, len(p.positions))
	for sym := range p.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	total := p.cash
	for _, sym := range symbols {
		pos := p.positions[sym]

		px, err := price(sym, date)
		switch {
		case err == nil:
			p.lastMarks[sym] = px
		case isGap(err) && p.carryStale:
			if mark, ok := p.lastMarks[sym]; ok {
				px = mark
			} else {
				px = pos.CostBasis
			}
			state.Stale = append(state.Stale, sym)
		default:
			return domain.PortfolioState{}, err
		}

		total += pos.MarketValue(px)
		state.Positions[sym] = pos
	}

	state.TotalValue = total
	return state, nil
}

func isGap(err error) bool {
	var gap *domain.DataGapError
	return errors.As(err, &gap)
}

// Weight returns a position's fraction of the given total value.
func Weight(pos domain.Position, price, totalValue float64) float64 {
	if totalValue <= 0 {
		return 0
	}
	return pos.MarketValue(price) / totalValue
}

// roundShares trims the floating-point residue left by share arithmetic.
func roundShares(shares float64) float64 {
	return math.Round(shares*1e9) / 1e9
}

// Package data provides the point-in-time historical data provider consumed
// by the backtest engine. All lookups are served from memory: the provider is
// loaded from the underlying stores in a preparation phase before the
// simulation starts, so nothing inside the simulation loop performs I/O.
package data

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"winnow/internal/domain"
	"winnow/internal/store"
)

// Options controls provider lookup behavior.
type Options struct {
	// LookbackDays is how many calendar days before the requested date a
	// price may be and still be served, tolerating market holidays. A price
	// older than that is a data gap; the provider never interpolates.
	LookbackDays int

	// HistoryDays is how many calendar days of price history before the
	// backtest start to preload, so strategies can look at trailing windows
	// on the first rebalance date.
	HistoryDays int

	// PriceOnly lists symbols whose prices are loaded but which never join
	// the investable universe, such as the benchmark index proxy.
	PriceOnly []string
}

func (o Options) priceOnly(symbol string) bool {
	for _, s := range o.PriceOnly {
		if s == symbol {
			return true
		}
	}
	return false
}

// Provider serves point-in-time-safe reads of prices, fundamentals, and
// universe membership. It is read-only after Load and safe for concurrent
// use by independent backtest runs.
type Provider struct {
	prices       map[string][]domain.PricePoint          // sorted by date
	fundamentals map[string][]domain.FundamentalSnapshot // sorted by availability date
	members      []domain.Membership
	tradingDays  []time.Time // union of all price dates, sorted
	opts         Options
	log          *slog.Logger
}

// Load builds a Provider for the given symbols and date range by reading the
// price and fundamental stores into memory. fs may be nil when the strategy
// needs no fundamentals; membership then defaults to always-listed.
func Load(ctx context.Context, ps store.PriceStore, fs store.FundamentalStore, symbols []string, start, end time.Time, opts Options) (*Provider, error) {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 5
	}

	p := &Provider{
		prices:       make(map[string][]domain.PricePoint, len(symbols)),
		fundamentals: make(map[string][]domain.FundamentalSnapshot, len(symbols)),
		opts:         opts,
		log:          slog.Default().With("component", "data-provider"),
	}

	loadStart := start.AddDate(0, 0, -(opts.HistoryDays + opts.LookbackDays))
	daySet := make(map[time.Time]struct{})

	for _, sym := range symbols {
		points, err := ps.ReadPrices(ctx, sym, loadStart, end)
		if err != nil {
			return nil, fmt.Errorf("loading prices for %s: %w", sym, err)
		}
		sort.Slice(points, func(i, j int) bool {
			return points[i].Date.Before(points[j].Date)
		})
		p.prices[sym] = points
		for _, pt := range points {
			if !pt.Date.Before(start) && !pt.Date.After(end) {
				daySet[pt.Date] = struct{}{}
			}
		}

		if fs != nil {
			snaps, err := fs.ReadFundamentals(ctx, sym, end)
			if err != nil {
				return nil, fmt.Errorf("loading fundamentals for %s: %w", sym, err)
			}
			p.fundamentals[sym] = snaps
		}
	}

	if fs != nil {
		members, err := fs.ReadMemberships(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading memberships: %w", err)
		}
		known := make(map[string]domain.Membership, len(members))
		for _, m := range members {
			known[m.Symbol] = m
		}
		for _, sym := range symbols {
			if opts.priceOnly(sym) {
				continue
			}
			if m, ok := known[sym]; ok {
				p.members = append(p.members, m)
			} else {
				p.members = append(p.members, domain.Membership{Symbol: sym})
			}
		}
	} else {
		for _, sym := range symbols {
			if opts.priceOnly(sym) {
				continue
			}
			p.members = append(p.members, domain.Membership{Symbol: sym})
		}
	}

	p.tradingDays = make([]time.Time, 0, len(daySet))
	for d := range daySet {
		p.tradingDays = append(p.tradingDays, d)
	}
	sort.Slice(p.tradingDays, func(i, j int) bool {
		return p.tradingDays[i].Before(p.tradingDays[j])
	})

	return p, nil
}

// NewStatic builds a Provider directly from in-memory series, bypassing the
// stores. Intended for tests and synthetic datasets.
func NewStatic(prices map[string][]domain.PricePoint, fundamentals map[string][]domain.FundamentalSnapshot, members []domain.Membership, opts Options) *Provider {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 5
	}

	p := &Provider{
		prices:       make(map[string][]domain.PricePoint, len(prices)),
		fundamentals: make(map[string][]domain.FundamentalSnapshot, len(fundamentals)),
		members:      members,
		opts:         opts,
		log:          slog.Default().With("component", "data-provider"),
	}

	daySet := make(map[time.Time]struct{})
	for sym, points := range prices {
		sorted := append([]domain.PricePoint(nil), points...)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Date.Before(sorted[j].Date)
		})
		p.prices[sym] = sorted
		for _, pt := range sorted {
			daySet[pt.Date] = struct{}{}
		}
	}
	for sym, snaps := range fundamentals {
		sorted := append([]domain.FundamentalSnapshot(nil), snaps...)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].AvailableAt.Before(sorted[j].AvailableAt)
		})
		p.fundamentals[sym] = sorted
	}
	if members == nil {
		for sym := range prices {
			if opts.priceOnly(sym) {
				continue
			}
			p.members = append(p.members, domain.Membership{Symbol: sym})
		}
		sort.Slice(p.members, func(i, j int) bool {
			return p.members[i].Symbol < p.members[j].Symbol
		})
	}

	p.tradingDays = make([]time.Time, 0, len(daySet))
	for d := range daySet {
		p.tradingDays = append(p.tradingDays, d)
	}
	sort.Slice(p.tradingDays, func(i, j int) bool {
		return p.tradingDays[i].Before(p.tradingDays[j])
	})

	return p
}

// Price returns the closing price for symbol known as of date: the most
// recent close on or before date, no older than the lookback window. Returns
// a *domain.DataGapError when no such price exists.
func (p *Provider) Price(symbol string, date time.Time) (float64, error) {
	points := p.prices[symbol]
	idx := sort.Search(len(points), func(i int) bool {
		return points[i].Date.After(date)
	})
	if idx == 0 {
		return 0, &domain.DataGapError{Symbol: symbol, Date: date, Kind: domain.GapPrice}
	}
	last := points[idx-1]
	if date.Sub(last.Date) > time.Duration(p.opts.LookbackDays)*24*time.Hour {
		return 0, &domain.DataGapError{Symbol: symbol, Date: date, Kind: domain.GapPrice}
	}
	return last.Close, nil
}

// History returns up to n trailing closes for the symbol ending at the last
// close on or before date, oldest first. Fewer than n values are returned
// when less history exists.
func (p *Provider) History(symbol string, date time.Time, n int) []float64 {
	points := p.prices[symbol]
	idx := sort.Search(len(points), func(i int) bool {
		return points[i].Date.After(date)
	})
	lo := idx - n
	if lo < 0 {
		lo = 0
	}
	closes := make([]float64, 0, idx-lo)
	for _, pt := range points[lo:idx] {
		closes = append(closes, pt.Close)
	}
	return closes
}

// Fundamentals returns the most recent snapshot for the symbol whose
// availability date is <= date. The as-of (reporting) date is deliberately
// not consulted: a snapshot becomes visible only once published. Returns a
// *domain.DataGapError when nothing has been published yet.
func (p *Provider) Fundamentals(symbol string, date time.Time) (domain.FundamentalSnapshot, error) {
	snaps := p.fundamentals[symbol]
	idx := sort.Search(len(snaps), func(i int) bool {
		return snaps[i].AvailableAt.After(date)
	})
	if idx == 0 {
		return domain.FundamentalSnapshot{}, &domain.DataGapError{
			Symbol: symbol, Date: date, Kind: domain.GapFundamental,
		}
	}
	return snaps[idx-1], nil
}

// Universe returns the instruments tradeable on the given date, sorted by
// symbol. Instruments outside their listing window are excluded, so a
// delisted instrument never appears after its delisting date.
func (p *Provider) Universe(date time.Time) []domain.Instrument {
	var instruments []domain.Instrument
	for _, m := range p.members {
		if m.Active(date) {
			instruments = append(instruments, domain.Instrument{Symbol: m.Symbol, Sector: m.Sector})
		}
	}
	return instruments
}

// TradingDays returns all dates within [start, end] on which at least one
// instrument has a price, sorted ascending. This is the simulated clock.
func (p *Provider) TradingDays(start, end time.Time) []time.Time {
	var days []time.Time
	for _, d := range p.tradingDays {
		if !d.Before(start) && !d.After(end) {
			days = append(days, d)
		}
	}
	return days
}

package portfolio

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"winnow/internal/domain"
)

// ExecConfig holds the cost model and sizing constraints applied to every
// rebalance.
type ExecConfig struct {
	MinPositionSize float64 // drop targets below this weight
	MaxPositionSize float64 // clamp targets above this weight
	TransactionCost float64 // fraction of trade notional
	Slippage        float64 // fraction of trade notional, charged against the trade
	CashBuffer      float64 // fraction of total value kept uninvested
}

// Executor converts target weights into concrete, cost-adjusted trades and
// applies them to a Portfolio.
type Executor struct {
	cfg ExecConfig
	log *slog.Logger
}

// NewExecutor creates an Executor with the given cost model.
func NewExecutor(cfg ExecConfig) *Executor {
	return &Executor{
		cfg: cfg,
		log: slog.Default().With("component", "executor"),
	}
}

// Rebalance moves the portfolio toward the target weights using the quoted
// prices. Sells execute before buys so freed cash can fund purchases, and
// buys are scaled down proportionally when cash cannot cover them all after
// costs, a recoverable condition rather than an error. Held symbols without a
// quote are left untouched. One trade is recorded per non-zero share delta.
func (e *Executor) Rebalance(p *Portfolio, date time.Time, targets map[string]float64, prices map[string]float64) error {
	total := e.totalValue(p, prices)
	if total <= 0 {
		return fmt.Errorf("rebalance on %s: portfolio value is %v", date.Format("2006-01-02"), total)
	}
	investable := total * (1 - e.cfg.CashBuffer)

	// Desired share counts per symbol: clamped targets plus implicit zero
	// targets for held symbols the strategy dropped.
	desired := make(map[string]float64)
	for sym, w := range targets {
		px, ok := prices[sym]
		if !ok || px <= 0 {
			continue
		}
		if e.cfg.MaxPositionSize > 0 && w > e.cfg.MaxPositionSize {
			w = e.cfg.MaxPositionSize
		}
		if w < e.cfg.MinPositionSize {
			w = 0
		}
		desired[sym] = math.Floor(w * investable / px)
	}
	for sym := range p.positions {
		if _, targeted := desired[sym]; targeted {
			continue
		}
		if _, ok := prices[sym]; ok {
			desired[sym] = 0
		}
	}

	symbols := make([]string, 0, len(desired))
	for sym := range desired {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	// Sells first.
	for _, sym := range symbols {
		delta := roundShares(desired[sym] - p.Shares(sym))
		if delta >= 0 {
			continue
		}
		if err := p.ApplyTrade(e.trade(sym, date, delta, prices[sym])); err != nil {
			return err
		}
	}

	// Collect buys and the cash they need including costs.
	type buy struct {
		symbol string
		shares float64
	}
	var buys []buy
	required := 0.0
	costRate := 1 + e.cfg.TransactionCost + e.cfg.Slippage
	for _, sym := range symbols {
		delta := roundShares(desired[sym] - p.Shares(sym))
		if delta <= 0 {
			continue
		}
		buys = append(buys, buy{symbol: sym, shares: delta})
		required += delta * prices[sym] * costRate
	}
	if len(buys) == 0 {
		return nil
	}

	// Cash available for buys keeps the configured buffer uninvested.
	available := p.Cash() - total*e.cfg.CashBuffer
	if available < 0 {
		available = 0
	}
	if required > available {
		scale := available / required
		e.log.Debug("scaling buys to available cash",
			"date", date.Format("2006-01-02"),
			"required", required,
			"available", available,
			"scale", scale,
		)
		for i := range buys {
			buys[i].shares = math.Floor(buys[i].shares * scale)
		}
	}

	for _, b := range buys {
		if b.shares <= 0 {
			continue
		}
		if err := p.ApplyTrade(e.trade(b.symbol, date, b.shares, prices[b.symbol])); err != nil {
			return err
		}
	}
	return nil
}

// totalValue marks the portfolio using the quoted prices, falling back to
// the last known mark (or cost basis) for held symbols without a quote.
func (e *Executor) totalValue(p *Portfolio, prices map[string]float64) float64 {
	total := p.Cash()
	for sym, pos := range p.positions {
		px, ok := prices[sym]
		if !ok {
			if mark, found := p.LastMark(sym); found {
				px = mark
			} else {
				px = pos.CostBasis
			}
		}
		total += pos.MarketValue(px)
	}
	return total
}

// trade builds a trade record at the quoted price with cost and slippage as
// fractions of notional.
func (e *Executor) trade(symbol string, date time.Time, shares, price float64) domain.Trade {
	notional := math.Abs(shares) * price
	return domain.Trade{
		Symbol:   symbol,
		Date:     date,
		Shares:   shares,
		Price:    price,
		Cost:     notional * e.cfg.TransactionCost,
		Slippage: notional * e.cfg.Slippage,
	}
}

// Package report packages a completed backtest's metrics and raw series for
// display and downstream tabular export.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"winnow/internal/domain"
	"winnow/internal/metrics"
)

// Gap records one data gap absorbed during a run, for post-hoc review.
type Gap struct {
	Date   time.Time
	Symbol string
	Kind   domain.GapKind
}

// Report is the structured output of one backtest run: summary metrics plus
// the full portfolio state and trade series.
type Report struct {
	Strategy string
	Summary  metrics.Summary
	States   []domain.PortfolioState
	Trades   []domain.Trade
	Gaps     []Gap
}

// Text renders a human-readable summary.
func (r *Report) Text() string {
	s := r.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "===== BACKTEST: %s =====\n", r.Strategy)
	fmt.Fprintf(&b, "Period:          %s to %s\n",
		s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Initial Capital: $%.2f\n", s.InitialCapital)
	fmt.Fprintf(&b, "Final Value:     $%.2f\n\n", s.FinalValue)

	b.WriteString("PERFORMANCE\n")
	fmt.Fprintf(&b, "  Total Return:  %s\n", pct(s.TotalReturn))
	fmt.Fprintf(&b, "  CAGR:          %s\n", pct(s.CAGR))
	fmt.Fprintf(&b, "  Volatility:    %s\n", pct(s.Volatility))
	fmt.Fprintf(&b, "  Max Drawdown:  %s\n", pct(s.MaxDrawdown))
	fmt.Fprintf(&b, "  Sharpe:        %s\n", num(s.Sharpe))
	fmt.Fprintf(&b, "  Sortino:       %s\n\n", num(s.Sortino))

	b.WriteString("TRADING\n")
	fmt.Fprintf(&b, "  Trades:        %d\n", s.TotalTrades)
	fmt.Fprintf(&b, "  Round Trips:   %d\n", s.RoundTrips)
	fmt.Fprintf(&b, "  Win Rate:      %s\n", pct(s.WinRate))
	fmt.Fprintf(&b, "  Turnover:      %s\n", num(s.Turnover))
	fmt.Fprintf(&b, "  Total Costs:   $%.2f\n", s.TotalCosts)
	fmt.Fprintf(&b, "  Slippage:      $%.2f\n", s.TotalSlippage)

	if bm := s.Benchmark; bm != nil {
		b.WriteString("\nBENCHMARK\n")
		fmt.Fprintf(&b, "  Bench Return:  %s\n", pct(bm.TotalReturn))
		fmt.Fprintf(&b, "  Alpha:         %s\n", pct(bm.Alpha))
		fmt.Fprintf(&b, "  Beta:          %s\n", num(bm.Beta))
		fmt.Fprintf(&b, "  Info Ratio:    %s\n", num(bm.InformationRatio))
	}

	if len(r.Gaps) > 0 {
		fmt.Fprintf(&b, "\nDATA GAPS (%d)\n", len(r.Gaps))
		for _, g := range r.Gaps {
			fmt.Fprintf(&b, "  %s %s (%s)\n", g.Date.Format("2006-01-02"), g.Symbol, g.Kind)
		}
	}

	return b.String()
}

// WriteStatesCSV exports the portfolio state series, one row per valuation
// date with positions flattened to "SYM:shares" pairs.
func (r *Report) WriteStatesCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "cash", "total_value", "positions", "stale"}); err != nil {
		return err
	}
	for _, st := range r.States {
		var parts []string
		syms := make([]string, 0, len(st.Positions))
		for sym := range st.Positions {
			syms = append(syms, sym)
		}
		sort.Strings(syms)
		for _, sym := range syms {
			parts = append(parts, fmt.Sprintf("%s:%g", sym, st.Positions[sym].Shares))
		}
		row := []string{
			st.Date.Format("2006-01-02"),
			strconv.FormatFloat(st.Cash, 'f', 2, 64),
			strconv.FormatFloat(st.TotalValue, 'f', 2, 64),
			strings.Join(parts, " "),
			strings.Join(st.Stale, " "),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTradesCSV exports the trade history.
func (r *Report) WriteTradesCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "symbol", "shares", "price", "cost", "slippage"}); err != nil {
		return err
	}
	for _, t := range r.Trades {
		row := []string{
			t.Date.Format("2006-01-02"),
			t.Symbol,
			strconv.FormatFloat(t.Shares, 'f', -1, 64),
			strconv.FormatFloat(t.Price, 'f', 4, 64),
			strconv.FormatFloat(t.Cost, 'f', 4, 64),
			strconv.FormatFloat(t.Slippage, 'f', 4, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func pct(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", v*100)
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

// Package metrics derives performance, risk, and trading-activity statistics
// from a completed backtest's portfolio state series and trade history.
// Calculation is a pure function of its inputs: running it twice on the same
// series yields identical results.
package metrics

import (
	"math"
	"time"

	"winnow/internal/domain"
)

// Config holds the parameters the statistics are computed against.
type Config struct {
	InitialCapital float64
	RiskFreeRate   float64 // annualized

	// PeriodsPerYear is the annualization base for the valuation series.
	// States are recorded per trading day, so this defaults to 252.
	PeriodsPerYear float64
}

// Summary is the full set of computed statistics. Metrics that cannot be
// computed from the available data (volatility with fewer than two valuation
// points, win rate with no closed round trips) are NaN rather than zero, so
// an undefined value is never mistaken for a real one.
type Summary struct {
	StartDate time.Time
	EndDate   time.Time

	InitialCapital float64
	FinalValue     float64

	TotalReturn float64
	CAGR        float64

	Volatility  float64
	MaxDrawdown float64
	Sharpe      float64
	Sortino     float64

	TotalTrades   int
	RoundTrips    int
	WinRate       float64
	Turnover      float64
	TotalCosts    float64
	TotalSlippage float64

	// Benchmark is nil when no benchmark series was supplied.
	Benchmark *BenchmarkSummary
}

// BenchmarkSummary compares the portfolio against a benchmark return series
// over the same dates.
type BenchmarkSummary struct {
	TotalReturn      float64
	CAGR             float64
	Alpha            float64
	Beta             float64
	TrackingError    float64
	InformationRatio float64
}

// Calculate computes all statistics from the state series and trade history,
// optionally against a benchmark price series. It validates that both series
// are in strictly increasing (states) or non-decreasing (trades) date order
// and returns a *domain.SequenceError otherwise; out-of-order records mean
// an engine bug, not a data problem.
func Calculate(states []domain.PortfolioState, trades []domain.Trade, benchmark []domain.PricePoint, cfg Config) (Summary, error) {
	if err := validateOrder(states, trades); err != nil {
		return Summary{}, err
	}
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = 252
	}

	s := Summary{
		InitialCapital: cfg.InitialCapital,
		TotalReturn:    math.NaN(),
		CAGR:           math.NaN(),
		Volatility:     math.NaN(),
		MaxDrawdown:    math.NaN(),
		Sharpe:         math.NaN(),
		Sortino:        math.NaN(),
		WinRate:        math.NaN(),
		Turnover:       math.NaN(),
		TotalTrades:    len(trades),
	}
	if len(states) == 0 {
		return s, nil
	}

	s.StartDate = states[0].Date
	s.EndDate = states[len(states)-1].Date
	s.FinalValue = states[len(states)-1].TotalValue
	s.TotalReturn = s.FinalValue/cfg.InitialCapital - 1

	years := s.EndDate.Sub(s.StartDate).Hours() / (24 * 365.25)
	if years > 0 {
		s.CAGR = math.Pow(1+s.TotalReturn, 1/years) - 1
	}

	s.MaxDrawdown = maxDrawdown(states)

	returns := periodReturns(states)
	if len(returns) >= 2 {
		s.Volatility = stddev(returns) * math.Sqrt(cfg.PeriodsPerYear)
		if s.Volatility > 0 && !math.IsNaN(s.CAGR) {
			s.Sharpe = (s.CAGR - cfg.RiskFreeRate) / s.Volatility
		}
		if dd := downsideDeviation(returns, cfg.RiskFreeRate/cfg.PeriodsPerYear); dd > 0 && !math.IsNaN(s.CAGR) {
			s.Sortino = (s.CAGR - cfg.RiskFreeRate) / (dd * math.Sqrt(cfg.PeriodsPerYear))
		}
	}

	s.Turnover = turnover(states, trades)
	s.RoundTrips, s.WinRate = roundTripWinRate(trades)
	for _, t := range trades {
		s.TotalCosts += t.Cost
		s.TotalSlippage += t.Slippage
	}

	if len(benchmark) > 0 {
		s.Benchmark = compareBenchmark(states, benchmark, returns, s, cfg)
	}

	return s, nil
}

// validateOrder checks that states are strictly increasing and trades
// non-decreasing by date.
func validateOrder(states []domain.PortfolioState, trades []domain.Trade) error {
	for i := 1; i < len(states); i++ {
		if !states[i].Date.After(states[i-1].Date) {
			return &domain.SequenceError{Index: i, Prev: states[i-1].Date, Next: states[i].Date}
		}
	}
	for i := 1; i < len(trades); i++ {
		if trades[i].Date.Before(trades[i-1].Date) {
			return &domain.SequenceError{Index: i, Prev: trades[i-1].Date, Next: trades[i].Date}
		}
	}
	return nil
}

// periodReturns computes simple returns between consecutive valuations.
// Simple rather than log returns keep compounding intuitive in reports.
func periodReturns(states []domain.PortfolioState) []float64 {
	if len(states) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(states)-1)
	for i := 1; i < len(states); i++ {
		prev := states[i-1].TotalValue
		if prev > 0 {
			returns = append(returns, states[i].TotalValue/prev-1)
		}
	}
	return returns
}

// maxDrawdown returns the largest peak-to-trough decline of the value curve.
func maxDrawdown(states []domain.PortfolioState) float64 {
	maxDD := 0.0
	peak := states[0].TotalValue
	for _, st := range states {
		if st.TotalValue > peak {
			peak = st.TotalValue
		}
		if peak > 0 {
			if dd := (peak - st.TotalValue) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// turnover is the sum of absolute trade notional divided by the average
// portfolio value over the run.
func turnover(states []domain.PortfolioState, trades []domain.Trade) float64 {
	avg := 0.0
	for _, st := range states {
		avg += st.TotalValue
	}
	avg /= float64(len(states))
	if avg <= 0 {
		return math.NaN()
	}

	traded := 0.0
	for _, t := range trades {
		traded += t.Notional()
	}
	return traded / avg
}

// roundTripWinRate replays the trade history with average-cost accounting
// and classifies each sell by its realized P&L net of that sell's costs.
func roundTripWinRate(trades []domain.Trade) (roundTrips int, winRate float64) {
	type lot struct {
		shares float64
		basis  float64 // average cost per share
	}
	open := make(map[string]lot)
	wins := 0

	for _, t := range trades {
		l := open[t.Symbol]
		if t.Shares > 0 {
			newShares := l.shares + t.Shares
			l.basis = (l.basis*l.shares + t.Price*t.Shares) / newShares
			l.shares = newShares
			open[t.Symbol] = l
			continue
		}

		sold := -t.Shares
		realized := (t.Price-l.basis)*sold - t.Cost - t.Slippage
		roundTrips++
		if realized > 0 {
			wins++
		}
		l.shares -= sold
		if l.shares < 1e-9 {
			delete(open, t.Symbol)
		} else {
			open[t.Symbol] = l
		}
	}

	if roundTrips == 0 {
		return 0, math.NaN()
	}
	return roundTrips, float64(wins) / float64(roundTrips)
}

// compareBenchmark aligns the benchmark series to the portfolio's valuation
// dates by forward-filling the benchmark value (never the portfolio's), then
// computes beta, alpha, and information ratio.
func compareBenchmark(states []domain.PortfolioState, benchmark []domain.PricePoint, portfolioReturns []float64, s Summary, cfg Config) *BenchmarkSummary {
	values := alignForwardFill(states, benchmark)
	if values == nil {
		return nil
	}

	b := &BenchmarkSummary{
		Alpha:            math.NaN(),
		Beta:             math.NaN(),
		TrackingError:    math.NaN(),
		InformationRatio: math.NaN(),
	}

	first, last := values[0], values[len(values)-1]
	b.TotalReturn = last/first - 1
	years := s.EndDate.Sub(s.StartDate).Hours() / (24 * 365.25)
	if years > 0 {
		b.CAGR = math.Pow(1+b.TotalReturn, 1/years) - 1
	}

	benchReturns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] > 0 {
			benchReturns = append(benchReturns, values[i]/values[i-1]-1)
		}
	}
	if len(benchReturns) != len(portfolioReturns) || len(benchReturns) < 2 {
		return b
	}

	benchVar := variance(benchReturns)
	if benchVar > 0 {
		b.Beta = covariance(portfolioReturns, benchReturns) / benchVar
		b.Alpha = s.CAGR - (cfg.RiskFreeRate + b.Beta*(b.CAGR-cfg.RiskFreeRate))
	}

	diffs := make([]float64, len(portfolioReturns))
	for i := range portfolioReturns {
		diffs[i] = portfolioReturns[i] - benchReturns[i]
	}
	b.TrackingError = stddev(diffs) * math.Sqrt(cfg.PeriodsPerYear)
	if b.TrackingError > 0 && !math.IsNaN(b.Alpha) {
		// Zero tracking error leaves the ratio undefined (degenerate case:
		// benchmark identical to the portfolio).
		b.InformationRatio = b.Alpha / b.TrackingError
	}

	return b
}

// alignForwardFill produces one benchmark value per state date, carrying the
// last known benchmark value across gaps. State dates before the first
// benchmark observation use that first observation.
func alignForwardFill(states []domain.PortfolioState, benchmark []domain.PricePoint) []float64 {
	if len(benchmark) == 0 {
		return nil
	}
	values := make([]float64, len(states))
	bi := 0
	current := benchmark[0].Close
	for i, st := range states {
		for bi < len(benchmark) && !benchmark[bi].Date.After(st.Date) {
			current = benchmark[bi].Close
			bi++
		}
		values[i] = current
	}
	return values
}

// ---------------------------------------------------------------------------
// Statistics helpers
// ---------------------------------------------------------------------------

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	v := 0.0
	for _, x := range xs {
		v += (x - m) * (x - m)
	}
	return v / float64(len(xs)-1)
}

func stddev(xs []float64) float64 {
	return math.Sqrt(variance(xs))
}

func covariance(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	c := 0.0
	for i := range xs {
		c += (xs[i] - mx) * (ys[i] - my)
	}
	return c / float64(len(xs)-1)
}

// downsideDeviation is the root mean square of per-period returns below the
// minimum acceptable return.
func downsideDeviation(returns []float64, mar float64) float64 {
	sum := 0.0
	n := 0
	for _, r := range returns {
		if r < mar {
			d := r - mar
			sum += d * d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(len(returns)))
}

// Package engine orchestrates a backtest run: it advances simulated time,
// triggers rebalancing on schedule, invokes the screening strategy and trade
// executor, records portfolio state, and hands the completed series to the
// metrics calculator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"winnow/internal/config"
	"winnow/internal/domain"
	"winnow/internal/metrics"
	"winnow/internal/portfolio"
	"winnow/internal/report"
	"winnow/internal/strategy"
)

// DataProvider is the read-only historical data interface the engine
// depends on. Every lookup must honor point-in-time correctness: nothing
// returned for a date may have become known after it.
type DataProvider interface {
	// Price returns the close known as of date, or *domain.DataGapError.
	Price(symbol string, date time.Time) (float64, error)

	// History returns up to n trailing closes ending at date, oldest first.
	History(symbol string, date time.Time, n int) []float64

	// Fundamentals returns the most recent snapshot published on or before
	// date, or *domain.DataGapError.
	Fundamentals(symbol string, date time.Time) (domain.FundamentalSnapshot, error)

	// Universe returns the instruments tradeable on date.
	Universe(date time.Time) []domain.Instrument

	// TradingDays returns the simulated clock: all dates in [start, end]
	// with at least one price, ascending.
	TradingDays(start, end time.Time) []time.Time
}

// ScoreSource supplies opaque per-instrument scores from an external
// scoring collaborator. The boolean reports whether a score exists for the
// symbol on the date.
type ScoreSource interface {
	Score(date time.Time, symbol string) (float64, bool)
}

// State is the engine lifecycle phase.
type State int

const (
	Initializing State = iota
	Running
	Completed
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// historyDays is how many trailing closes each snapshot instrument carries.
const historyDays = 252

// Engine runs one backtest. An Engine is single-use: construct, Run once,
// read the report. Independent engines over the same provider may run
// concurrently since the provider is read-only.
type Engine struct {
	cfg      config.Backtest
	provider DataProvider
	strat    strategy.Strategy
	scores   ScoreSource
	exec     *portfolio.Executor
	state    State
	log      *slog.Logger
}

// New creates an Engine for the given configuration, data provider, and
// screening strategy.
func New(cfg config.Backtest, provider DataProvider, strat strategy.Strategy) *Engine {
	return &Engine{
		cfg:      cfg,
		provider: provider,
		strat:    strat,
		exec: portfolio.NewExecutor(portfolio.ExecConfig{
			MinPositionSize: cfg.MinPositionSize,
			MaxPositionSize: cfg.MaxPositionSize,
			TransactionCost: cfg.TransactionCost,
			Slippage:        cfg.Slippage,
			CashBuffer:      cfg.CashBuffer,
		}),
		state: Initializing,
		log:   slog.Default().With("component", "engine", "strategy", strat.Name()),
	}
}

// SetScoreSource attaches an external scoring collaborator whose scores are
// injected into strategy snapshots.
func (e *Engine) SetScoreSource(s ScoreSource) { e.scores = s }

// State returns the engine's lifecycle phase.
func (e *Engine) State() State { return e.state }

// Run executes the simulation loop and returns the completed report. The
// context is checked once before the loop starts; a run in progress is never
// interrupted mid-loop, since a partial state series would be meaningless to
// the metrics calculator. Fatal data or invariant violations abort the run
// with a typed error identifying the date and condition.
func (e *Engine) Run(ctx context.Context) (*report.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	days := e.provider.TradingDays(e.cfg.Start(), e.cfg.End())
	if len(days) == 0 {
		return nil, fmt.Errorf("no trading days between %s and %s",
			e.cfg.StartDate, e.cfg.EndDate)
	}

	// Rebalance dates are anchored to the configured start date: anchors
	// step forward by whole rebalance periods, and each anchor resolves to
	// the first trading day on or after it. The anchoring is deterministic
	// so re-runs with identical config and data reproduce byte-identical
	// series.
	rebalance := rebalanceDays(days, e.cfg.Start(), e.cfg.RebalanceFrequency())

	e.state = Running
	e.log.Info("run started",
		"start", e.cfg.StartDate,
		"end", e.cfg.EndDate,
		"days", len(days),
		"rebalances", len(rebalance),
	)

	pf := portfolio.New(e.cfg.InitialCapital, true)
	states := make([]domain.PortfolioState, 0, len(days))
	var gaps []report.Gap

	for _, day := range days {
		if rebalance[day] {
			dayGaps, err := e.rebalanceOn(ctx, pf, day)
			if err != nil {
				e.state = Failed
				return nil, err
			}
			gaps = append(gaps, dayGaps...)
		}

		state, err := pf.MarkToMarket(day, e.provider.Price)
		if err != nil {
			e.state = Failed
			return nil, fmt.Errorf("marking to market on %s: %w", day.Format("2006-01-02"), err)
		}
		for _, sym := range state.Stale {
			e.log.Warn("stale price carried forward", "symbol", sym, "date", day.Format("2006-01-02"))
		}
		states = append(states, state)
	}

	summary, err := metrics.Calculate(states, pf.Trades(), e.benchmarkSeries(days), metrics.Config{
		InitialCapital: e.cfg.InitialCapital,
		RiskFreeRate:   e.cfg.RiskFreeRate,
		PeriodsPerYear: 252,
	})
	if err != nil {
		e.state = Failed
		return nil, err
	}

	e.state = Completed
	e.log.Info("run completed",
		"finalValue", summary.FinalValue,
		"totalReturn", summary.TotalReturn,
		"trades", summary.TotalTrades,
	)

	return &report.Report{
		Strategy: e.strat.Name(),
		Summary:  summary,
		States:   states,
		Trades:   pf.Trades(),
		Gaps:     gaps,
	}, nil
}

// rebalanceOn runs one rebalance cycle: snapshot, strategy, executor.
// Instruments with gapped prices are excluded from the cycle and reported;
// too many gaps at once abort the run with *domain.DataIntegrityError.
func (e *Engine) rebalanceOn(ctx context.Context, pf *portfolio.Portfolio, day time.Time) ([]report.Gap, error) {
	universe := e.provider.Universe(day)

	snap := strategy.Snapshot{Date: day}
	prices := make(map[string]float64, len(universe))
	var gaps []report.Gap

	for _, inst := range universe {
		px, err := e.provider.Price(inst.Symbol, day)
		if err != nil {
			if !isGap(err) {
				return nil, err
			}
			e.log.Warn("price gap, excluding from rebalance",
				"symbol", inst.Symbol, "date", day.Format("2006-01-02"))
			gaps = append(gaps, report.Gap{Date: day, Symbol: inst.Symbol, Kind: domain.GapPrice})
			continue
		}
		prices[inst.Symbol] = px

		data := strategy.InstrumentData{
			Symbol: inst.Symbol,
			Sector: inst.Sector,
			Price:  px,
			Closes: e.provider.History(inst.Symbol, day, historyDays),
		}
		if snapshot, err := e.provider.Fundamentals(inst.Symbol, day); err == nil {
			data.Fundamentals = snapshot.Fields
		}
		if e.scores != nil {
			data.Score, data.HasScore = e.scores.Score(day, inst.Symbol)
		}
		snap.Instruments = append(snap.Instruments, data)
	}

	if n := len(universe); n > 0 {
		if frac := float64(len(gaps)) / float64(n); frac > e.cfg.MaxGapFraction {
			return nil, &domain.DataIntegrityError{Date: day, Missing: len(gaps), Universe: n}
		}
	}

	// Held symbols that dropped out of the universe still need quotes so
	// the executor can liquidate or value them.
	for sym := range pf.Positions() {
		if _, ok := prices[sym]; ok {
			continue
		}
		if px, err := e.provider.Price(sym, day); err == nil {
			prices[sym] = px
		}
	}

	weights, err := e.strat.TargetWeights(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("strategy %s on %s: %w", e.strat.Name(), day.Format("2006-01-02"), err)
	}
	if err := validateWeights(weights, day); err != nil {
		return nil, err
	}

	if err := e.exec.Rebalance(pf, day, weights, prices); err != nil {
		return nil, err
	}
	return gaps, nil
}

// benchmarkSeries collects the benchmark's closes over the simulated days.
// Gapped days are simply omitted; the metrics calculator forward-fills.
func (e *Engine) benchmarkSeries(days []time.Time) []domain.PricePoint {
	if e.cfg.Benchmark == "" {
		return nil
	}
	var series []domain.PricePoint
	for _, day := range days {
		if px, err := e.provider.Price(e.cfg.Benchmark, day); err == nil {
			series = append(series, domain.PricePoint{Symbol: e.cfg.Benchmark, Date: day, Close: px})
		}
	}
	return series
}

// validateWeights guards the strategy contract: every weight in [0,1] and
// the sum at most 1.
func validateWeights(weights map[string]float64, day time.Time) error {
	sum := 0.0
	for sym, w := range weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("strategy returned weight %v for %s on %s, want [0,1]",
				w, sym, day.Format("2006-01-02"))
		}
		sum += w
	}
	if sum > 1+1e-9 {
		return fmt.Errorf("strategy weights sum to %v on %s, want <= 1", sum, day.Format("2006-01-02"))
	}
	return nil
}

// rebalanceDays marks which trading days trigger a rebalance: the first
// trading day on or after each period anchor, starting at startDate.
func rebalanceDays(days []time.Time, start time.Time, freq domain.RebalanceFrequency) map[time.Time]bool {
	marks := make(map[time.Time]bool)
	anchor := start
	for _, d := range days {
		if d.Before(anchor) {
			continue
		}
		marks[d] = true
		for !anchor.After(d) {
			anchor = anchor.AddDate(0, freq.Months(), 0)
		}
	}
	return marks
}

func isGap(err error) bool {
	var gap *domain.DataGapError
	return errors.As(err, &gap)
}

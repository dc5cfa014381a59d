// Package config loads and validates the winnow configuration from YAML,
// with environment variable overrides for credentials and paths.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"winnow/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for winnow.
type Config struct {
	Backtest Backtest       `yaml:"backtest"`
	Strategy StrategyConfig `yaml:"strategy"`
	Storage  Storage        `yaml:"storage"`
	Logging  Logging        `yaml:"logging"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Gather   GatherConfig   `yaml:"gather"`
}

// Backtest holds every recognized simulation parameter. Missing optional
// fields take the documented defaults applied by Validate; required fields
// fail validation before the run starts.
type Backtest struct {
	StartDate      string   `yaml:"start_date"` // required, YYYY-MM-DD
	EndDate        string   `yaml:"end_date"`   // required, YYYY-MM-DD
	InitialCapital float64  `yaml:"initial_capital"`
	Frequency      string   `yaml:"rebalance_frequency"` // monthly | quarterly | annually
	Universe       []string `yaml:"universe"`
	Benchmark      string   `yaml:"benchmark"`

	MaxPositions    int     `yaml:"max_positions"`     // default 20
	MinPositionSize float64 `yaml:"min_position_size"` // fraction, default 0.01
	MaxPositionSize float64 `yaml:"max_position_size"` // fraction, default 0.20
	TransactionCost float64 `yaml:"transaction_cost"`  // fraction of notional
	Slippage        float64 `yaml:"slippage"`          // fraction of notional
	CashBuffer      float64 `yaml:"cash_buffer"`       // fraction kept uninvested
	RiskFreeRate    float64 `yaml:"risk_free_rate"`    // annualized, default 0.02

	PriceLookbackDays int     `yaml:"price_lookback_days"` // holiday tolerance, default 5
	MaxGapFraction    float64 `yaml:"max_gap_fraction"`    // abort threshold, default 0.2

	start time.Time
	end   time.Time
}

// Start returns the parsed start date. Valid only after Validate.
func (b *Backtest) Start() time.Time { return b.start }

// End returns the parsed end date. Valid only after Validate.
func (b *Backtest) End() time.Time { return b.end }

// RebalanceFrequency returns the frequency as a domain type. Valid only
// after Validate.
func (b *Backtest) RebalanceFrequency() domain.RebalanceFrequency {
	return domain.RebalanceFrequency(b.Frequency)
}

// StrategyConfig selects the screening strategy and carries its parameters,
// which are passed through opaquely to the strategy implementation.
type StrategyConfig struct {
	Name   string             `yaml:"name"` // default "equal-weight"
	Params map[string]float64 `yaml:"params"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
	File   string `yaml:"file"`   // empty means stdout only

	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API,
// used only by the data-preparation phase.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// GatherConfig holds parameters for the daily-bar gathering job.
type GatherConfig struct {
	StartDate       string `yaml:"start_date"`
	BatchSize       int    `yaml:"batch_size"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WINNOW_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("WINNOW_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation and defaults
// ---------------------------------------------------------------------------

// Validate applies defaults and checks every backtest parameter, failing
// before the run starts rather than mid-simulation.
func (c *Config) Validate() error {
	b := &c.Backtest

	if b.StartDate == "" || b.EndDate == "" {
		return fmt.Errorf("config: backtest start_date and end_date are required")
	}
	var err error
	b.start, err = time.Parse("2006-01-02", b.StartDate)
	if err != nil {
		return fmt.Errorf("config: parsing start_date %q: %w", b.StartDate, err)
	}
	b.end, err = time.Parse("2006-01-02", b.EndDate)
	if err != nil {
		return fmt.Errorf("config: parsing end_date %q: %w", b.EndDate, err)
	}
	if !b.start.Before(b.end) {
		return fmt.Errorf("config: start_date %s must be before end_date %s", b.StartDate, b.EndDate)
	}

	if b.InitialCapital <= 0 {
		return fmt.Errorf("config: initial_capital must be > 0, got %v", b.InitialCapital)
	}

	if b.Frequency == "" {
		b.Frequency = string(domain.Monthly)
	}
	if !domain.RebalanceFrequency(b.Frequency).Valid() {
		return fmt.Errorf("config: rebalance_frequency %q is not one of monthly, quarterly, annually", b.Frequency)
	}

	if len(b.Universe) == 0 {
		return fmt.Errorf("config: universe must list at least one instrument")
	}

	if b.MaxPositions == 0 {
		b.MaxPositions = 20
	}
	if b.MaxPositions < 0 {
		return fmt.Errorf("config: max_positions must be >= 0, got %d", b.MaxPositions)
	}

	if b.MinPositionSize == 0 {
		b.MinPositionSize = 0.01
	}
	if b.MaxPositionSize == 0 {
		b.MaxPositionSize = 0.20
	}
	for name, v := range map[string]float64{
		"min_position_size": b.MinPositionSize,
		"max_position_size": b.MaxPositionSize,
		"transaction_cost":  b.TransactionCost,
		"slippage":          b.Slippage,
		"cash_buffer":       b.CashBuffer,
		"max_gap_fraction":  b.MaxGapFraction,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: %s must be a fraction in [0,1], got %v", name, v)
		}
	}
	if b.MinPositionSize > b.MaxPositionSize {
		return fmt.Errorf("config: min_position_size %v exceeds max_position_size %v",
			b.MinPositionSize, b.MaxPositionSize)
	}

	if b.PriceLookbackDays == 0 {
		b.PriceLookbackDays = 5
	}
	if b.MaxGapFraction == 0 {
		b.MaxGapFraction = 0.2
	}

	if c.Strategy.Name == "" {
		c.Strategy.Name = "equal-weight"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

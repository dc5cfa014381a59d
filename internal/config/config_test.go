package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "winnow-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

const minimalYAML = `
backtest:
  start_date: "2020-01-02"
  end_date: "2021-12-31"
  initial_capital: 100000
  universe: [AAPL, MSFT]
`

func TestLoadDefaults(t *testing.T) {
	// Clear any environment overrides that might interfere.
	os.Unsetenv("WINNOW_DATA_DIR")
	os.Unsetenv("WINNOW_SQLITE_PATH")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("ALPACA_API_KEY")
	os.Unsetenv("ALPACA_API_SECRET")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("APCA_API_SECRET_KEY")

	cfg, err := Load(writeTempConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	b := cfg.Backtest
	if got := b.Start(); !got.Equal(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start() = %v, want 2020-01-02", got)
	}
	if b.Frequency != "monthly" {
		t.Errorf("Frequency = %q, want %q", b.Frequency, "monthly")
	}
	if b.MaxPositions != 20 {
		t.Errorf("MaxPositions = %d, want 20", b.MaxPositions)
	}
	if b.MinPositionSize != 0.01 {
		t.Errorf("MinPositionSize = %v, want 0.01", b.MinPositionSize)
	}
	if b.MaxPositionSize != 0.20 {
		t.Errorf("MaxPositionSize = %v, want 0.20", b.MaxPositionSize)
	}
	if b.PriceLookbackDays != 5 {
		t.Errorf("PriceLookbackDays = %d, want 5", b.PriceLookbackDays)
	}
	if b.MaxGapFraction != 0.2 {
		t.Errorf("MaxGapFraction = %v, want 0.2", b.MaxGapFraction)
	}
	if cfg.Strategy.Name != "equal-weight" {
		t.Errorf("Strategy.Name = %q, want %q", cfg.Strategy.Name, "equal-weight")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	yamlContent := minimalYAML + `
storage:
  data_dir: "/original/data"
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
`

	os.Setenv("ALPACA_API_KEY", "env-key")
	os.Setenv("WINNOW_DATA_DIR", "/env/data")
	os.Setenv("APCA_API_KEY_ID", "apca-key")
	os.Unsetenv("APCA_API_SECRET_KEY")
	defer os.Unsetenv("ALPACA_API_KEY")
	defer os.Unsetenv("WINNOW_DATA_DIR")
	defer os.Unsetenv("APCA_API_KEY_ID")

	cfg, err := Load(writeTempConfig(t, yamlContent))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// APCA_API_KEY_ID outranks ALPACA_API_KEY, which outranks YAML.
	if cfg.Alpaca.APIKey != "apca-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "apca-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing dates",
			yaml: `
backtest:
  initial_capital: 100000
  universe: [AAPL]
`,
			wantErr: "start_date and end_date are required",
		},
		{
			name: "start after end",
			yaml: `
backtest:
  start_date: "2022-01-01"
  end_date: "2020-01-01"
  initial_capital: 100000
  universe: [AAPL]
`,
			wantErr: "must be before",
		},
		{
			name: "zero capital",
			yaml: `
backtest:
  start_date: "2020-01-02"
  end_date: "2021-12-31"
  universe: [AAPL]
`,
			wantErr: "initial_capital",
		},
		{
			name: "empty universe",
			yaml: `
backtest:
  start_date: "2020-01-02"
  end_date: "2021-12-31"
  initial_capital: 100000
`,
			wantErr: "universe",
		},
		{
			name: "unknown frequency",
			yaml: minimalYAML + `
  rebalance_frequency: weekly
`,
			wantErr: "rebalance_frequency",
		},
		{
			name: "out of range fraction",
			yaml: minimalYAML + `
  transaction_cost: 1.5
`,
			wantErr: "transaction_cost",
		},
		{
			name: "min above max",
			yaml: minimalYAML + `
  min_position_size: 0.5
  max_position_size: 0.1
`,
			wantErr: "min_position_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tt.yaml))
			if err == nil {
				t.Fatalf("Load() succeeded, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

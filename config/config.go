// Package config loads runtime settings from an optional JSON file
// with environment variable overrides on top. Environment always wins.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"fractal-trader/internal/api"
	"fractal-trader/internal/risk"
	"fractal-trader/internal/secrets"
	"fractal-trader/internal/strategy"
	"fractal-trader/internal/trader"
	"fractal-trader/internal/venue"
)

// Config is the full runtime configuration.
type Config struct {
	Network   string          `json:"network"`
	Strategy  string          `json:"strategy"`
	StatePath string          `json:"state_path"`
	Trading   trader.Config   `json:"trading"`
	Risk      risk.Parameters `json:"risk"`
	Detection strategy.Config `json:"detection"`
	Dashboard DashboardConfig `json:"dashboard"`
	Vault     secrets.Config  `json:"vault"`
	Archive   ArchiveConfig   `json:"archive"`
	Logging   LoggingConfig   `json:"logging"`
	Backtest  BacktestConfig  `json:"backtest"`
}

// DashboardConfig wraps the API server settings with an enable switch.
type DashboardConfig struct {
	Enabled bool `json:"enabled"`
	api.Config
}

// ArchiveConfig enables the PostgreSQL trade archive.
type ArchiveConfig struct {
	Enabled bool   `json:"enabled"`
	DSN     string `json:"dsn"`
}

// LoggingConfig tunes the zerolog setup.
type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
}

// BacktestConfig drives the backtest mode.
type BacktestConfig struct {
	InitialCapital float64 `json:"initial_capital"`
	Commission     float64 `json:"commission"`
	CandleFile     string  `json:"candle_file"`
}

// Default returns the paper-trading defaults.
func Default() Config {
	return Config{
		Network:   "paper",
		Strategy:  strategy.NameLiquiditySweep,
		StatePath: "trading_state.json",
		Trading:   trader.DefaultConfig(),
		Risk:      risk.DefaultParameters(),
		Detection: strategy.DefaultConfig(),
		Dashboard: DashboardConfig{
			Enabled: true,
			Config:  api.DefaultConfig(),
		},
		Vault: secrets.DefaultConfig(),
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Backtest: BacktestConfig{
			InitialCapital: 100000,
			Commission:     0.0005,
		},
	}
}

// Load reads the JSON file when path is non-empty, then applies env
// overrides and validates. A missing default config file is not an
// error; an explicitly named one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fails fast on settings that would misbehave at runtime.
func (c Config) Validate() error {
	if _, ok := venue.ProfileByName(c.Network); !ok {
		return fmt.Errorf("unknown network %q", c.Network)
	}
	known := false
	for _, name := range strategy.Names() {
		if name == c.Strategy {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown strategy %q, registered: %s", c.Strategy, strings.Join(strategy.Names(), ", "))
	}
	if c.StatePath == "" {
		return fmt.Errorf("state_path must not be empty")
	}
	if err := c.Trading.Validate(); err != nil {
		return fmt.Errorf("trading config: %w", err)
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk config: %w", err)
	}
	if c.Archive.Enabled && c.Archive.DSN == "" {
		return fmt.Errorf("archive enabled without a dsn")
	}
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("backtest initial_capital %.2f must be positive", c.Backtest.InitialCapital)
	}
	if c.Backtest.Commission < 0 || c.Backtest.Commission > 0.01 {
		return fmt.Errorf("backtest commission %.4f outside [0, 0.01]", c.Backtest.Commission)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Network = getEnvOrDefault("TRADER_NETWORK", cfg.Network)
	cfg.Strategy = getEnvOrDefault("TRADER_STRATEGY", cfg.Strategy)
	cfg.StatePath = getEnvOrDefault("TRADER_STATE_PATH", cfg.StatePath)

	if v := os.Getenv("TRADER_SYMBOLS"); v != "" {
		cfg.Trading.Symbols = splitList(v)
	}
	cfg.Trading.Timeframe = getEnvOrDefault("TRADER_TIMEFRAME", cfg.Trading.Timeframe)
	cfg.Trading.Interval = getEnvDurationOrDefault("TRADER_INTERVAL", cfg.Trading.Interval)
	cfg.Trading.MaxOpenPositions = getEnvIntOrDefault("TRADER_MAX_OPEN_POSITIONS", cfg.Trading.MaxOpenPositions)

	cfg.Risk.BaseRiskPercent = getEnvFloatOrDefault("RISK_BASE_PERCENT", cfg.Risk.BaseRiskPercent)
	cfg.Risk.MaxPositionPercent = getEnvFloatOrDefault("RISK_MAX_POSITION_PERCENT", cfg.Risk.MaxPositionPercent)
	cfg.Risk.MinConfidence = getEnvIntOrDefault("RISK_MIN_CONFIDENCE", cfg.Risk.MinConfidence)

	if v := os.Getenv("DASHBOARD_ENABLED"); v != "" {
		cfg.Dashboard.Enabled = v == "true"
	}
	cfg.Dashboard.Host = getEnvOrDefault("DASHBOARD_HOST", cfg.Dashboard.Host)
	cfg.Dashboard.Port = getEnvIntOrDefault("DASHBOARD_PORT", cfg.Dashboard.Port)

	if v := os.Getenv("VAULT_ENABLED"); v != "" {
		cfg.Vault.Enabled = v == "true"
	}
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.Vault.MountPath)
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.Vault.SecretPath)

	if v := os.Getenv("ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = v == "true"
	}
	cfg.Archive.DSN = getEnvOrDefault("ARCHIVE_DSN", cfg.Archive.DSN)

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	if v := os.Getenv("LOG_CONSOLE"); v != "" {
		cfg.Logging.Console = v == "true"
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	// Optional: a weights CSV (Ticker, Company Name, Weight (%)) to backtest
	// when no tickers are given on the command line. Relative paths are
	// resolved against the config file directory first.
	PortfolioFile string         `yaml:"portfolio_file"`
	Source        SourceConfig   `yaml:"source"`
	Fetch         FetchConfig    `yaml:"fetch"`
	Backtest      BacktestConfig `yaml:"backtest"`
	Store         StoreConfig    `yaml:"store"`
	Server        ServerConfig   `yaml:"server"`
	Log           LogConfig      `yaml:"log"`
}

type SourceConfig struct {
	Provider  string        `yaml:"provider"` // "yahoo" or "eodhd"
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second, shared by all fetches of a run
	// Response cache in front of the source. Development only.
	Cache    bool          `yaml:"cache"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type FetchConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	Concurrency int           `yaml:"concurrency"`
}

type BacktestConfig struct {
	Benchmark    string        `yaml:"benchmark"`
	Timeout      time.Duration `yaml:"timeout"`
	RiskFreeRate float64       `yaml:"risk_free_rate"` // annual, as a fraction
	LookbackDays int           `yaml:"lookback_days"`
}

type StoreConfig struct {
	Path     string `yaml:"path"` // SQLite file; empty keeps portfolios in memory
	Capacity int    `yaml:"capacity"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Production     bool     `yaml:"production"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// MaxConcurrency caps simultaneous outbound fetches.
const MaxConcurrency = 10

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Provider:  "yahoo",
			Timeout:   30 * time.Second,
			RateLimit: 5,
			CacheTTL:  time.Hour,
		},
		Fetch: FetchConfig{
			MaxAttempts: 5,
			BaseDelay:   4 * time.Second,
			MaxDelay:    10 * time.Second,
			Multiplier:  2,
			Concurrency: 8,
		},
		Backtest: BacktestConfig{
			Benchmark:    "SPY",
			Timeout:      2 * time.Minute,
			LookbackDays: 14,
		},
		Store: StoreConfig{
			Capacity: 5,
		},
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads config over the defaults, but does not validate it.
// Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.PortfolioFile != "" && !filepath.IsAbs(c.PortfolioFile) {
		// Prefer the config file directory, fall back to cwd.
		cand := filepath.Join(filepath.Dir(path), c.PortfolioFile)
		if _, err := os.Stat(cand); err == nil {
			c.PortfolioFile = cand
		}
	}
	return c, nil
}

// ApplyEnv overlays environment variables onto c.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("EODHD_API_KEY"); v != "" && c.Source.APIKey == "" {
		c.Source.APIKey = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("BACKTEST_DB"); v != "" {
		c.Store.Path = v
	}
	if os.Getenv("API_ENV") == "production" {
		c.Server.Production = true
	}
	if v := os.Getenv("RISK_FREE_RATE"); v != "" {
		if rf, err := strconv.ParseFloat(v, 64); err == nil {
			c.Backtest.RiskFreeRate = rf
		}
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	switch strings.ToLower(c.Source.Provider) {
	case "yahoo":
	case "eodhd":
		if c.Source.APIKey == "" {
			errs = append(errs, errors.New("source.api_key (or EODHD_API_KEY) is required for provider eodhd"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.provider must be yahoo or eodhd, got %q", c.Source.Provider))
	}
	if c.Source.Cache && c.Server.Production {
		errs = append(errs, errors.New("source.cache is for local development and cannot be enabled in production"))
	}
	if c.Source.RateLimit <= 0 {
		errs = append(errs, errors.New("source.rate_limit must be > 0"))
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, errors.New("fetch.max_attempts must be >= 1"))
	}
	if c.Fetch.BaseDelay < 0 || c.Fetch.MaxDelay < c.Fetch.BaseDelay {
		errs = append(errs, errors.New("fetch delays must satisfy 0 <= base_delay <= max_delay"))
	}
	if c.Fetch.Multiplier < 1 {
		errs = append(errs, errors.New("fetch.multiplier must be >= 1"))
	}
	if c.Fetch.Concurrency < 1 || c.Fetch.Concurrency > MaxConcurrency {
		errs = append(errs, fmt.Errorf("fetch.concurrency must be in [1, %d]", MaxConcurrency))
	}
	if strings.TrimSpace(c.Backtest.Benchmark) == "" {
		errs = append(errs, errors.New("backtest.benchmark is required"))
	}
	if c.Backtest.Timeout <= 0 {
		errs = append(errs, errors.New("backtest.timeout must be > 0"))
	}
	if c.Backtest.LookbackDays < 0 {
		errs = append(errs, errors.New("backtest.lookback_days must be >= 0"))
	}
	if c.Store.Capacity < 1 {
		errs = append(errs, errors.New("store.capacity must be >= 1"))
	}
	return errors.Join(errs...)
}

// MergeBacktest overlays non-zero fields from override onto base.
// This is used when a request carries its own backtest options.
func MergeBacktest(base, override BacktestConfig) BacktestConfig {
	out := base
	if override.Benchmark != "" {
		out.Benchmark = override.Benchmark
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	// Note: a zero risk-free rate is indistinguishable from "unset" here.
	if override.RiskFreeRate != 0 {
		out.RiskFreeRate = override.RiskFreeRate
	}
	if override.LookbackDays != 0 {
		out.LookbackDays = override.LookbackDays
	}
	return out
}

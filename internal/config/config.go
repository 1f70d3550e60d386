// Package config defines all configuration for the arbitrage engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via TRIARB_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"triarb/pkg/types"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun      bool              `mapstructure:"dry_run"`
	Exchange    ExchangeConfig    `mapstructure:"exchange"`
	Account     AccountConfig     `mapstructure:"account"`
	Triangle    TriangleConfig    `mapstructure:"triangle"`
	Reset       ResetConfig       `mapstructure:"reset"`
	Store       StoreConfig       `mapstructure:"store"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
}

// ExchangeConfig holds the venue connection and credentials. UserId, ApiKey
// and Secret authenticate the session; Secret signs the HMAC challenge.
type ExchangeConfig struct {
	WSURL          string `mapstructure:"ws_url"`
	MetadataURL    string `mapstructure:"metadata_url"`
	UserId         int    `mapstructure:"user_id"`
	ApiKey         string `mapstructure:"api_key"`
	Secret         string `mapstructure:"secret"`
	OMSId          int    `mapstructure:"oms_id"`
}

// AccountConfig identifies which account the bot trades and how much cash
// it may deploy per cycle.
type AccountConfig struct {
	AccountId     int     `mapstructure:"account_id"`
	CashAvailable float64 `mapstructure:"cash_available"`
}

// TriangleConfig names the three instruments forming the currency cycle and
// the economics of evaluating it.
//
//   - InstrumentIds: (I1, I2, I3) — forward cycle is BUY I1, SELL I2, SELL I3.
//   - Depth: order book ladder depth cap, shared by bid and ask sides.
//   - Fee: per-leg taker fee, e.g. 0.002 for 20bps.
//   - MinTradeValue: minimum net profit (in cash terms) required to trade;
//     comparison is strictly greater-than.
//   - Variant: "bss" (default) or "bbs".
type TriangleConfig struct {
	InstrumentIds [3]types.InstrumentId `mapstructure:"instrument_ids"`
	Depth         int                   `mapstructure:"depth"`
	Fee           float64               `mapstructure:"fee"`
	MinTradeValue float64               `mapstructure:"min_trade_value"`
	Variant       string                `mapstructure:"variant"`
}

// ResetConfig tunes the supervisor's periodic resync and book printer.
type ResetConfig struct {
	AutoResetMinutes  int `mapstructure:"auto_reset_minutes"`
	BookPrintMinutes  int `mapstructure:"book_print_minutes"`
	AssetDiffMinutes  int `mapstructure:"asset_diff_minutes"`
}

// StoreConfig sets where position snapshots are persisted (JSON files).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DiagnosticsConfig controls the /healthz, /metrics, /status HTTP server.
type DiagnosticsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: TRIARB_API_KEY, TRIARB_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TRIARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("TRIARB_API_KEY"); key != "" {
		cfg.Exchange.ApiKey = key
	}
	if secret := os.Getenv("TRIARB_SECRET"); secret != "" {
		cfg.Exchange.Secret = secret
	}
	if os.Getenv("TRIARB_DRY_RUN") == "true" || os.Getenv("TRIARB_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	if cfg.Reset.AutoResetMinutes == 0 {
		cfg.Reset.AutoResetMinutes = 30
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Exchange.WSURL == "" {
		return fmt.Errorf("exchange.ws_url is required")
	}
	if c.Exchange.ApiKey == "" {
		return fmt.Errorf("exchange.api_key is required (set TRIARB_API_KEY)")
	}
	if c.Exchange.Secret == "" {
		return fmt.Errorf("exchange.secret is required (set TRIARB_SECRET)")
	}
	if c.Triangle.InstrumentIds[0] == 0 || c.Triangle.InstrumentIds[1] == 0 || c.Triangle.InstrumentIds[2] == 0 {
		return fmt.Errorf("triangle.instrument_ids must name three non-zero instruments")
	}
	if c.Triangle.Depth <= 0 {
		return fmt.Errorf("triangle.depth must be > 0")
	}
	if c.Triangle.Fee < 0 || c.Triangle.Fee >= 1 {
		return fmt.Errorf("triangle.fee must be in [0, 1)")
	}
	if c.Account.CashAvailable < 0 {
		return fmt.Errorf("account.cash_available must be >= 0")
	}
	switch c.Triangle.Variant {
	case "", "bss", "bbs":
	default:
		return fmt.Errorf("triangle.variant must be one of: bss, bbs")
	}
	return nil
}

// AutoResetInterval returns the configured auto-reset period as a duration.
func (c *Config) AutoResetInterval() time.Duration {
	return time.Duration(c.Reset.AutoResetMinutes) * time.Minute
}

// BookPrintInterval returns the configured book-printer period, or 0 if disabled.
func (c *Config) BookPrintInterval() time.Duration {
	if c.Reset.BookPrintMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Reset.BookPrintMinutes) * time.Minute
}

// AssetDiffInterval returns the configured asset-diff period, defaulting to 5m.
func (c *Config) AssetDiffInterval() time.Duration {
	if c.Reset.AssetDiffMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Reset.AssetDiffMinutes) * time.Minute
}

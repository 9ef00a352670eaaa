// Package config defines the top-level configuration for the trading agent
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SKYBOT_* environment variables.
type Config struct {
	Trading  TradingConfig  `toml:"trading"`
	Gates    GatesConfig    `toml:"gates"`
	Loop     LoopConfig     `toml:"loop"`
	Weather  WeatherConfig  `toml:"weather"`
	Exchange ExchangeConfig `toml:"exchange"`
	OMS      OMSConfig      `toml:"oms"`
	Public   PublicConfig   `toml:"public"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Archive  ArchiveConfig  `toml:"archive"`
	Rollups  RollupsConfig  `toml:"rollups"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// TradingConfig holds the bankroll and the risk ratios every dollar cap is
// derived from. The risk engine takes no other limit inputs.
type TradingConfig struct {
	Bankroll              float64 `toml:"bankroll"`
	MaxTradeRiskPct       float64 `toml:"max_trade_risk_pct"`
	MaxCityExposurePct    float64 `toml:"max_city_exposure_pct"`
	MaxClusterExposurePct float64 `toml:"max_cluster_exposure_pct"`
	MaxDailyLossPct       float64 `toml:"max_daily_loss_pct"`
	MaxPositionSize       int     `toml:"max_position_size"`
	MaxRejectsPerWindow   int     `toml:"max_rejects_per_window"`
	RejectWindowMinutes   int     `toml:"reject_window_minutes"`
	MaxUncertainty        float64 `toml:"max_uncertainty"`
	DefaultStdDevF        float64 `toml:"default_std_dev_f"`
}

// GatesConfig holds the pre-trade execution-quality thresholds.
type GatesConfig struct {
	SpreadMaxCents       int     `toml:"spread_max_cents"`
	LiquidityMin         int64   `toml:"liquidity_min"`
	MinLiquidityMultiple float64 `toml:"min_liquidity_multiple"`
	MinEdgeAfterCosts    float64 `toml:"min_edge_after_costs"`
}

// LoopConfig holds trading-loop timing parameters.
type LoopConfig struct {
	CycleIntervalSec int `toml:"cycle_interval_sec"`
	ErrorSleepSec    int `toml:"error_sleep_sec"`
	CityConcurrency  int `toml:"city_concurrency"`
	CallTimeoutSec   int `toml:"call_timeout_sec"`
	CycleBudgetSec   int `toml:"cycle_budget_sec"`
}

// WeatherConfig holds forecast-service parameters.
type WeatherConfig struct {
	BaseURL         string  `toml:"base_url"`
	UserAgent       string  `toml:"user_agent"`
	CacheTTLSec     int     `toml:"cache_ttl_sec"`
	StaleCeilingSec int     `toml:"stale_ceiling_sec"`
	RateLimitPerSec float64 `toml:"rate_limit_per_sec"`
}

// ExchangeConfig holds exchange API endpoints and credentials. The private
// key may be supplied as a PEM file or as an encrypted blob plus password.
type ExchangeConfig struct {
	BaseURL          string  `toml:"base_url"`
	DemoBaseURL      string  `toml:"demo_base_url"`
	APIKeyID         string  `toml:"api_key_id"`
	PrivateKeyPath   string  `toml:"private_key_path"`
	EncryptedKeyPath string  `toml:"encrypted_key_path"`
	KeyPassword      string  `toml:"key_password"`
	RateLimitPerSec  float64 `toml:"rate_limit_per_sec"`
}

// OMSConfig holds order-management parameters.
type OMSConfig struct {
	RepriceIntervalSec int `toml:"reprice_interval_sec"`
	MaxChaseCents      int `toml:"max_chase_cents"`
}

// PublicConfig holds the delayed public read-model parameters.
type PublicConfig struct {
	DelaySec int `toml:"delay_sec"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr        string `toml:"addr"`
	Password    string `toml:"password"`
	DB          int    `toml:"db"`
	PoolSize    int    `toml:"pool_size"`
	MaxRetries  int    `toml:"max_retries"`
	TLSEnabled  bool   `toml:"tls_enabled"`
	QuoteTTLSec int    `toml:"quote_ttl_sec"`
}

// ArchiveConfig holds S3 snapshot-archival parameters.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
	Cron           string `toml:"cron"`
}

// RollupsConfig holds the analytics rollup schedule.
type RollupsConfig struct {
	Cron string `toml:"cron"`
}

// ServerConfig holds the read-only HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// WeatherCacheTTL returns the weather cache TTL as a duration.
func (c *Config) WeatherCacheTTL() time.Duration {
	return time.Duration(c.Weather.CacheTTLSec) * time.Second
}

// WeatherStaleCeiling returns the source-staleness ceiling as a duration.
func (c *Config) WeatherStaleCeiling() time.Duration {
	return time.Duration(c.Weather.StaleCeilingSec) * time.Second
}

// CycleInterval returns the trading-cycle interval as a duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Loop.CycleIntervalSec) * time.Second
}

// ErrorSleep returns the post-error sleep as a duration.
func (c *Config) ErrorSleep() time.Duration {
	return time.Duration(c.Loop.ErrorSleepSec) * time.Second
}

// CallTimeout returns the hard per-network-call timeout.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Loop.CallTimeoutSec) * time.Second
}

// CycleBudget returns the overall per-cycle time budget.
func (c *Config) CycleBudget() time.Duration {
	return time.Duration(c.Loop.CycleBudgetSec) * time.Second
}

// RepriceInterval returns the minimum time between cancel/replace attempts.
func (c *Config) RepriceInterval() time.Duration {
	return time.Duration(c.OMS.RepriceIntervalSec) * time.Second
}

// PublicDelay returns the public-disclosure delay as a duration.
func (c *Config) PublicDelay() time.Duration {
	return time.Duration(c.Public.DelaySec) * time.Second
}

// RejectWindow returns the rejection-burst sliding window as a duration.
func (c *Config) RejectWindow() time.Duration {
	return time.Duration(c.Trading.RejectWindowMinutes) * time.Minute
}

// Trading modes.
const (
	ModeShadow = "shadow"
	ModePaper  = "paper"
	ModeLive   = "live"
)

// ExchangeBaseURL returns the endpoint matching the configured mode: the
// demo endpoint for paper trading, the production endpoint otherwise.
func (c *Config) ExchangeBaseURL() string {
	if c.Mode == ModePaper {
		return c.Exchange.DemoBaseURL
	}
	return c.Exchange.BaseURL
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			Bankroll:              992.10,
			MaxTradeRiskPct:       0.02,
			MaxCityExposurePct:    0.03,
			MaxClusterExposurePct: 0.05,
			MaxDailyLossPct:       0.05,
			MaxPositionSize:       200,
			MaxRejectsPerWindow:   5,
			RejectWindowMinutes:   15,
			MaxUncertainty:        0.30,
			DefaultStdDevF:        3.0,
		},
		Gates: GatesConfig{
			SpreadMaxCents:       4,
			LiquidityMin:         500,
			MinLiquidityMultiple: 5.0,
			MinEdgeAfterCosts:    0.03,
		},
		Loop: LoopConfig{
			CycleIntervalSec: 60,
			ErrorSleepSec:    5,
			CityConcurrency:  10,
			CallTimeoutSec:   10,
			CycleBudgetSec:   30,
		},
		Weather: WeatherConfig{
			BaseURL:         "https://api.weather.gov",
			UserAgent:       "skybot/1.0 (ops@skybot.dev)",
			CacheTTLSec:     300,
			StaleCeilingSec: 1800,
			RateLimitPerSec: 1,
		},
		Exchange: ExchangeConfig{
			BaseURL:         "https://api.elections.kalshi.com/trade-api/v2",
			DemoBaseURL:     "https://demo-api.kalshi.co/trade-api/v2",
			RateLimitPerSec: 10,
		},
		OMS: OMSConfig{
			RepriceIntervalSec: 120,
			MaxChaseCents:      5,
		},
		Public: PublicConfig{
			DelaySec: 3600,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "skybot",
			User:          "skybot",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    20,
			MaxRetries:  3,
			QuoteTTLSec: 30,
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "skybot-archive",
			ForcePathStyle: true,
			RetentionDays:  90,
			Cron:           "30 3 * * *",
		},
		Rollups: RollupsConfig{
			Cron: "10 0 * * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"component_down", "daily_loss_trip", "reject_burst_trip", "reconcile_mismatch", "orphan_import"},
		},
		Mode:     ModeShadow,
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeShadow: true,
	ModePaper:  true,
	ModeLive:   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: shadow, paper, live)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Trading
	if c.Trading.Bankroll <= 0 {
		errs = append(errs, "trading: bankroll must be > 0")
	}
	for name, pct := range map[string]float64{
		"max_trade_risk_pct":       c.Trading.MaxTradeRiskPct,
		"max_city_exposure_pct":    c.Trading.MaxCityExposurePct,
		"max_cluster_exposure_pct": c.Trading.MaxClusterExposurePct,
		"max_daily_loss_pct":       c.Trading.MaxDailyLossPct,
	} {
		if pct <= 0 || pct > 1 {
			errs = append(errs, fmt.Sprintf("trading: %s must be in (0, 1], got %g", name, pct))
		}
	}
	if c.Trading.MaxPositionSize < 1 {
		errs = append(errs, "trading: max_position_size must be >= 1")
	}
	if c.Trading.MaxUncertainty <= 0 || c.Trading.MaxUncertainty > 1 {
		errs = append(errs, "trading: max_uncertainty must be in (0, 1]")
	}
	if c.Trading.MaxRejectsPerWindow < 1 {
		errs = append(errs, "trading: max_rejects_per_window must be >= 1")
	}
	if c.Trading.RejectWindowMinutes < 1 {
		errs = append(errs, "trading: reject_window_minutes must be >= 1")
	}

	// Gates
	if c.Gates.SpreadMaxCents < 1 {
		errs = append(errs, "gates: spread_max_cents must be >= 1")
	}
	if c.Gates.LiquidityMin < 0 {
		errs = append(errs, "gates: liquidity_min must be >= 0")
	}
	if c.Gates.MinLiquidityMultiple <= 0 {
		errs = append(errs, "gates: min_liquidity_multiple must be > 0")
	}
	if c.Gates.MinEdgeAfterCosts < 0 || c.Gates.MinEdgeAfterCosts > 1 {
		errs = append(errs, "gates: min_edge_after_costs must be in [0, 1]")
	}

	// Loop
	if c.Loop.CycleIntervalSec < 10 {
		errs = append(errs, "loop: cycle_interval_sec must be >= 10")
	}
	if c.Loop.ErrorSleepSec < 1 {
		errs = append(errs, "loop: error_sleep_sec must be >= 1")
	}
	if c.Loop.CityConcurrency < 1 {
		errs = append(errs, "loop: city_concurrency must be >= 1")
	}

	// Weather
	if c.Weather.BaseURL == "" {
		errs = append(errs, "weather: base_url must not be empty")
	}
	if c.Weather.UserAgent == "" {
		errs = append(errs, "weather: user_agent must not be empty (the forecast service requires one)")
	}

	// Exchange — credentials are required for any mode that submits orders.
	if c.Mode == ModePaper || c.Mode == ModeLive {
		if c.Exchange.APIKeyID == "" {
			errs = append(errs, "exchange: api_key_id is required for mode "+c.Mode)
		}
		if c.Exchange.PrivateKeyPath == "" && c.Exchange.EncryptedKeyPath == "" {
			errs = append(errs, "exchange: either private_key_path or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Exchange.EncryptedKeyPath != "" && c.Exchange.KeyPassword == "" {
			errs = append(errs, "exchange: key_password is required when encrypted_key_path is set")
		}
	}
	if c.Mode == ModeLive && c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty for live mode")
	}
	if c.Mode == ModePaper && c.Exchange.DemoBaseURL == "" {
		errs = append(errs, "exchange: demo_base_url must not be empty for paper mode")
	}

	// Public
	if c.Public.DelaySec < 0 {
		errs = append(errs, "public: delay_sec must be >= 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			errs = append(errs, "archive: endpoint must not be empty when enabled")
		}
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty when enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

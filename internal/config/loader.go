package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SKYBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SKYBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Trading ──
	setFloat64(&cfg.Trading.Bankroll, "SKYBOT_TRADING_BANKROLL")
	setFloat64(&cfg.Trading.MaxTradeRiskPct, "SKYBOT_TRADING_MAX_TRADE_RISK_PCT")
	setFloat64(&cfg.Trading.MaxCityExposurePct, "SKYBOT_TRADING_MAX_CITY_EXPOSURE_PCT")
	setFloat64(&cfg.Trading.MaxClusterExposurePct, "SKYBOT_TRADING_MAX_CLUSTER_EXPOSURE_PCT")
	setFloat64(&cfg.Trading.MaxDailyLossPct, "SKYBOT_TRADING_MAX_DAILY_LOSS_PCT")
	setInt(&cfg.Trading.MaxPositionSize, "SKYBOT_TRADING_MAX_POSITION_SIZE")
	setFloat64(&cfg.Trading.MaxUncertainty, "SKYBOT_TRADING_MAX_UNCERTAINTY")
	setFloat64(&cfg.Trading.DefaultStdDevF, "SKYBOT_TRADING_DEFAULT_STD_DEV_F")

	// ── Gates ──
	setInt(&cfg.Gates.SpreadMaxCents, "SKYBOT_GATES_SPREAD_MAX_CENTS")
	setInt64(&cfg.Gates.LiquidityMin, "SKYBOT_GATES_LIQUIDITY_MIN")
	setFloat64(&cfg.Gates.MinLiquidityMultiple, "SKYBOT_GATES_MIN_LIQUIDITY_MULTIPLE")
	setFloat64(&cfg.Gates.MinEdgeAfterCosts, "SKYBOT_GATES_MIN_EDGE_AFTER_COSTS")

	// ── Loop ──
	setInt(&cfg.Loop.CycleIntervalSec, "SKYBOT_LOOP_CYCLE_INTERVAL_SEC")
	setInt(&cfg.Loop.ErrorSleepSec, "SKYBOT_LOOP_ERROR_SLEEP_SEC")
	setInt(&cfg.Loop.CityConcurrency, "SKYBOT_LOOP_CITY_CONCURRENCY")

	// ── Weather ──
	setStr(&cfg.Weather.BaseURL, "SKYBOT_WEATHER_BASE_URL")
	setStr(&cfg.Weather.UserAgent, "SKYBOT_WEATHER_USER_AGENT")
	setInt(&cfg.Weather.CacheTTLSec, "SKYBOT_WEATHER_CACHE_TTL_SEC")
	setInt(&cfg.Weather.StaleCeilingSec, "SKYBOT_WEATHER_STALE_CEILING_SEC")

	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "SKYBOT_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.DemoBaseURL, "SKYBOT_EXCHANGE_DEMO_BASE_URL")
	setStr(&cfg.Exchange.APIKeyID, "SKYBOT_EXCHANGE_API_KEY_ID")
	setStr(&cfg.Exchange.PrivateKeyPath, "SKYBOT_EXCHANGE_PRIVATE_KEY_PATH")
	setStr(&cfg.Exchange.EncryptedKeyPath, "SKYBOT_EXCHANGE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Exchange.KeyPassword, "SKYBOT_EXCHANGE_KEY_PASSWORD")

	// ── OMS ──
	setInt(&cfg.OMS.RepriceIntervalSec, "SKYBOT_OMS_REPRICE_INTERVAL_SEC")
	setInt(&cfg.OMS.MaxChaseCents, "SKYBOT_OMS_MAX_CHASE_CENTS")

	// ── Public ──
	setInt(&cfg.Public.DelaySec, "SKYBOT_PUBLIC_DELAY_SEC")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SKYBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SKYBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SKYBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SKYBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SKYBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SKYBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SKYBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SKYBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SKYBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SKYBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SKYBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SKYBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SKYBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SKYBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SKYBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SKYBOT_REDIS_TLS_ENABLED")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SKYBOT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "SKYBOT_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "SKYBOT_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "SKYBOT_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "SKYBOT_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "SKYBOT_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "SKYBOT_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "SKYBOT_ARCHIVE_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.RetentionDays, "SKYBOT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "SKYBOT_ARCHIVE_CRON")

	// ── Rollups ──
	setStr(&cfg.Rollups.Cron, "SKYBOT_ROLLUPS_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SKYBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SKYBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SKYBOT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SKYBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SKYBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SKYBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SKYBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SKYBOT_MODE")
	setStr(&cfg.LogLevel, "SKYBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

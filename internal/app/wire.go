package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/skybotdev/skybot/internal/blob/s3"
	"github.com/skybotdev/skybot/internal/cache/redis"
	"github.com/skybotdev/skybot/internal/cities"
	"github.com/skybotdev/skybot/internal/config"
	"github.com/skybotdev/skybot/internal/crypto"
	"github.com/skybotdev/skybot/internal/domain"
	"github.com/skybotdev/skybot/internal/notify"
	"github.com/skybotdev/skybot/internal/platform/kalshi"
	"github.com/skybotdev/skybot/internal/platform/nws"
	"github.com/skybotdev/skybot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application needs.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Registry
	Cities *cities.Registry

	// Stores
	WeatherStore  domain.WeatherStore
	MarketStore   domain.MarketStore
	SignalStore   domain.SignalStore
	IntentStore   domain.IntentStore
	OrderStore    domain.OrderStore
	FillStore     domain.FillStore
	PositionStore domain.PositionStore
	RiskEvents    domain.RiskEventStore
	HealthStore   domain.HealthStore
	CursorStore   domain.CursorStore
	PublicTrades  domain.PublicTradeStore
	RollupStore   domain.RollupStore

	// Caches and coordination
	QuoteCache  domain.QuoteCache
	LockManager domain.LockManager
	EventBus    domain.EventBus

	// Platform clients
	Exchange *kalshi.Client
	Weather  *nws.Client

	// Archival
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- City registry ---
	registry, err := cities.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: cities: %w", err)
	}
	deps.Cities = registry

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.WeatherStore = postgres.NewWeatherStore(pool)
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.SignalStore = postgres.NewSignalStore(pool)
	deps.IntentStore = postgres.NewIntentStore(pool)
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.FillStore = postgres.NewFillStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.RiskEvents = postgres.NewRiskEventStore(pool)
	deps.HealthStore = postgres.NewHealthStore(pool)
	deps.CursorStore = postgres.NewCursorStore(pool)
	deps.PublicTrades = postgres.NewPublicTradeStore(pool, cfg.PublicDelay())
	deps.RollupStore = postgres.NewRollupStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.QuoteCache = redis.NewQuoteCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.EventBus = redis.NewEventBus(redisClient)

	// --- Exchange client ---
	exchange := kalshi.NewClient(cfg.ExchangeBaseURL(), cfg.Exchange.APIKeyID, cfg.Exchange.RateLimitPerSec)
	if cfg.Exchange.PrivateKeyPath != "" || cfg.Exchange.EncryptedKeyPath != "" {
		der, err := crypto.LoadKeyDER(crypto.KeyConfig{
			PEMPath:          cfg.Exchange.PrivateKeyPath,
			EncryptedKeyPath: cfg.Exchange.EncryptedKeyPath,
			KeyPassword:      cfg.Exchange.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: exchange key: %w", err)
		}
		if err := exchange.SetRSAPrivateKey(der); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: exchange key: %w", err)
		}
	}
	deps.Exchange = exchange

	// --- Weather client ---
	deps.Weather = nws.NewClient(cfg.Weather.BaseURL, cfg.Weather.UserAgent, cfg.Weather.RateLimitPerSec)

	// --- S3 archival ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			writer,
			postgres.NewWeatherStore(pool),
			postgres.NewMarketStore(pool),
			postgres.NewSignalStore(pool),
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// archiveCutoff returns the retention cutoff for the archival sweep.
func archiveCutoff(retentionDays int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -retentionDays)
}

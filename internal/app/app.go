package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/linemk/crypto-shop/internal/config"
	"github.com/linemk/crypto-shop/internal/eventbus"
	"github.com/linemk/crypto-shop/internal/lib/tracing"
	"github.com/linemk/crypto-shop/internal/payment"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *sql.DB
	Redis     *redis.Client
	Publisher eventbus.Publisher
	Providers *payment.Registry

	shutdownTracing tracing.ShutdownFunc
}

// NewApp создаёт новый экземпляр App
func NewApp(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	// реализуем подключение к БД через DSN
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	shutdown, err := tracing.Init(ctx, cfg.Tracing.Enabled, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName, cfg.Env)
	if err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	var publisher eventbus.Publisher = eventbus.NoopPublisher{}
	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			db.Close()
			rdb.Close()
			return nil, errors.New("kafka enabled but no brokers configured")
		}
		publisher = eventbus.NewKafkaPublisher(log, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info("kafka publisher enabled", slog.String("topic", cfg.Kafka.Topic))
	}

	providers := NewProviderRegistry(log, cfg.Providers)
	if len(providers.IDs()) == 0 {
		log.Warn("no payment providers configured, purchases will fail")
	}

	return &App{
		Config:          cfg,
		Logger:          log,
		DB:              db,
		Redis:           rdb,
		Publisher:       publisher,
		Providers:       providers,
		shutdownTracing: shutdown,
	}, nil
}

// NewProviderRegistry регистрирует провайдеров, для которых заданы ключи.
// Провайдер без секрета вебхука не регистрируется: его уведомления нечем проверить.
func NewProviderRegistry(log *slog.Logger, cfg config.ProvidersConfig) *payment.Registry {
	var providers []payment.Provider

	if w := cfg.WolvPay; w.APIURL != "" && w.MerchantKey != "" && w.WebhookSecret != "" {
		providers = append(providers, payment.NewWolvPayClient(log, w.APIURL, w.MerchantKey, w.WebhookSecret, w.Timeout))
	} else {
		log.Info("wolvpay provider disabled")
	}

	if o := cfg.OxaPay; o.APIURL != "" && o.APIKey != "" && o.WebhookSecret != "" {
		providers = append(providers, payment.NewOxaPayClient(log, o.APIURL, o.APIKey, o.WebhookSecret, o.Timeout))
	} else {
		log.Info("oxapay provider disabled")
	}

	return payment.NewRegistry(providers...)
}

// Close освобождает ресурсы в обратном порядке
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.shutdownTracing(ctx); err != nil {
		a.Logger.Error("failed to shutdown tracing", slog.Any("error", err))
	}
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Error("failed to close publisher", slog.Any("error", err))
	}
	if err := a.Redis.Close(); err != nil {
		a.Logger.Error("failed to close redis", slog.Any("error", err))
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("failed to close database", slog.Any("error", err))
	}
}

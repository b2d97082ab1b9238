package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	pkgdb "github.com/floroz/bidgate/pkg/database"
	pkgevents "github.com/floroz/bidgate/pkg/events"
	"github.com/floroz/bidgate/services/bid-service/internal/adapters/cache"
	"github.com/floroz/bidgate/services/bid-service/internal/adapters/database"
	"github.com/floroz/bidgate/services/bid-service/internal/adapters/events"
	"github.com/floroz/bidgate/services/bid-service/internal/config"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Initialize Postgres Connection Pool
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Unable to parse database config", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("Unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if pingErr := pool.Ping(ctx); pingErr != nil {
		logger.Error("Unable to ping database", "error", pingErr)
		os.Exit(1)
	}
	logger.Info("Postgres Connected")

	// 2. Connect to RabbitMQ
	if cfg.RabbitMQURL == "" {
		logger.Error("RABBITMQ_URL is not set")
		os.Exit(1)
	}
	amqpConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()
	logger.Info("RabbitMQ Connected")

	publisher, err := pkgevents.NewRabbitMQPublisher(amqpConn, pkgevents.ExchangeAuctionEvents)
	if err != nil {
		logger.Error("Failed to create RabbitMQ publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	// 3. Redis for cache repair
	rdb := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	defer rdb.Close()

	// SKIP LOCKED already keeps relays apart; serializable is not needed here
	txManager := pkgdb.NewPostgresTransactionManager(pool, pkgdb.TxOptions{
		LockTimeout: cfg.Tx.LockTimeout,
		IsoLevel:    pgx.ReadCommitted,
		MaxRetries:  uint64(cfg.Tx.MaxRetries),
	}, logger)

	relay := pkgevents.NewOutboxRelay(
		database.NewPostgresOutboxRepository(pool),
		publisher,
		txManager,
		cfg.Outbox.BatchSize,
		cfg.Outbox.Interval,
		pkgevents.ExchangeAuctionEvents,
		logger,
	)
	consumer := events.NewCacheRepairConsumer(amqpConn, cache.NewRedisPriceCache(rdb, cfg.Redis.KeyPrefix), logger)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting Outbox Relay...")
		return relay.Run(gCtx)
	})
	g.Go(func() error {
		logger.Info("Starting Cache Repair Consumer...")
		return consumer.Run(gCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/floroz/bidgate/pkg/auth"
	pkgdb "github.com/floroz/bidgate/pkg/database"
	"github.com/floroz/bidgate/services/bid-service/internal/adapters/api"
	"github.com/floroz/bidgate/services/bid-service/internal/adapters/cache"
	"github.com/floroz/bidgate/services/bid-service/internal/adapters/database"
	"github.com/floroz/bidgate/services/bid-service/internal/config"
	"github.com/floroz/bidgate/services/bid-service/internal/domain/bids"
	"github.com/floroz/bidgate/services/bid-service/internal/domain/users"
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

	// 2. Redis is optional: without it every bid goes to Postgres
	rdb := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	defer rdb.Close()

	// 3. Token signer
	if cfg.JWT.PrivateKeyPath == "" || cfg.JWT.PublicKeyPath == "" {
		logger.Error("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH must be set")
		os.Exit(1)
	}
	privateKeyPEM, err := os.ReadFile(cfg.JWT.PrivateKeyPath)
	if err != nil {
		logger.Error("Failed to read private key", "error", err)
		os.Exit(1)
	}
	publicKeyPEM, err := os.ReadFile(cfg.JWT.PublicKeyPath)
	if err != nil {
		logger.Error("Failed to read public key", "error", err)
		os.Exit(1)
	}
	signer, err := auth.NewSigner(privateKeyPEM, publicKeyPEM, cfg.JWT.Issuer, cfg.JWT.TokenTTL)
	if err != nil {
		logger.Error("Failed to create signer", "error", err)
		os.Exit(1)
	}

	// 4. Initialize Repositories (Infrastructure Layer)
	txManager := pkgdb.NewPostgresTransactionManager(pool, pkgdb.TxOptions{
		LockTimeout:    cfg.Tx.LockTimeout,
		MaxRetries:     uint64(cfg.Tx.MaxRetries),
		RetryBaseDelay: cfg.Tx.RetryBaseDelay,
	}, logger)
	auctionRepo := database.NewPostgresAuctionRepository(pool)
	bidRepo := database.NewPostgresBidRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)
	userRepo := database.NewPostgresUserRepository(pool)
	priceCache := cache.NewRedisPriceCache(rdb, cfg.Redis.KeyPrefix)

	// 5. Initialize Services (Domain Layer)
	admission := bids.NewAdmissionService(txManager, auctionRepo, bidRepo, outboxRepo, priceCache, cfg.Redis.Timeout, logger)
	userService := users.NewService(userRepo, signer, txManager)

	// 6. Initialize API Handler (ConnectRPC)
	handler := api.NewBidServiceHandler(admission, userService, logger)
	mux := handler.Routes(signer)

	// Use h2c for HTTP/2 without TLS (common for internal services / local dev)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting Bid Service API", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down API...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("API stopped")
}

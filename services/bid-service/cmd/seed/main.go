package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/floroz/bidgate/pkg/auth"
	pkgdb "github.com/floroz/bidgate/pkg/database"
	"github.com/floroz/bidgate/services/bid-service/internal/adapters/database"
	"github.com/floroz/bidgate/services/bid-service/internal/config"
	"github.com/floroz/bidgate/services/bid-service/internal/domain/bids"
	"github.com/floroz/bidgate/services/bid-service/internal/domain/users"
)

// seed creates a bidder account and an open auction for local development.
// Auctions are normally owned by the catalogue service.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	email := flag.String("email", "bidder@example.com", "bidder email")
	password := flag.String("password", "correct-horse-battery", "bidder password")
	auctionID := flag.String("auction", "A1", "auction id")
	basePrice := flag.String("base-price", "1400", "auction base price")
	duration := flag.Duration("duration", 24*time.Hour, "time until the auction expires")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, logger, *email, *password, *auctionID, *basePrice, *duration); err != nil {
		logger.Error("Seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, email, password, auctionID, basePrice string, duration time.Duration) error {
	base, err := decimal.NewFromString(basePrice)
	if err != nil {
		return fmt.Errorf("invalid base price: %w", err)
	}
	if !base.IsPositive() {
		return errors.New("base price must be positive")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("unable to create connection pool: %w", err)
	}
	defer pool.Close()

	txManager := pkgdb.NewPostgresTransactionManager(pool, pkgdb.TxOptions{
		LockTimeout:    cfg.Tx.LockTimeout,
		MaxRetries:     uint64(cfg.Tx.MaxRetries),
		RetryBaseDelay: cfg.Tx.RetryBaseDelay,
	}, logger)

	// Register needs no signer; login happens through the API
	userService := users.NewService(database.NewPostgresUserRepository(pool), noTokens{}, txManager)
	user, err := userService.Register(ctx, email, password)
	switch {
	case errors.Is(err, users.ErrUserAlreadyExists):
		logger.Info("Bidder already exists", "email", email)
	case err != nil:
		return err
	default:
		logger.Info("Created bidder", "email", user.Email, "id", user.ID)
	}

	auction := &bids.Auction{
		ID:        auctionID,
		BasePrice: base,
		ExpiresAt: time.Now().Add(duration),
	}
	if err := database.NewPostgresAuctionRepository(pool).CreateAuction(ctx, pool, auction); err != nil {
		return err
	}
	logger.Info("Created auction", "auction_id", auction.ID, "base_price", base.String(), "expires_at", auction.ExpiresAt)
	return nil
}

type noTokens struct{}

func (noTokens) GenerateToken(userID uuid.UUID, email string) (*auth.Token, error) {
	return nil, errors.New("token issuing is not available in seed")
}

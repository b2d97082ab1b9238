package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	pkgdb "github.com/floroz/bidgate/pkg/database"
	"github.com/floroz/bidgate/services/bid-service/internal/domain/bids"
)

// PostgresAuctionRepository implements bids.AuctionRepository using pgx
type PostgresAuctionRepository struct {
	pool *pgxpool.Pool // Keep pool for non-transactional reads
}

// NewPostgresAuctionRepository creates a new PostgreSQL auction repository
func NewPostgresAuctionRepository(pool *pgxpool.Pool) *PostgresAuctionRepository {
	return &PostgresAuctionRepository{pool: pool}
}

const auctionColumns = `id, base_price, max_bid_price, COALESCE(leader_identity, ''), expires_at`

// GetOpenAuctionForUpdate locks the auction row if it has not expired at now
func (r *PostgresAuctionRepository) GetOpenAuctionForUpdate(ctx context.Context, tx pgx.Tx, auctionID string, now time.Time) (*bids.Auction, error) {
	query := `SELECT ` + auctionColumns + `
		FROM auctions
		WHERE id = $1 AND expires_at > $2
		FOR UPDATE`
	return scanAuction(tx.QueryRow(ctx, query, auctionID, now))
}

// GetAuction reads an auction regardless of expiry (non-transactional read)
func (r *PostgresAuctionRepository) GetAuction(ctx context.Context, auctionID string) (*bids.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`
	return scanAuction(r.pool.QueryRow(ctx, query, auctionID))
}

// UpdateMaxBid sets max bid and leader in one statement
func (r *PostgresAuctionRepository) UpdateMaxBid(ctx context.Context, tx pgx.Tx, auctionID string, price decimal.Decimal, leader string) (time.Time, error) {
	query := `
		UPDATE auctions
		SET max_bid_price = $1, leader_identity = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING expires_at
	`
	var expiresAt time.Time
	err := tx.QueryRow(ctx, query, decimalToNumeric(price), leader, auctionID).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, bids.ErrAuctionNotFound
		}
		return time.Time{}, fmt.Errorf("failed to update max bid: %w", err)
	}
	return expiresAt, nil
}

// CreateAuction inserts an auction. Auctions are owned by the catalogue; this is
// used for seeding.
func (r *PostgresAuctionRepository) CreateAuction(ctx context.Context, db pkgdb.DBTX, a *bids.Auction) error {
	query := `
		INSERT INTO auctions (id, base_price, max_bid_price, leader_identity, expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
	`
	_, err := db.Exec(ctx, query,
		a.ID,
		decimalToNumeric(a.BasePrice),
		nullDecimalToNumeric(a.MaxBidPrice),
		a.LeaderIdentity,
		a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auction: %w", err)
	}
	return nil
}

func scanAuction(row pgx.Row) (*bids.Auction, error) {
	var (
		a            bids.Auction
		base, maxBid pgtype.Numeric
	)
	if err := row.Scan(&a.ID, &base, &maxBid, &a.LeaderIdentity, &a.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bids.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}

	var err error
	if a.BasePrice, err = numericToDecimal(base); err != nil {
		return nil, fmt.Errorf("invalid base_price for auction %s: %w", a.ID, err)
	}
	if a.MaxBidPrice, err = numericToNullDecimal(maxBid); err != nil {
		return nil, fmt.Errorf("invalid max_bid_price for auction %s: %w", a.ID, err)
	}
	return &a, nil
}

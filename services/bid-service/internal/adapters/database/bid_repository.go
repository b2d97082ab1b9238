package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/bidgate/services/bid-service/internal/domain/bids"
)

// PostgresBidRepository implements bids.BidRepository using pgx
type PostgresBidRepository struct {
	pool *pgxpool.Pool // Keep pool for read-only operations
}

// NewPostgresBidRepository creates a new PostgreSQL bid repository
func NewPostgresBidRepository(pool *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{pool: pool}
}

// GetBid returns the bidder's bid on the auction, or nil when there is none
func (r *PostgresBidRepository) GetBid(ctx context.Context, tx pgx.Tx, auctionID, bidderIdentity string) (*bids.Bid, error) {
	query := `
		SELECT id, auction_id, bidder_identity, price, placed_at
		FROM bids
		WHERE auction_id = $1 AND bidder_identity = $2
		FOR UPDATE
	`
	bid, err := scanBid(tx.QueryRow(ctx, query, auctionID, bidderIdentity))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return bid, nil
}

// InsertBid saves the bidder's first bid on an auction
func (r *PostgresBidRepository) InsertBid(ctx context.Context, tx pgx.Tx, bid *bids.Bid) error {
	query := `
		INSERT INTO bids (id, auction_id, bidder_identity, price, placed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.Exec(ctx, query,
		bid.ID,
		bid.AuctionID,
		bid.BidderIdentity,
		decimalToNumeric(bid.Price),
		bid.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

// UpdateBid overwrites the price and placement time of an existing bid
func (r *PostgresBidRepository) UpdateBid(ctx context.Context, tx pgx.Tx, bid *bids.Bid) error {
	query := `
		UPDATE bids
		SET price = $1, placed_at = $2
		WHERE id = $3
	`
	result, err := tx.Exec(ctx, query, decimalToNumeric(bid.Price), bid.PlacedAt, bid.ID)
	if err != nil {
		return fmt.Errorf("failed to update bid: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("bid %s not found", bid.ID)
	}
	return nil
}

// ListBids returns the current bids on an auction, highest first
func (r *PostgresBidRepository) ListBids(ctx context.Context, auctionID string) ([]*bids.Bid, error) {
	query := `
		SELECT id, auction_id, bidder_identity, price, placed_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY price DESC, placed_at ASC
	`
	rows, err := r.pool.Query(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var result []*bids.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		result = append(result, bid)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}

	return result, nil
}

func scanBid(row pgx.Row) (*bids.Bid, error) {
	var (
		bid   bids.Bid
		price pgtype.Numeric
	)
	if err := row.Scan(&bid.ID, &bid.AuctionID, &bid.BidderIdentity, &price, &bid.PlacedAt); err != nil {
		return nil, err
	}
	p, err := numericToDecimal(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price for bid %s: %w", bid.ID, err)
	}
	bid.Price = p
	return &bid, nil
}

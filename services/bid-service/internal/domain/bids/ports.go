package bids

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/floroz/bidgate/pkg/events"
)

// AuctionRepository defines the interface for auction persistence
type AuctionRepository interface {
	// GetOpenAuctionForUpdate locks and returns the auction if it expires after now.
	// Returns ErrAuctionNotFound when the auction is missing or already expired.
	GetOpenAuctionForUpdate(ctx context.Context, tx pgx.Tx, auctionID string, now time.Time) (*Auction, error)

	// UpdateMaxBid sets max bid and leader together and returns the auction expiry
	UpdateMaxBid(ctx context.Context, tx pgx.Tx, auctionID string, price decimal.Decimal, leader string) (time.Time, error)

	// GetAuction reads an auction outside any transaction
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
}

// BidRepository defines the interface for bid persistence
type BidRepository interface {
	// GetBid returns the bidder's bid on the auction, or nil if there is none
	GetBid(ctx context.Context, tx pgx.Tx, auctionID, bidderIdentity string) (*Bid, error)

	// InsertBid creates the bidder's first bid on the auction
	InsertBid(ctx context.Context, tx pgx.Tx, bid *Bid) error

	// UpdateBid overwrites price and placed_at of the existing row
	UpdateBid(ctx context.Context, tx pgx.Tx, bid *Bid) error

	// ListBids returns every bidder's current bid on the auction, highest first
	ListBids(ctx context.Context, auctionID string) ([]*Bid, error)
}

// OutboxRepository defines the interface for outbox event persistence
type OutboxRepository interface {
	// SaveEvent saves an outbox event within a transaction
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}

// PriceCache is the fast-reject cache of each auction's last known max bid.
// It is never authoritative.
type PriceCache interface {
	// GetMaxBid returns the cached max bid; ok is false on a miss
	GetMaxBid(ctx context.Context, auctionID string) (price decimal.Decimal, ok bool, err error)

	// SetMaxBid stores price until expireAt unless a higher or equal value is already cached
	SetMaxBid(ctx context.Context, auctionID string, price decimal.Decimal, expireAt time.Time) error
}

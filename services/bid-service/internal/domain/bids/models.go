package bids

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Auction is the durable auction row. It is created outside this service and
// only its max bid and leader are written here.
type Auction struct {
	ID             string
	BasePrice      decimal.Decimal
	MaxBidPrice    decimal.NullDecimal // invalid until the first accepted bid
	LeaderIdentity string              // empty until the first accepted bid
	ExpiresAt      time.Time
}

// Bid is one bidder's current offer on one auction.
// There is at most one row per (AuctionID, BidderIdentity).
type Bid struct {
	ID             uuid.UUID
	AuctionID      string
	BidderIdentity string
	Price          decimal.Decimal
	PlacedAt       time.Time
}

// Prices are stored as NUMERIC(18, 2)
const PriceScale = 2

// MaxPrice is the first value the price columns cannot hold
var MaxPrice = decimal.New(1, 16)

// PlaceBidCommand is an already-authenticated bid submission
type PlaceBidCommand struct {
	AuctionID      string
	BidderIdentity string
	Price          decimal.Decimal
}

// Validate checks the command shape; it says nothing about the auction state
func (c PlaceBidCommand) Validate() error {
	if strings.TrimSpace(c.AuctionID) == "" {
		return fmt.Errorf("%w: auction id is required", ErrInvalidBid)
	}
	if strings.TrimSpace(c.BidderIdentity) == "" {
		return fmt.Errorf("%w: bidder identity is required", ErrInvalidBid)
	}
	if !c.Price.IsPositive() {
		return fmt.Errorf("%w: bid price must be positive", ErrInvalidBid)
	}
	if !c.Price.Equal(c.Price.Truncate(PriceScale)) {
		return fmt.Errorf("%w: bid price has more than %d decimal places", ErrInvalidBid, PriceScale)
	}
	if c.Price.GreaterThanOrEqual(MaxPrice) {
		return fmt.Errorf("%w: bid price must be less than %s", ErrInvalidBid, MaxPrice.String())
	}
	return nil
}

// RejectReason identifies why a bid was not admitted
type RejectReason string

const (
	// ReasonCachedHigherBid: the fast-reject cache already holds a max bid >= the price
	ReasonCachedHigherBid RejectReason = "cached_higher_bid"
	// ReasonAuctionCompleted: the auction does not exist or has expired
	ReasonAuctionCompleted RejectReason = "auction_completed"
	// ReasonBelowBasePrice: the price does not exceed the base price
	ReasonBelowBasePrice RejectReason = "below_base_price"
	// ReasonHigherBidPlaced: the stored max bid is >= the price
	ReasonHigherBidPlaced RejectReason = "higher_bid_placed"
)

// Messages returned to callers. They are part of the API and must not change.
const (
	MessageAccepted         = "Success, Bid Placed."
	MessageCachedHigherBid  = "bid price is lesser than or equal to current max bid"
	MessageAuctionCompleted = "auction completed, bid can't be placed."
	MessageBelowBasePrice   = "bid price should be greater than base price."
	MessageHigherBidPlaced  = "a higher bid is already placed; re-shop and bid again."
)

// Message returns the caller-facing text for the reason
func (r RejectReason) Message() string {
	switch r {
	case ReasonCachedHigherBid:
		return MessageCachedHigherBid
	case ReasonAuctionCompleted:
		return MessageAuctionCompleted
	case ReasonBelowBasePrice:
		return MessageBelowBasePrice
	case ReasonHigherBidPlaced:
		return MessageHigherBidPlaced
	default:
		return string(r)
	}
}

// Result is the business outcome of PlaceBid. Rejections are results, not errors.
type Result struct {
	Accepted  bool
	Reason    RejectReason // empty when accepted
	Message   string
	ExpiresAt *time.Time // set when accepted
}

func accepted(expiresAt time.Time) *Result {
	return &Result{
		Accepted:  true,
		Message:   MessageAccepted,
		ExpiresAt: &expiresAt,
	}
}

func rejected(reason RejectReason) *Result {
	return &Result{
		Reason:  reason,
		Message: reason.Message(),
	}
}

package bids

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EventTypeBidPlaced is the routing key of accepted-bid events
const EventTypeBidPlaced = "bid.placed"

// BidPlacedEvent is published once per accepted bid
type BidPlacedEvent struct {
	BidID            uuid.UUID
	AuctionID        string
	BidderIdentity   string
	Price            decimal.Decimal
	PlacedAt         time.Time
	AuctionExpiresAt time.Time
}

// Marshal encodes the event as a protobuf Struct
func (e *BidPlacedEvent) Marshal() ([]byte, error) {
	msg, err := structpb.NewStruct(map[string]any{
		"bid_id":             e.BidID.String(),
		"auction_id":         e.AuctionID,
		"bidder_identity":    e.BidderIdentity,
		"price":              e.Price.String(), // string keeps it exact
		"placed_at":          e.PlacedAt.UTC().Format(time.RFC3339Nano),
		"auction_expires_at": e.AuctionExpiresAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build event struct: %w", err)
	}
	return proto.Marshal(msg)
}

// UnmarshalBidPlacedEvent decodes a payload written by Marshal
func UnmarshalBidPlacedEvent(payload []byte) (*BidPlacedEvent, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	fields := msg.GetFields()
	str := func(key string) string {
		return fields[key].GetStringValue()
	}

	var (
		e   BidPlacedEvent
		err error
	)
	if e.BidID, err = uuid.Parse(str("bid_id")); err != nil {
		return nil, fmt.Errorf("invalid bid_id: %w", err)
	}
	if e.AuctionID = str("auction_id"); e.AuctionID == "" {
		return nil, fmt.Errorf("missing auction_id")
	}
	e.BidderIdentity = str("bidder_identity")
	if e.Price, err = decimal.NewFromString(str("price")); err != nil {
		return nil, fmt.Errorf("invalid price: %w", err)
	}
	if e.PlacedAt, err = time.Parse(time.RFC3339Nano, str("placed_at")); err != nil {
		return nil, fmt.Errorf("invalid placed_at: %w", err)
	}
	if e.AuctionExpiresAt, err = time.Parse(time.RFC3339Nano, str("auction_expires_at")); err != nil {
		return nil, fmt.Errorf("invalid auction_expires_at: %w", err)
	}
	return &e, nil
}

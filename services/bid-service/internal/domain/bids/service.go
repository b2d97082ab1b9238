package bids

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/floroz/bidgate/pkg/database"
	"github.com/floroz/bidgate/pkg/events"
)

var (
	// ErrInvalidBid means the command itself is malformed
	ErrInvalidBid = errors.New("invalid bid")
	// ErrAuctionNotFound is returned by repositories for a missing or expired auction
	ErrAuctionNotFound = errors.New("auction not found")
	// ErrOutcomeUnknown means the caller's deadline expired while the transaction
	// was in flight; the bid may or may not have been committed
	ErrOutcomeUnknown = errors.New("bid outcome unknown")
)

// DefaultCacheTimeout bounds each fast-reject cache call
const DefaultCacheTimeout = 100 * time.Millisecond

// evaluatePreChecks applies the admission rules in their fixed order.
// A nil auction means none is open.
func evaluatePreChecks(auction *Auction, price decimal.Decimal) (RejectReason, bool) {
	if auction == nil {
		return ReasonAuctionCompleted, false
	}
	// equal to base is rejected too: the bid must exceed it
	if price.LessThanOrEqual(auction.BasePrice) {
		return ReasonBelowBasePrice, false
	}
	if auction.MaxBidPrice.Valid && auction.MaxBidPrice.Decimal.GreaterThanOrEqual(price) {
		return ReasonHigherBidPlaced, false
	}
	return "", true
}

// AdmissionService decides whether bids are admitted. It holds no locks of its
// own; the store's transaction isolation arbitrates concurrent bids.
type AdmissionService struct {
	txManager    database.TransactionManager
	auctionRepo  AuctionRepository
	bidRepo      BidRepository
	outboxRepo   OutboxRepository
	cache        PriceCache
	cacheTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewAdmissionService creates a new admission service
func NewAdmissionService(
	txManager database.TransactionManager,
	auctionRepo AuctionRepository,
	bidRepo BidRepository,
	outboxRepo OutboxRepository,
	cache PriceCache,
	cacheTimeout time.Duration,
	logger *slog.Logger,
) *AdmissionService {
	if cacheTimeout <= 0 {
		cacheTimeout = DefaultCacheTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdmissionService{
		txManager:    txManager,
		auctionRepo:  auctionRepo,
		bidRepo:      bidRepo,
		outboxRepo:   outboxRepo,
		cache:        cache,
		cacheTimeout: cacheTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// PlaceBid admits or rejects a bid.
// A non-nil error is always an infrastructure failure; business rejections come
// back as a Result with Accepted == false.
func (s *AdmissionService) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (*Result, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if res := s.fastReject(ctx, cmd); res != nil {
		return res, nil
	}

	var res *Result
	err := s.txManager.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		// reset so a retried attempt never reports an earlier attempt's outcome
		res = nil
		r, err := s.admit(ctx, tx, cmd)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ErrOutcomeUnknown, err)
		}
		s.logger.Error("Failed to place bid", "auction_id", cmd.AuctionID, "error", err)
		return nil, fmt.Errorf("failed to place bid on auction %s: %w", cmd.AuctionID, err)
	}

	if !res.Accepted {
		s.logger.Info("Bid rejected", "auction_id", cmd.AuctionID, "reason", res.Reason)
		return res, nil
	}

	s.writeThrough(ctx, cmd, *res.ExpiresAt)
	s.logger.Info("Bid placed", "auction_id", cmd.AuctionID, "price", cmd.Price.String())
	return res, nil
}

// fastReject consults the cache only. It returns nil when the bid must go to the store.
func (s *AdmissionService) fastReject(ctx context.Context, cmd PlaceBidCommand) *Result {
	cacheCtx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()

	cached, ok, err := s.cache.GetMaxBid(cacheCtx, cmd.AuctionID)
	if err != nil {
		s.logger.Warn("Price cache unavailable, treating as miss", "auction_id", cmd.AuctionID, "error", err)
		return nil
	}
	if !ok || cached.LessThan(cmd.Price) {
		return nil
	}

	s.logger.Info("Bid rejected from cache", "auction_id", cmd.AuctionID, "cached_max", cached.String())
	return rejected(ReasonCachedHigherBid)
}

// admit is one attempt of the transaction body. Everything it reads comes from tx.
func (s *AdmissionService) admit(ctx context.Context, tx pgx.Tx, cmd PlaceBidCommand) (*Result, error) {
	now := s.now()

	auction, err := s.auctionRepo.GetOpenAuctionForUpdate(ctx, tx, cmd.AuctionID, now)
	if err != nil && !errors.Is(err, ErrAuctionNotFound) {
		return nil, fmt.Errorf("failed to read auction: %w", err)
	}
	if reason, ok := evaluatePreChecks(auction, cmd.Price); !ok {
		return rejected(reason), nil
	}

	existing, err := s.bidRepo.GetBid(ctx, tx, cmd.AuctionID, cmd.BidderIdentity)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing bid: %w", err)
	}

	expiresAt, err := s.auctionRepo.UpdateMaxBid(ctx, tx, cmd.AuctionID, cmd.Price, cmd.BidderIdentity)
	if err != nil {
		return nil, fmt.Errorf("failed to update max bid: %w", err)
	}

	bid := existing
	if bid == nil {
		bid = &Bid{
			ID:             uuid.New(),
			AuctionID:      cmd.AuctionID,
			BidderIdentity: cmd.BidderIdentity,
			Price:          cmd.Price,
			PlacedAt:       now,
		}
		if err := s.bidRepo.InsertBid(ctx, tx, bid); err != nil {
			return nil, fmt.Errorf("failed to insert bid: %w", err)
		}
	} else {
		bid.Price = cmd.Price
		bid.PlacedAt = now
		if err := s.bidRepo.UpdateBid(ctx, tx, bid); err != nil {
			return nil, fmt.Errorf("failed to update bid: %w", err)
		}
	}

	event := &BidPlacedEvent{
		BidID:            bid.ID,
		AuctionID:        bid.AuctionID,
		BidderIdentity:   bid.BidderIdentity,
		Price:            bid.Price,
		PlacedAt:         bid.PlacedAt,
		AuctionExpiresAt: expiresAt,
	}
	payload, err := event.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.outboxRepo.SaveEvent(ctx, tx, events.NewOutboxEvent(EventTypeBidPlaced, payload, now)); err != nil {
		return nil, fmt.Errorf("failed to save outbox event: %w", err)
	}

	return accepted(expiresAt), nil
}

// writeThrough runs after commit. The bid is already durable, so failures are only logged.
func (s *AdmissionService) writeThrough(ctx context.Context, cmd PlaceBidCommand, expiresAt time.Time) {
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cacheTimeout)
	defer cancel()

	if err := s.cache.SetMaxBid(cacheCtx, cmd.AuctionID, cmd.Price, expiresAt); err != nil {
		s.logger.Warn("Failed to write max bid to cache", "auction_id", cmd.AuctionID, "error", err)
	}
}

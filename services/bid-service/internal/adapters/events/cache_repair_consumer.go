package events

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	pkgevents "github.com/floroz/bidgate/pkg/events"
	"github.com/floroz/bidgate/services/bid-service/internal/domain/bids"
)

// CacheRepairQueue is the durable queue bound to bid.placed
const CacheRepairQueue = "bidgate_cache_repair"

// CacheRepairConsumer replays accepted bids into the fast-reject cache. It covers
// write-throughs that failed while the cache was unreachable.
type CacheRepairConsumer struct {
	conn   *amqp.Connection
	cache  bids.PriceCache
	logger *slog.Logger
}

// NewCacheRepairConsumer creates a new cache repair consumer
func NewCacheRepairConsumer(conn *amqp.Connection, cache bids.PriceCache, logger *slog.Logger) *CacheRepairConsumer {
	return &CacheRepairConsumer{
		conn:   conn,
		cache:  cache,
		logger: logger,
	}
}

// Run starts the consumer loop
func (c *CacheRepairConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if setupErr := setupCacheRepairQueue(ch); setupErr != nil {
		return fmt.Errorf("failed to setup rabbitmq: %w", setupErr)
	}

	msgs, err := ch.Consume(
		CacheRepairQueue, // queue
		"",               // consumer tag
		false,            // auto-ack
		false,            // exclusive
		false,            // no-local
		false,            // no-wait
		nil,              // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Cache repair consumer waiting for messages", "queue", CacheRepairQueue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("channel closed")
			}
			c.Handle(ctx, d)
		}
	}
}

// Handle applies one delivery. Unparsable messages are dropped, cache failures requeued.
func (c *CacheRepairConsumer) Handle(ctx context.Context, d amqp.Delivery) {
	event, err := bids.UnmarshalBidPlacedEvent(d.Body)
	if err != nil {
		c.logger.Error("Failed to unmarshal event", "message_id", d.MessageId, "error", err)
		// it will never parse; drop it
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("Failed to Nack message", "error", nackErr)
		}
		return
	}

	if err := c.cache.SetMaxBid(ctx, event.AuctionID, event.Price, event.AuctionExpiresAt); err != nil {
		c.logger.Warn("Failed to repair cache", "auction_id", event.AuctionID, "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("Failed to Nack message (requeue)", "error", nackErr)
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		c.logger.Error("Failed to Ack message", "error", ackErr)
		return
	}
	c.logger.Debug("Cache repaired", "auction_id", event.AuctionID, "price", event.Price.String())
}

func setupCacheRepairQueue(ch *amqp.Channel) error {
	if err := pkgevents.DeclareExchange(ch, pkgevents.ExchangeAuctionEvents); err != nil {
		return err
	}

	q, err := ch.QueueDeclare(
		CacheRepairQueue, // name
		true,             // durable
		false,            // delete when unused
		false,            // exclusive
		false,            // no-wait
		nil,              // args
	)
	if err != nil {
		return err
	}

	return ch.QueueBind(
		q.Name,                          // queue name
		bids.EventTypeBidPlaced,         // routing key
		pkgevents.ExchangeAuctionEvents, // exchange
		false,
		nil,
	)
}

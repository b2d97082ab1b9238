package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/bidgate/pkg/database"
)

// ExchangeAuctionEvents is the topic exchange all auction events are published to
const ExchangeAuctionEvents = "auction.events"

// OutboxStatus defines the status of an event in the outbox
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxEvent is a row in outbox_events, written in the same transaction as
// the state change it describes
type OutboxEvent struct {
	ID          uuid.UUID    `db:"id"`
	EventType   string       `db:"event_type"`
	Payload     []byte       `db:"payload"`
	Status      OutboxStatus `db:"status"`
	CreatedAt   time.Time    `db:"created_at"`
	ProcessedAt *time.Time   `db:"processed_at"`
}

// NewOutboxEvent builds a pending event for the given routing key
func NewOutboxEvent(eventType string, payload []byte, createdAt time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payload,
		Status:    OutboxStatusPending,
		CreatedAt: createdAt,
	}
}

// OutboxRepository is the relay's view of the outbox table
type OutboxRepository interface {
	// GetPendingEvents locks up to limit pending rows (FOR UPDATE SKIP LOCKED)
	GetPendingEvents(ctx context.Context, tx pgx.Tx, limit int) ([]*OutboxEvent, error)
	UpdateEventStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status OutboxStatus) error
}

// EventPublisher publishes one message to a broker
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey, messageID string, body []byte) error
}

// OutboxRelay polls the outbox and publishes pending events in creation order
type OutboxRelay struct {
	outboxRepo OutboxRepository
	publisher  EventPublisher
	txManager  database.TransactionManager
	batchSize  int
	interval   time.Duration
	exchange   string
	logger     *slog.Logger
}

// NewOutboxRelay creates a new outbox relay
func NewOutboxRelay(
	outboxRepo OutboxRepository,
	publisher EventPublisher,
	txManager database.TransactionManager,
	batchSize int,
	interval time.Duration,
	exchange string,
	logger *slog.Logger,
) *OutboxRelay {
	return &OutboxRelay{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		txManager:  txManager,
		batchSize:  batchSize,
		interval:   interval,
		exchange:   exchange,
		logger:     logger,
	}
}

// Run polls until ctx is cancelled
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("Error processing outbox batch", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessBatch publishes one batch and returns how many events were published.
// A publish failure rolls the whole batch back so the events stay pending.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	tx, err := r.txManager.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	pending, err := r.outboxRepo.GetPendingEvents(ctx, tx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending events: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	for _, event := range pending {
		if err := r.publisher.Publish(ctx, r.exchange, event.EventType, event.ID.String(), event.Payload); err != nil {
			return 0, fmt.Errorf("failed to publish event %s: %w", event.ID, err)
		}
		if err := r.outboxRepo.UpdateEventStatus(ctx, tx, event.ID, OutboxStatusPublished); err != nil {
			return 0, fmt.Errorf("failed to update event status %s: %w", event.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit outbox batch: %w", err)
	}

	r.logger.Info("Published outbox events", "count", len(pending))
	return len(pending), nil
}

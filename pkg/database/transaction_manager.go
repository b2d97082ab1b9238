package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

// ErrRetriesExhausted is returned by RunInTx when every attempt hit a conflict
var ErrRetriesExhausted = errors.New("transaction retries exhausted")

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxFunc is the body of a transaction. It may run more than once.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// TransactionManager opens transactions against the durable store
type TransactionManager interface {
	// BeginTx starts a single transaction; the caller owns commit/rollback
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// RunInTx runs fn inside a transaction and commits it.
	// Serialization conflicts roll back and rerun fn from the start.
	RunInTx(ctx context.Context, fn TxFunc) error
}

// TxOptions configures a PostgresTransactionManager
type TxOptions struct {
	// LockTimeout bounds lock waits inside the transaction (0 = no timeout)
	LockTimeout time.Duration
	// IsoLevel defaults to serializable
	IsoLevel pgx.TxIsoLevel
	// MaxRetries is the number of reruns after the first attempt
	MaxRetries uint64
	// RetryBaseDelay is the first backoff step; later steps grow exponentially
	RetryBaseDelay time.Duration
}

// PostgresTransactionManager implements TransactionManager using pgx
type PostgresTransactionManager struct {
	pool   *pgxpool.Pool
	opts   TxOptions
	logger *slog.Logger
}

// NewPostgresTransactionManager creates a new PostgreSQL transaction manager
func NewPostgresTransactionManager(pool *pgxpool.Pool, opts TxOptions, logger *slog.Logger) *PostgresTransactionManager {
	if opts.IsoLevel == "" {
		opts.IsoLevel = pgx.Serializable
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 10 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTransactionManager{
		pool:   pool,
		opts:   opts,
		logger: logger,
	}
}

// BeginTx starts a new transaction with configured isolation and lock timeout
func (m *PostgresTransactionManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: m.opts.IsoLevel})
	if err != nil {
		return nil, err
	}

	if m.opts.LockTimeout > 0 {
		timeoutMs := m.opts.LockTimeout.Milliseconds()
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeoutMs))
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	return tx, nil
}

// RunInTx runs fn in a fresh transaction per attempt. Nothing read in a failed
// attempt survives into the next one.
func (m *PostgresTransactionManager) RunInTx(ctx context.Context, fn TxFunc) error {
	backoff := retry.WithMaxRetries(m.opts.MaxRetries,
		retry.WithJitterPercent(20, retry.NewExponential(m.opts.RetryBaseDelay)))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := m.runOnce(ctx, fn)
		if err != nil && IsRetryable(err) {
			m.logger.Debug("Transaction conflict, retrying", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && IsRetryable(err) {
		return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
	}
	return err
}

func (m *PostgresTransactionManager) runOnce(ctx context.Context, fn TxFunc) error {
	tx, err := m.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op once committed
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

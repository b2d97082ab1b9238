package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// ErrContention is returned when SetMaxBid lost the optimistic race maxSetAttempts times
var ErrContention = errors.New("price cache contention")

const maxSetAttempts = 10

// RedisPriceCache implements bids.PriceCache. Values are decimal strings under
// "<prefix>:max_bid:<auction id>" and expire with the auction.
type RedisPriceCache struct {
	client *redis.Client
	prefix string
}

func NewRedisPriceCache(client *redis.Client, prefix string) *RedisPriceCache {
	if prefix == "" {
		prefix = "bidgate"
	}
	return &RedisPriceCache{client: client, prefix: prefix}
}

func (c *RedisPriceCache) key(auctionID string) string {
	return c.prefix + ":max_bid:" + auctionID
}

func (c *RedisPriceCache) GetMaxBid(ctx context.Context, auctionID string) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, c.key(auctionID)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to get max bid: %w", err)
	}
	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid cached max bid %q: %w", val, err)
	}
	return price, true, nil
}

// SetMaxBid raises the cached value to price. A value already >= price is left alone,
// so racing write-throughs settle on the highest price.
func (c *RedisPriceCache) SetMaxBid(ctx context.Context, auctionID string, price decimal.Decimal, expireAt time.Time) error {
	if !expireAt.After(time.Now()) {
		return nil
	}
	key := c.key(auctionID)

	raise := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			// an unparsable value is overwritten
			if existing, perr := decimal.NewFromString(cur); perr == nil && existing.GreaterThanOrEqual(price) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, price.String(), redis.SetArgs{ExpireAt: expireAt})
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxSetAttempts; attempt++ {
		err := c.client.Watch(ctx, raise, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to set max bid: %w", err)
		}
		return nil
	}
	return ErrContention
}

// NewRedisClient builds a client and pings it once. An unreachable server is
// logged, not fatal: every cache call then fails and is treated as a miss.
func NewRedisClient(ctx context.Context, addr, password string, db int, logger *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis connection failed, fast-reject cache degraded", "addr", addr, "error", err)
	} else {
		logger.Info("Redis Connected", "addr", addr)
	}
	return client
}

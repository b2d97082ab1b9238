package bids

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/floroz/bidgate/pkg/database"
	"github.com/floroz/bidgate/pkg/events"
)

// memStore is an in-memory stand-in for the three repositories.
// Writes made by a failed attempt are undone by fakeTxManager through snapshot/restore.
type memStore struct {
	mu       sync.Mutex
	auctions map[string]*Auction
	bids     map[string]*Bid
	events   []*events.OutboxEvent
}

func newMemStore() *memStore {
	return &memStore{
		auctions: make(map[string]*Auction),
		bids:     make(map[string]*Bid),
	}
}

func bidKey(auctionID, bidder string) string {
	return auctionID + "/" + bidder
}

func (s *memStore) addAuction(a Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = &a
}

func (s *memStore) auction(id string) Auction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.auctions[id]
}

func (s *memStore) bidCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bids)
}

func (s *memStore) outbox() []*events.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*events.OutboxEvent(nil), s.events...)
}

type memSnapshot struct {
	auctions map[string]Auction
	bids     map[string]Bid
	events   int
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		auctions: make(map[string]Auction, len(s.auctions)),
		bids:     make(map[string]Bid, len(s.bids)),
		events:   len(s.events),
	}
	for k, v := range s.auctions {
		snap.auctions[k] = *v
	}
	for k, v := range s.bids {
		snap.bids[k] = *v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions = make(map[string]*Auction, len(snap.auctions))
	for k, v := range snap.auctions {
		a := v
		s.auctions[k] = &a
	}
	s.bids = make(map[string]*Bid, len(snap.bids))
	for k, v := range snap.bids {
		b := v
		s.bids[k] = &b
	}
	s.events = s.events[:snap.events]
}

func (s *memStore) GetOpenAuctionForUpdate(ctx context.Context, tx pgx.Tx, auctionID string, now time.Time) (*Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[auctionID]
	if !ok || !a.ExpiresAt.After(now) {
		return nil, ErrAuctionNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) UpdateMaxBid(ctx context.Context, tx pgx.Tx, auctionID string, price decimal.Decimal, leader string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[auctionID]
	if !ok {
		return time.Time{}, ErrAuctionNotFound
	}
	a.MaxBidPrice = decimal.NewNullDecimal(price)
	a.LeaderIdentity = leader
	return a.ExpiresAt, nil
}

func (s *memStore) GetAuction(ctx context.Context, auctionID string) (*Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[auctionID]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) GetBid(ctx context.Context, tx pgx.Tx, auctionID, bidderIdentity string) (*Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[bidKey(auctionID, bidderIdentity)]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) InsertBid(ctx context.Context, tx pgx.Tx, bid *Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bidKey(bid.AuctionID, bid.BidderIdentity)
	if _, exists := s.bids[key]; exists {
		return &pgconn.PgError{Code: "23505"}
	}
	cp := *bid
	s.bids[key] = &cp
	return nil
}

func (s *memStore) UpdateBid(ctx context.Context, tx pgx.Tx, bid *Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bidKey(bid.AuctionID, bid.BidderIdentity)
	if _, exists := s.bids[key]; !exists {
		return errors.New("bid not found")
	}
	cp := *bid
	s.bids[key] = &cp
	return nil
}

func (s *memStore) ListBids(ctx context.Context, auctionID string) ([]*Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Bid
	for _, b := range s.bids {
		if b.AuctionID == auctionID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	return out, nil
}

func (s *memStore) SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

var errSerialization = &pgconn.PgError{Code: "40001", Message: "could not serialize access"}

// fakeTxManager runs fn against memStore. The first `conflicts` attempts fail
// with a serialization error after fn ran; beforeRetry runs between attempts.
type fakeTxManager struct {
	store       *memStore
	conflicts   int
	beforeRetry func()
	err         error
	attempts    int
}

func (m *fakeTxManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("BeginTx not supported by fakeTxManager")
}

func (m *fakeTxManager) RunInTx(ctx context.Context, fn database.TxFunc) error {
	if m.err != nil {
		return m.err
	}
	for {
		m.attempts++
		snap := m.store.snapshot()
		err := fn(ctx, nil)
		if err == nil && m.attempts <= m.conflicts {
			err = errSerialization
		}
		if err == nil {
			return nil
		}
		m.store.restore(snap)
		if !database.IsRetryable(err) || m.attempts > m.conflicts {
			return err
		}
		if m.beforeRetry != nil {
			m.beforeRetry()
		}
	}
}

type cacheEntry struct {
	price    decimal.Decimal
	expireAt time.Time
}

// memCache mirrors the Redis cache: raise-only writes, entries vanish at expireAt
type memCache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	getErr   error
	setErr   error
	getCalls int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]cacheEntry)}
}

func (c *memCache) GetMaxBid(ctx context.Context, auctionID string) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getCalls++
	if c.getErr != nil {
		return decimal.Zero, false, c.getErr
	}
	e, ok := c.entries[auctionID]
	if !ok || !e.expireAt.After(time.Now()) {
		return decimal.Zero, false, nil
	}
	return e.price, true, nil
}

func (c *memCache) SetMaxBid(ctx context.Context, auctionID string, price decimal.Decimal, expireAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	if e, ok := c.entries[auctionID]; ok && e.expireAt.After(time.Now()) && e.price.GreaterThanOrEqual(price) {
		return nil
	}
	c.entries[auctionID] = cacheEntry{price: price, expireAt: expireAt}
	return nil
}

func (c *memCache) get(auctionID string) (decimal.Decimal, bool) {
	p, ok, _ := c.GetMaxBid(context.Background(), auctionID)
	return p, ok
}

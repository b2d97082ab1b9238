//go:build integration

package tests

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/floroz/bidgate/pkg/auth"
	"github.com/floroz/bidgate/pkg/database"
	"github.com/floroz/bidgate/pkg/testhelpers"
	"github.com/floroz/bidgate/services/bid-service/internal/adapters/api"
	"github.com/floroz/bidgate/services/bid-service/internal/adapters/cache"
	infradb "github.com/floroz/bidgate/services/bid-service/internal/adapters/database"
	"github.com/floroz/bidgate/services/bid-service/internal/domain/bids"
	"github.com/floroz/bidgate/services/bid-service/internal/domain/users"
)

// testApp is the API wired against real Postgres and Redis containers
type testApp struct {
	Client *api.BidServiceClient
	Pool   *pgxpool.Pool
	Users  *users.Service
}

// setupBidApp wires up the application for testing using real database and cache connections.
func setupBidApp(t *testing.T) *testApp {
	t.Helper()
	testDB := testhelpers.NewTestDatabase(t, "../migrations")
	testRedis := testhelpers.NewTestRedis(t)
	pool := testDB.Pool
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// 1. Initialize Repositories (Infrastructure Layer)
	txManager := database.NewPostgresTransactionManager(pool, database.TxOptions{
		LockTimeout: 5 * time.Second,
		MaxRetries:  10,
	}, logger)
	auctionRepo := infradb.NewPostgresAuctionRepository(pool)
	bidRepo := infradb.NewPostgresBidRepository(pool)
	outboxRepo := infradb.NewPostgresOutboxRepository(pool)
	userRepo := infradb.NewPostgresUserRepository(pool)
	priceCache := cache.NewRedisPriceCache(testRedis.Client, "e2e")

	// 2. Initialize Services (Domain Layer)
	signer := newSigner(t)
	admission := bids.NewAdmissionService(txManager, auctionRepo, bidRepo, outboxRepo, priceCache, time.Second, logger)
	userService := users.NewService(userRepo, signer, txManager)

	// 3. Initialize API Handler (ConnectRPC) and a test HTTP server
	handler := api.NewBidServiceHandler(admission, userService, logger)
	server := httptest.NewServer(handler.Routes(signer))
	t.Cleanup(server.Close)

	return &testApp{
		Client: api.NewBidServiceClient(server.Client(), server.URL),
		Pool:   pool,
		Users:  userService,
	}
}

func newSigner(t *testing.T) *auth.Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	signer, err := auth.NewSigner(privPEM, pubPEM, "bidgate-test", time.Hour)
	require.NoError(t, err)
	return signer
}

// loginAs registers a bidder and returns an access token obtained through the API
func (a *testApp) loginAs(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()
	_, err := a.Users.Register(ctx, email, "correct-horse-battery")
	require.NoError(t, err)

	res, err := a.Client.Login(ctx, &api.LoginRequest{Email: email, Password: "correct-horse-battery"})
	require.NoError(t, err)
	return res.AccessToken
}

// seedAuction inserts an auction directly; auctions are created outside this service.
func (a *testApp) seedAuction(t *testing.T, id string, base int64, expiresAt time.Time) {
	t.Helper()
	err := infradb.NewPostgresAuctionRepository(a.Pool).CreateAuction(context.Background(), a.Pool, &bids.Auction{
		ID:        id,
		BasePrice: decimal.NewFromInt(base),
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err, "Failed to seed auction")
}

// countOutboxEvents counts the number of events in the outbox table.
func countOutboxEvents(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	var count int
	row := pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM outbox_events")
	require.NoError(t, row.Scan(&count))
	return count
}

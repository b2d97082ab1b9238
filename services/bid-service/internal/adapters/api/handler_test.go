package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/floroz/bidgate/pkg/auth"
	"github.com/floroz/bidgate/pkg/database"
	"github.com/floroz/bidgate/services/bid-service/internal/domain/bids"
	"github.com/floroz/bidgate/services/bid-service/internal/domain/users"
)

const validToken = "valid-token"

type MockBidPlacer struct {
	mock.Mock
}

func (m *MockBidPlacer) PlaceBid(ctx context.Context, cmd bids.PlaceBidCommand) (*bids.Result, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bids.Result), args.Error(1)
}

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, email, password string) (*auth.Token, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Token), args.Error(1)
}

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*auth.Claims, error) {
	if token != validToken {
		return nil, errors.New("bad token")
	}
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "U1"}}, nil
}

func setupServer(t *testing.T) (*BidServiceClient, *MockBidPlacer, *MockAuthenticator, string) {
	t.Helper()
	placer := new(MockBidPlacer)
	authn := new(MockAuthenticator)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := NewBidServiceHandler(placer, authn, logger)
	srv := httptest.NewServer(handler.Routes(stubValidator{}))
	t.Cleanup(srv.Close)

	return NewBidServiceClient(srv.Client(), srv.URL), placer, authn, srv.URL
}

func matchCommand(auctionID, bidder, price string) any {
	want := decimal.RequireFromString(price)
	return mock.MatchedBy(func(cmd bids.PlaceBidCommand) bool {
		return cmd.AuctionID == auctionID && cmd.BidderIdentity == bidder && cmd.Price.Equal(want)
	})
}

func TestBidServiceHandler_PlaceBid_Accepted(t *testing.T) {
	client, placer, _, _ := setupServer(t)
	expiresAt := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	placer.On("PlaceBid", mock.Anything, matchCommand("A1", "U1", "1500.50")).
		Return(&bids.Result{Accepted: true, Message: bids.MessageAccepted, ExpiresAt: &expiresAt}, nil)

	res, err := client.PlaceBid(context.Background(), validToken, &PlaceBidRequest{AuctionID: "A1", BidPrice: "1500.50"})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "Success, Bid Placed.", res.Message)
	require.NotNil(t, res.ExpiresAt)
	assert.True(t, expiresAt.Equal(*res.ExpiresAt))
	placer.AssertExpectations(t)
}

func TestBidServiceHandler_PlaceBid_Rejected(t *testing.T) {
	client, placer, _, _ := setupServer(t)
	placer.On("PlaceBid", mock.Anything, matchCommand("A1", "U1", "1200")).
		Return(&bids.Result{Reason: bids.ReasonBelowBasePrice, Message: bids.MessageBelowBasePrice}, nil)

	_, err := client.PlaceBid(context.Background(), validToken, &PlaceBidRequest{AuctionID: "A1", BidPrice: "1200"})

	require.Error(t, err)
	var cerr *connect.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, connect.CodeFailedPrecondition, cerr.Code())
	assert.Equal(t, bids.MessageBelowBasePrice, cerr.Message())
	assert.Equal(t, string(bids.ReasonBelowBasePrice), cerr.Meta().Get(RejectReasonHeader))
}

func TestBidServiceHandler_PlaceBid_Errors(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		price    string
		svcErr   error
		wantCode connect.Code
	}{
		{"missing token", "", "10", nil, connect.CodeUnauthenticated},
		{"invalid token", "forged", "10", nil, connect.CodeUnauthenticated},
		{"unparsable price", validToken, "ten", nil, connect.CodeInvalidArgument},
		{"invalid command", validToken, "-1", fmt.Errorf("%w: bid price must be positive", bids.ErrInvalidBid), connect.CodeInvalidArgument},
		{"retries exhausted", validToken, "10", fmt.Errorf("failed to place bid: %w", database.ErrRetriesExhausted), connect.CodeInternal},
		{"outcome unknown", validToken, "10", fmt.Errorf("failed to place bid: %w", bids.ErrOutcomeUnknown), connect.CodeDeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, placer, _, _ := setupServer(t)
			if tt.svcErr != nil {
				placer.On("PlaceBid", mock.Anything, mock.Anything).Return(nil, tt.svcErr)
			}

			_, err := client.PlaceBid(context.Background(), tt.token, &PlaceBidRequest{AuctionID: "A1", BidPrice: tt.price})

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, connect.CodeOf(err))
			if tt.svcErr == nil {
				placer.AssertNotCalled(t, "PlaceBid", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestBidServiceHandler_Login(t *testing.T) {
	t.Run("issues token without authorization header", func(t *testing.T) {
		client, _, authn, _ := setupServer(t)
		expiresAt := time.Now().Add(15 * time.Minute).UTC().Truncate(time.Second)
		authn.On("Login", mock.Anything, "bidder@example.com", "secret-password").
			Return(&auth.Token{AccessToken: "jwt", ExpiresAt: expiresAt}, nil)

		res, err := client.Login(context.Background(), &LoginRequest{Email: "bidder@example.com", Password: "secret-password"})

		require.NoError(t, err)
		assert.Equal(t, "jwt", res.AccessToken)
		assert.True(t, expiresAt.Equal(res.ExpiresAt))
	})

	t.Run("bad credentials", func(t *testing.T) {
		client, _, authn, _ := setupServer(t)
		authn.On("Login", mock.Anything, "bidder@example.com", "nope").Return(nil, users.ErrInvalidCredentials)

		_, err := client.Login(context.Background(), &LoginRequest{Email: "bidder@example.com", Password: "nope"})

		assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	})

	t.Run("repository failure", func(t *testing.T) {
		client, _, authn, _ := setupServer(t)
		authn.On("Login", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		_, err := client.Login(context.Background(), &LoginRequest{Email: "a@b.c", Password: "whatever1"})

		assert.Equal(t, connect.CodeInternal, connect.CodeOf(err))
	})
}

func TestBidServiceHandler_Health(t *testing.T) {
	_, _, _, url := setupServer(t)

	resp, err := http.Get(url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/floroz/bidgate/pkg/auth"
	"github.com/floroz/bidgate/services/bid-service/internal/domain/bids"
	"github.com/floroz/bidgate/services/bid-service/internal/domain/users"
)

// BidPlacer is implemented by *bids.AdmissionService
type BidPlacer interface {
	PlaceBid(ctx context.Context, cmd bids.PlaceBidCommand) (*bids.Result, error)
}

// Authenticator is implemented by *users.Service
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.Token, error)
}

type BidServiceHandler struct {
	placer BidPlacer
	authn  Authenticator
	logger *slog.Logger
}

func NewBidServiceHandler(placer BidPlacer, authn Authenticator, logger *slog.Logger) *BidServiceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BidServiceHandler{
		placer: placer,
		authn:  authn,
		logger: logger,
	}
}

// Routes mounts both procedures and /health on a new mux. PlaceBid requires a
// bearer token; Login does not.
func (h *BidServiceHandler) Routes(validator auth.TokenValidator, opts ...connect.HandlerOption) *http.ServeMux {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(PlaceBidProcedure, connect.NewUnaryHandler(
		PlaceBidProcedure,
		h.PlaceBid,
		append(opts, connect.WithInterceptors(auth.NewAuthInterceptor(validator)))...,
	))
	mux.Handle(LoginProcedure, connect.NewUnaryHandler(
		LoginProcedure,
		h.Login,
		opts...,
	))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

func (h *BidServiceHandler) PlaceBid(
	ctx context.Context,
	req *connect.Request[PlaceBidRequest],
) (*connect.Response[PlaceBidResponse], error) {
	// Guaranteed by the auth interceptor
	bidder, ok := auth.GetUserID(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("missing bidder identity"))
	}

	price, err := decimal.NewFromString(strings.TrimSpace(req.Msg.BidPrice))
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid bid_price"))
	}

	cmd := bids.PlaceBidCommand{
		AuctionID:      strings.TrimSpace(req.Msg.AuctionID),
		BidderIdentity: bidder,
		Price:          price,
	}

	res, err := h.placer.PlaceBid(ctx, cmd)
	if err != nil {
		switch {
		case errors.Is(err, bids.ErrInvalidBid):
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		case errors.Is(err, bids.ErrOutcomeUnknown):
			return nil, connect.NewError(connect.CodeDeadlineExceeded, errors.New("bid outcome unknown, check the auction before retrying"))
		default:
			// The cause is logged by the service; callers only learn that it failed.
			return nil, connect.NewError(connect.CodeInternal, errors.New("failed to place bid"))
		}
	}

	if !res.Accepted {
		cerr := connect.NewError(connect.CodeFailedPrecondition, errors.New(res.Message))
		cerr.Meta().Set(RejectReasonHeader, string(res.Reason))
		return nil, cerr
	}

	return connect.NewResponse(&PlaceBidResponse{
		Accepted:  true,
		Message:   res.Message,
		ExpiresAt: res.ExpiresAt,
	}), nil
}

func (h *BidServiceHandler) Login(
	ctx context.Context,
	req *connect.Request[LoginRequest],
) (*connect.Response[LoginResponse], error) {
	token, err := h.authn.Login(ctx, req.Msg.Email, req.Msg.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			return nil, connect.NewError(connect.CodeUnauthenticated, err)
		}
		h.logger.Error("Login failed", "error", err)
		return nil, connect.NewError(connect.CodeInternal, errors.New("login failed"))
	}

	return connect.NewResponse(&LoginResponse{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.ExpiresAt,
	}), nil
}

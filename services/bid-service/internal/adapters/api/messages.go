package api

import "time"

const (
	// BidServiceName is the fully-qualified name of the bid service
	BidServiceName = "bids.v1.BidService"

	PlaceBidProcedure = "/" + BidServiceName + "/PlaceBid"
	LoginProcedure    = "/" + BidServiceName + "/Login"

	// RejectReasonHeader carries the machine-readable reason of a rejected bid
	RejectReasonHeader = "Bid-Reject-Reason"
)

type PlaceBidRequest struct {
	AuctionID string `json:"auction_id"`
	BidPrice  string `json:"bid_price"` // decimal string, e.g. "1500.25"
}

type PlaceBidResponse struct {
	Accepted  bool       `json:"accepted"`
	Message   string     `json:"message"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

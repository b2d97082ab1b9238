package api

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// BidServiceClient calls the bid service over connect
type BidServiceClient struct {
	placeBid *connect.Client[PlaceBidRequest, PlaceBidResponse]
	login    *connect.Client[LoginRequest, LoginResponse]
}

func NewBidServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *BidServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &BidServiceClient{
		placeBid: connect.NewClient[PlaceBidRequest, PlaceBidResponse](httpClient, baseURL+PlaceBidProcedure, opts...),
		login:    connect.NewClient[LoginRequest, LoginResponse](httpClient, baseURL+LoginProcedure, opts...),
	}
}

// PlaceBid sends the bid with the given bearer token
func (c *BidServiceClient) PlaceBid(ctx context.Context, accessToken string, req *PlaceBidRequest) (*PlaceBidResponse, error) {
	r := connect.NewRequest(req)
	if accessToken != "" {
		r.Header().Set("Authorization", "Bearer "+accessToken)
	}
	res, err := c.placeBid.CallUnary(ctx, r)
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *BidServiceClient) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	res, err := c.login.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

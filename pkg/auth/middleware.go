package auth

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
)

type contextKey string

const (
	tokenHeader              = "Authorization"
	tokenPrefix              = "Bearer "
	UserClaimsKey contextKey = "user_claims"
	UserIDKey     contextKey = "user_id"
)

// TokenValidator is implemented by *Signer
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// NewAuthInterceptor creates a ConnectRPC interceptor that requires a valid bearer token
// and puts the token subject into the context.
func NewAuthInterceptor(validator TokenValidator) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get(tokenHeader)
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("missing authorization header"))
			}

			if !strings.HasPrefix(authHeader, tokenPrefix) {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid authorization header format"))
			}

			token := strings.TrimPrefix(authHeader, tokenPrefix)
			claims, err := validator.ValidateToken(token)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid or expired token"))
			}

			return next(WithClaims(ctx, claims), req)
		}
	}
}

// WithClaims stores the claims and the subject in ctx
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, UserClaimsKey, claims)
	return context.WithValue(ctx, UserIDKey, claims.Subject)
}

// GetUserClaims retrieves the full claims from the context.
func GetUserClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*Claims)
	return claims, ok
}

// GetUserID retrieves the user ID from the context.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}

package auth

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthInterceptor(t *testing.T) {
	signer, _ := newTestSigner(t)

	userID := uuid.New()
	token, err := signer.GenerateToken(userID, "user@example.com")
	require.NoError(t, err)

	interceptor := NewAuthInterceptor(signer)
	var seenID string
	handler := interceptor(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		seenID, _ = GetUserID(ctx)
		return connect.NewResponse(&struct{}{}), nil
	})

	t.Run("valid token injects subject", func(t *testing.T) {
		req := connect.NewRequest(&struct{}{})
		req.Header().Set("Authorization", "Bearer "+token.AccessToken)

		_, err := handler(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, userID.String(), seenID)
	})

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "missing bearer prefix", header: token.AccessToken},
		{name: "garbage token", header: "Bearer not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := connect.NewRequest(&struct{}{})
			if tt.header != "" {
				req.Header().Set("Authorization", tt.header)
			}

			_, err := handler(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
		})
	}
}

func TestGetUserID_Empty(t *testing.T) {
	_, ok := GetUserID(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{})
	_, ok = GetUserID(ctx)
	assert.False(t, ok, "empty subject is not an identity")
}

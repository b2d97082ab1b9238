package users

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/bidgate/pkg/auth"
)

type UserRepository interface {
	CreateUser(ctx context.Context, tx pgx.Tx, user *User) error
	// GetUserByEmail returns nil, nil when no user has the email
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

type TokenIssuer interface {
	GenerateToken(userID uuid.UUID, email string) (*auth.Token, error)
}

package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgdb "github.com/floroz/bidgate/pkg/database"
	"github.com/floroz/bidgate/services/bid-service/internal/domain/users"
)

// PostgresUserRepository implements users.UserRepository
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// CreateUser inserts the user. A taken email returns users.ErrUserAlreadyExists
// without the driver error, so the transaction is not retried.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, tx pgx.Tx, user *users.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := tx.Exec(ctx, query, user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	if pkgdb.IsUniqueViolation(err) {
		return users.ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetUserByEmail(ctx context.Context, email string) (*users.User, error) {
	query := `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE email = $1
	`
	rows, err := r.pool.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	user, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[users.User])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Return nil if not found, let service handle it
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

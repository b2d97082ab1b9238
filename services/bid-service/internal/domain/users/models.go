package users

import (
	"time"

	"github.com/google/uuid"
)

// User is a bidder account. Its ID is the bidder identity carried by access tokens.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never return in JSON
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

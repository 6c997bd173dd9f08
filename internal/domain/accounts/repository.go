package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateParams struct {
	Email        string
	PasswordHash string
	Username     string
}

type Repository interface {
	// CreateWithProfile inserts the account and its profile in one
	// transaction. Unique violations map to ErrEmailTaken or ErrUsernameTaken.
	CreateWithProfile(ctx context.Context, params CreateParams) (*Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	// ProfileIDByUsername matches username case-insensitively.
	ProfileIDByUsername(ctx context.Context, username string) (uuid.UUID, error)
	ProfileUsername(ctx context.Context, id uuid.UUID) (string, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

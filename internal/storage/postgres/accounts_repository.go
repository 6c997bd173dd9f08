package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/domain/accounts"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ accounts.Repository = (*AccountRepository)(nil)

type AccountRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

const (
	constraintAccountEmail    = "accounts_email_key"
	constraintProfileUsername = "profiles_username_key"
)

func (r *AccountRepository) CreateWithProfile(ctx context.Context, params accounts.CreateParams) (*accounts.Account, error) {
	var account accounts.Account
	err := inTx(ctx, r.pool, r.tx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
INSERT INTO accounts (email, password_hash)
VALUES ($1, $2)
RETURNING id, email, password_hash, created_at, updated_at
`, params.Email, params.PasswordHash).Scan(
			&account.ID,
			&account.Email,
			&account.PasswordHash,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO profiles (id, username) VALUES ($1, $2)`, account.ID, params.Username)
		return err
	})
	if err != nil {
		switch {
		case isUniqueViolation(err, constraintAccountEmail):
			return nil, accounts.ErrEmailTaken
		case isUniqueViolation(err, constraintProfileUsername):
			return nil, accounts.ErrUsernameTaken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*accounts.Account, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	return r.get(ctx, `WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
}

func (r *AccountRepository) get(ctx context.Context, where string, arg any) (*accounts.Account, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT id, email, password_hash, created_at, updated_at
  FROM accounts
`+where, arg)

	var account accounts.Account
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, accounts.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

func (r *AccountRepository) ProfileIDByUsername(ctx context.Context, username string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.queryer().QueryRow(ctx, `SELECT id FROM profiles WHERE lower(username) = lower($1)`, username).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, accounts.ErrProfileNotFound
		}
		return uuid.Nil, fmt.Errorf("lookup profile by username: %w", err)
	}
	return id, nil
}

func (r *AccountRepository) ProfileUsername(ctx context.Context, id uuid.UUID) (string, error) {
	var username string
	err := r.queryer().QueryRow(ctx, `SELECT username FROM profiles WHERE id = $1`, id).Scan(&username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", accounts.ErrProfileNotFound
		}
		return "", fmt.Errorf("lookup profile username: %w", err)
	}
	return username, nil
}

func (r *AccountRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return exists(ctx, r.queryer(), `SELECT EXISTS (SELECT 1 FROM profiles WHERE lower(username) = lower($1))`, username)
}

func (r *AccountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return exists(ctx, r.queryer(), `SELECT EXISTS (SELECT 1 FROM accounts WHERE lower(email) = lower($1))`, email)
}

func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE accounts
   SET password_hash = $2, updated_at = $3
 WHERE id = $1
`, id, hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return accounts.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) queryer() dbQueryer {
	return pick(r.pool, r.tx)
}

func exists(ctx context.Context, q dbQueryer, sql string, args ...any) (bool, error) {
	var found bool
	if err := q.QueryRow(ctx, sql, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("exists query: %w", err)
	}
	return found, nil
}

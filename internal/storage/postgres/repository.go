package postgres

import (
	"context"
	"fmt"

	"github.com/Togather-Foundation/skillexchange/internal/domain/accounts"
	"github.com/Togather-Foundation/skillexchange/internal/domain/chat"
	"github.com/Togather-Foundation/skillexchange/internal/domain/commitments"
	"github.com/Togather-Foundation/skillexchange/internal/domain/profiles"
	"github.com/Togather-Foundation/skillexchange/internal/domain/reviews"
	"github.com/Togather-Foundation/skillexchange/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ storage.Repository = (*Repository)(nil)

// Repository implements storage.Repository interface with PostgreSQL backend
type Repository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewRepository creates a new PostgreSQL-backed repository
func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Accounts() accounts.Repository {
	return &AccountRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Profiles() profiles.Repository {
	return &ProfileRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Commitments() commitments.Repository {
	return &CommitmentRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Messages() chat.Repository {
	return &MessageRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Reviews() reviews.Repository {
	return &ReviewRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Ratings() storage.RatingRepository {
	return &RatingRepository{pool: r.pool, tx: r.tx}
}

// WithTx executes a function within a database transaction. Nested calls
// reuse the outer transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txRepo := &Repository{pool: r.pool, tx: tx}
	if err := fn(ctx, txRepo); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback after error %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

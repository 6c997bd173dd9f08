package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/domain/commitments"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ commitments.Repository = (*CommitmentRepository)(nil)

type CommitmentRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

const constraintOpenPair = "commitments_open_pair_key"

const commitmentColumns = `
SELECT c.id, c.requester_id, c.addressee_id, rq.username, ad.username, c.goal, c.status,
       (SELECT count(*) FROM reviews rv WHERE rv.commitment_id = c.id)::int,
       c.created_at, c.updated_at
  FROM commitments c
  JOIN profiles rq ON rq.id = c.requester_id
  JOIN profiles ad ON ad.id = c.addressee_id
`

func scanCommitment(row pgx.Row) (commitments.Commitment, error) {
	var (
		c      commitments.Commitment
		status string
	)
	err := row.Scan(
		&c.ID,
		&c.RequesterID,
		&c.AddresseeID,
		&c.RequesterUsername,
		&c.AddresseeUsername,
		&c.Goal,
		&status,
		&c.ReviewCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	c.Status = commitments.Status(status)
	return c, err
}

func (r *CommitmentRepository) Create(ctx context.Context, params commitments.CreateParams) (*commitments.Commitment, error) {
	var id uuid.UUID
	err := r.queryer().QueryRow(ctx, `
INSERT INTO commitments (requester_id, addressee_id, goal, status)
VALUES ($1, $2, $3, $4)
RETURNING id
`, params.RequesterID, params.AddresseeID, params.Goal, string(commitments.StatusPending)).Scan(&id)
	if err != nil {
		switch {
		case isUniqueViolation(err, constraintOpenPair):
			return nil, commitments.ErrDuplicateCommitment
		case isForeignKeyViolation(err):
			return nil, commitments.ErrAddresseeNotFound
		}
		if _, ok := constraintViolation(err, pgerrcode.CheckViolation); ok {
			return nil, commitments.ErrSelfRequest
		}
		return nil, fmt.Errorf("insert commitment: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *CommitmentRepository) Get(ctx context.Context, id uuid.UUID) (*commitments.Commitment, error) {
	c, err := scanCommitment(r.queryer().QueryRow(ctx, commitmentColumns+` WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, commitments.ErrNotFound
		}
		return nil, fmt.Errorf("get commitment: %w", err)
	}
	return &c, nil
}

func (r *CommitmentRepository) HasOpenBetween(ctx context.Context, a, b uuid.UUID) (bool, error) {
	return exists(ctx, r.queryer(), `
SELECT EXISTS (
  SELECT 1
    FROM commitments
   WHERE least(requester_id, addressee_id) = least($1::uuid, $2::uuid)
     AND greatest(requester_id, addressee_id) = greatest($1::uuid, $2::uuid)
     AND status IN ('PENDING', 'ACTIVE')
)`, a, b)
}

func (r *CommitmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to commitments.Status) (*commitments.Commitment, error) {
	tag, err := r.queryer().Exec(ctx, `
UPDATE commitments
   SET status = $3, updated_at = $4
 WHERE id = $1 AND status = $2
`, id, string(from), string(to), time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err, constraintOpenPair) {
			return nil, commitments.ErrStatusConflict
		}
		return nil, fmt.Errorf("update commitment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		found, err := exists(ctx, r.queryer(), `SELECT EXISTS (SELECT 1 FROM commitments WHERE id = $1)`, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, commitments.ErrNotFound
		}
		return nil, commitments.ErrStatusConflict
	}
	return r.Get(ctx, id)
}

func (r *CommitmentRepository) ListReceived(ctx context.Context, userID uuid.UUID) ([]commitments.Commitment, error) {
	return r.list(ctx, `WHERE c.addressee_id = $1`, userID)
}

func (r *CommitmentRepository) ListSent(ctx context.Context, userID uuid.UUID) ([]commitments.Commitment, error) {
	return r.list(ctx, `WHERE c.requester_id = $1`, userID)
}

func (r *CommitmentRepository) list(ctx context.Context, where string, userID uuid.UUID) ([]commitments.Commitment, error) {
	rows, err := r.queryer().Query(ctx, commitmentColumns+where+`
 ORDER BY c.created_at DESC, c.id DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list commitments: %w", err)
	}
	defer rows.Close()

	items := make([]commitments.Commitment, 0)
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commitments: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commitments: %w", err)
	}
	return items, nil
}

func (r *CommitmentRepository) queryer() dbQueryer {
	return pick(r.pool, r.tx)
}

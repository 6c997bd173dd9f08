package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/domain/reviews"
	"github.com/Togather-Foundation/skillexchange/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ reviews.Repository       = (*ReviewRepository)(nil)
	_ storage.RatingRepository = (*RatingRepository)(nil)
)

type ReviewRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

const constraintReviewOnce = "reviews_commitment_reviewer_key"

func (r *ReviewRepository) Create(ctx context.Context, params reviews.CreateParams) (*reviews.Review, error) {
	var review reviews.Review
	err := r.queryer().QueryRow(ctx, `
WITH inserted AS (
  INSERT INTO reviews (commitment_id, reviewer_id, reviewee_id, rating, comment)
  VALUES ($1, $2, $3, $4, $5)
  RETURNING id, commitment_id, reviewer_id, reviewee_id, rating, comment, created_at
)
SELECT i.id, i.commitment_id, i.reviewer_id, i.reviewee_id, p.username, i.rating, i.comment, i.created_at
  FROM inserted i
  JOIN profiles p ON p.id = i.reviewer_id
`, params.CommitmentID, params.ReviewerID, params.RevieweeID, params.Rating, params.Comment).Scan(
		&review.ID,
		&review.CommitmentID,
		&review.ReviewerID,
		&review.RevieweeID,
		&review.ReviewerUsername,
		&review.Rating,
		&review.Comment,
		&review.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, constraintReviewOnce) {
			return nil, reviews.ErrAlreadyReviewed
		}
		return nil, fmt.Errorf("insert review: %w", err)
	}
	return &review, nil
}

func (r *ReviewRepository) ListForReviewee(ctx context.Context, revieweeID uuid.UUID) ([]reviews.Review, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT rv.id, rv.commitment_id, rv.reviewer_id, rv.reviewee_id, p.username, rv.rating, rv.comment, rv.created_at
  FROM reviews rv
  JOIN profiles p ON p.id = rv.reviewer_id
 WHERE rv.reviewee_id = $1
 ORDER BY rv.created_at DESC, rv.id DESC
`, revieweeID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	items := make([]reviews.Review, 0)
	for rows.Next() {
		var review reviews.Review
		if err := rows.Scan(
			&review.ID,
			&review.CommitmentID,
			&review.ReviewerID,
			&review.RevieweeID,
			&review.ReviewerUsername,
			&review.Rating,
			&review.Comment,
			&review.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reviews: %w", err)
		}
		items = append(items, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return items, nil
}

func (r *ReviewRepository) Summary(ctx context.Context, revieweeID uuid.UUID) (reviews.Summary, error) {
	var sum reviews.Summary
	if err := r.queryer().QueryRow(ctx, `
SELECT count(*)::int, coalesce(avg(rating), 0)::float8
  FROM reviews
 WHERE reviewee_id = $1
`, revieweeID).Scan(&sum.Count, &sum.Average); err != nil {
		return reviews.Summary{}, fmt.Errorf("summarise reviews: %w", err)
	}
	return sum, nil
}

func (r *ReviewRepository) queryer() dbQueryer {
	return pick(r.pool, r.tx)
}

// RatingRepository writes the profile_ratings rollup.
type RatingRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

const upsertRatings = `
INSERT INTO profile_ratings (profile_id, review_count, rating_avg, updated_at)
SELECT p.id,
       count(rv.id)::int,
       coalesce(round(avg(rv.rating), 1), 0),
       $1
  FROM profiles p
  LEFT JOIN reviews rv ON rv.reviewee_id = p.id
 WHERE %s
 GROUP BY p.id
ON CONFLICT (profile_id) DO UPDATE
   SET review_count = EXCLUDED.review_count,
       rating_avg = EXCLUDED.rating_avg,
       updated_at = EXCLUDED.updated_at
`

func (r *RatingRepository) Recompute(ctx context.Context, profileID uuid.UUID) error {
	_, err := r.queryer().Exec(ctx, fmt.Sprintf(upsertRatings, `p.id = $2`), time.Now().UTC(), profileID)
	if err != nil {
		return fmt.Errorf("recompute rating: %w", err)
	}
	return nil
}

func (r *RatingRepository) RecomputeAll(ctx context.Context) (int64, error) {
	tag, err := r.queryer().Exec(ctx, fmt.Sprintf(upsertRatings, `
       EXISTS (SELECT 1 FROM reviews x WHERE x.reviewee_id = p.id)
    OR EXISTS (SELECT 1 FROM profile_ratings pr WHERE pr.profile_id = p.id)`), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("recompute all ratings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RatingRepository) queryer() dbQueryer {
	return pick(r.pool, r.tx)
}

package reviews

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Review struct {
	ID               uuid.UUID `json:"id"`
	CommitmentID     uuid.UUID `json:"commitment_id"`
	ReviewerID       uuid.UUID `json:"reviewer_id"`
	RevieweeID       uuid.UUID `json:"reviewee_id"`
	ReviewerUsername string    `json:"reviewer_username"`
	Rating           int       `json:"rating"`
	Comment          string    `json:"comment"`
	CreatedAt        time.Time `json:"created_at"`
}

type CreateParams struct {
	CommitmentID uuid.UUID
	ReviewerID   uuid.UUID
	RevieweeID   uuid.UUID
	Rating       int
	Comment      string
}

// Summary aggregates the reviews a profile has received.
type Summary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

type Repository interface {
	// Create maps the (commitment, reviewer) unique violation to
	// ErrAlreadyReviewed.
	Create(ctx context.Context, params CreateParams) (*Review, error)
	// ListForReviewee returns reviews newest first with reviewer usernames.
	ListForReviewee(ctx context.Context, revieweeID uuid.UUID) ([]Review, error)
	Summary(ctx context.Context, revieweeID uuid.UUID) (Summary, error)
}

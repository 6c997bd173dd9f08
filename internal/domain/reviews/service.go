// Package reviews lets each party rate the other once a commitment is
// completed.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Togather-Foundation/skillexchange/internal/domain/commitments"
	"github.com/Togather-Foundation/skillexchange/internal/sanitize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	MinRating        = 1
	MaxRating        = 5
	MaxCommentLength = 1000
)

type CommitmentReader interface {
	Get(ctx context.Context, id, viewerID uuid.UUID) (*commitments.Commitment, error)
}

// RollupEnqueuer schedules a recomputation of a profile's rating.
type RollupEnqueuer interface {
	EnqueueRatingRollup(ctx context.Context, profileID uuid.UUID) error
}

type Service struct {
	repo        Repository
	commitments CommitmentReader
	rollups     RollupEnqueuer
	logger      zerolog.Logger
}

// NewService builds the review service. rollups may be nil, in which case
// ratings are only refreshed by the periodic reconcile.
func NewService(repo Repository, commitments CommitmentReader, rollups RollupEnqueuer, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		commitments: commitments,
		rollups:     rollups,
		logger:      logger.With().Str("component", "reviews").Logger(),
	}
}

// Create records reviewerID's review of the other party of a completed
// commitment.
func (s *Service) Create(ctx context.Context, commitmentID, reviewerID uuid.UUID, rating int, comment string) (*Review, error) {
	if rating < MinRating || rating > MaxRating {
		return nil, ErrInvalidRating
	}
	comment = strings.TrimSpace(sanitize.PlainText(comment))
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return nil, ErrCommentTooLong
	}

	c, err := s.commitments.Get(ctx, commitmentID, reviewerID)
	if err != nil {
		return nil, err
	}
	if c.Status != commitments.StatusCompleted {
		return nil, ErrNotCompleted
	}
	revieweeID, ok := c.Partner(reviewerID)
	if !ok {
		return nil, commitments.ErrNotParticipant
	}

	review, err := s.repo.Create(ctx, CreateParams{
		CommitmentID: commitmentID,
		ReviewerID:   reviewerID,
		RevieweeID:   revieweeID,
		Rating:       rating,
		Comment:      comment,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyReviewed) {
			return nil, err
		}
		return nil, fmt.Errorf("create review: %w", err)
	}

	if s.rollups != nil {
		if err := s.rollups.EnqueueRatingRollup(ctx, revieweeID); err != nil {
			s.logger.Warn().
				Err(err).
				Str("profile_id", revieweeID.String()).
				Msg("enqueue rating rollup failed")
		}
	}

	s.logger.Info().
		Str("review_id", review.ID.String()).
		Str("commitment_id", commitmentID.String()).
		Int("rating", rating).
		Msg("review created")
	return review, nil
}

func (s *Service) ListForProfile(ctx context.Context, revieweeID uuid.UUID) ([]Review, error) {
	list, err := s.repo.ListForReviewee(ctx, revieweeID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return list, nil
}

// Summary returns the review count and the average rating rounded to one
// decimal place.
func (s *Service) Summary(ctx context.Context, revieweeID uuid.UUID) (Summary, error) {
	sum, err := s.repo.Summary(ctx, revieweeID)
	if err != nil {
		return Summary{}, fmt.Errorf("summarise reviews: %w", err)
	}
	if sum.Count == 0 {
		return Summary{}, nil
	}
	sum.Average = RoundRating(sum.Average)
	return sum, nil
}

// RoundRating rounds an average rating to one decimal place.
func RoundRating(avg float64) float64 {
	return math.Round(avg*10) / 10
}

package storage

import (
	"context"

	"github.com/Togather-Foundation/skillexchange/internal/domain/accounts"
	"github.com/Togather-Foundation/skillexchange/internal/domain/chat"
	"github.com/Togather-Foundation/skillexchange/internal/domain/commitments"
	"github.com/Togather-Foundation/skillexchange/internal/domain/profiles"
	"github.com/Togather-Foundation/skillexchange/internal/domain/reviews"
	"github.com/google/uuid"
)

// Repository groups data access by domain.
type Repository interface {
	Accounts() accounts.Repository
	Profiles() profiles.Repository
	Commitments() commitments.Repository
	Messages() chat.Repository
	Reviews() reviews.Repository
	Ratings() RatingRepository

	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}

// RatingRepository maintains the profile_ratings rollup.
type RatingRepository interface {
	// Recompute refreshes one profile's rating from its reviews.
	Recompute(ctx context.Context, profileID uuid.UUID) error
	// RecomputeAll refreshes every profile that has a rating row or has
	// received a review, and returns the number of profiles written.
	RecomputeAll(ctx context.Context) (int64, error)
}

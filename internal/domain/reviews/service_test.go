package reviews

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/domain/commitments"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	createFn  func(ctx context.Context, params CreateParams) (*Review, error)
	listFn    func(ctx context.Context, revieweeID uuid.UUID) ([]Review, error)
	summaryFn func(ctx context.Context, revieweeID uuid.UUID) (Summary, error)
}

func (m *mockRepository) Create(ctx context.Context, params CreateParams) (*Review, error) {
	if m.createFn != nil {
		return m.createFn(ctx, params)
	}
	return &Review{
		ID:           uuid.New(),
		CommitmentID: params.CommitmentID,
		ReviewerID:   params.ReviewerID,
		RevieweeID:   params.RevieweeID,
		Rating:       params.Rating,
		Comment:      params.Comment,
		CreatedAt:    time.Now(),
	}, nil
}

func (m *mockRepository) ListForReviewee(ctx context.Context, revieweeID uuid.UUID) ([]Review, error) {
	if m.listFn != nil {
		return m.listFn(ctx, revieweeID)
	}
	return nil, nil
}

func (m *mockRepository) Summary(ctx context.Context, revieweeID uuid.UUID) (Summary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, revieweeID)
	}
	return Summary{}, nil
}

type stubCommitments struct {
	commitment commitments.Commitment
}

func (s stubCommitments) Get(ctx context.Context, id, viewerID uuid.UUID) (*commitments.Commitment, error) {
	if id != s.commitment.ID {
		return nil, commitments.ErrNotFound
	}
	if !s.commitment.IsParticipant(viewerID) {
		return nil, commitments.ErrNotParticipant
	}
	c := s.commitment
	return &c, nil
}

type recordingEnqueuer struct {
	profiles []uuid.UUID
	err      error
}

func (r *recordingEnqueuer) EnqueueRatingRollup(ctx context.Context, profileID uuid.UUID) error {
	r.profiles = append(r.profiles, profileID)
	return r.err
}

func newCommitment(status commitments.Status) commitments.Commitment {
	return commitments.Commitment{
		ID:          uuid.New(),
		RequesterID: uuid.New(),
		AddresseeID: uuid.New(),
		Status:      status,
	}
}

func TestCreateReviewsPartner(t *testing.T) {
	c := newCommitment(commitments.StatusCompleted)
	repo := &mockRepository{}
	rollups := &recordingEnqueuer{}
	svc := NewService(repo, stubCommitments{c}, rollups, zerolog.Nop())

	review, err := svc.Create(context.Background(), c.ID, c.AddresseeID, 5, "  <i>Great</i> teacher ")

	require.NoError(t, err)
	assert.Equal(t, c.RequesterID, review.RevieweeID)
	assert.Equal(t, c.AddresseeID, review.ReviewerID)
	assert.Equal(t, "Great teacher", review.Comment)
	assert.Equal(t, []uuid.UUID{c.RequesterID}, rollups.profiles)
}

func TestCreateRejections(t *testing.T) {
	ctx := context.Background()
	completed := newCommitment(commitments.StatusCompleted)

	tests := []struct {
		name       string
		commitment commitments.Commitment
		reviewer   func(c commitments.Commitment) uuid.UUID
		rating     int
		comment    string
		want       error
	}{
		{"rating too low", completed, requester, 0, "", ErrInvalidRating},
		{"rating too high", completed, requester, 6, "", ErrInvalidRating},
		{"comment too long", completed, requester, 3, strings.Repeat("x", MaxCommentLength+1), ErrCommentTooLong},
		{"outsider", completed, func(commitments.Commitment) uuid.UUID { return uuid.New() }, 3, "", commitments.ErrNotParticipant},
		{"pending", newCommitment(commitments.StatusPending), requester, 3, "", ErrNotCompleted},
		{"active", newCommitment(commitments.StatusActive), requester, 3, "", ErrNotCompleted},
		{"rejected", newCommitment(commitments.StatusRejected), requester, 3, "", ErrNotCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{createFn: func(ctx context.Context, params CreateParams) (*Review, error) {
				t.Fatal("review must not be stored")
				return nil, nil
			}}
			svc := NewService(repo, stubCommitments{tt.commitment}, nil, zerolog.Nop())
			_, err := svc.Create(ctx, tt.commitment.ID, tt.reviewer(tt.commitment), tt.rating, tt.comment)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func requester(c commitments.Commitment) uuid.UUID { return c.RequesterID }

func TestCreateDuplicate(t *testing.T) {
	c := newCommitment(commitments.StatusCompleted)
	rollups := &recordingEnqueuer{}
	repo := &mockRepository{createFn: func(ctx context.Context, params CreateParams) (*Review, error) {
		return nil, ErrAlreadyReviewed
	}}
	svc := NewService(repo, stubCommitments{c}, rollups, zerolog.Nop())

	_, err := svc.Create(context.Background(), c.ID, c.RequesterID, 4, "")

	require.ErrorIs(t, err, ErrAlreadyReviewed)
	assert.Empty(t, rollups.profiles)
}

func TestCreateSurvivesEnqueueFailure(t *testing.T) {
	c := newCommitment(commitments.StatusCompleted)
	rollups := &recordingEnqueuer{err: errors.New("queue down")}
	svc := NewService(&mockRepository{}, stubCommitments{c}, rollups, zerolog.Nop())

	_, err := svc.Create(context.Background(), c.ID, c.RequesterID, 4, "")

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c.AddresseeID}, rollups.profiles)
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		repo Summary
		want Summary
	}{
		{"no reviews", Summary{}, Summary{}},
		{"rounds down", Summary{Count: 3, Average: 4.333333}, Summary{Count: 3, Average: 4.3}},
		{"rounds up", Summary{Count: 2, Average: 4.66666}, Summary{Count: 2, Average: 4.7}},
		{"exact", Summary{Count: 1, Average: 5}, Summary{Count: 1, Average: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{summaryFn: func(ctx context.Context, revieweeID uuid.UUID) (Summary, error) {
				return tt.repo, nil
			}}
			svc := NewService(repo, stubCommitments{}, nil, zerolog.Nop())
			got, err := svc.Summary(context.Background(), uuid.New())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListForProfile(t *testing.T) {
	profileID := uuid.New()
	want := []Review{{ID: uuid.New(), Rating: 5}, {ID: uuid.New(), Rating: 3}}
	repo := &mockRepository{listFn: func(ctx context.Context, revieweeID uuid.UUID) ([]Review, error) {
		require.Equal(t, profileID, revieweeID)
		return want, nil
	}}
	svc := NewService(repo, stubCommitments{}, nil, zerolog.Nop())

	got, err := svc.ListForProfile(context.Background(), profileID)

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

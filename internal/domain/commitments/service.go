// Package commitments implements the partnership commitment lifecycle:
// a requester proposes a goal, the addressee accepts or rejects it, and an
// active commitment is completed by either party before both review it.
package commitments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Togather-Foundation/skillexchange/internal/metrics"
	"github.com/Togather-Foundation/skillexchange/internal/sanitize"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MaxGoalLength bounds the goal text in characters.
const MaxGoalLength = 1000

type RequestParams struct {
	RequesterID uuid.UUID `validate:"required"`
	AddresseeID uuid.UUID `validate:"required"`
	Goal        string    `validate:"required,max=1000"`
}

type Service struct {
	repo      Repository
	logger    zerolog.Logger
	validator *validator.Validate
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		logger:    logger.With().Str("component", "commitments").Logger(),
		validator: validator.New(),
	}
}

// Request creates a PENDING commitment from requester to addressee.
func (s *Service) Request(ctx context.Context, params RequestParams) (*Commitment, error) {
	params.Goal = strings.TrimSpace(sanitize.PlainText(params.Goal))
	if err := s.validator.Struct(params); err != nil {
		return nil, validationError(err)
	}
	if params.RequesterID == params.AddresseeID {
		return nil, ErrSelfRequest
	}

	open, err := s.repo.HasOpenBetween(ctx, params.RequesterID, params.AddresseeID)
	if err != nil {
		return nil, fmt.Errorf("check open commitments: %w", err)
	}
	if open {
		return nil, ErrDuplicateCommitment
	}

	created, err := s.repo.Create(ctx, CreateParams{
		RequesterID: params.RequesterID,
		AddresseeID: params.AddresseeID,
		Goal:        params.Goal,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateCommitment) || errors.Is(err, ErrAddresseeNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create commitment: %w", err)
	}

	metrics.CommitmentTransitions.WithLabelValues("", string(StatusPending)).Inc()
	s.logger.Info().
		Str("commitment_id", created.ID.String()).
		Str("requester_id", created.RequesterID.String()).
		Str("addressee_id", created.AddresseeID.String()).
		Msg("commitment requested")

	return created, nil
}

func (s *Service) Accept(ctx context.Context, id, actorID uuid.UUID) (*Commitment, error) {
	return s.Respond(ctx, id, actorID, StatusActive)
}

func (s *Service) Reject(ctx context.Context, id, actorID uuid.UUID) (*Commitment, error) {
	return s.Respond(ctx, id, actorID, StatusRejected)
}

func (s *Service) Complete(ctx context.Context, id, actorID uuid.UUID) (*Commitment, error) {
	return s.Respond(ctx, id, actorID, StatusCompleted)
}

// Respond moves a commitment to the target status on behalf of actorID.
// The update is a compare-and-set on the status read here, so of two
// concurrent responders only one succeeds; the other sees
// ErrStatusConflict.
func (s *Service) Respond(ctx context.Context, id, actorID uuid.UUID, to Status) (*Commitment, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	role := RoleOf(*current, actorID)
	if err := CheckTransition(current.Status, to, role); err != nil {
		metrics.CommitmentTransitionsRejected.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, to)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			metrics.CommitmentTransitionsRejected.WithLabelValues("conflict").Inc()
			return nil, ErrStatusConflict
		}
		return nil, fmt.Errorf("update commitment status: %w", err)
	}

	metrics.CommitmentTransitions.WithLabelValues(string(current.Status), string(to)).Inc()
	s.logger.Info().
		Str("commitment_id", id.String()).
		Str("actor_id", actorID.String()).
		Str("actor_role", role.String()).
		Str("from", string(current.Status)).
		Str("to", string(to)).
		Msg("commitment status changed")

	return updated, nil
}

// Get returns a commitment visible to viewerID.
func (s *Service) Get(ctx context.Context, id, viewerID uuid.UUID) (*Commitment, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsParticipant(viewerID) {
		return nil, ErrNotParticipant
	}
	return c, nil
}

// ListReceived returns requests addressed to userID, newest first.
func (s *Service) ListReceived(ctx context.Context, userID uuid.UUID) ([]Commitment, error) {
	return s.repo.ListReceived(ctx, userID)
}

// ListSent returns requests made by userID, newest first.
func (s *Service) ListSent(ctx context.Context, userID uuid.UUID) ([]Commitment, error) {
	return s.repo.ListSent(ctx, userID)
}

func (s *Service) Participants(ctx context.Context, id, viewerID uuid.UUID) (Participants, error) {
	c, err := s.Get(ctx, id, viewerID)
	if err != nil {
		return Participants{}, err
	}

	p := Participants{
		RequesterID:       c.RequesterID,
		RequesterUsername: c.RequesterUsername,
		AddresseeID:       c.AddresseeID,
		AddresseeUsername: c.AddresseeUsername,
	}
	if viewerID == c.RequesterID {
		p.PartnerID, p.PartnerUsername = c.AddresseeID, c.AddresseeUsername
	} else {
		p.PartnerID, p.PartnerUsername = c.RequesterID, c.RequesterUsername
	}
	return p, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotParticipant):
		return "not_participant"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "invalid_transition"
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return ValidationError{Field: field, Message: "is required"}
	case "max":
		return ValidationError{Field: field, Message: fmt.Sprintf("must be at most %s characters", fe.Param())}
	default:
		return ValidationError{Field: field, Message: "is invalid"}
	}
}

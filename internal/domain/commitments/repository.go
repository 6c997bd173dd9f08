package commitments

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
)

// Phase is the lifecycle position shown to users. It equals the stored
// status except for completed commitments reviewed by both parties.
type Phase string

const PhaseReviewed Phase = "REVIEWED"

type Commitment struct {
	ID                uuid.UUID
	RequesterID       uuid.UUID
	AddresseeID       uuid.UUID
	RequesterUsername string
	AddresseeUsername string
	Goal              string
	Status            Status
	ReviewCount       int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (c Commitment) IsParticipant(userID uuid.UUID) bool {
	return userID == c.RequesterID || userID == c.AddresseeID
}

// Partner returns the other party of the commitment for viewer.
func (c Commitment) Partner(viewer uuid.UUID) (uuid.UUID, bool) {
	switch viewer {
	case c.RequesterID:
		return c.AddresseeID, true
	case c.AddresseeID:
		return c.RequesterID, true
	default:
		return uuid.Nil, false
	}
}

func (c Commitment) Phase() Phase {
	if c.Status == StatusCompleted && c.ReviewCount >= 2 {
		return PhaseReviewed
	}
	return Phase(c.Status)
}

// Participants names both parties and, for a viewer, their partner.
type Participants struct {
	RequesterID       uuid.UUID
	RequesterUsername string
	AddresseeID       uuid.UUID
	AddresseeUsername string
	PartnerID         uuid.UUID
	PartnerUsername   string
}

type CreateParams struct {
	RequesterID uuid.UUID
	AddresseeID uuid.UUID
	Goal        string
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Commitment, error)
	Get(ctx context.Context, id uuid.UUID) (*Commitment, error)
	// HasOpenBetween reports whether a PENDING or ACTIVE commitment links
	// the two users in either direction.
	HasOpenBetween(ctx context.Context, a, b uuid.UUID) (bool, error)
	// UpdateStatus moves id from one status to another and returns
	// ErrStatusConflict when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Commitment, error)
	ListReceived(ctx context.Context, userID uuid.UUID) ([]Commitment, error)
	ListSent(ctx context.Context, userID uuid.UUID) ([]Commitment, error)
}

package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID             uuid.UUID `json:"id"`
	CommitmentID   uuid.UUID `json:"commitment_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type CreateParams struct {
	CommitmentID uuid.UUID
	SenderID     uuid.UUID
	Content      string
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Message, error)
	// ListByCommitment returns messages oldest first with sender usernames.
	ListByCommitment(ctx context.Context, commitmentID uuid.UUID) ([]Message, error)
}

package postgres

import (
	"context"
	"fmt"

	"github.com/Togather-Foundation/skillexchange/internal/domain/chat"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ chat.Repository = (*MessageRepository)(nil)

type MessageRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *MessageRepository) Create(ctx context.Context, params chat.CreateParams) (*chat.Message, error) {
	var msg chat.Message
	err := r.queryer().QueryRow(ctx, `
WITH inserted AS (
  INSERT INTO messages (commitment_id, sender_id, content)
  VALUES ($1, $2, $3)
  RETURNING id, commitment_id, sender_id, content, created_at
)
SELECT i.id, i.commitment_id, i.sender_id, p.username, i.content, i.created_at
  FROM inserted i
  JOIN profiles p ON p.id = i.sender_id
`, params.CommitmentID, params.SenderID, params.Content).Scan(
		&msg.ID,
		&msg.CommitmentID,
		&msg.SenderID,
		&msg.SenderUsername,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (r *MessageRepository) ListByCommitment(ctx context.Context, commitmentID uuid.UUID) ([]chat.Message, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT m.id, m.commitment_id, m.sender_id, p.username, m.content, m.created_at
  FROM messages m
  JOIN profiles p ON p.id = m.sender_id
 WHERE m.commitment_id = $1
 ORDER BY m.created_at ASC, m.id ASC
`, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]chat.Message, 0)
	for rows.Next() {
		var msg chat.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.CommitmentID,
			&msg.SenderID,
			&msg.SenderUsername,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan messages: %w", err)
		}
		items = append(items, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

func (r *MessageRepository) queryer() dbQueryer {
	return pick(r.pool, r.tx)
}

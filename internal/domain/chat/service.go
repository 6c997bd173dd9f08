// Package chat stores the messages exchanged by the two parties of a
// commitment and streams new ones as they are committed.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Togather-Foundation/skillexchange/internal/domain/commitments"
	"github.com/Togather-Foundation/skillexchange/internal/realtime"
	"github.com/Togather-Foundation/skillexchange/internal/sanitize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MaxContentLength bounds a message in characters.
const MaxContentLength = 1000

// CommitmentReader returns a commitment when viewerID is one of its parties.
type CommitmentReader interface {
	Get(ctx context.Context, id, viewerID uuid.UUID) (*commitments.Commitment, error)
}

type UsernameResolver interface {
	Username(ctx context.Context, profileID uuid.UUID) (string, error)
}

// ChangeFeed is the subset of realtime.Hub used for streaming.
type ChangeFeed interface {
	Subscribe(name string, bindings ...realtime.Binding) (*realtime.Subscription, error)
	Unsubscribe(sub *realtime.Subscription)
}

type Service struct {
	repo        Repository
	commitments CommitmentReader
	usernames   UsernameResolver
	feed        ChangeFeed
	logger      zerolog.Logger
}

func NewService(repo Repository, commitments CommitmentReader, usernames UsernameResolver, feed ChangeFeed, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		commitments: commitments,
		usernames:   usernames,
		feed:        feed,
		logger:      logger.With().Str("component", "chat").Logger(),
	}
}

// Send posts a message from senderID to an active commitment.
func (s *Service) Send(ctx context.Context, commitmentID, senderID uuid.UUID, content string) (*Message, error) {
	content = strings.TrimSpace(sanitize.PlainText(content))
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, ErrMessageTooLong
	}

	c, err := s.commitments.Get(ctx, commitmentID, senderID)
	if err != nil {
		return nil, err
	}
	if c.Status != commitments.StatusActive {
		return nil, ErrChatClosed
	}

	msg, err := s.repo.Create(ctx, CreateParams{
		CommitmentID: commitmentID,
		SenderID:     senderID,
		Content:      content,
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if msg.SenderUsername == "" {
		if senderID == c.RequesterID {
			msg.SenderUsername = c.RequesterUsername
		} else {
			msg.SenderUsername = c.AddresseeUsername
		}
	}

	s.logger.Debug().
		Str("commitment_id", commitmentID.String()).
		Str("sender_id", senderID.String()).
		Msg("message sent")
	return msg, nil
}

// List returns the conversation of a commitment, oldest first.
func (s *Service) List(ctx context.Context, commitmentID, viewerID uuid.UUID) ([]Message, error) {
	if _, err := s.commitments.Get(ctx, commitmentID, viewerID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListByCommitment(ctx, commitmentID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// messageRecord is a messages row as carried in a change payload.
type messageRecord struct {
	ID           uuid.UUID `json:"id"`
	CommitmentID uuid.UUID `json:"commitment_id"`
	SenderID     uuid.UUID `json:"sender_id"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}

// Stream delivers messages inserted into the commitment by the other party
// until ctx is done. The returned channel is closed when the stream ends.
func (s *Service) Stream(ctx context.Context, commitmentID, viewerID uuid.UUID) (<-chan Message, error) {
	if _, err := s.commitments.Get(ctx, commitmentID, viewerID); err != nil {
		return nil, err
	}

	sub, err := s.feed.Subscribe("chat:"+commitmentID.String()+":"+viewerID.String(), realtime.Binding{
		Event:  realtime.EventInsert,
		Schema: "public",
		Table:  "messages",
		Filter: "commitment_id=eq." + commitmentID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamUnavailable, err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		defer s.feed.Unsubscribe(sub)

		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-sub.C:
				if !ok {
					return
				}
				msg, ok := s.enrich(ctx, change, viewerID)
				if !ok {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Service) enrich(ctx context.Context, change realtime.Change, viewerID uuid.UUID) (Message, bool) {
	var rec messageRecord
	if err := change.DecodeRecord(&rec); err != nil {
		s.logger.Warn().Err(err).Msg("decode message change")
		return Message{}, false
	}
	if rec.SenderID == viewerID {
		return Message{}, false
	}

	username, err := s.usernames.Username(ctx, rec.SenderID)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("message_id", rec.ID.String()).
			Str("sender_id", rec.SenderID.String()).
			Msg("sender lookup failed, dropping message")
		return Message{}, false
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = change.CommitTimestamp
	}
	return Message{
		ID:             rec.ID,
		CommitmentID:   rec.CommitmentID,
		SenderID:       rec.SenderID,
		SenderUsername: username,
		Content:        rec.Content,
		CreatedAt:      createdAt,
	}, true
}

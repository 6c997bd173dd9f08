package chat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/domain/commitments"
	"github.com/Togather-Foundation/skillexchange/internal/realtime"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	createFn func(ctx context.Context, params CreateParams) (*Message, error)
	listFn   func(ctx context.Context, commitmentID uuid.UUID) ([]Message, error)
}

func (m *mockRepository) Create(ctx context.Context, params CreateParams) (*Message, error) {
	if m.createFn != nil {
		return m.createFn(ctx, params)
	}
	return &Message{
		ID:           uuid.New(),
		CommitmentID: params.CommitmentID,
		SenderID:     params.SenderID,
		Content:      params.Content,
		CreatedAt:    time.Now(),
	}, nil
}

func (m *mockRepository) ListByCommitment(ctx context.Context, commitmentID uuid.UUID) ([]Message, error) {
	if m.listFn != nil {
		return m.listFn(ctx, commitmentID)
	}
	return nil, nil
}

type stubCommitments struct {
	commitment commitments.Commitment
}

func (s *stubCommitments) Get(ctx context.Context, id, viewerID uuid.UUID) (*commitments.Commitment, error) {
	if id != s.commitment.ID {
		return nil, commitments.ErrNotFound
	}
	if !s.commitment.IsParticipant(viewerID) {
		return nil, commitments.ErrNotParticipant
	}
	c := s.commitment
	return &c, nil
}

type stubUsernames map[uuid.UUID]string

func (s stubUsernames) Username(ctx context.Context, id uuid.UUID) (string, error) {
	name, ok := s[id]
	if !ok {
		return "", errors.New("profile not found")
	}
	return name, nil
}

// failFirst fails the first lookup and then delegates.
type failFirst struct {
	next  UsernameResolver
	calls atomic.Int32
}

func (f *failFirst) Username(ctx context.Context, id uuid.UUID) (string, error) {
	if f.calls.Add(1) == 1 {
		return "", errors.New("lookup timeout")
	}
	return f.next.Username(ctx, id)
}

type fixture struct {
	svc        *Service
	repo       *mockRepository
	hub        *realtime.Hub
	commitment *stubCommitments
	requester  uuid.UUID
	addressee  uuid.UUID
	usernames  stubUsernames
}

func newFixture(t *testing.T, status commitments.Status) *fixture {
	t.Helper()
	f := &fixture{
		repo:      &mockRepository{},
		hub:       realtime.NewHub(8, zerolog.Nop()),
		requester: uuid.New(),
		addressee: uuid.New(),
	}
	t.Cleanup(f.hub.Close)
	f.commitment = &stubCommitments{commitment: commitments.Commitment{
		ID:                uuid.New(),
		RequesterID:       f.requester,
		AddresseeID:       f.addressee,
		RequesterUsername: "alice",
		AddresseeUsername: "bob",
		Status:            status,
	}}
	f.usernames = stubUsernames{f.requester: "alice", f.addressee: "bob"}
	f.svc = NewService(f.repo, f.commitment, f.usernames, f.hub, zerolog.Nop())
	return f
}

func (f *fixture) publishMessage(t *testing.T, commitmentID, senderID uuid.UUID, content string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	change, err := realtime.NewChange("public", "messages", realtime.EventInsert, map[string]any{
		"id":            id.String(),
		"commitment_id": commitmentID.String(),
		"sender_id":     senderID.String(),
		"content":       content,
		"created_at":    "2026-10-18T09:30:00.123456+00:00",
	}, nil)
	require.NoError(t, err)
	f.hub.Publish(change)
	return id
}

func TestSend(t *testing.T) {
	f := newFixture(t, commitments.StatusActive)

	msg, err := f.svc.Send(context.Background(), f.commitment.commitment.ID, f.addressee, "  <b>hello</b> there  ")

	require.NoError(t, err)
	require.Equal(t, "hello there", msg.Content)
	require.Equal(t, "bob", msg.SenderUsername)
}

func TestSendRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty after sanitising", func(t *testing.T) {
		f := newFixture(t, commitments.StatusActive)
		_, err := f.svc.Send(ctx, f.commitment.commitment.ID, f.requester, "  <p></p> ")
		require.ErrorIs(t, err, ErrEmptyMessage)
	})

	t.Run("too long", func(t *testing.T) {
		f := newFixture(t, commitments.StatusActive)
		_, err := f.svc.Send(ctx, f.commitment.commitment.ID, f.requester, strings.Repeat("é", MaxContentLength+1))
		require.ErrorIs(t, err, ErrMessageTooLong)
	})

	t.Run("exactly the limit", func(t *testing.T) {
		f := newFixture(t, commitments.StatusActive)
		_, err := f.svc.Send(ctx, f.commitment.commitment.ID, f.requester, strings.Repeat("é", MaxContentLength))
		require.NoError(t, err)
	})

	t.Run("outsider", func(t *testing.T) {
		f := newFixture(t, commitments.StatusActive)
		_, err := f.svc.Send(ctx, f.commitment.commitment.ID, uuid.New(), "hi")
		require.ErrorIs(t, err, commitments.ErrNotParticipant)
	})

	for _, status := range []commitments.Status{commitments.StatusPending, commitments.StatusRejected, commitments.StatusCompleted} {
		t.Run("closed when "+string(status), func(t *testing.T) {
			f := newFixture(t, status)
			f.repo.createFn = func(ctx context.Context, params CreateParams) (*Message, error) {
				t.Fatal("message must not be stored")
				return nil, nil
			}
			_, err := f.svc.Send(ctx, f.commitment.commitment.ID, f.requester, "hi")
			require.ErrorIs(t, err, ErrChatClosed)
		})
	}
}

func TestList(t *testing.T) {
	f := newFixture(t, commitments.StatusCompleted)
	want := []Message{{ID: uuid.New(), Content: "first"}, {ID: uuid.New(), Content: "second"}}
	f.repo.listFn = func(ctx context.Context, commitmentID uuid.UUID) ([]Message, error) {
		require.Equal(t, f.commitment.commitment.ID, commitmentID)
		return want, nil
	}

	got, err := f.svc.List(context.Background(), f.commitment.commitment.ID, f.requester)
	require.NoError(t, err)
	require.Equal(t, want, got)

	_, err = f.svc.List(context.Background(), f.commitment.commitment.ID, uuid.New())
	require.ErrorIs(t, err, commitments.ErrNotParticipant)
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "stream closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestStreamDeliversPartnerMessages(t *testing.T) {
	f := newFixture(t, commitments.StatusActive)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	commitmentID := f.commitment.commitment.ID

	stream, err := f.svc.Stream(ctx, commitmentID, f.requester)
	require.NoError(t, err)

	f.publishMessage(t, commitmentID, f.requester, "my own message")
	f.publishMessage(t, uuid.New(), f.addressee, "other commitment")
	want := f.publishMessage(t, commitmentID, f.addressee, "hi alice")

	msg := receive(t, stream)
	require.Equal(t, want, msg.ID)
	require.Equal(t, "bob", msg.SenderUsername)
	require.Equal(t, "hi alice", msg.Content)
	require.Equal(t, 2026, msg.CreatedAt.Year())
}

func TestStreamDropsMessagesWithUnknownSender(t *testing.T) {
	f := newFixture(t, commitments.StatusActive)
	f.svc.usernames = &failFirst{next: f.usernames}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	commitmentID := f.commitment.commitment.ID

	stream, err := f.svc.Stream(ctx, commitmentID, f.requester)
	require.NoError(t, err)

	f.publishMessage(t, commitmentID, f.addressee, "dropped")
	want := f.publishMessage(t, commitmentID, f.addressee, "delivered")

	require.Equal(t, want, receive(t, stream).ID)
}

func TestStreamEndsWithContext(t *testing.T) {
	f := newFixture(t, commitments.StatusActive)
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := f.svc.Stream(ctx, f.commitment.commitment.ID, f.requester)
	require.NoError(t, err)
	require.Equal(t, 1, f.hub.Len())

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-stream:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return f.hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStreamRequiresParticipant(t *testing.T) {
	f := newFixture(t, commitments.StatusActive)

	_, err := f.svc.Stream(context.Background(), f.commitment.commitment.ID, uuid.New())

	require.ErrorIs(t, err, commitments.ErrNotParticipant)
	require.Zero(t, f.hub.Len())
}

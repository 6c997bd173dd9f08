package handlers

import (
	"context"

	"github.com/Togather-Foundation/skillexchange/internal/domain/accounts"
	"github.com/Togather-Foundation/skillexchange/internal/domain/chat"
	"github.com/Togather-Foundation/skillexchange/internal/domain/commitments"
	"github.com/Togather-Foundation/skillexchange/internal/domain/profiles"
	"github.com/Togather-Foundation/skillexchange/internal/domain/reviews"
	"github.com/Togather-Foundation/skillexchange/internal/notifications"
	"github.com/google/uuid"
)

// The handlers depend on these narrow views of the domain services.

type AccountService interface {
	SignUp(ctx context.Context, params accounts.SignUpParams) (*accounts.Account, error)
	LoginWithUsername(ctx context.Context, username, password string) (*accounts.Session, error)
	SignIn(ctx context.Context, email, password string) (*accounts.Session, error)
	CurrentSession(ctx context.Context, token string) (*accounts.SessionInfo, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, password string) error
	SignOut(ctx context.Context, userID uuid.UUID)
}

type ProfileService interface {
	Get(ctx context.Context, id uuid.UUID) (*profiles.Profile, error)
	Update(ctx context.Context, id uuid.UUID, params profiles.UpdateParams) (*profiles.Profile, error)
	UsernameAvailable(ctx context.Context, username string) (bool, error)
	List(ctx context.Context, filters profiles.Filters, pagination profiles.Pagination) (profiles.ListResult, error)
	SkillCatalog(ctx context.Context) ([]profiles.CategoryGroup, error)
	AddSkill(ctx context.Context, profileID uuid.UUID, name string, skillType profiles.SkillType) (*profiles.ProfileSkill, error)
	RemoveSkill(ctx context.Context, profileID, profileSkillID uuid.UUID) error
}

type CommitmentService interface {
	Request(ctx context.Context, params commitments.RequestParams) (*commitments.Commitment, error)
	Respond(ctx context.Context, id, actorID uuid.UUID, to commitments.Status) (*commitments.Commitment, error)
	Get(ctx context.Context, id, viewerID uuid.UUID) (*commitments.Commitment, error)
	ListReceived(ctx context.Context, userID uuid.UUID) ([]commitments.Commitment, error)
	ListSent(ctx context.Context, userID uuid.UUID) ([]commitments.Commitment, error)
}

type ChatService interface {
	Send(ctx context.Context, commitmentID, senderID uuid.UUID, content string) (*chat.Message, error)
	List(ctx context.Context, commitmentID, viewerID uuid.UUID) ([]chat.Message, error)
	Stream(ctx context.Context, commitmentID, viewerID uuid.UUID) (<-chan chat.Message, error)
}

type ReviewService interface {
	Create(ctx context.Context, commitmentID, reviewerID uuid.UUID, rating int, comment string) (*reviews.Review, error)
	ListForProfile(ctx context.Context, revieweeID uuid.UUID) ([]reviews.Review, error)
	Summary(ctx context.Context, revieweeID uuid.UUID) (reviews.Summary, error)
}

// NotificationSessions is satisfied by *notifications.Manager.
type NotificationSessions interface {
	Attach(userID uuid.UUID) (*notifications.Session, error)
	Listen(userID uuid.UUID) (*notifications.Listener, error)
	Detach(l *notifications.Listener)
}

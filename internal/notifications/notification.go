package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/domain/ids"
	"github.com/Togather-Foundation/skillexchange/internal/realtime"
	"github.com/google/uuid"
)

const (
	LinkCommitments = "/commitments"
	LinkProfile     = "/profile"
)

// Notification is one entry of a user's inbox.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"created_at"`
}

type UsernameResolver interface {
	Username(ctx context.Context, profileID uuid.UUID) (string, error)
}

// Bindings are the row changes that concern userID: requests addressed to
// them, answers to their own requests, and reviews they received.
func Bindings(userID uuid.UUID) []realtime.Binding {
	id := userID.String()
	return []realtime.Binding{
		{Event: realtime.EventInsert, Schema: "public", Table: "commitments", Filter: "addressee_id=eq." + id},
		{Event: realtime.EventUpdate, Schema: "public", Table: "commitments", Filter: "requester_id=eq." + id},
		{Event: realtime.EventInsert, Schema: "public", Table: "reviews", Filter: "reviewee_id=eq." + id},
	}
}

// row holds the columns of commitments and reviews rows the translator reads.
type row struct {
	ID          uuid.UUID `json:"id"`
	RequesterID uuid.UUID `json:"requester_id"`
	AddresseeID uuid.UUID `json:"addressee_id"`
	Status      string    `json:"status"`
	ReviewerID  uuid.UUID `json:"reviewer_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Translator turns row changes into notifications.
type Translator struct {
	usernames UsernameResolver
}

func NewTranslator(usernames UsernameResolver) *Translator {
	return &Translator{usernames: usernames}
}

var errNoActor = errors.New("change has no actor")

// Translate returns the notification for change, or nil when the change
// does not produce one.
func (t *Translator) Translate(ctx context.Context, change realtime.Change) (*Notification, error) {
	var r row
	if err := change.DecodeRecord(&r); err != nil {
		return nil, err
	}

	var (
		actor  uuid.UUID
		format string
		link   string
	)
	switch {
	case change.Table == "commitments" && change.Type == realtime.EventInsert:
		actor, format, link = r.RequesterID, "%s sent you a partnership request.", LinkCommitments
	case change.Table == "commitments" && change.Type == realtime.EventUpdate:
		switch r.Status {
		case "ACTIVE":
			format = "%s accepted your request."
		case "REJECTED":
			format = "%s rejected your request."
		default:
			return nil, nil
		}
		actor, link = r.AddresseeID, LinkCommitments
	case change.Table == "reviews" && change.Type == realtime.EventInsert:
		actor, format, link = r.ReviewerID, "%s left you a review.", LinkProfile
	default:
		return nil, nil
	}
	if actor == uuid.Nil {
		return nil, errNoActor
	}

	username, err := t.usernames.Username(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", actor, err)
	}

	suffix, err := ids.NewULID()
	if err != nil {
		return nil, err
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = change.CommitTimestamp
	}
	return &Notification{
		ID:        fmt.Sprintf("%s-%s-%s-%s", change.Type, change.Table, r.ID, suffix),
		Message:   fmt.Sprintf(format, username),
		Link:      link,
		CreatedAt: createdAt,
	}, nil
}

// kind labels a notification for metrics.
func kind(change realtime.Change) string {
	return string(change.Type) + "_" + change.Table
}

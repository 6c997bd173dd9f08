package commitments

import "github.com/google/uuid"

// Role is the relationship between an actor and a commitment.
type Role int

const (
	RoleOutsider Role = iota
	RoleRequester
	RoleAddressee
)

func (r Role) String() string {
	switch r {
	case RoleRequester:
		return "requester"
	case RoleAddressee:
		return "addressee"
	default:
		return "outsider"
	}
}

type transition struct {
	from Status
	to   Status
}

// transitions maps each legal edge to the roles allowed to take it.
var transitions = map[transition][]Role{
	{StatusPending, StatusActive}:   {RoleAddressee},
	{StatusPending, StatusRejected}: {RoleAddressee},
	{StatusActive, StatusCompleted}: {RoleRequester, RoleAddressee},
}

func ParseStatus(value string) (Status, error) {
	switch status := Status(value); status {
	case StatusPending, StatusActive, StatusRejected, StatusCompleted:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status Status) bool {
	return status == StatusRejected || status == StatusCompleted
}

// RoleOf classifies userID relative to c.
func RoleOf(c Commitment, userID uuid.UUID) Role {
	switch userID {
	case c.RequesterID:
		return RoleRequester
	case c.AddresseeID:
		return RoleAddressee
	default:
		return RoleOutsider
	}
}

// CheckTransition validates moving from one status to another by role.
// Outsiders always get ErrNotParticipant; an unknown edge is
// ErrInvalidTransition; a known edge taken by the wrong party is ErrForbidden.
func CheckTransition(from, to Status, role Role) error {
	if role == RoleOutsider {
		return ErrNotParticipant
	}
	allowed, ok := transitions[transition{from: from, to: to}]
	if !ok {
		return ErrInvalidTransition
	}
	for _, r := range allowed {
		if r == role {
			return nil
		}
	}
	return ErrForbidden
}

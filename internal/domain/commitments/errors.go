package commitments

import "errors"

var (
	ErrNotFound            = errors.New("commitment not found")
	ErrInvalidTransition   = errors.New("invalid commitment status transition")
	ErrNotParticipant      = errors.New("user is not a participant in this commitment")
	ErrForbidden           = errors.New("user may not perform this transition")
	ErrSelfRequest         = errors.New("cannot send a commitment request to yourself")
	ErrDuplicateCommitment = errors.New("an open commitment already exists between these users")
	ErrAddresseeNotFound   = errors.New("addressee not found")
	ErrStatusConflict      = errors.New("commitment status changed concurrently")
	ErrInvalidStatus       = errors.New("unknown commitment status")
)

// ValidationError reports invalid commitment input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

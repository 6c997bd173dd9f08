package reviews

import "errors"

var (
	ErrAlreadyReviewed = errors.New("commitment already reviewed by this user")
	ErrNotCompleted    = errors.New("only completed commitments can be reviewed")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrCommentTooLong  = errors.New("comment is too long")
)

package chat

import "errors"

var (
	ErrChatClosed        = errors.New("chat is only open while the commitment is active")
	ErrEmptyMessage      = errors.New("message content is required")
	ErrMessageTooLong    = errors.New("message content is too long")
	ErrStreamUnavailable = errors.New("message stream unavailable")
)

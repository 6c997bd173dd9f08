package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const DefaultHeartbeatInterval = 15 * time.Second

// Event is one Server-Sent Events frame.
type Event struct {
	Name string
	ID   string
	Data any
}

// SSEWriter writes event-stream frames and flushes after each one.
type SSEWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSEWriter sets the event-stream headers and flushes them so the client
// sees the stream open before the first event.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &SSEWriter{w: w, rc: http.NewResponseController(w)}
	if err := s.rc.Flush(); err != nil {
		return nil, fmt.Errorf("streaming unsupported: %w", err)
	}
	// Streams outlive the server's write timeout.
	_ = s.rc.SetWriteDeadline(time.Time{})
	return s, nil
}

func (s *SSEWriter) WriteEvent(event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	var b strings.Builder
	if event.Name != "" {
		b.WriteString("event: ")
		b.WriteString(event.Name)
		b.WriteByte('\n')
	}
	if event.ID != "" {
		b.WriteString("id: ")
		b.WriteString(event.ID)
		b.WriteByte('\n')
	}
	b.WriteString("data: ")
	b.Write(data)
	b.WriteString("\n\n")

	if _, err := s.w.Write([]byte(b.String())); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Heartbeat writes a comment frame to keep intermediaries from closing an
// idle stream.
func (s *SSEWriter) Heartbeat() error {
	if _, err := s.w.Write([]byte(": ping\n\n")); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Pump writes every value from in as an event until ctx ends or in closes,
// sending heartbeats while idle.
func Pump[T any](ctx context.Context, s *SSEWriter, in <-chan T, heartbeat time.Duration, toEvent func(T) Event) error {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.Heartbeat(); err != nil {
				return err
			}
		case value, ok := <-in:
			if !ok {
				return nil
			}
			if err := s.WriteEvent(toEvent(value)); err != nil {
				return err
			}
		}
	}
}

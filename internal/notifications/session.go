package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/metrics"
	"github.com/Togather-Foundation/skillexchange/internal/realtime"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrSessionClosed = errors.New("notification session closed")

// Session is the notification state of one signed-in user. Changes are
// processed one at a time in arrival order, so the inbox order is the
// processing order.
type Session struct {
	UserID uuid.UUID

	sub        *realtime.Subscription
	translator *Translator
	buffer     int
	now        func() time.Time
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	inbox      []Notification
	listeners  map[*Listener]struct{}
	lastActive time.Time
	closed     bool
}

// Listener receives notifications appended after it was registered.
type Listener struct {
	C <-chan Notification

	ch      chan Notification
	session *Session
	once    sync.Once
}

// Close unregisters the listener. It is safe to call more than once.
func (l *Listener) Close() {
	l.once.Do(func() { l.session.removeListener(l) })
}

func newSession(userID uuid.UUID, sub *realtime.Subscription, translator *Translator, buffer int, now func() time.Time, logger zerolog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		UserID:     userID,
		sub:        sub,
		translator: translator,
		buffer:     buffer,
		now:        now,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		listeners:  make(map[*Listener]struct{}),
		lastActive: now(),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.done)
	defer s.shutdown()

	for change := range s.sub.C {
		n, err := s.translator.Translate(s.ctx, change)
		if err != nil {
			metrics.NotificationsDropped.WithLabelValues("translate").Inc()
			s.logger.Warn().
				Err(err).
				Str("table", change.Table).
				Str("type", string(change.Type)).
				Msg("dropping change")
			continue
		}
		if n == nil {
			continue
		}
		s.append(*n)
		metrics.NotificationsEmitted.WithLabelValues(kind(change)).Inc()
	}
}

func (s *Session) append(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.inbox = append(s.inbox, n)
	for l := range s.listeners {
		select {
		case l.ch <- n:
		default:
			metrics.NotificationsDropped.WithLabelValues("listener_full").Inc()
		}
	}
}

func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for l := range s.listeners {
		close(l.ch)
		delete(s.listeners, l)
	}
}

// Notifications returns a copy of the inbox, oldest first.
func (s *Session) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.inbox))
	copy(out, s.inbox)
	return out
}

// Clear empties the inbox.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbox = nil
}

// Listen registers a new listener. Every connection of the user gets its
// own listener on the shared session.
func (s *Session) Listen() (*Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	ch := make(chan Notification, s.buffer)
	l := &Listener{C: ch, ch: ch, session: s}
	s.listeners[l] = struct{}{}
	return l, nil
}

func (s *Session) removeListener(l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listeners[l]; ok {
		delete(s.listeners, l)
		close(l.ch)
	}
	s.lastActive = s.now()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

func (s *Session) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// idle reports whether the session has no listeners and has been inactive
// for at least ttl.
func (s *Session) idle(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners) == 0 && now.Sub(s.lastActive) >= ttl
}

// Done is closed once the session has stopped processing changes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

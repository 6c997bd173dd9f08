// Package notifications turns committed row changes into per-user inbox
// entries and streams them to the user's open connections.
package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/metrics"
	"github.com/Togather-Foundation/skillexchange/internal/realtime"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultIdleTTL        = 30 * time.Minute
	DefaultListenerBuffer = 16
)

type ChangeFeed interface {
	Subscribe(name string, bindings ...realtime.Binding) (*realtime.Subscription, error)
	Unsubscribe(sub *realtime.Subscription)
}

// Manager owns one Session per user.
type Manager struct {
	feed       ChangeFeed
	translator *Translator
	idleTTL    time.Duration
	buffer     int
	logger     zerolog.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewManager(feed ChangeFeed, translator *Translator, idleTTL time.Duration, logger zerolog.Logger) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Manager{
		feed:       feed,
		translator: translator,
		idleTTL:    idleTTL,
		buffer:     DefaultListenerBuffer,
		logger:     logger.With().Str("component", "notifications").Logger(),
		now:        time.Now,
		sessions:   make(map[uuid.UUID]*Session),
	}
}

// Attach returns the user's session, starting it if needed.
func (m *Manager) Attach(userID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		if !s.stopped() {
			s.touch()
			return s, nil
		}
		// The feed closed underneath the session.
		delete(m.sessions, userID)
		metrics.NotificationSessions.Dec()
	}

	sub, err := m.feed.Subscribe("notifications:"+userID.String(), Bindings(userID)...)
	if err != nil {
		return nil, err
	}
	s := newSession(userID, sub, m.translator, m.buffer, m.now, m.logger.With().Str("user_id", userID.String()).Logger())
	m.sessions[userID] = s
	metrics.NotificationSessions.Inc()
	m.logger.Debug().Str("user_id", userID.String()).Msg("notification session started")
	return s, nil
}

// Start begins the user's session without returning it, as on sign-in.
func (m *Manager) Start(userID uuid.UUID) error {
	_, err := m.Attach(userID)
	return err
}

// Listen attaches to the user's session and registers a listener on it.
func (m *Manager) Listen(userID uuid.UUID) (*Listener, error) {
	s, err := m.Attach(userID)
	if err != nil {
		return nil, err
	}
	return s.Listen()
}

// Detach closes a listener. The session stays alive until End or until it
// is reaped.
func (m *Manager) Detach(l *Listener) {
	l.Close()
}

// End clears and closes the user's session, as on logout.
func (m *Manager) End(userID uuid.UUID) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return
	}
	s.Clear()
	m.stop(s)
	m.logger.Debug().Str("user_id", userID.String()).Msg("notification session ended")
}

// Reap closes sessions that have no listeners and have been idle for the
// configured TTL. It returns the number of sessions closed.
func (m *Manager) Reap() int {
	now := m.now()
	var idle []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idle(now, m.idleTTL) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.stop(s)
	}
	if len(idle) > 0 {
		m.logger.Debug().Int("count", len(idle)).Msg("reaped idle notification sessions")
	}
	return len(idle)
}

// Run reaps idle sessions until ctx is done, then closes every session.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Close()
			return nil
		case <-ticker.C:
			m.Reap()
		}
	}
}

// Close ends every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		m.stop(s)
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) stop(s *Session) {
	s.cancel()
	m.feed.Unsubscribe(s.sub)
	<-s.done
	metrics.NotificationSessions.Dec()
}

package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

const (
	DefaultChannel = "row_changes"

	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// NotificationConn is the subset of *pgx.Conn the listener needs.
type NotificationConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Dialer opens a dedicated connection for LISTEN.
type Dialer func(ctx context.Context) (NotificationConn, error)

// PgxDialer dials databaseURL with pgx. LISTEN needs a session that is
// never returned to a pool, so this bypasses pgxpool.
func PgxDialer(databaseURL string) Dialer {
	return func(ctx context.Context) (NotificationConn, error) {
		conn, err := pgx.Connect(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Publisher receives decoded changes.
type Publisher interface {
	Publish(change Change) int
}

// Listener holds a LISTEN connection on channel and publishes every decoded
// payload. It reconnects with capped exponential backoff until ctx ends.
type Listener struct {
	dial       Dialer
	channel    string
	publisher  Publisher
	logger     zerolog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	connected  atomic.Bool
}

func NewListener(dial Dialer, channel string, publisher Publisher, logger zerolog.Logger) *Listener {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Listener{
		dial:       dial,
		channel:    channel,
		publisher:  publisher,
		logger:     logger.With().Str("component", "realtime_listener").Str("channel", channel).Logger(),
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
}

// Connected reports whether the LISTEN session is currently established.
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.minBackoff
	for {
		established, err := l.listen(ctx)
		l.connected.Store(false)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			backoff = l.minBackoff
		}

		metrics.RealtimeListenerReconnects.Inc()
		l.logger.Warn().Err(err).Dur("backoff", backoff).Msg("change listener disconnected; reconnecting")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

func (l *Listener) listen(ctx context.Context) (bool, error) {
	conn, err := l.dial(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return false, err
	}
	l.connected.Store(true)
	l.logger.Info().Msg("listening for row changes")

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return true, err
		}
		if notification == nil {
			return true, errors.New("nil notification")
		}
		l.handle(notification.Payload)
	}
}

func (l *Listener) handle(payload string) {
	change, err := ParseChange([]byte(payload))
	if err != nil {
		metrics.RealtimeDecodeErrors.Inc()
		l.logger.Error().Err(err).Int("payload_bytes", len(payload)).Msg("discarding undecodable change")
		return
	}
	metrics.RealtimeChangesReceived.WithLabelValues(change.Table, string(change.Type)).Inc()
	delivered := l.publisher.Publish(change)
	l.logger.Debug().
		Str("table", change.Table).
		Str("type", string(change.Type)).
		Int("delivered", delivered).
		Msg("change published")
}

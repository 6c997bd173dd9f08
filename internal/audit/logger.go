// Package audit records security-relevant account actions as structured
// log lines under a dedicated "audit" field.
package audit

import (
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is one audited action.
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	Actor        string            `json:"actor,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	Status       string            `json:"status"`
	Details      map[string]string `json:"details,omitempty"`
}

// Logger writes audit entries. A nil *Logger discards them.
type Logger struct {
	logger zerolog.Logger
	now    func() time.Time
}

func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		logger: logger.With().Str("component", "audit").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *Logger) Log(entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	level := zerolog.InfoLevel
	if entry.Status == StatusFailure {
		level = zerolog.WarnLevel
	}
	l.logger.WithLevel(level).Interface("audit", entry).Msg(entry.Action)
}

// Record logs action against the request's peer address. actor may be
// uuid.Nil for anonymous attempts.
func (l *Logger) Record(r *http.Request, action string, actor uuid.UUID, status string, details map[string]string) {
	if l == nil {
		return
	}
	entry := Entry{
		Action:       action,
		ResourceType: "account",
		IPAddress:    remoteIP(r),
		Status:       status,
		Details:      details,
	}
	if actor != uuid.Nil {
		entry.Actor = actor.String()
		entry.ResourceID = entry.Actor
	}
	l.Log(entry)
}

// remoteIP is the connection peer; forwarded headers are not consulted.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

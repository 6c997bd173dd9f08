package handlers

import (
	"net/http"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/notifications"
	"github.com/Togather-Foundation/skillexchange/internal/realtime"
	"github.com/rs/zerolog"
)

type NotificationsHandler struct {
	Sessions  NotificationSessions
	Heartbeat time.Duration
	Env       string
}

func NewNotificationsHandler(sessions NotificationSessions, heartbeat time.Duration, env string) *NotificationsHandler {
	return &NotificationsHandler{Sessions: sessions, Heartbeat: heartbeat, Env: env}
}

type notificationListResponse struct {
	Items []notifications.Notification `json:"items"`
}

// List returns the caller's inbox, oldest first. Sign-in normally starts the
// notification session; Attach starts one here if it has since ended.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	session, err := h.Sessions.Attach(userID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	items := session.Notifications()
	if items == nil {
		items = []notifications.Notification{}
	}
	writeJSON(w, http.StatusOK, notificationListResponse{Items: items})
}

func (h *NotificationsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	session, err := h.Sessions.Attach(userID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	session.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// Stream pushes new notifications as "notification" events until the
// client disconnects or the session ends.
func (h *NotificationsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	listener, err := h.Sessions.Listen(userID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	defer h.Sessions.Detach(listener)

	sse, err := realtime.NewSSEWriter(w)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("notification stream")
		return
	}
	err = realtime.Pump(r.Context(), sse, listener.C, h.Heartbeat, func(n notifications.Notification) realtime.Event {
		return realtime.Event{Name: "notification", ID: n.ID, Data: n}
	})
	if err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("notification stream closed")
	}
}

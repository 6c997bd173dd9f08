package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/notifications"
	"github.com/Togather-Foundation/skillexchange/internal/realtime"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsernames struct {
	mu    sync.Mutex
	names map[uuid.UUID]string
}

func (s *stubUsernames) Username(_ context.Context, id uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.names[id]
	if !ok {
		return "", assert.AnError
	}
	return name, nil
}

type notificationFixture struct {
	hub     *realtime.Hub
	manager *notifications.Manager
	handler *NotificationsHandler
}

func newNotificationFixture(t *testing.T, names map[uuid.UUID]string) *notificationFixture {
	t.Helper()
	hub := realtime.NewHub(16, zerolog.Nop())
	manager := notifications.NewManager(hub, notifications.NewTranslator(&stubUsernames{names: names}), time.Minute, zerolog.Nop())
	t.Cleanup(func() {
		manager.Close()
		hub.Close()
	})
	return &notificationFixture{
		hub:     hub,
		manager: manager,
		handler: NewNotificationsHandler(manager, time.Hour, testEnv),
	}
}

func requestChange(t *testing.T, requester, addressee uuid.UUID) realtime.Change {
	t.Helper()
	change, err := realtime.NewChange("public", "commitments", realtime.EventInsert, map[string]any{
		"id":           uuid.NewString(),
		"requester_id": requester.String(),
		"addressee_id": addressee.String(),
		"status":       "PENDING",
	}, nil)
	require.NoError(t, err)
	return change
}

func TestNotificationsHandler_ListAndClear(t *testing.T) {
	user, alice := uuid.New(), uuid.New()
	f := newNotificationFixture(t, map[uuid.UUID]string{alice: "alice"})

	w := httptest.NewRecorder()
	f.handler.List(w, newRequest(t, http.MethodGet, "", "/api/v1/notifications", "", user))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())

	f.hub.Publish(requestChange(t, alice, user))

	var resp notificationListResponse
	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		f.handler.List(w, newRequest(t, http.MethodGet, "", "/api/v1/notifications", "", user))
		resp = notificationListResponse{}
		return json.NewDecoder(w.Body).Decode(&resp) == nil && len(resp.Items) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "alice sent you a partnership request.", resp.Items[0].Message)
	assert.Equal(t, notifications.LinkCommitments, resp.Items[0].Link)

	w = httptest.NewRecorder()
	f.handler.Clear(w, newRequest(t, http.MethodDelete, "", "/api/v1/notifications", "", user))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	f.handler.List(w, newRequest(t, http.MethodGet, "", "/api/v1/notifications", "", user))
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
}

func TestNotificationsHandler_ListOldestFirst(t *testing.T) {
	user, alice, bob := uuid.New(), uuid.New(), uuid.New()
	f := newNotificationFixture(t, map[uuid.UUID]string{alice: "alice", bob: "bob"})

	w := httptest.NewRecorder()
	f.handler.List(w, newRequest(t, http.MethodGet, "", "/api/v1/notifications", "", user))
	require.Equal(t, http.StatusOK, w.Code)

	f.hub.Publish(requestChange(t, alice, user))
	f.hub.Publish(requestChange(t, bob, user))

	var resp notificationListResponse
	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		f.handler.List(w, newRequest(t, http.MethodGet, "", "/api/v1/notifications", "", user))
		resp = notificationListResponse{}
		return json.NewDecoder(w.Body).Decode(&resp) == nil && len(resp.Items) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "alice sent you a partnership request.", resp.Items[0].Message)
	assert.Equal(t, "bob sent you a partnership request.", resp.Items[1].Message)
}

func TestNotificationsHandler_RequiresAuth(t *testing.T) {
	f := newNotificationFixture(t, nil)

	w := httptest.NewRecorder()
	f.handler.List(w, newRequest(t, http.MethodGet, "", "/api/v1/notifications", "", uuid.Nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, f.manager.Len())
}

func TestNotificationsHandler_Stream(t *testing.T) {
	user, alice := uuid.New(), uuid.New()
	f := newNotificationFixture(t, map[uuid.UUID]string{alice: "alice"})
	srv := streamServer(t, "GET /api/v1/notifications/stream", f.handler.Stream, user)

	resp, err := http.Get(srv.URL + "/api/v1/notifications/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The session exists once the stream headers are flushed.
	require.Equal(t, 1, f.manager.Len())
	f.hub.Publish(requestChange(t, alice, user))

	frame := readFrame(t, bufio.NewReader(resp.Body))
	assert.Equal(t, "notification", frame.event)
	assert.NotEmpty(t, frame.id)

	var n notifications.Notification
	require.NoError(t, json.Unmarshal([]byte(frame.data), &n))
	assert.Equal(t, "alice sent you a partnership request.", n.Message)
	assert.Equal(t, frame.id, n.ID)
}

func TestNotificationsHandler_StreamEndsWithSession(t *testing.T) {
	user := uuid.New()
	f := newNotificationFixture(t, nil)
	srv := streamServer(t, "GET /api/v1/notifications/stream", f.handler.Stream, user)

	resp, err := http.Get(srv.URL + "/api/v1/notifications/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f.manager.End(user)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = bufio.NewReader(resp.Body).ReadString('\x00')
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after the session was ended")
	}
}

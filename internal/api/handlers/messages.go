package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/domain/chat"
	"github.com/Togather-Foundation/skillexchange/internal/realtime"
	"github.com/rs/zerolog"
)

type MessagesHandler struct {
	Chat      ChatService
	Heartbeat time.Duration
	Env       string
}

func NewMessagesHandler(service ChatService, heartbeat time.Duration, env string) *MessagesHandler {
	return &MessagesHandler{Chat: service, Heartbeat: heartbeat, Env: env}
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type messageListResponse struct {
	Items []chat.Message `json:"items"`
}

func (h *MessagesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	commitmentID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	msgs, err := h.Chat.List(r.Context(), commitmentID, userID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, messageListResponse{Items: msgs})
}

func (h *MessagesHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	commitmentID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	msg, err := h.Chat.Send(r.Context(), commitmentID, userID, req.Content)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Stream pushes the partner's new messages as "message" events.
func (h *MessagesHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	commitmentID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	msgs, err := h.Chat.Stream(ctx, commitmentID, userID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	sse, err := realtime.NewSSEWriter(w)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("message stream")
		return
	}
	err = realtime.Pump(ctx, sse, msgs, h.Heartbeat, func(m chat.Message) realtime.Event {
		return realtime.Event{Name: "message", ID: m.ID.String(), Data: m}
	})
	if err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("message stream closed")
	}
}

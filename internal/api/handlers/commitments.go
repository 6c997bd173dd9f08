package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/domain/commitments"
	"github.com/google/uuid"
)

type CommitmentsHandler struct {
	Commitments CommitmentService
	Env         string
}

func NewCommitmentsHandler(service CommitmentService, env string) *CommitmentsHandler {
	return &CommitmentsHandler{Commitments: service, Env: env}
}

type commitmentResponse struct {
	ID                uuid.UUID  `json:"id"`
	RequesterID       uuid.UUID  `json:"requester_id"`
	RequesterUsername string     `json:"requester_username"`
	AddresseeID       uuid.UUID  `json:"addressee_id"`
	AddresseeUsername string     `json:"addressee_username"`
	PartnerID         *uuid.UUID `json:"partner_id,omitempty"`
	PartnerUsername   string     `json:"partner_username,omitempty"`
	Goal              string     `json:"goal"`
	Status            string     `json:"status"`
	Phase             string     `json:"phase"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type commitmentListResponse struct {
	Received []commitmentResponse `json:"received"`
	Sent     []commitmentResponse `json:"sent"`
}

type requestCommitmentRequest struct {
	AddresseeID string `json:"addressee_id"`
	Goal        string `json:"goal"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// List returns the caller's received and sent commitments.
func (h *CommitmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	received, err := h.Commitments.ListReceived(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	sent, err := h.Commitments.ListSent(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, commitmentListResponse{
		Received: toCommitmentResponses(received, userID),
		Sent:     toCommitmentResponses(sent, userID),
	})
}

func (h *CommitmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	var req requestCommitmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	addresseeID, err := uuid.Parse(strings.TrimSpace(req.AddresseeID))
	if err != nil {
		writeError(w, r, commitments.ValidationError{Field: "addressee_id", Message: "must be a valid id"}, h.Env)
		return
	}
	commitment, err := h.Commitments.Request(r.Context(), commitments.RequestParams{
		RequesterID: userID,
		AddresseeID: addresseeID,
		Goal:        req.Goal,
	})
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, toCommitmentResponse(*commitment, userID))
}

func (h *CommitmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	commitment, err := h.Commitments.Get(r.Context(), id, userID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentResponse(*commitment, userID))
}

// UpdateStatus moves a commitment along its lifecycle. The addressee sends
// ACTIVE or REJECTED; either party sends COMPLETED.
func (h *CommitmentsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	to, err := commitments.ParseStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	commitment, err := h.Commitments.Respond(r.Context(), id, userID, to)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toCommitmentResponse(*commitment, userID))
}

func toCommitmentResponses(items []commitments.Commitment, viewer uuid.UUID) []commitmentResponse {
	out := make([]commitmentResponse, 0, len(items))
	for _, c := range items {
		out = append(out, toCommitmentResponse(c, viewer))
	}
	return out
}

func toCommitmentResponse(c commitments.Commitment, viewer uuid.UUID) commitmentResponse {
	resp := commitmentResponse{
		ID:                c.ID,
		RequesterID:       c.RequesterID,
		RequesterUsername: c.RequesterUsername,
		AddresseeID:       c.AddresseeID,
		AddresseeUsername: c.AddresseeUsername,
		Goal:              c.Goal,
		Status:            string(c.Status),
		Phase:             string(c.Phase()),
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
	if partner, ok := c.Partner(viewer); ok {
		resp.PartnerID = &partner
		resp.PartnerUsername = c.RequesterUsername
		if partner == c.AddresseeID {
			resp.PartnerUsername = c.AddresseeUsername
		}
	}
	return resp
}

package handlers

import (
	"net/http"

	"github.com/Togather-Foundation/skillexchange/internal/domain/reviews"
)

type ReviewsHandler struct {
	Reviews ReviewService
	Env     string
}

func NewReviewsHandler(service ReviewService, env string) *ReviewsHandler {
	return &ReviewsHandler{Reviews: service, Env: env}
}

type createReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type reviewListResponse struct {
	Items   []reviews.Review `json:"items"`
	Summary reviews.Summary  `json:"summary"`
}

// Create reviews the caller's partner on a completed commitment.
func (h *ReviewsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	commitmentID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	var req createReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	review, err := h.Reviews.Create(r.Context(), commitmentID, userID, req.Rating, req.Comment)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

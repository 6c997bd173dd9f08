package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/api/pagination"
	"github.com/Togather-Foundation/skillexchange/internal/api/problem"
	"github.com/Togather-Foundation/skillexchange/internal/domain/profiles"
	"github.com/google/uuid"
)

type ProfilesHandler struct {
	Profiles ProfileService
	Reviews  ReviewService
	Env      string
}

func NewProfilesHandler(profileService ProfileService, reviewService ReviewService, env string) *ProfilesHandler {
	return &ProfilesHandler{Profiles: profileService, Reviews: reviewService, Env: env}
}

type skillResponse struct {
	ID       uuid.UUID `json:"id"`
	SkillID  uuid.UUID `json:"skill_id"`
	Name     string    `json:"name"`
	Category string    `json:"category,omitempty"`
	Type     string    `json:"type"`
}

type ratingResponse struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

type profileResponse struct {
	ID        uuid.UUID       `json:"id"`
	Username  string          `json:"username"`
	Bio       string          `json:"bio"`
	Teachable []skillResponse `json:"teachable"`
	Learnable []skillResponse `json:"learnable"`
	Rating    ratingResponse  `json:"rating"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type profileListResponse struct {
	Items      []profileResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type updateProfileRequest struct {
	Username string `json:"username"`
	Bio      string `json:"bio"`
}

type usernameResponse struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
}

type catalogSkill struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type catalogCategory struct {
	Category string         `json:"category"`
	Skills   []catalogSkill `json:"skills"`
}

type catalogResponse struct {
	Categories []catalogCategory `json:"categories"`
}

type addSkillRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (h *ProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := pagination.ParseLimit(query)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	filters := profiles.Filters{Term: strings.TrimSpace(query.Get("q"))}
	if raw := strings.TrimSpace(query.Get("type")); raw != "" {
		skillType, ok := profiles.ParseSkillType(strings.ToUpper(raw))
		if !ok {
			writeError(w, r, profiles.ValidationError{Field: "type", Message: "must be TEACHABLE or LEARNABLE"}, h.Env)
			return
		}
		filters.Type = skillType
	}

	result, err := h.Profiles.List(r.Context(), filters, profiles.Pagination{
		Limit: limit,
		After: strings.TrimSpace(query.Get("after")),
	})
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	items := make([]profileResponse, 0, len(result.Profiles))
	for _, p := range result.Profiles {
		items = append(items, toProfileResponse(p))
	}
	writeJSON(w, http.StatusOK, profileListResponse{Items: items, NextCursor: result.NextCursor})
}

func (h *ProfilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	profile, err := h.Profiles.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(*profile))
}

// Update edits the caller's own profile.
func (h *ProfilesHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	if id != userID {
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", problem.ErrForbidden, h.Env,
			problem.WithDetail("profiles can only be edited by their owner"))
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	profile, err := h.Profiles.Update(r.Context(), id, profiles.UpdateParams{Username: req.Username, Bio: req.Bio})
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(*profile))
}

func (h *ProfilesHandler) UsernameAvailable(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PathValue("username"))
	available, err := h.Profiles.UsernameAvailable(r.Context(), username)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, usernameResponse{Username: username, Available: available})
}

func (h *ProfilesHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	if _, err := h.Profiles.Get(r.Context(), id); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	items, err := h.Reviews.ListForProfile(r.Context(), id)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	summary, err := h.Reviews.Summary(r.Context(), id)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, reviewListResponse{Items: items, Summary: summary})
}

func (h *ProfilesHandler) SkillCatalog(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Profiles.SkillCatalog(r.Context())
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	resp := catalogResponse{Categories: make([]catalogCategory, 0, len(groups))}
	for _, group := range groups {
		category := catalogCategory{Category: group.Category, Skills: make([]catalogSkill, 0, len(group.Skills))}
		for _, skill := range group.Skills {
			category.Skills = append(category.Skills, catalogSkill{ID: skill.ID, Name: skill.Name})
		}
		resp.Categories = append(resp.Categories, category)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ProfilesHandler) AddSkill(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	var req addSkillRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	skillType, valid := profiles.ParseSkillType(strings.ToUpper(strings.TrimSpace(req.Type)))
	if !valid {
		writeError(w, r, profiles.ValidationError{Field: "type", Message: "must be TEACHABLE or LEARNABLE"}, h.Env)
		return
	}
	skill, err := h.Profiles.AddSkill(r.Context(), userID, req.Name, skillType)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, toSkillResponse(*skill))
}

func (h *ProfilesHandler) RemoveSkill(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	if err := h.Profiles.RemoveSkill(r.Context(), userID, id); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toProfileResponse(p profiles.Profile) profileResponse {
	return profileResponse{
		ID:        p.ID,
		Username:  p.Username,
		Bio:       p.Bio,
		Teachable: toSkillResponses(p.Teachable()),
		Learnable: toSkillResponses(p.Learnable()),
		Rating:    ratingResponse{Count: p.Rating.Count, Average: p.Rating.Average},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toSkillResponses(skills []profiles.ProfileSkill) []skillResponse {
	out := make([]skillResponse, 0, len(skills))
	for _, s := range skills {
		out = append(out, toSkillResponse(s))
	}
	return out
}

func toSkillResponse(s profiles.ProfileSkill) skillResponse {
	return skillResponse{
		ID:       s.ID,
		SkillID:  s.SkillID,
		Name:     s.Name,
		Category: s.Category,
		Type:     string(s.Type),
	}
}

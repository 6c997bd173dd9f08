package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/api/middleware"
	"github.com/Togather-Foundation/skillexchange/internal/audit"
	"github.com/Togather-Foundation/skillexchange/internal/domain/accounts"
	"github.com/google/uuid"
)

type AuthHandler struct {
	Accounts AccountService
	Audit    *audit.Logger
	Env      string
}

// NewAuthHandler builds the auth endpoints. auditLog may be nil.
func NewAuthHandler(service AccountService, auditLog *audit.Logger, env string) *AuthHandler {
	return &AuthHandler{Accounts: service, Audit: auditLog, Env: env}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type accountResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User     accounts.User `json:"user"`
	Username string        `json:"username,omitempty"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	account, err := h.Accounts.SignUp(r.Context(), accounts.SignUpParams{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	})
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	h.Audit.Record(r, "account.sign_up", account.ID, audit.StatusSuccess, nil)
	writeJSON(w, http.StatusCreated, accountResponse{
		ID:        account.ID,
		Email:     account.Email,
		Username:  req.Username,
		CreatedAt: account.CreatedAt,
	})
}

// Login signs in by username.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	session, err := h.Accounts.LoginWithUsername(r.Context(), req.Username, req.Password)
	h.auditLogin(r, "username", session, err)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Token signs in by email.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	session, err := h.Accounts.SignIn(r.Context(), req.Email, req.Password)
	h.auditLogin(r, "email", session, err)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	token := middleware.Token(r.Context())
	if token == "" {
		writeError(w, r, accounts.ErrInvalidSession, h.Env)
		return
	}
	info, err := h.Accounts.CurrentSession(r.Context(), token)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: info.User, Username: info.Username})
}

func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	if err := h.Accounts.UpdatePassword(r.Context(), userID, req.Password); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	h.Audit.Record(r, "account.password_update", userID, audit.StatusSuccess, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.Env)
	if !ok {
		return
	}
	h.Accounts.SignOut(r.Context(), userID)
	h.Audit.Record(r, "account.logout", userID, audit.StatusSuccess, nil)
	w.WriteHeader(http.StatusNoContent)
}

// auditLogin records credential outcomes only; malformed requests are not
// login attempts.
func (h *AuthHandler) auditLogin(r *http.Request, method string, session *accounts.Session, err error) {
	details := map[string]string{"method": method}
	switch {
	case err == nil:
		h.Audit.Record(r, "account.login", session.User.ID, audit.StatusSuccess, details)
	case errors.Is(err, accounts.ErrInvalidCredentials), errors.Is(err, accounts.ErrInvalidLogin):
		h.Audit.Record(r, "account.login", uuid.Nil, audit.StatusFailure, details)
	}
}

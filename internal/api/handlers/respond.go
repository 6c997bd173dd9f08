package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/skillexchange/internal/api/middleware"
	"github.com/Togather-Foundation/skillexchange/internal/api/pagination"
	"github.com/Togather-Foundation/skillexchange/internal/api/problem"
	"github.com/Togather-Foundation/skillexchange/internal/auth"
	"github.com/Togather-Foundation/skillexchange/internal/domain/accounts"
	"github.com/Togather-Foundation/skillexchange/internal/domain/chat"
	"github.com/Togather-Foundation/skillexchange/internal/domain/commitments"
	"github.com/Togather-Foundation/skillexchange/internal/domain/profiles"
	"github.com/Togather-Foundation/skillexchange/internal/domain/reviews"
	"github.com/Togather-Foundation/skillexchange/internal/notifications"
	"github.com/google/uuid"
)

const contentTypeJSON = "application/json"

var (
	errInvalidJSON = errors.New("request body must be valid JSON")
	errInvalidID   = errors.New("invalid id")
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errInvalidJSON
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return errInvalidJSON
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errInvalidJSON
	}
	return nil
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(r.PathValue(key)))
	if err != nil {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}

// requireUser returns the authenticated user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request, env string) (uuid.UUID, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", problem.ErrUnauthorized, env)
		return uuid.Nil, false
	}
	return userID, true
}

// fieldError is a domain validation failure flattened to one field.
type fieldError struct {
	field   string
	message string
}

func asFieldError(err error) (fieldError, bool) {
	var (
		accountErr    accounts.ValidationError
		profileErr    profiles.ValidationError
		commitmentErr commitments.ValidationError
	)
	switch {
	case errors.As(err, &accountErr):
		return fieldError{accountErr.Field, accountErr.Message}, true
	case errors.As(err, &profileErr):
		return fieldError{profileErr.Field, profileErr.Message}, true
	case errors.As(err, &commitmentErr):
		return fieldError{commitmentErr.Field, commitmentErr.Message}, true
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrPasswordTooLong):
		return fieldError{"password", err.Error()}, true
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrMessageTooLong):
		return fieldError{"content", err.Error()}, true
	case errors.Is(err, reviews.ErrInvalidRating):
		return fieldError{"rating", err.Error()}, true
	case errors.Is(err, reviews.ErrCommentTooLong):
		return fieldError{"comment", err.Error()}, true
	}
	return fieldError{}, false
}

// writeError maps a domain error onto a problem document. Client errors
// carry the domain message as detail; anything unrecognised is a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error, env string) {
	if fe, ok := asFieldError(err); ok {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation failed", err, env,
			problem.WithDetail(err.Error()),
			problem.WithErrors(map[string]any{fe.field: fe.message}))
		return
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Request body too large", err, env)
		return
	}

	var limitErr pagination.LimitError
	if errors.As(err, &limitErr) {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Validation failed", err, env,
			problem.WithDetail(err.Error()),
			problem.WithErrors(map[string]any{"limit": limitErr.Message}))
		return
	}

	status, typ, title := classify(err)
	if accounts.IsLoginBridgeError(err) {
		problem.Write(w, r, status, typ, title, err, env,
			problem.WithDetail(err.Error()),
			problem.WithErrorMessage(err.Error()))
		return
	}
	if status >= http.StatusInternalServerError {
		problem.Write(w, r, status, typ, title, err, env)
		return
	}
	problem.Write(w, r, status, typ, title, err, env, problem.WithDetail(err.Error()))
}

func classify(err error) (int, string, string) {
	switch {
	case accounts.IsLoginBridgeError(err),
		errors.Is(err, accounts.ErrInvalidLogin),
		errors.Is(err, errInvalidJSON),
		errors.Is(err, errInvalidID),
		errors.Is(err, pagination.ErrInvalidCursor),
		errors.Is(err, commitments.ErrSelfRequest),
		errors.Is(err, commitments.ErrInvalidStatus):
		return http.StatusBadRequest, problem.TypeValidation, "Bad request"

	case errors.Is(err, accounts.ErrInvalidSession):
		return http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized"

	case errors.Is(err, commitments.ErrNotParticipant),
		errors.Is(err, commitments.ErrForbidden),
		errors.Is(err, profiles.ErrForbidden),
		errors.Is(err, problem.ErrForbidden):
		return http.StatusForbidden, problem.TypeForbidden, "Forbidden"

	case errors.Is(err, accounts.ErrNotFound),
		errors.Is(err, profiles.ErrNotFound),
		errors.Is(err, profiles.ErrSkillNotFound),
		errors.Is(err, commitments.ErrNotFound),
		errors.Is(err, commitments.ErrAddresseeNotFound):
		return http.StatusNotFound, problem.TypeNotFound, "Not found"

	case errors.Is(err, accounts.ErrUsernameTaken),
		errors.Is(err, accounts.ErrEmailTaken),
		errors.Is(err, profiles.ErrUsernameTaken),
		errors.Is(err, profiles.ErrSkillAlreadyAdded),
		errors.Is(err, commitments.ErrDuplicateCommitment),
		errors.Is(err, commitments.ErrInvalidTransition),
		errors.Is(err, commitments.ErrStatusConflict),
		errors.Is(err, chat.ErrChatClosed),
		errors.Is(err, reviews.ErrAlreadyReviewed),
		errors.Is(err, reviews.ErrNotCompleted):
		return http.StatusConflict, problem.TypeConflict, "Conflict"

	case errors.Is(err, chat.ErrStreamUnavailable),
		errors.Is(err, notifications.ErrSessionClosed):
		return http.StatusServiceUnavailable, problem.TypeUnavailable, "Service unavailable"
	}
	return http.StatusInternalServerError, problem.TypeServerError, "Internal server error"
}

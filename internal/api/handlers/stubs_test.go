package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Togather-Foundation/skillexchange/internal/api/middleware"
	"github.com/Togather-Foundation/skillexchange/internal/api/problem"
	"github.com/Togather-Foundation/skillexchange/internal/domain/accounts"
	"github.com/Togather-Foundation/skillexchange/internal/domain/chat"
	"github.com/Togather-Foundation/skillexchange/internal/domain/commitments"
	"github.com/Togather-Foundation/skillexchange/internal/domain/profiles"
	"github.com/Togather-Foundation/skillexchange/internal/domain/reviews"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testEnv = "test"

// newRequest builds a request whose path values are set from pattern, as
// the ServeMux would.
func newRequest(t *testing.T, method, pattern, target, body string, userID uuid.UUID) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if pattern != "" {
		mux := http.NewServeMux()
		var matched *http.Request
		mux.HandleFunc(pattern, func(_ http.ResponseWriter, r *http.Request) { matched = r })
		mux.ServeHTTP(httptest.NewRecorder(), req)
		require.NotNil(t, matched, "pattern %q did not match %q", pattern, target)
		req = matched
	}
	if userID != uuid.Nil {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	return req
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) problem.ProblemDetails {
	t.Helper()
	require.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p problem.ProblemDetails
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	return p
}

type stubAccounts struct {
	signUp    func(accounts.SignUpParams) (*accounts.Account, error)
	login     func(username, password string) (*accounts.Session, error)
	signIn    func(email, password string) (*accounts.Session, error)
	session   func(token string) (*accounts.SessionInfo, error)
	password  func(userID uuid.UUID, password string) error
	signedOut []uuid.UUID
}

func (s *stubAccounts) SignUp(_ context.Context, params accounts.SignUpParams) (*accounts.Account, error) {
	return s.signUp(params)
}

func (s *stubAccounts) LoginWithUsername(_ context.Context, username, password string) (*accounts.Session, error) {
	return s.login(username, password)
}

func (s *stubAccounts) SignIn(_ context.Context, email, password string) (*accounts.Session, error) {
	return s.signIn(email, password)
}

func (s *stubAccounts) CurrentSession(_ context.Context, token string) (*accounts.SessionInfo, error) {
	return s.session(token)
}

func (s *stubAccounts) UpdatePassword(_ context.Context, userID uuid.UUID, password string) error {
	return s.password(userID, password)
}

func (s *stubAccounts) SignOut(_ context.Context, userID uuid.UUID) {
	s.signedOut = append(s.signedOut, userID)
}

type stubProfiles struct {
	profiles  map[uuid.UUID]*profiles.Profile
	available map[string]bool
	catalog   []profiles.CategoryGroup
	listErr   error
	lastList  struct {
		filters    profiles.Filters
		pagination profiles.Pagination
	}
	added   []profiles.ProfileSkill
	removed []uuid.UUID
	err     error
}

func (s *stubProfiles) Get(_ context.Context, id uuid.UUID) (*profiles.Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return nil, profiles.ErrNotFound
	}
	return p, nil
}

func (s *stubProfiles) Update(_ context.Context, id uuid.UUID, params profiles.UpdateParams) (*profiles.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, profiles.ErrNotFound
	}
	p.Username = params.Username
	p.Bio = params.Bio
	return p, nil
}

func (s *stubProfiles) UsernameAvailable(_ context.Context, username string) (bool, error) {
	return s.available[username], nil
}

func (s *stubProfiles) List(_ context.Context, filters profiles.Filters, pagination profiles.Pagination) (profiles.ListResult, error) {
	s.lastList.filters = filters
	s.lastList.pagination = pagination
	if s.listErr != nil {
		return profiles.ListResult{}, s.listErr
	}
	var out profiles.ListResult
	for _, p := range s.profiles {
		out.Profiles = append(out.Profiles, *p)
	}
	return out, nil
}

func (s *stubProfiles) SkillCatalog(context.Context) ([]profiles.CategoryGroup, error) {
	return s.catalog, nil
}

func (s *stubProfiles) AddSkill(_ context.Context, profileID uuid.UUID, name string, skillType profiles.SkillType) (*profiles.ProfileSkill, error) {
	if s.err != nil {
		return nil, s.err
	}
	skill := profiles.ProfileSkill{ID: uuid.New(), SkillID: uuid.New(), Name: name, Type: skillType}
	s.added = append(s.added, skill)
	return &skill, nil
}

func (s *stubProfiles) RemoveSkill(_ context.Context, profileID, profileSkillID uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.removed = append(s.removed, profileSkillID)
	return nil
}

type stubCommitments struct {
	items     map[uuid.UUID]*commitments.Commitment
	received  []commitments.Commitment
	sent      []commitments.Commitment
	requested []commitments.RequestParams
	responded []commitments.Status
	err       error
}

func (s *stubCommitments) Request(_ context.Context, params commitments.RequestParams) (*commitments.Commitment, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.requested = append(s.requested, params)
	return &commitments.Commitment{
		ID:          uuid.New(),
		RequesterID: params.RequesterID,
		AddresseeID: params.AddresseeID,
		Goal:        params.Goal,
		Status:      commitments.StatusPending,
	}, nil
}

func (s *stubCommitments) Respond(_ context.Context, id, actorID uuid.UUID, to commitments.Status) (*commitments.Commitment, error) {
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.items[id]
	if !ok {
		return nil, commitments.ErrNotFound
	}
	s.responded = append(s.responded, to)
	c.Status = to
	return c, nil
}

func (s *stubCommitments) Get(_ context.Context, id, viewerID uuid.UUID) (*commitments.Commitment, error) {
	c, ok := s.items[id]
	if !ok {
		return nil, commitments.ErrNotFound
	}
	if !c.IsParticipant(viewerID) {
		return nil, commitments.ErrNotParticipant
	}
	return c, nil
}

func (s *stubCommitments) ListReceived(context.Context, uuid.UUID) ([]commitments.Commitment, error) {
	return s.received, nil
}

func (s *stubCommitments) ListSent(context.Context, uuid.UUID) ([]commitments.Commitment, error) {
	return s.sent, nil
}

type stubChat struct {
	messages []chat.Message
	stream   chan chat.Message
	err      error
}

func (s *stubChat) Send(_ context.Context, commitmentID, senderID uuid.UUID, content string) (*chat.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	msg := chat.Message{ID: uuid.New(), CommitmentID: commitmentID, SenderID: senderID, Content: content}
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *stubChat) List(context.Context, uuid.UUID, uuid.UUID) ([]chat.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.messages, nil
}

func (s *stubChat) Stream(context.Context, uuid.UUID, uuid.UUID) (<-chan chat.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.stream, nil
}

type stubReviews struct {
	items   []reviews.Review
	summary reviews.Summary
	created []reviews.Review
	err     error
}

func (s *stubReviews) Create(_ context.Context, commitmentID, reviewerID uuid.UUID, rating int, comment string) (*reviews.Review, error) {
	if s.err != nil {
		return nil, s.err
	}
	review := reviews.Review{ID: uuid.New(), CommitmentID: commitmentID, ReviewerID: reviewerID, Rating: rating, Comment: comment}
	s.created = append(s.created, review)
	return &review, nil
}

func (s *stubReviews) ListForProfile(context.Context, uuid.UUID) ([]reviews.Review, error) {
	return s.items, nil
}

func (s *stubReviews) Summary(context.Context, uuid.UUID) (reviews.Summary, error) {
	return s.summary, nil
}

// Package accounts owns credentials and sessions. Users sign up with an
// email, a password and a username, and may log in with either their email
// or their username; the username login resolves the profile to its
// account email before checking the password.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/auth"
	"github.com/Togather-Foundation/skillexchange/internal/domain/profiles"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const TokenTypeBearer = "bearer"

type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// Session is the credential returned by a successful sign-in.
type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	ExpiresAt   int64  `json:"expires_at"`
	User        User   `json:"user"`
}

// SessionInfo describes the holder of a valid token. Username is empty when
// the account has no profile.
type SessionInfo struct {
	User     User
	Username string
}

// RealtimeSessions brackets per-user realtime state: Start on sign-in so
// changes are captured from that moment, End on sign-out.
type RealtimeSessions interface {
	Start(userID uuid.UUID) error
	End(userID uuid.UUID)
}

type SignUpParams struct {
	Email    string `validate:"required,email,max=254"`
	Password string
	Username string `validate:"required,min=3,max=30,username"`
}

type Service struct {
	repo       Repository
	tokens     *auth.JWTManager
	sessions   RealtimeSessions
	logger     zerolog.Logger
	validator  *validator.Validate
	bcryptCost int
}

// NewService builds the account service. sessions may be nil.
func NewService(repo Repository, tokens *auth.JWTManager, sessions RealtimeSessions, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		tokens:     tokens,
		sessions:   sessions,
		logger:     logger.With().Str("component", "accounts").Logger(),
		validator:  profiles.NewValidator(),
		bcryptCost: auth.BcryptCost,
	}
}

// SignUp creates an account and its profile. The username is checked first
// so a taken username never leaves an orphaned account behind.
func (s *Service) SignUp(ctx context.Context, params SignUpParams) (*Account, error) {
	params.Email = normalizeEmail(params.Email)
	params.Username = strings.TrimSpace(params.Username)
	if err := s.validator.Struct(params); err != nil {
		return nil, validationError(err)
	}
	if err := auth.ValidatePassword(params.Password); err != nil {
		return nil, err
	}

	taken, err := s.repo.UsernameExists(ctx, params.Username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	exists, err := s.repo.EmailExists(ctx, params.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(params.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.CreateWithProfile(ctx, CreateParams{
		Email:        params.Email,
		PasswordHash: hash,
		Username:     params.Username,
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info().
		Str("account_id", account.ID.String()).
		Str("username", params.Username).
		Msg("account created")
	return account, nil
}

// LoginWithUsername is the username login bridge: username to profile,
// profile to account email, then an email/password sign-in.
func (s *Service) LoginWithUsername(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrCredentialsRequired
	}

	profileID, err := s.repo.ProfileIDByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup profile: %w", err)
	}

	account, err := s.repo.GetByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrMissingEmail
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if strings.TrimSpace(account.Email) == "" {
		return nil, ErrMissingEmail
	}

	if err := auth.CheckPassword(account.PasswordHash, password); err != nil {
		s.logger.Info().Str("profile_id", profileID.String()).Msg("username login rejected")
		return nil, ErrInvalidCredentials
	}
	return s.issue(account)
}

// SignIn authenticates with email and password.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidLogin
	}
	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidLogin
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if err := auth.CheckPassword(account.PasswordHash, password); err != nil {
		return nil, ErrInvalidLogin
	}
	return s.issue(account)
}

// CurrentSession validates token and describes its holder.
func (s *Service) CurrentSession(ctx context.Context, token string) (*SessionInfo, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, ErrInvalidSession
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidSession
	}
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	info := &SessionInfo{User: User{ID: account.ID, Email: account.Email}}
	username, err := s.repo.ProfileUsername(ctx, account.ID)
	switch {
	case err == nil:
		info.Username = username
	case errors.Is(err, ErrProfileNotFound):
	default:
		return nil, fmt.Errorf("lookup profile: %w", err)
	}
	return info, nil
}

func (s *Service) UpdatePassword(ctx context.Context, userID uuid.UUID, password string) error {
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}
	s.logger.Info().Str("account_id", userID.String()).Msg("password updated")
	return nil
}

// SignOut ends the user's notification session, clearing their inbox.
// Tokens are stateless and stay valid until they expire.
func (s *Service) SignOut(ctx context.Context, userID uuid.UUID) {
	if s.sessions != nil {
		s.sessions.End(userID)
	}
	s.logger.Debug().Str("account_id", userID.String()).Msg("signed out")
}

// issue mints a token and starts the realtime session. A session that cannot
// start does not fail the sign-in; the first inbox request retries it.
func (s *Service) issue(account *Account) (*Session, error) {
	token, expiresAt, err := s.tokens.Generate(account.ID.String(), account.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	if s.sessions != nil {
		if err := s.sessions.Start(account.ID); err != nil {
			s.logger.Warn().Err(err).Str("account_id", account.ID.String()).Msg("notification session not started")
		}
	}
	return &Session{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int(time.Until(expiresAt).Round(time.Second).Seconds()),
		ExpiresAt:   expiresAt.Unix(),
		User:        User{ID: account.ID, Email: account.Email},
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return ValidationError{Field: field, Message: "is required"}
	case "email":
		return ValidationError{Field: field, Message: "must be a valid email address"}
	case "min":
		return ValidationError{Field: field, Message: fmt.Sprintf("must be at least %s characters", fe.Param())}
	case "max":
		return ValidationError{Field: field, Message: fmt.Sprintf("must be at most %s characters", fe.Param())}
	case "username":
		return ValidationError{Field: field, Message: "may only contain letters, digits, '_', '-' and '.'"}
	default:
		return ValidationError{Field: field, Message: "is invalid"}
	}
}

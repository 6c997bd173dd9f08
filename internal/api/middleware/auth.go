package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/skillexchange/internal/api/problem"
	"github.com/Togather-Foundation/skillexchange/internal/auth"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AccessTokenParam carries the token for EventSource clients, which cannot
// set an Authorization header.
const AccessTokenParam = "access_token"

type contextKeyAuth string

const (
	claimsKey contextKeyAuth = "claims"
	userIDKey contextKeyAuth = "userID"
	tokenKey  contextKeyAuth = "token"
)

// TokenValidator is satisfied by *auth.JWTManager.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// BearerAuth requires a valid token in the Authorization header.
func BearerAuth(tokens TokenValidator, env string) func(http.Handler) http.Handler {
	return authenticate(tokens, env, false)
}

// StreamAuth is BearerAuth that also accepts the access_token query
// parameter.
func StreamAuth(tokens TokenValidator, env string) func(http.Handler) http.Handler {
	return authenticate(tokens, env, true)
}

func authenticate(tokens TokenValidator, env string, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", problem.ErrUnauthorized, env)
				return
			}

			token, ok := requestToken(r, allowQuery)
			if !ok {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Missing authorization", problem.ErrUnauthorized, env)
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid token", err, env)
				return
			}
			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid token", auth.ErrInvalidToken, env)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, userIDKey, userID)
			ctx = context.WithValue(ctx, tokenKey, token)

			trace.SpanFromContext(ctx).SetAttributes(attribute.String("user_id", userID.String()))
			logger := zerolog.Ctx(ctx).With().Str("user_id", userID.String()).Logger()
			ctx = logger.WithContext(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestToken(r *http.Request, allowQuery bool) (string, bool) {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		token, err := auth.TokenFromHeader(header)
		if err != nil || token == "" {
			return "", false
		}
		return token, true
	}
	if allowQuery {
		if token := strings.TrimSpace(r.URL.Query().Get(AccessTokenParam)); token != "" {
			return token, true
		}
	}
	return "", false
}

// WithUserID stores an authenticated user id, as BearerAuth does.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user, if any.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func Claims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// Token returns the raw token the request authenticated with.
func Token(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

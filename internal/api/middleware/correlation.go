package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/Togather-Foundation/skillexchange/internal/domain/ids"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// Upstream IDs are echoed into logs and headers, so only a conservative
// token alphabet is accepted.
var upstreamRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// CorrelationID tags each request with an ID and a request-scoped logger.
// A well-formed X-Request-ID from a proxy is kept; otherwise a ULID is
// minted so IDs sort by arrival time.
func CorrelationID(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(requestIDHeader)
			if !upstreamRequestID.MatchString(requestID) {
				requestID = newRequestID()
			}
			w.Header().Set(requestIDHeader, requestID)

			reqLogger := logger.With().Str("request_id", requestID).Logger()
			ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
			ctx = reqLogger.WithContext(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newRequestID() string {
	if id, err := ids.NewULID(); err == nil {
		return id
	}
	return uuid.NewString()
}

func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// LoggerFromContext returns the request logger, or a no-op logger outside a
// request.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		noop := zerolog.Nop()
		return &noop
	}
	return logger
}

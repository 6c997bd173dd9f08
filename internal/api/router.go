package api

import (
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/Togather-Foundation/skillexchange/internal/api/handlers"
	"github.com/Togather-Foundation/skillexchange/internal/api/middleware"
	"github.com/Togather-Foundation/skillexchange/internal/api/problem"
	"github.com/Togather-Foundation/skillexchange/internal/audit"
	"github.com/Togather-Foundation/skillexchange/internal/config"
	"github.com/Togather-Foundation/skillexchange/internal/metrics"
	"github.com/Togather-Foundation/skillexchange/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Services are the domain services and infrastructure the router serves.
type Services struct {
	Accounts      handlers.AccountService
	Profiles      handlers.ProfileService
	Commitments   handlers.CommitmentService
	Chat          handlers.ChatService
	Reviews       handlers.ReviewService
	Notifications handlers.NotificationSessions
	Tokens        middleware.TokenValidator
	Health        *handlers.HealthChecker
	SchemaVersion SchemaVersionFunc
}

// BuildInfo is reported by /version.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

func NewRouter(cfg config.Config, logger zerolog.Logger, services Services, build BuildInfo) http.Handler {
	env := cfg.Environment

	authHandler := handlers.NewAuthHandler(services.Accounts, audit.NewLogger(logger), env)
	profilesHandler := handlers.NewProfilesHandler(services.Profiles, services.Reviews, env)
	commitmentsHandler := handlers.NewCommitmentsHandler(services.Commitments, env)
	messagesHandler := handlers.NewMessagesHandler(services.Chat, cfg.Realtime.HeartbeatInterval, env)
	reviewsHandler := handlers.NewReviewsHandler(services.Reviews, env)
	notificationsHandler := handlers.NewNotificationsHandler(services.Notifications, cfg.Realtime.HeartbeatInterval, env)

	// One limiter store shared by every route; each route picks its tier.
	limit := middleware.RateLimit(cfg.RateLimit, env)
	bearer := middleware.BearerAuth(services.Tokens, env)
	stream := middleware.StreamAuth(services.Tokens, env)

	public := func(h http.HandlerFunc) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierPublic)(limit(h))
	}
	login := func(h http.HandlerFunc) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierLogin)(limit(h))
	}
	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierAuthenticated)(bearer(limit(h)))
	}
	streaming := func(h http.HandlerFunc) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierAuthenticated)(stream(limit(h)))
	}

	mux := http.NewServeMux()

	mux.Handle("/{$}", web.IndexHandler())
	mux.Handle("/robots.txt", web.RobotsTxtHandler())
	mux.Handle("/healthz", handlers.Healthz())
	if services.Health != nil {
		mux.Handle("/health", services.Health.Health())
		mux.Handle("/readyz", services.Health.Readyz())
	}
	mux.Handle("/version", VersionHandler(build, services.SchemaVersion))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{Registry: metrics.Registry}))
	mux.Handle("/api/v1/openapi.json", OpenAPIHandler())

	mux.Handle("/api/v1/auth/signup", methodMux(map[string]http.Handler{
		http.MethodPost: public(authHandler.SignUp),
	}))
	mux.Handle("/api/v1/auth/login", methodMux(map[string]http.Handler{
		http.MethodPost: login(authHandler.Login),
	}))
	mux.Handle("/api/v1/auth/token", methodMux(map[string]http.Handler{
		http.MethodPost: login(authHandler.Token),
	}))
	mux.Handle("/api/v1/auth/session", methodMux(map[string]http.Handler{
		http.MethodGet: authed(authHandler.Session),
	}))
	mux.Handle("/api/v1/auth/password", methodMux(map[string]http.Handler{
		http.MethodPut: authed(authHandler.UpdatePassword),
	}))
	mux.Handle("/api/v1/auth/logout", methodMux(map[string]http.Handler{
		http.MethodPost: authed(authHandler.Logout),
	}))

	mux.Handle("/api/v1/usernames/{username}", methodMux(map[string]http.Handler{
		http.MethodGet: public(profilesHandler.UsernameAvailable),
	}))
	mux.Handle("/api/v1/profiles", methodMux(map[string]http.Handler{
		http.MethodGet: public(profilesHandler.List),
	}))
	mux.Handle("/api/v1/profiles/{id}", methodMux(map[string]http.Handler{
		http.MethodGet: public(profilesHandler.Get),
		http.MethodPut: authed(profilesHandler.Update),
	}))
	mux.Handle("/api/v1/profiles/{id}/reviews", methodMux(map[string]http.Handler{
		http.MethodGet: public(profilesHandler.ListReviews),
	}))
	mux.Handle("/api/v1/skills", methodMux(map[string]http.Handler{
		http.MethodGet: public(profilesHandler.SkillCatalog),
	}))
	mux.Handle("/api/v1/me/skills", methodMux(map[string]http.Handler{
		http.MethodPost: authed(profilesHandler.AddSkill),
	}))
	mux.Handle("/api/v1/me/skills/{id}", methodMux(map[string]http.Handler{
		http.MethodDelete: authed(profilesHandler.RemoveSkill),
	}))

	mux.Handle("/api/v1/commitments", methodMux(map[string]http.Handler{
		http.MethodGet:  authed(commitmentsHandler.List),
		http.MethodPost: authed(commitmentsHandler.Create),
	}))
	mux.Handle("/api/v1/commitments/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:   authed(commitmentsHandler.Get),
		http.MethodPatch: authed(commitmentsHandler.UpdateStatus),
	}))
	mux.Handle("/api/v1/commitments/{id}/messages", methodMux(map[string]http.Handler{
		http.MethodGet:  authed(messagesHandler.List),
		http.MethodPost: authed(messagesHandler.Send),
	}))
	mux.Handle("/api/v1/commitments/{id}/messages/stream", methodMux(map[string]http.Handler{
		http.MethodGet: streaming(messagesHandler.Stream),
	}))
	mux.Handle("/api/v1/commitments/{id}/reviews", methodMux(map[string]http.Handler{
		http.MethodPost: authed(reviewsHandler.Create),
	}))

	mux.Handle("/api/v1/notifications", methodMux(map[string]http.Handler{
		http.MethodGet:    authed(notificationsHandler.List),
		http.MethodDelete: authed(notificationsHandler.Clear),
	}))
	mux.Handle("/api/v1/notifications/stream", methodMux(map[string]http.Handler{
		http.MethodGet: streaming(notificationsHandler.Stream),
	}))

	// Tracing sits directly on the mux so it sees the matched pattern.
	var handler http.Handler = middleware.Tracing(mux)
	handler = middleware.RequestSize(middleware.DefaultMaxBodySize)(handler)
	handler = middleware.CORS(cfg.CORS, logger)(handler)
	handler = middleware.SecurityHeaders(strings.HasPrefix(cfg.Server.BaseURL, "https://"))(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.CorrelationID(logger)(handler)
	return handler
}

// methodMux dispatches on r.Method. HEAD falls back to the GET handler;
// other unknown methods get a 405 problem document with an Allow header.
func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler, ok := handlers[r.Method]
		if !ok && r.Method == http.MethodHead {
			handler, ok = handlers[http.MethodGet]
		}
		if ok {
			handler.ServeHTTP(w, r)
			return
		}
		allow := allowedMethods(handlers)
		w.Header().Set("Allow", allow)
		problem.Write(w, r, http.StatusMethodNotAllowed, problem.TypeMethodNotAllowed, "Method not allowed", nil, "",
			problem.WithDetail(r.Method+" is not supported here; allowed: "+allow))
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := slices.Collect(maps.Keys(handlers))
	if _, ok := handlers[http.MethodGet]; ok && !slices.Contains(methods, http.MethodHead) {
		methods = append(methods, http.MethodHead)
	}
	slices.Sort(methods)
	return strings.Join(methods, ", ")
}

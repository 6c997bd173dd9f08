package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/api/problem"
	"github.com/Togather-Foundation/skillexchange/internal/config"
	"github.com/Togather-Foundation/skillexchange/internal/metrics"
	"golang.org/x/time/rate"
)

type RateLimitTier string

const (
	TierPublic        RateLimitTier = "public"
	TierAuthenticated RateLimitTier = "authenticated" // keyed by user id when known
	TierLogin         RateLimitTier = "login"         // 5 attempts per 15 minutes by default
)

const (
	loginWindow  = 15 * time.Minute
	limiterTTL   = 15 * time.Minute
	sweepEvery   = 5 * time.Minute
	publicWindow = time.Minute
)

type rateLimitKey struct{}

var rateLimitTierKey rateLimitKey

func WithRateLimitTier(ctx context.Context, tier RateLimitTier) context.Context {
	return context.WithValue(ctx, rateLimitTierKey, tier)
}

func WithRateLimitTierHandler(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithRateLimitTier(r.Context(), tier)))
		})
	}
}

// RateLimit enforces the tier found in the request context (public when
// unset). One instance shares its buckets across every route it wraps.
// Rejections carry a Retry-After taken from the bucket's own refill time.
func RateLimit(cfg config.RateLimitConfig, env string) func(http.Handler) http.Handler {
	store := newLimiterStore(cfg)
	proxies := parseProxyPrefixes(cfg.TrustedProxyCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
				next.ServeHTTP(w, r)
				return
			}

			tier := TierPublic
			if value, ok := r.Context().Value(rateLimitTierKey).(RateLimitTier); ok {
				tier = value
			}

			key := clientIP(r, proxies)
			if tier == TierAuthenticated {
				if userID, ok := UserID(r.Context()); ok {
					key = "user:" + userID.String()
				}
			}

			limiter := store.limiter(tier, key, time.Now())
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			if wait, ok := take(limiter); !ok {
				metrics.RateLimited.WithLabelValues(string(tier)).Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too many requests", problem.ErrRateLimited, env)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// take consumes a token, or reports how long until one is available without
// consuming it.
func take(limiter *rate.Limiter) (time.Duration, bool) {
	reservation := limiter.Reserve()
	if !reservation.OK() {
		return loginWindow, false
	}
	if wait := reservation.Delay(); wait > 0 {
		reservation.Cancel()
		return wait, false
	}
	return 0, true
}

type limiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	perWindow map[RateLimitTier]int
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	return &limiterStore{
		limiters: make(map[string]*limiterEntry),
		perWindow: map[RateLimitTier]int{
			TierPublic:        cfg.PublicPerMinute,
			TierAuthenticated: cfg.AuthenticatedPerMinute,
			TierLogin:         cfg.LoginPer15Minutes,
		},
		lastSweep: time.Now(),
	}
}

// limiter returns the bucket for tier and key, or nil when the tier is
// unlimited. Idle buckets are swept on the way in.
func (s *limiterStore) limiter(tier RateLimitTier, key string, now time.Time) *rate.Limiter {
	limit := s.perWindow[tier]
	if limit <= 0 {
		return nil
	}
	lookup := string(tier) + ":" + key

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= sweepEvery {
		s.sweep(now)
	}

	if entry, ok := s.limiters[lookup]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	window := publicWindow
	if tier == TierLogin {
		window = loginWindow
	}
	// A full burst of limit requests, then one token every window/limit.
	limiter := rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
	s.limiters[lookup] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

func (s *limiterStore) sweep(now time.Time) {
	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterTTL {
			delete(s.limiters, key)
		}
	}
	s.lastSweep = now
}

func parseProxyPrefixes(cidrs []string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		if prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr)); err == nil {
			prefixes = append(prefixes, prefix.Masked())
		}
	}
	return prefixes
}

func trusted(addr netip.Addr, proxies []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, prefix := range proxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP identifies the caller. Forwarding headers are honoured only when
// the peer is a trusted proxy; X-Forwarded-For is read right to left and the
// first hop outside the trusted ranges wins.
func clientIP(r *http.Request, proxies []netip.Prefix) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	peer, err := netip.ParseAddr(remote)
	if err != nil || !trusted(peer, proxies) {
		return remote
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			addr, err := netip.ParseAddr(hop)
			if err != nil {
				break
			}
			if !trusted(addr, proxies) || i == 0 {
				return addr.String()
			}
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if addr, err := netip.ParseAddr(realIP); err == nil {
			return addr.String()
		}
	}
	return remote
}

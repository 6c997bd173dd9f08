package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/config"
	"github.com/Togather-Foundation/skillexchange/internal/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedRequest(tier RateLimitTier, remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = remoteAddr
	return req.WithContext(WithRateLimitTier(req.Context(), tier))
}

func TestLoginRateLimit_AllowsInitialBurst(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{LoginPer15Minutes: 5}, "test")(okHandler())

	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, limitedRequest(TierLogin, "192.168.1.100:12345"))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i+1, res.Code)
		}
	}
}

func TestLoginRateLimit_BlocksAfterBurst(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{LoginPer15Minutes: 5}, "test")(okHandler())

	for i := 0; i < 5; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), limitedRequest(TierLogin, "192.168.1.101:54321"))
	}

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, limitedRequest(TierLogin, "192.168.1.101:54321"))

	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", res.Code)
	}
	if got := res.Header().Get("Retry-After"); got != "180" {
		t.Errorf("expected Retry-After 180, got %q", got)
	}
	if got := res.Header().Get("Content-Type"); got != "application/problem+json" {
		t.Errorf("expected problem document, got %q", got)
	}
}

func TestLoginRateLimit_PerIPIsolation(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{LoginPer15Minutes: 1}, "test")(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), limitedRequest(TierLogin, "10.0.0.1:1"))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, limitedRequest(TierLogin, "10.0.0.2:1"))
	if res.Code != http.StatusOK {
		t.Fatalf("second client should not share the first client's bucket, got %d", res.Code)
	}
}

func TestLoginRateLimit_RespectsXForwardedForFromTrustedProxy(t *testing.T) {
	cfg := config.RateLimitConfig{LoginPer15Minutes: 1, TrustedProxyCIDRs: []string{"10.0.0.0/8"}}
	handler := RateLimit(cfg, "test")(okHandler())

	first := limitedRequest(TierLogin, "10.1.1.1:1")
	first.Header.Set("X-Forwarded-For", "203.0.113.5")
	handler.ServeHTTP(httptest.NewRecorder(), first)

	second := limitedRequest(TierLogin, "10.1.1.1:1")
	second.Header.Set("X-Forwarded-For", "203.0.113.6")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, second)
	if res.Code != http.StatusOK {
		t.Fatalf("distinct forwarded clients should have separate buckets, got %d", res.Code)
	}
}

func TestLoginRateLimit_DisabledWhenZero(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{}, "test")(okHandler())

	for i := 0; i < 20; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, limitedRequest(TierLogin, "192.168.1.104:1"))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 with limiting disabled, got %d", i+1, res.Code)
		}
	}
}

func TestRateLimit_HealthCheckExempt(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{PublicPerMinute: 1}, "test")(okHandler())

	for _, path := range []string{"/healthz", "/readyz"} {
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != http.StatusOK {
				t.Fatalf("%s request %d: expected 200, got %d", path, i+1, res.Code)
			}
		}
	}
}

func TestTierPublic_DefaultWhenUnset(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{PublicPerMinute: 2}, "test")(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles", nil)
		req.RemoteAddr = "192.168.1.105:1"
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		codes = append(codes, res.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestTierAuthenticated_KeyedByUser(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{AuthenticatedPerMinute: 1}, "test")(okHandler())

	request := func(userID uuid.UUID) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/commitments", nil)
		req.RemoteAddr = "192.168.1.106:1"
		ctx := WithRateLimitTier(req.Context(), TierAuthenticated)
		ctx = WithUserID(ctx, userID)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req.WithContext(ctx))
		return res.Code
	}

	alice, bob := uuid.New(), uuid.New()
	if code := request(alice); code != http.StatusOK {
		t.Fatalf("alice first request: got %d", code)
	}
	if code := request(bob); code != http.StatusOK {
		t.Fatalf("bob behind the same IP should have his own bucket, got %d", code)
	}
	if code := request(alice); code != http.StatusTooManyRequests {
		t.Fatalf("alice second request: expected 429, got %d", code)
	}
}

func TestClientKey_IgnoresForwardedFromUntrustedSource(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.1")

	if got := clientIP(req, nil); got != "198.51.100.7" {
		t.Errorf("expected remote address, got %s", got)
	}
}

func TestClientKey_FallsBackToXRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("X-Real-IP", "203.0.113.9")

	if got := clientIP(req, parseProxyPrefixes([]string{"10.0.0.0/8"})); got != "203.0.113.9" {
		t.Errorf("expected X-Real-IP, got %s", got)
	}
}

func TestClientIP_ForwardedChainSkipsTrustedHops(t *testing.T) {
	proxies := parseProxyPrefixes([]string{"10.0.0.0/8", " 192.168.0.0/16 ", "not-a-cidr"})
	require.Len(t, proxies, 2)

	tests := []struct {
		name      string
		forwarded string
		want      string
	}{
		{name: "client then proxies", forwarded: "203.0.113.4, 192.168.3.3, 10.2.2.2", want: "203.0.113.4"},
		{name: "spoofed leftmost ignored", forwarded: "1.2.3.4, 198.51.100.20, 10.2.2.2", want: "198.51.100.20"},
		{name: "all trusted uses leftmost", forwarded: "10.9.9.9, 10.2.2.2", want: "10.9.9.9"},
		{name: "garbage falls back to peer", forwarded: "unknown", want: "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.1:4000"
			req.Header.Set("X-Forwarded-For", tt.forwarded)
			assert.Equal(t, tt.want, clientIP(req, proxies))
		})
	}
}

func TestRateLimit_RetryAfterFollowsRefill(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{PublicPerMinute: 2}, "test")(okHandler())
	before := testutil.ToFloat64(metrics.RateLimited.WithLabelValues(string(TierPublic)))

	var res *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/skills", nil)
		req.RemoteAddr = "192.168.1.107:1"
		res = httptest.NewRecorder()
		handler.ServeHTTP(res, req)
	}

	require.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.Equal(t, "30", res.Header().Get("Retry-After"))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimited.WithLabelValues(string(TierPublic))))
}

func TestLimiterStore_SweepsIdleBuckets(t *testing.T) {
	store := newLimiterStore(config.RateLimitConfig{PublicPerMinute: 10})
	start := time.Now()

	first := store.limiter(TierPublic, "198.51.100.1", start)
	require.NotNil(t, first)
	store.limiter(TierPublic, "198.51.100.2", start.Add(limiterTTL))
	require.Len(t, store.limiters, 2)

	// The first bucket has been idle past the TTL by the next sweep.
	store.limiter(TierPublic, "198.51.100.2", start.Add(limiterTTL+sweepEvery+time.Second))
	assert.Len(t, store.limiters, 1)
	assert.NotSame(t, first, store.limiter(TierPublic, "198.51.100.1", start.Add(limiterTTL+sweepEvery+time.Second)))
}

func TestWithRateLimitTierHandler_SetsContextValue(t *testing.T) {
	res := httptest.NewRecorder()

	handler := WithRateLimitTierHandler(TierLogin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier, ok := r.Context().Value(rateLimitTierKey).(RateLimitTier)
		if !ok || tier != TierLogin {
			t.Errorf("expected TierLogin, got %v", tier)
		}
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("handler failed with status %d", res.Code)
	}
}

func BenchmarkRateLimit_Allow(b *testing.B) {
	handler := RateLimit(config.RateLimitConfig{PublicPerMinute: 1000000}, "test")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles", nil)
	req.RemoteAddr = "192.168.1.100:12345"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}

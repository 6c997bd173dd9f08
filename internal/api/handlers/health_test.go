package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type fakeListener struct{ connected bool }

func (f fakeListener) Connected() bool { return f.connected }

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthCheck {
	t.Helper()
	var response HealthCheck
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestHealthCheck_AllHealthy(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupTestDB(t, ctx)
	defer cleanup()
	markMigrated(t, ctx, pool, false)

	checker := NewHealthChecker(pool, nil, fakeListener{connected: true}, "0.1.0", "test-commit")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	checker.Health().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	response := decodeHealth(t, w)
	// degraded because the job queue is not running in this test
	assert.Equal(t, "degraded", response.Status)
	assert.Equal(t, "0.1.0", response.Version)
	assert.Equal(t, "test-commit", response.GitCommit)
	_, err := time.Parse(time.RFC3339, response.Timestamp)
	assert.NoError(t, err)

	assert.Equal(t, "pass", response.Checks["database"].Status)
	assert.Equal(t, "pass", response.Checks["migrations"].Status)
	assert.Equal(t, "warn", response.Checks["job_queue"].Status)
	assert.Equal(t, "pass", response.Checks["realtime"].Status)
}

func TestHealthCheck_DatabaseFailure(t *testing.T) {
	checker := NewHealthChecker(nil, nil, nil, "0.1.0", "test-commit")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	checker.Health().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	response := decodeHealth(t, w)
	assert.Equal(t, "unhealthy", response.Status)
	assert.Equal(t, "fail", response.Checks["database"].Status)

	migCheck := response.Checks["migrations"]
	assert.Equal(t, "fail", migCheck.Status)
	assert.Contains(t, migCheck.Message, "Database pool not initialized")
}

func TestHealthCheck_ShuttingDown(t *testing.T) {
	checker := NewHealthChecker(nil, nil, nil, "0.1.0", "test-commit")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/health", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	checker.Health().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "shutting_down")
}

func TestHealthCheck_RealtimeCheck(t *testing.T) {
	tests := []struct {
		name     string
		listener ChangeListener
		want     string
	}{
		{name: "not running", listener: nil, want: "warn"},
		{name: "reconnecting", listener: fakeListener{connected: false}, want: "warn"},
		{name: "connected", listener: fakeListener{connected: true}, want: "pass"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker(nil, nil, tt.listener, "", "")
			assert.Equal(t, tt.want, checker.checkRealtime().Status)
		})
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name           string
		checks         map[string]CheckResult
		expectedStatus string
		expectedCode   int
	}{
		{
			name:           "all pass",
			checks:         map[string]CheckResult{"db": {Status: "pass"}, "realtime": {Status: "pass"}},
			expectedStatus: "healthy",
			expectedCode:   http.StatusOK,
		},
		{
			name:           "one warn",
			checks:         map[string]CheckResult{"db": {Status: "pass"}, "realtime": {Status: "warn"}},
			expectedStatus: "degraded",
			expectedCode:   http.StatusOK,
		},
		{
			name:           "one fail",
			checks:         map[string]CheckResult{"db": {Status: "pass"}, "realtime": {Status: "fail"}},
			expectedStatus: "unhealthy",
			expectedCode:   http.StatusServiceUnavailable,
		},
		{
			name:           "warn and fail",
			checks:         map[string]CheckResult{"db": {Status: "warn"}, "realtime": {Status: "fail"}},
			expectedStatus: "unhealthy",
			expectedCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := summarize(tt.checks)
			assert.Equal(t, tt.expectedStatus, status)
			assert.Equal(t, tt.expectedCode, code)
		})
	}
}

func TestHealthz(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	Healthz().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response healthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "ok", response.Status)
}

func TestReadyz_DatabaseUnavailable(t *testing.T) {
	checker := NewHealthChecker(nil, nil, fakeListener{connected: true}, "", "")

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	checker.Readyz().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var response healthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "database_unavailable", response.Status)
}

func TestReadyz(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupTestDB(t, ctx)
	defer cleanup()

	t.Run("listener down", func(t *testing.T) {
		checker := NewHealthChecker(pool, nil, fakeListener{connected: false}, "", "")
		w := httptest.NewRecorder()
		checker.Readyz().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "realtime_unavailable")
	})

	t.Run("ready", func(t *testing.T) {
		checker := NewHealthChecker(pool, nil, fakeListener{connected: true}, "", "")
		w := httptest.NewRecorder()
		checker.Readyz().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ready")
	})
}

// TestHealthCheck_MigrationVersionValidation covers clean, dirty and
// missing migration state.
func TestHealthCheck_MigrationVersionValidation(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupTestDB(t, ctx)
	defer cleanup()

	tests := []struct {
		name           string
		setupMigration func(t *testing.T)
		expectedStatus string
		expectedMsg    string
	}{
		{
			name:           "clean migrations pass",
			setupMigration: func(t *testing.T) { markMigrated(t, ctx, pool, false) },
			expectedStatus: "pass",
			expectedMsg:    "Migrations applied successfully",
		},
		{
			name:           "dirty migration fails",
			setupMigration: func(t *testing.T) { markMigrated(t, ctx, pool, true) },
			expectedStatus: "fail",
			expectedMsg:    "Database in dirty migration state",
		},
		{
			name: "missing schema_migrations table fails",
			setupMigration: func(t *testing.T) {
				_, err := pool.Exec(ctx, `DROP TABLE IF EXISTS schema_migrations`)
				require.NoError(t, err)
			},
			expectedStatus: "fail",
			expectedMsg:    "Failed to query migration version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupMigration(t)

			checker := NewHealthChecker(pool, nil, nil, "0.1.0", "test-commit")
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			checker.Health().ServeHTTP(w, req)

			migCheck, ok := decodeHealth(t, w).Checks["migrations"]
			require.True(t, ok, "migrations check should be present")
			assert.Equal(t, tt.expectedStatus, migCheck.Status)
			assert.Contains(t, migCheck.Message, tt.expectedMsg)

			if tt.name == "dirty migration fails" {
				assert.Equal(t, true, migCheck.Details["dirty"])
			}
			if tt.expectedStatus == "pass" {
				assert.Equal(t, false, migCheck.Details["dirty"])
				assert.NotNil(t, migCheck.Details["version"])
			}
		})
	}
}

func markMigrated(t *testing.T, ctx context.Context, pool *pgxpool.Pool, dirty bool) {
	t.Helper()
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version BIGINT PRIMARY KEY,
			dirty BOOLEAN NOT NULL
		)
	`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO schema_migrations (version, dirty)
		VALUES (1, $1)
		ON CONFLICT (version) DO UPDATE SET dirty = EXCLUDED.dirty
	`, dirty)
	require.NoError(t, err)
}

// setupTestDB uses DATABASE_URL when it answers, otherwise a testcontainer.
func setupTestDB(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err == nil && pool.Ping(ctx) == nil {
			return pool, func() { pool.Close() }
		}
		t.Logf("DATABASE_URL set but connection failed, using testcontainer")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	postgresContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("skillexchange_test"),
		tcpostgres.WithUsername("skillexchange"),
		tcpostgres.WithPassword("skillexchange-test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")

	dbURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err, "failed to connect to test database")
	require.NoError(t, pool.Ping(ctx), "failed to ping test database")

	cleanup := func() {
		pool.Close()
		if err := testcontainers.TerminateContainer(postgresContainer); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}
	return pool, cleanup
}

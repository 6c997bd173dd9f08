package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/api"
	"github.com/Togather-Foundation/skillexchange/internal/api/handlers"
	"github.com/Togather-Foundation/skillexchange/internal/auth"
	"github.com/Togather-Foundation/skillexchange/internal/cache"
	"github.com/Togather-Foundation/skillexchange/internal/config"
	"github.com/Togather-Foundation/skillexchange/internal/domain/accounts"
	"github.com/Togather-Foundation/skillexchange/internal/domain/chat"
	"github.com/Togather-Foundation/skillexchange/internal/domain/commitments"
	"github.com/Togather-Foundation/skillexchange/internal/domain/profiles"
	"github.com/Togather-Foundation/skillexchange/internal/domain/reviews"
	"github.com/Togather-Foundation/skillexchange/internal/jobs"
	"github.com/Togather-Foundation/skillexchange/internal/metrics"
	"github.com/Togather-Foundation/skillexchange/internal/notifications"
	"github.com/Togather-Foundation/skillexchange/internal/realtime"
	"github.com/Togather-Foundation/skillexchange/internal/storage/postgres"
	"github.com/Togather-Foundation/skillexchange/internal/telemetry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the skill exchange HTTP server",
	Long: `Start the skill exchange HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (and --config if provided)
- Listen for row changes and fan them out to chat and notification streams
- Run the rating rollup workers unless JOBS_ENABLED=false
- Handle graceful shutdown on SIGINT/SIGTERM

Run "server migrate up" before the first start.

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  server serve --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging, cfg.Environment, Version)
	logger.Info().Str("commit", GitCommit).Msg("starting skill exchange server")
	metrics.Init(Version, GitCommit, BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	go metrics.NewPoolCollector(pool).Run(ctx, 15*time.Second)

	store, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer func() { _ = store.Close() }()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return err
	}

	hub := realtime.NewHub(cfg.Realtime.SubscriberBuffer, logger)
	listener := realtime.NewListener(realtime.PgxDialer(cfg.Database.URL), cfg.Realtime.Channel, hub, logger)

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.Issuer)
	profileService := profiles.NewService(repo.Profiles(), store, cfg.Redis.CacheTTL, logger)
	commitmentService := commitments.NewService(repo.Commitments(), logger)
	sessions := notifications.NewManager(hub, notifications.NewTranslator(profileService), cfg.Realtime.SessionIdleTTL, logger)
	accountService := accounts.NewService(repo.Accounts(), tokens, sessions, logger)
	chatService := chat.NewService(repo.Messages(), commitmentService, profileService, hub, logger)

	riverClient, policy, err := newJobClient(pool, repo, cfg, newSlogLogger(cfg.Logging))
	if err != nil {
		return fmt.Errorf("job client: %w", err)
	}
	reviewService := reviews.NewService(repo.Reviews(), commitmentService, jobs.NewEnqueuer(riverClient, policy), logger)

	var healthRiver *river.Client[pgx.Tx]
	if cfg.Jobs.Enabled {
		healthRiver = riverClient
	}
	health := handlers.NewHealthChecker(pool, healthRiver, listener, Version, GitCommit)

	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(cfg, logger, api.Services{
			Accounts:      accountService,
			Profiles:      profileService,
			Commitments:   commitmentService,
			Chat:          chatService,
			Reviews:       reviewService,
			Notifications: sessions,
			Tokens:        tokens,
			Health:        health,
			SchemaVersion: func(ctx context.Context) (uint, bool, error) {
				return postgres.SchemaVersion(ctx, pool)
			},
		}, api.BuildInfo{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate}),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second, // event streams clear their own deadline
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	// Streams hold their connections open; end them so Shutdown can drain.
	server.RegisterOnShutdown(sessions.Close)
	server.RegisterOnShutdown(hub.Close)

	// River owns the lifetime of its own context; it is stopped explicitly.
	riverCtx, riverCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer riverCancel()
	if cfg.Jobs.Enabled {
		if err := riverClient.Start(riverCtx); err != nil {
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Msg("river background job workers started")
	} else {
		logger.Warn().Msg("background jobs disabled; rating rollups will queue until a worker runs")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error { return sessions.Run(gctx) })
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(server, riverClient, cfg.Jobs.Enabled, logger)
	})

	err = g.Wait()
	logger.Info().Msg("server stopped")
	return err
}

func shutdown(server *http.Server, riverClient *river.Client[pgx.Tx], jobsEnabled bool, logger zerolog.Logger) error {
	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
		errs = append(errs, err)
	}
	if jobsEnabled {
		if err := riverClient.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("river workers shutdown error")
			errs = append(errs, err)
		} else {
			logger.Info().Msg("river workers stopped")
		}
	}
	return errors.Join(errs...)
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	poolCfg.ConnConfig.Tracer = metrics.QueryTracer{}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// newJobClient builds the River client. With jobs disabled it is insert-only
// so reviews can still queue rollups.
func newJobClient(pool *pgxpool.Pool, repo *postgres.Repository, cfg config.Config, logger *slog.Logger) (*river.Client[pgx.Tx], *jobs.RetryPolicy, error) {
	policy := jobs.NewRetryPolicy(cfg.Jobs.RetryRatingRollup)
	hooks := []rivertype.Hook{metrics.NewRiverMetricsHook()}

	var workers *river.Workers
	var periodic []*river.PeriodicJob
	if cfg.Jobs.Enabled {
		workers = jobs.NewWorkers(repo.Ratings(), logger)
		periodic = jobs.NewPeriodicJobs()
	}
	client, err := jobs.NewClient(pool, workers, policy, logger, hooks, periodic)
	if err != nil {
		return nil, nil, err
	}
	return client, policy, nil
}

func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

// newSlogLogger gives River a JSON logger at the configured level.
func newSlogLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

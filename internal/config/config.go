package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Logging     LoggingConfig
	Tracing     TracingConfig
	Redis       RedisConfig
	Realtime    RealtimeConfig
	Jobs        JobsConfig
	Environment string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MigrationsPath string
}

type AuthConfig struct {
	JWTSecret string
	JWTExpiry time.Duration
	Issuer    string
}

type RateLimitConfig struct {
	PublicPerMinute        int
	AuthenticatedPerMinute int
	LoginPer15Minutes      int
	TrustedProxyCIDRs      []string
}

type CORSConfig struct {
	AllowAllOrigins bool
	AllowedOrigins  []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

// RedisConfig enables the shared username cache. An empty Addr keeps the
// cache in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type RealtimeConfig struct {
	Channel           string
	SubscriberBuffer  int
	SessionIdleTTL    time.Duration
	HeartbeatInterval time.Duration
}

type JobsConfig struct {
	Enabled           bool
	RetryRatingRollup int
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

// LoadFile reads a YAML file of KEY: value pairs using the same names as the
// environment variables. Environment variables take precedence over the file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	fileValues := make(map[string]string, len(raw))
	for key, value := range raw {
		fileValues[strings.ToUpper(strings.TrimSpace(key))] = stringify(value)
	}

	return load(func(key string) string {
		if value := os.Getenv(key); value != "" {
			return value
		}
		return fileValues[key]
	})
}

func load(lookup func(string) string) (Config, error) {
	env := envReader{lookup: lookup}

	cfg := Config{
		Server: ServerConfig{
			Host:    env.getString("SERVER_HOST", "0.0.0.0"),
			Port:    env.getInt("SERVER_PORT", 8080),
			BaseURL: env.getString("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:            env.getString("DATABASE_URL", ""),
			MaxConnections: env.getInt("DATABASE_MAX_CONNECTIONS", 25),
			MigrationsPath: env.getString("DATABASE_MIGRATIONS_PATH", "internal/storage/postgres/migrations"),
		},
		Auth: AuthConfig{
			JWTSecret: env.getString("JWT_SECRET", ""),
			JWTExpiry: time.Duration(env.getInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
			Issuer:    env.getString("JWT_ISSUER", "skillexchange"),
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:        env.getInt("RATE_LIMIT_PUBLIC", 60),
			AuthenticatedPerMinute: env.getInt("RATE_LIMIT_AUTHENTICATED", 300),
			LoginPer15Minutes:      env.getInt("RATE_LIMIT_LOGIN", 5),
			TrustedProxyCIDRs:      env.getList("TRUSTED_PROXY_CIDRS"),
		},
		Logging: LoggingConfig{
			Level:  env.getString("LOG_LEVEL", "info"),
			Format: env.getString("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:      env.getBool("TRACING_ENABLED", false),
			Exporter:     env.getString("TRACING_EXPORTER", "stdout"),
			ServiceName:  env.getString("TRACING_SERVICE_NAME", "skillexchange"),
			OTLPEndpoint: env.getString("TRACING_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   env.getFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Redis: RedisConfig{
			Addr:     env.getString("REDIS_ADDR", ""),
			Password: env.getString("REDIS_PASSWORD", ""),
			DB:       env.getInt("REDIS_DB", 0),
			CacheTTL: time.Duration(env.getInt("USERNAME_CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		Realtime: RealtimeConfig{
			Channel:           env.getString("REALTIME_CHANNEL", "row_changes"),
			SubscriberBuffer:  env.getInt("REALTIME_SUBSCRIBER_BUFFER", 64),
			SessionIdleTTL:    time.Duration(env.getInt("NOTIFICATION_SESSION_IDLE_MINUTES", 30)) * time.Minute,
			HeartbeatInterval: time.Duration(env.getInt("SSE_HEARTBEAT_SECONDS", 15)) * time.Second,
		},
		Jobs: JobsConfig{
			Enabled:           env.getBool("JOBS_ENABLED", true),
			RetryRatingRollup: env.getInt("JOB_RETRY_RATING_ROLLUP", 5),
		},
		Environment: env.getString("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.Environment {
	case "development", "test":
		cfg.CORS.AllowAllOrigins = true
	default:
		cfg.CORS.AllowedOrigins = env.getList("CORS_ALLOWED_ORIGINS")
		if len(cfg.CORS.AllowedOrigins) == 0 {
			return Config{}, fmt.Errorf("CORS_ALLOWED_ORIGINS is required in %s", cfg.Environment)
		}
		if len(cfg.Auth.JWTSecret) < 32 {
			return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters in %s", cfg.Environment)
		}
	}

	return cfg, nil
}

type envReader struct {
	lookup func(string) string
}

func (e envReader) getString(key, fallback string) string {
	if value := strings.TrimSpace(e.lookup(key)); value != "" {
		return value
	}
	return fallback
}

func (e envReader) getInt(key string, fallback int) int {
	value := strings.TrimSpace(e.lookup(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (e envReader) getFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(e.lookup(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func (e envReader) getBool(key string, fallback bool) bool {
	value := strings.TrimSpace(e.lookup(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (e envReader) getList(key string) []string {
	value := strings.TrimSpace(e.lookup(key))
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}

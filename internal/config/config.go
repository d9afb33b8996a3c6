package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Treasury     TreasuryConfig
	Reconcile    ReconcileConfig
	Idempotency  IdempotencyConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Driver string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN             string
	ApplicationName string
	MaxConns        int32
	MinConns        int32
	RunMigrations   bool
	ConnMaxIdleSec  int32
	ConnMaxLifeSec  int32
}

// SQLiteConfig holds the database file location.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level   string
	Format  string
	Service string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// TreasuryConfig selects and tunes the transfer backend. An empty WebhookURL
// selects the logging treasury.
type TreasuryConfig struct {
	WebhookURL     string
	RetryMax       int
	TimeoutSeconds int
}

// ReconcileConfig tunes the transfer reconciler.
type ReconcileConfig struct {
	IntervalSeconds     int
	PendingGraceSeconds int
	MaxAttempts         int
}

// IdempotencyConfig controls replay of mutating requests.
type IdempotencyConfig struct {
	TTLMinutes int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	WebhookURL     string
	TimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	driver := strings.ToLower(getEnv("STORE_DRIVER", StoreDriverMemory))
	switch driver {
	case StoreDriverMemory, StoreDriverSQLite, StoreDriverPostgres:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", driver)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "vesting-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Driver: driver,
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "data/vesting.db"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Treasury: TreasuryConfig{
			WebhookURL:     os.Getenv("TREASURY_WEBHOOK_URL"),
			RetryMax:       getEnvAsInt("TREASURY_RETRY_MAX", 3),
			TimeoutSeconds: getEnvAsInt("TREASURY_TIMEOUT_SECONDS", 10),
		},
		Reconcile: ReconcileConfig{
			IntervalSeconds:     getEnvAsInt("RECONCILE_INTERVAL_SECONDS", 30),
			PendingGraceSeconds: getEnvAsInt("RECONCILE_PENDING_GRACE_SECONDS", 60),
			MaxAttempts:         getEnvAsInt("RECONCILE_MAX_ATTEMPTS", 10),
		},
		Idempotency: IdempotencyConfig{
			TTLMinutes: getEnvAsInt("IDEMPOTENCY_TTL_MINUTES", 1440),
		},
		Notification: NotificationConfig{
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
			TimeoutSeconds: getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 5),
		},
	}

	cfg.Logger.Service = cfg.App.Name
	cfg.Postgres.ApplicationName = cfg.App.Name

	if cfg.Store.Driver == StoreDriverPostgres && cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required when STORE_DRIVER=%s", StoreDriverPostgres)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// AccessTokenTTL returns the lifetime of issued bearer tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// Timeout returns the per-attempt HTTP timeout for the webhook treasury.
func (t TreasuryConfig) Timeout() time.Duration {
	return seconds(t.TimeoutSeconds)
}

// Interval returns the reconciler tick period.
func (r ReconcileConfig) Interval() time.Duration {
	return seconds(r.IntervalSeconds)
}

// PendingGrace returns how long a PENDING transfer is left alone before the
// reconciler resubmits it.
func (r ReconcileConfig) PendingGrace() time.Duration {
	return seconds(r.PendingGraceSeconds)
}

// TTL returns how long idempotent responses are kept.
func (i IdempotencyConfig) TTL() time.Duration {
	return time.Duration(i.TTLMinutes) * time.Minute
}

// Timeout bounds one event delivery, retries included.
func (n NotificationConfig) Timeout() time.Duration {
	return seconds(n.TimeoutSeconds)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

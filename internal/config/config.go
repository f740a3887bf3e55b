package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the engine.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Classifier ClassifierConfig
	SLA        SLAConfig
	Alerts     AlertsConfig
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

// PostgresConfig holds journal DB connection values. An empty DSN disables
// the persistent journal; the engine then runs in-memory only.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values for the ingestion dedup cache.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DedupTTLMin int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines agent authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	BootstrapAgentHandle  string
	BootstrapAgentSecret  string
}

// ClassifierConfig points at the external classification service and bounds
// the retry policy applied when it is unavailable.
type ClassifierConfig struct {
	URL            string
	TimeoutSeconds int
	MaxAttempts    int
	BackoffBaseMS  int
	BackoffMaxMS   int
	Workers        int
}

// SLAConfig holds per-priority response deadlines in minutes. The same table
// applies to Pending and InProgress, each measured from entering the status.
type SLAConfig struct {
	HighMinutes   int
	MediumMinutes int
	LowMinutes    int
}

// AlertsConfig parameterizes the built-in alert rules.
type AlertsConfig struct {
	WindowMinutes         int
	CooldownMinutes       int
	PendingBacklog        int
	MeanResponseMinutes   int
	NegativeSharePercent  int
	NegativeShareMinCount int
	VolumeSpikePercent    int
	VolumeSpikeMinCount   int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "tweet-triage-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          redisDB,
			DedupTTLMin: getEnvAsInt("REDIS_DEDUP_TTL_MINUTES", 1440),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapAgentHandle:  getEnv("AUTH_BOOTSTRAP_AGENT_HANDLE", "supervisor"),
			BootstrapAgentSecret:  os.Getenv("AUTH_BOOTSTRAP_AGENT_SECRET"),
		},
		Classifier: ClassifierConfig{
			URL:            getEnv("CLASSIFIER_URL", ""),
			TimeoutSeconds: getEnvAsInt("CLASSIFIER_TIMEOUT_SECONDS", 5),
			MaxAttempts:    getEnvAsInt("CLASSIFIER_MAX_ATTEMPTS", 5),
			BackoffBaseMS:  getEnvAsInt("CLASSIFIER_BACKOFF_BASE_MS", 500),
			BackoffMaxMS:   getEnvAsInt("CLASSIFIER_BACKOFF_MAX_MS", 30000),
			Workers:        getEnvAsInt("CLASSIFIER_WORKERS", 4),
		},
		SLA: SLAConfig{
			HighMinutes:   getEnvAsInt("SLA_HIGH_MINUTES", 15),
			MediumMinutes: getEnvAsInt("SLA_MEDIUM_MINUTES", 60),
			LowMinutes:    getEnvAsInt("SLA_LOW_MINUTES", 240),
		},
		Alerts: AlertsConfig{
			WindowMinutes:         getEnvAsInt("ALERT_WINDOW_MINUTES", 60),
			CooldownMinutes:       getEnvAsInt("ALERT_COOLDOWN_MINUTES", 30),
			PendingBacklog:        getEnvAsInt("ALERT_PENDING_BACKLOG", 10),
			MeanResponseMinutes:   getEnvAsInt("ALERT_MEAN_RESPONSE_MINUTES", 120),
			NegativeSharePercent:  getEnvAsInt("ALERT_NEGATIVE_SHARE_PERCENT", 50),
			NegativeShareMinCount: getEnvAsInt("ALERT_NEGATIVE_SHARE_MIN_COUNT", 5),
			VolumeSpikePercent:    getEnvAsInt("ALERT_VOLUME_SPIKE_PERCENT", 50),
			VolumeSpikeMinCount:   getEnvAsInt("ALERT_VOLUME_SPIKE_MIN_COUNT", 10),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the per-call classifier timeout.
func (c ClassifierConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
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

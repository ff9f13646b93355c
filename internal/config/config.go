package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Escalation   EscalationConfig
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

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
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
	JWTSecret                  string
	AccessTokenTTLMinutes      int
	IntegrationTokenTTLMinutes int
	BcryptCost                 int
	BootstrapOperatorID        string
	BootstrapPassword          string
}

// EscalationConfig drives the durable escalation scheduler.
type EscalationConfig struct {
	OverdueWindow      time.Duration
	DelegateIdleWindow time.Duration
	PollInterval       time.Duration
	BatchSize          int
	RetryDelay         time.Duration
	MaxAttempts        int
	Lease              time.Duration
}

// NotificationConfig controls fan-out of appeal notifications.
type NotificationConfig struct {
	Channel            string
	SupervisorChannels []string
	OperatorChannels   []string
	AlertCooldown      time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "appeal-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
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
			JWTSecret:                  getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:      getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			IntegrationTokenTTLMinutes: getEnvAsInt("AUTH_INTEGRATION_TOKEN_TTL_MINUTES", 60*24*30),
			BcryptCost:                 getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapOperatorID:        strings.TrimSpace(os.Getenv("AUTH_BOOTSTRAP_OPERATOR_ID")),
			BootstrapPassword:          os.Getenv("AUTH_BOOTSTRAP_PASSWORD"),
		},
		Escalation: EscalationConfig{
			OverdueWindow:      getEnvAsDuration("ESCALATION_OVERDUE_WINDOW", 4*time.Hour),
			DelegateIdleWindow: getEnvAsDuration("ESCALATION_DELEGATE_IDLE_WINDOW", 24*time.Hour),
			PollInterval:       getEnvAsDuration("ESCALATION_POLL_INTERVAL", 30*time.Second),
			BatchSize:          getEnvAsInt("ESCALATION_BATCH_SIZE", 50),
			RetryDelay:         getEnvAsDuration("ESCALATION_RETRY_DELAY", time.Minute),
			MaxAttempts:        getEnvAsInt("ESCALATION_MAX_ATTEMPTS", 10),
			Lease:              getEnvAsDuration("ESCALATION_LEASE", 2*time.Minute),
		},
		Notification: NotificationConfig{
			Channel:            getEnv("NOTIFY_CHANNEL", "appeals:notifications"),
			SupervisorChannels: getEnvAsList("NOTIFY_SUPERVISOR_CHANNELS"),
			OperatorChannels:   getEnvAsList("NOTIFY_OPERATOR_CHANNELS"),
			AlertCooldown:      getEnvAsDuration("NOTIFY_ALERT_COOLDOWN", 30*time.Minute),
		},
	}

	cfg.Logger.Service = cfg.App.Name
	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
// BootstrapEnabled reports whether a first privileged operator should be
// seeded. Both the id and the password must be set.
func (a AuthConfig) BootstrapEnabled() bool {
	return a.BootstrapOperatorID != "" && a.BootstrapPassword != ""
}

func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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

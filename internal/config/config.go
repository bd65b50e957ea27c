package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the gateway.
type Config struct {
	App        AppConfig
	ServiceNow ServiceNowConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
}

// AppConfig controls transport selection and server behavior. When Port
// is empty the gateway runs the stdio stream transport; otherwise it
// binds the network listener.
type AppConfig struct {
	Name    string
	Env     string
	Host    string
	Port    string
	Version string
}

// ServiceNowConfig holds connection values for the external ticketing
// system. Which auth fields are required depends on AuthType; that check
// happens when the auth strategy is constructed, before any network call.
type ServiceNowConfig struct {
	InstanceURL    string
	AuthType       string
	Username       string
	Password       string
	ClientID       string
	ClientSecret   string
	TokenURL       string
	APIKey         string
	APIKeyHeader   string
	TimeoutSeconds int
	Debug          bool
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	EventChannel string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines session token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// Load reads configuration from environment variables, applying defaults
// where possible. Command-line flags are overlaid afterwards by the CLI
// layer; flags win over environment values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "incident-gateway"),
			Env:     getEnv("APP_ENV", "development"),
			Host:    getEnv("SERVICENOW_HOST", "0.0.0.0"),
			Port:    os.Getenv("SERVICENOW_PORT"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		ServiceNow: ServiceNowConfig{
			InstanceURL:    os.Getenv("SERVICENOW_INSTANCE_URL"),
			AuthType:       getEnv("SERVICENOW_AUTH_TYPE", "basic"),
			Username:       os.Getenv("SERVICENOW_USERNAME"),
			Password:       os.Getenv("SERVICENOW_PASSWORD"),
			ClientID:       os.Getenv("SERVICENOW_CLIENT_ID"),
			ClientSecret:   os.Getenv("SERVICENOW_CLIENT_SECRET"),
			TokenURL:       os.Getenv("SERVICENOW_TOKEN_URL"),
			APIKey:         os.Getenv("SERVICENOW_API_KEY"),
			APIKeyHeader:   getEnv("SERVICENOW_API_KEY_HEADER", "X-ServiceNow-API-Key"),
			TimeoutSeconds: getEnvAsInt("SERVICENOW_TIMEOUT", 30),
			Debug:          getEnvAsBool("SERVICENOW_DEBUG", false),
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
			Addr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           redisDB,
			EventChannel: getEnv("REDIS_EVENT_CHANNEL", "incident-gateway:events"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
	}

	return cfg, nil
}

// Validate checks values required regardless of auth type. Auth-variant
// field validation happens in the servicenow package at strategy
// construction.
func (c *Config) Validate() error {
	if c.ServiceNow.InstanceURL == "" {
		return fmt.Errorf("ServiceNow instance URL is required (--instance-url or SERVICENOW_INSTANCE_URL)")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// NetworkMode reports whether the network transport was selected.
func (a AppConfig) NetworkMode() bool {
	return a.Port != ""
}

// RequestTimeout returns the per-call timeout for upstream requests.
func (s ServiceNowConfig) RequestTimeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
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

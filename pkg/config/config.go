// Package config loads the view service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	JWTSecret   string

	Mongo    MongoConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	MinIO    MinIOConfig

	View        ViewConfig
	Staging     StagingConfig
	Leaderboard LeaderboardConfig
	Shift       ShiftConfig
}

type MongoConfig struct {
	URI      string
	Database string
}

type RabbitMQConfig struct {
	URL string
}

type RedisConfig struct {
	URL string
}

type PostgresConfig struct {
	DSN string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type ViewConfig struct {
	Debounce         time.Duration
	FetchTimeout     time.Duration
	ListLimit        int
	OptimisticMaxAge time.Duration
}

type StagingConfig struct {
	// Backend is one of redis, minio or memory.
	Backend string
	TTL     time.Duration
}

type LeaderboardConfig struct {
	TTL time.Duration
}

type ShiftConfig struct {
	Timezone       string
	NightCarryOver bool
}

// Load reads a .env file when one exists and then the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("VIEW_PORT", "8085"),
		Environment: getEnv("ENVIRONMENT", "development"),
		JWTSecret:   getEnv("JWT_SECRET", "SUPER_SECRET_KEY_CHANGE_ME"),
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DB", "citizen_reports"),
		},
		RabbitMQ: RabbitMQConfig{
			URL: rabbitMQURL(),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Postgres: PostgresConfig{
			DSN: postgresDSN(),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("MINIO_STAGING_BUCKET", "staging"),
			UseSSL:    parseBool(getEnv("MINIO_USE_SSL", "false"), false),
		},
		View: ViewConfig{
			Debounce:         parseDuration(getEnv("VIEW_DEBOUNCE", "250ms"), 250*time.Millisecond),
			FetchTimeout:     parseDuration(getEnv("VIEW_FETCH_TIMEOUT", "10s"), 10*time.Second),
			ListLimit:        parseInt(getEnv("VIEW_LIST_LIMIT", "100"), 100),
			OptimisticMaxAge: parseDuration(getEnv("VIEW_OPTIMISTIC_MAX_AGE", "2m"), 2*time.Minute),
		},
		Staging: StagingConfig{
			Backend: strings.ToLower(getEnv("STAGING_BACKEND", "redis")),
			TTL:     parseDuration(getEnv("STAGING_TTL", "5m"), 5*time.Minute),
		},
		Leaderboard: LeaderboardConfig{
			TTL: parseDuration(getEnv("LEADERBOARD_TTL", "300"), 300*time.Second),
		},
		Shift: ShiftConfig{
			Timezone:       getEnv("SHIFT_TIMEZONE", "Asia/Jakarta"),
			NightCarryOver: parseBool(getEnv("SHIFT_NIGHT_CARRYOVER", "false"), false),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Staging.Backend {
	case "redis", "minio", "memory":
	default:
		return fmt.Errorf("unknown STAGING_BACKEND %q", c.Staging.Backend)
	}
	if c.IsProduction() && c.JWTSecret == "SUPER_SECRET_KEY_CHANGE_ME" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.View.ListLimit <= 0 {
		return fmt.Errorf("VIEW_LIST_LIMIT must be positive")
	}
	return nil
}

// Location resolves the shift timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Shift.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func rabbitMQURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		getEnv("RABBITMQ_USER", "guest"),
		getEnv("RABBITMQ_PASS", "guest"),
		getEnv("RABBITMQ_HOST", "localhost"),
		getEnv("RABBITMQ_PORT", "5672"),
	)
}

func postgresDSN() string {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		return v
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		getEnv("POSTGRES_HOST", "localhost"),
		getEnv("POSTGRES_USER", "postgres"),
		getEnv("POSTGRES_PASSWORD", "postgres"),
		getEnv("POSTGRES_DB", "citizen_reports"),
		getEnv("POSTGRES_PORT", "5432"),
	)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return defaultValue
}

func parseBool(s string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultValue
}

// parseDuration accepts Go durations and bare numbers of seconds.
func parseDuration(s string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if i, err := strconv.Atoi(s); err == nil {
		return time.Duration(i) * time.Second
	}
	return defaultValue
}

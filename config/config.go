package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/tournament-engine/queue"
	"github.com/Dosada05/tournament-engine/storage"
	"github.com/joho/godotenv"
)

const (
	defaultServerPort        = 8080
	defaultEventsChannel     = "tournament-events"
	defaultWorkerConcurrency = 4
	defaultSweepInterval     = time.Minute
)

// Config holds every process setting read from the environment.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	// RedisURL is optional. Without it jobs use the in-process broker and
	// events are not fanned out over Redis.
	RedisURL      string
	EventsChannel string

	WorkerConcurrency int
	Retry             queue.RetryPolicy

	QualificationSweepInterval time.Duration
	AllowedOrigins             []string

	R2 storage.CloudflareR2Config
}

// LoadJWTSecret reads only JWT_SECRET_KEY, for tools that sign tokens without
// running the engine.
func LoadJWTSecret() (string, error) {
	_ = godotenv.Load()
	return jwtSecret()
}

func jwtSecret() (string, error) {
	key := os.Getenv("JWT_SECRET_KEY")
	if key == "" {
		return "", fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}
	return key, nil
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey, err := jwtSecret()
	if err != nil {
		return nil, err
	}

	port, err := intEnv("SERVER_PORT", defaultServerPort)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	concurrency, err := intEnv("WORKER_CONCURRENCY", defaultWorkerConcurrency)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", concurrency)
	}

	maxAttempts, err := intEnv("JOB_MAX_ATTEMPTS", queue.DefaultMaxAttempts)
	if err != nil {
		return nil, err
	}
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("JOB_MAX_ATTEMPTS must be positive, got %d", maxAttempts)
	}

	backoff := queue.DefaultBackoff
	if raw := os.Getenv("JOB_BACKOFF"); raw != "" {
		if backoff, err = queue.ParseBackoff(raw); err != nil {
			return nil, fmt.Errorf("invalid JOB_BACKOFF environment variable: %w", err)
		}
	}

	sweep := defaultSweepInterval
	if raw := os.Getenv("QUALIFICATION_SWEEP_INTERVAL"); raw != "" {
		if sweep, err = time.ParseDuration(raw); err != nil {
			return nil, fmt.Errorf("invalid QUALIFICATION_SWEEP_INTERVAL environment variable: %w", err)
		}
		if sweep <= 0 {
			return nil, fmt.Errorf("QUALIFICATION_SWEEP_INTERVAL must be positive, got %s", sweep)
		}
	}

	channel := os.Getenv("EVENTS_CHANNEL")
	if channel == "" {
		channel = defaultEventsChannel
	}

	cfg := &Config{
		DatabaseURL:                dbURL,
		JWTSecretKey:               jwtKey,
		ServerPort:                 port,
		RedisURL:                   os.Getenv("REDIS_URL"),
		EventsChannel:              channel,
		WorkerConcurrency:          concurrency,
		Retry:                      queue.RetryPolicy{MaxAttempts: maxAttempts, Backoff: backoff},
		QualificationSweepInterval: sweep,
		AllowedOrigins:             splitList(os.Getenv("ALLOWED_ORIGINS")),
		R2: storage.CloudflareR2Config{
			AccountID:       os.Getenv("R2_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			BucketName:      os.Getenv("R2_BUCKET_NAME"),
			PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
		},
	}

	return cfg, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

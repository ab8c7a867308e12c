package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the submissions API service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NATSURL          string
	NATSSubject      string
	JWTSecret        string
	ReclaimTimeout   time.Duration
	GraderMaxRetries int
	CacheTTL         time.Duration
	SessionTTL       time.Duration
	MaxAnswerBytes   int
	WorkerUsername   string
	WorkerPassword   string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SUBMISSIONS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Submissions API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("nats.subject", "submissions.score.events")
	v.SetDefault("reclaim.timeout", "5m")
	v.SetDefault("grader.max_retries", 5)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("max_answer_bytes", 1024*100)

	reclaim, err := time.ParseDuration(v.GetString("reclaim.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid reclaim timeout: %w", err)
	}

	cacheTTL, err := time.ParseDuration(v.GetString("cache.ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid cache ttl: %w", err)
	}

	sessionTTL, err := time.ParseDuration(v.GetString("session.ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid session ttl: %w", err)
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSURL:          v.GetString("nats.url"),
		NATSSubject:      v.GetString("nats.subject"),
		JWTSecret:        v.GetString("jwt.secret"),
		ReclaimTimeout:   reclaim,
		GraderMaxRetries: v.GetInt("grader.max_retries"),
		CacheTTL:         cacheTTL,
		SessionTTL:       sessionTTL,
		MaxAnswerBytes:   v.GetInt("max_answer_bytes"),
		WorkerUsername:   v.GetString("worker.username"),
		WorkerPassword:   v.GetString("worker.password"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.GraderMaxRetries <= 0 {
		cfg.GraderMaxRetries = 5
	}

	if cfg.MaxAnswerBytes <= 0 {
		cfg.MaxAnswerBytes = 1024 * 100
	}

	return cfg, nil
}

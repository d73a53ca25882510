package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Database struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

func (d Database) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

type APNs struct {
	AuthKeyPath string
	KeyID       string
	TeamID      string
	Topic       string
	Production  bool
}

// Enabled reports whether real pushes can be sent. A commented-out key path
// counts as unset.
func (a APNs) Enabled() bool {
	return a.AuthKeyPath != "" && !strings.HasPrefix(a.AuthKeyPath, "#") && a.KeyID != "" && a.TeamID != ""
}

type Config struct {
	Port                string
	Database            Database
	NatsURL             string
	JWTSecret           string
	PublicBaseURL       string
	WebhookTimeout      time.Duration
	RateLimitMax        int
	RateLimitExpiration time.Duration
	APNs                APNs
}

// LoadDotEnv reads the optional .env.dev file. Values already present in the
// environment win.
func LoadDotEnv() {
	if err := godotenv.Load(".env.dev"); err != nil {
		slog.Info("No .env.dev file found, reading from environment variables")
	}
}

// Load reads the API server configuration from the environment. Every missing
// or malformed variable is reported in a single error.
func Load() (*Config, error) {
	return load(true)
}

// LoadWorker is Load without the JWT requirement, for processes that serve no
// HTTP traffic.
func LoadWorker() (*Config, error) {
	return load(false)
}

func load(requireJWT bool) (*Config, error) {
	var errs []error

	cfg := &Config{
		Port: getEnv("APP_PORT", "8003"),
		Database: Database{
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     os.Getenv("DB_NAME"),
		},
		NatsURL:       getEnv("NATS_URL", "nats://localhost:4222"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		PublicBaseURL: strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		APNs: APNs{
			AuthKeyPath: os.Getenv("APNS_AUTH_KEY_PATH"),
			KeyID:       os.Getenv("APNS_KEY_ID"),
			TeamID:      os.Getenv("APNS_TEAM_ID"),
			Topic:       os.Getenv("APNS_TOPIC"),
			Production:  os.Getenv("APNS_MODE") == "production",
		},
	}

	if requireJWT && cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	var err error
	if cfg.WebhookTimeout, err = getDuration("WEBHOOK_TIMEOUT", 10*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimitExpiration, err = getDuration("RATE_LIMIT_EXPIRATION", 60*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimitMax, err = getInt("RATE_LIMIT_MAX", 100); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getDuration accepts Go duration strings ("15s") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

var (
	ErrMissingDatabaseURL = errors.New("database url is required")
	ErrMissingTokenSecret = errors.New("token secret is required")
)

type Config struct {
	DatabaseURL   string
	HTTPAddr      string
	TokenSecret   string
	FrontendURL   string
	LogLevel      string
	ResetTokenTTL time.Duration
}

// Load parses command line flags. Every flag falls back to its environment
// variable, then to the built-in default.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := pflag.NewFlagSet("flowboard", pflag.ContinueOnError)
	fs.StringVar(&cfg.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection string")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", getEnv("HTTP_ADDR", ":8080"), "address the http server listens on")
	fs.StringVar(&cfg.TokenSecret, "token-secret", os.Getenv("TOKEN_AUTH_SECRET"), "HMAC secret for bearer tokens")
	fs.StringVar(&cfg.FrontendURL, "frontend-url", getEnv("FRONTEND_URL", "http://localhost:3000"), "frontend origin used for CORS and reset links")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "zap log level")
	fs.DurationVar(&cfg.ResetTokenTTL, "reset-token-ttl", parseDuration(os.Getenv("RESET_TOKEN_TTL"), time.Hour), "password reset token lifetime")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "parse flags")
	}

	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if cfg.TokenSecret == "" {
		return nil, ErrMissingTokenSecret
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBSource        string
	Port            string
	Env             string
	JWTSecret       string
	SessionLifetime time.Duration
	KafkaBrokers    []string
}

func Load() (*Config, error) {
	// A local .env is a convenience; absence is fine.
	_ = godotenv.Load()

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		if env != "development" {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required outside development")
		}
		secret = "dev-secret-change-me"
	}

	lifetime := time.Hour
	if raw := os.Getenv("SESSION_LIFETIME"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_LIFETIME: %w", err)
		}
		lifetime = d
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return &Config{
		DBSource:        dbSource,
		Port:            port,
		Env:             env,
		JWTSecret:       secret,
		SessionLifetime: lifetime,
		KafkaBrokers:    brokers,
	}, nil
}

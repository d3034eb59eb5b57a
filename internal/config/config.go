// Package config reads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr         string
	DatabaseURL  string
	RedisAddr    string
	KafkaBrokers string // comma-separated; empty disables publishing
	KafkaTopic   string
	JWTSecret    string
}

// Load reads the configuration. A missing .env file is fine; missing
// required variables are not.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:         getenv("ADDR", ":8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   getenv("KAFKA_NOTIFICATIONS_TOPIC", "marketplace.notifications"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

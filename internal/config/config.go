// Package config reads server settings from the environment, after loading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/bytes"
	"github.com/rs/zerolog"
)

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

type Config struct {
	Addr            string
	Storage         string
	DBPath          string
	LogLevel        zerolog.Level
	LogFormat       string
	RateLimit       float64
	RateBurst       int
	BodyLimit       string
	KafkaBrokers    []string
	KafkaTopic      string
	ShutdownTimeout time.Duration
}

// Load reads .env from the working directory when present. Variables
// already set in the environment take precedence over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		Addr:       getEnv("ADDR", ":8080"),
		Storage:    strings.ToLower(getEnv("STORAGE", StorageMemory)),
		DBPath:     getEnv("DB_PATH", "hooks.db"),
		LogFormat:  strings.ToLower(getEnv("LOG_FORMAT", "json")),
		BodyLimit:  getEnv("BODY_LIMIT", "1M"),
		KafkaTopic: getEnv("KAFKA_TOPIC", "tutorial-progress"),
	}

	if cfg.Storage != StorageMemory && cfg.Storage != StorageSQLite {
		return nil, fmt.Errorf("STORAGE: unknown backend %q", cfg.Storage)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return nil, fmt.Errorf("LOG_FORMAT: unknown format %q", cfg.LogFormat)
	}

	if _, err := bytes.Parse(cfg.BodyLimit); err != nil {
		return nil, fmt.Errorf("BODY_LIMIT: %w", err)
	}

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if cfg.RateLimit, err = strconv.ParseFloat(getEnv("RATE_LIMIT", "20"), 64); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT: %w", err)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("RATE_LIMIT: must not be negative, got %v", cfg.RateLimit)
	}
	if cfg.RateBurst, err = strconv.Atoi(getEnv("RATE_BURST", "40")); err != nil {
		return nil, fmt.Errorf("RATE_BURST: %w", err)
	}
	if cfg.RateBurst < 1 {
		return nil, fmt.Errorf("RATE_BURST: must be positive, got %d", cfg.RateBurst)
	}
	if cfg.ShutdownTimeout, err = time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}

	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/hray3182/agenda/internal/models"
)

type Config struct {
	DatabaseURI    string
	RedisURL       string
	RedisPrefix    string
	TelegramToken  string
	TelegramChatID int64
	AIAPIKey       string
	AIBaseURL      string
	AIModel        string
	HTTPAddr       string
	PageCapacity   int
	DayTaskLimit   int
	NotifyInterval time.Duration
	DevMode        bool
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURI:   os.Getenv("DATABASE_URI"),
		RedisURL:      os.Getenv("REDIS_URL"),
		RedisPrefix:   getEnvOrDefault("REDIS_PREFIX", "agenda:"),
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		AIAPIKey:      os.Getenv("AI_API_KEY"),
		AIBaseURL:     getEnvOrDefault("AI_BASE_URL", "https://openrouter.ai/api/v1"),
		AIModel:       getEnvOrDefault("AI_MODEL", "openai/gpt-4o-mini"),
		HTTPAddr:      getEnvOrDefault("HTTP_ADDR", ":8080"),
	}

	var err error
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if cfg.TelegramChatID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
	}
	if cfg.PageCapacity, err = getIntOrDefault("PAGE_CAPACITY", models.DefaultPageCapacity); err != nil {
		return nil, err
	}
	cfg.PageCapacity = min(max(cfg.PageCapacity, 1), models.MaxPageCapacity)

	if cfg.DayTaskLimit, err = getIntOrDefault("DAY_TASK_LIMIT", models.DefaultDayTaskLimit); err != nil {
		return nil, err
	}
	if cfg.DayTaskLimit < 1 {
		return nil, fmt.Errorf("DAY_TASK_LIMIT must be positive, got %d", cfg.DayTaskLimit)
	}

	cfg.NotifyInterval = 30 * time.Second
	if v := os.Getenv("NOTIFY_INTERVAL"); v != "" {
		if cfg.NotifyInterval, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid NOTIFY_INTERVAL: %w", err)
		}
	}

	if v := os.Getenv("DEV_MODE"); v != "" {
		if cfg.DevMode, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid DEV_MODE: %w", err)
		}
	}
	return cfg, nil
}

// AIEnabled reports whether natural-language quick add is configured.
func (c *Config) AIEnabled() bool {
	return c.AIAPIKey != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

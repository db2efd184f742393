// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	BotToken     string
	AdminIDs     []int64
	AgentURL     string
	AgentAPIKey  string
	AgentTimeout time.Duration
	DBPath       string
	HealthPort   string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:     getEnv("BOT_TOKEN", ""),
		AdminIDs:     parseAdminIDs(getEnv("ADMIN_IDS", "")),
		AgentURL:     getEnv("LANGFLOW_WEBHOOK", ""),
		AgentAPIKey:  getEnv("LANGFLOW_API", ""),
		AgentTimeout: time.Duration(getEnvInt("AGENT_TIMEOUT_SECONDS", 60)) * time.Second,
		DBPath:       getEnv("DB_PATH", "./data/bot.db"),
		HealthPort:   getEnv("HEALTH_PORT", "8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN cannot be empty")
	}
	if c.AgentURL == "" {
		return fmt.Errorf("LANGFLOW_WEBHOOK cannot be empty")
	}
	if c.AgentAPIKey == "" {
		return fmt.Errorf("LANGFLOW_API cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.AgentTimeout <= 0 {
		return fmt.Errorf("AGENT_TIMEOUT_SECONDS must be > 0")
	}
	return nil
}

// IsAdmin returns true if the given Telegram user ID is a configured admin.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func parseAdminIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

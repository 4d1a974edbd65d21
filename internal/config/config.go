package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Tracker database
	DatabasePath string

	// Discuit configuration
	DiscuitBaseURL  string
	DiscuitUsername string
	DiscuitPassword string

	// LLM configuration (OpenAI-compatible endpoint)
	AIBaseURL string
	AIAPIKey  string
	AIModel   string

	// Watch loop configuration
	AltTextDelay time.Duration // grace period for humans to describe a post first
	PollInterval time.Duration

	// Schedule configuration
	ReportSchedule   string // "daily" or "weekly"
	RoundupCommunity string

	// Notification configuration
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		DatabasePath: getEnv("DATABASE_PATH", "alttext_stats.sqlite"),

		DiscuitBaseURL:  getEnv("DISCUIT_BASE_URL", "https://discuit.org"),
		DiscuitUsername: getEnv("DISCUIT_USERNAME", "alttextbot"),
		DiscuitPassword: getEnv("DISCUIT_PASSWORD", ""),

		AIBaseURL: getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		AIAPIKey:  getEnv("AI_API_KEY", ""),
		AIModel:   getEnv("AI_MODEL", "gpt-4o-mini"),

		AltTextDelay: getDurationEnv("ALT_TEXT_DELAY_SECONDS", 180*time.Second),
		PollInterval: getDurationEnv("POLL_INTERVAL_SECONDS", 10*time.Second),

		ReportSchedule:   getEnv("REPORT_SCHEDULE", "weekly"),
		RoundupCommunity: getEnv("ROUNDUP_COMMUNITY", "AltTextBot"),

		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ReportSchedule != "daily" && c.ReportSchedule != "weekly" {
		return fmt.Errorf("REPORT_SCHEDULE must be 'daily' or 'weekly'")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return time.Duration(parsed) * time.Second
		}
	}
	return defaultValue
}

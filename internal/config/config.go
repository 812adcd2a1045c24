// Package config handles application configuration from environment variables
// and the review configuration file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Default locations.
const (
	DefaultDatabasePath     = "./data/review.db"
	DefaultReviewConfigPath = "./config/review.yaml"
	DefaultSchedule         = "0 9 * * *"
)

// TLS policies accepted in SMTP_TLS.
const (
	TLSOpportunistic = "opportunistic"
	TLSMandatory     = "mandatory"
	TLSNone          = "none"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath     string
	LogLevel         string
	LogPretty        bool
	LogFile          string
	ReviewConfigPath string
	AdminEmail       string
	Schedule         string
	SendWorkers      int
	SendRatePerSec   int

	SMTP SMTPConfig

	TelegramBotToken     string
	TelegramReportChatID int64

	Review Review
}

// SMTPConfig configures outgoing mail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      string
}

// Load reads configuration from environment variables, a .env file if one
// exists, and the review configuration file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath:     envOrDefault("DATABASE_PATH", DefaultDatabasePath),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFile:          os.Getenv("LOG_FILE"),
		ReviewConfigPath: os.Getenv("REVIEW_CONFIG_PATH"),
		AdminEmail:       os.Getenv("ADMIN_EMAIL"),
		Schedule:         envOrDefault("REVIEW_SCHEDULE", DefaultSchedule),
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			TLS:      strings.ToLower(envOrDefault("SMTP_TLS", TLSOpportunistic)),
		},
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	var err error
	if cfg.LogPretty, err = envBool("LOG_PRETTY", false); err != nil {
		return nil, err
	}
	if cfg.SMTP.Port, err = envInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.SendWorkers, err = envInt("SEND_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.SendRatePerSec, err = envInt("SEND_RATE_PER_SEC", 5); err != nil {
		return nil, err
	}
	if raw := strings.TrimSpace(os.Getenv("TELEGRAM_REPORT_CHAT_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &ConfigurationError{Field: "TELEGRAM_REPORT_CHAT_ID", Reason: fmt.Sprintf("invalid chat id %q", raw)}
		}
		cfg.TelegramReportChatID = id
	}

	switch cfg.SMTP.TLS {
	case TLSOpportunistic, TLSMandatory, TLSNone:
	default:
		return nil, &ConfigurationError{Field: "SMTP_TLS", Reason: fmt.Sprintf("unknown policy %q", cfg.SMTP.TLS)}
	}
	if cfg.SendWorkers < 1 {
		return nil, &ConfigurationError{Field: "SEND_WORKERS", Reason: "must be at least 1"}
	}
	if cfg.SendRatePerSec < 1 {
		return nil, &ConfigurationError{Field: "SEND_RATE_PER_SEC", Reason: "must be at least 1"}
	}

	review, err := LoadReview(cfg.ReviewConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Review = *review

	return cfg, nil
}

// ReportEnabled reports whether run reports should be posted to Telegram.
func (c *Config) ReportEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramReportChatID != 0
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigurationError{Field: key, Reason: fmt.Sprintf("invalid integer %q", raw)}
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ConfigurationError{Field: key, Reason: fmt.Sprintf("invalid boolean %q", raw)}
	}
	return v, nil
}

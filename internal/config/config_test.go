package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"content_review/internal/model"
)

var envKeys = []string{
	"DATABASE_PATH", "LOG_LEVEL", "LOG_PRETTY", "LOG_FILE", "REVIEW_CONFIG_PATH", "ADMIN_EMAIL",
	"REVIEW_SCHEDULE", "SEND_WORKERS", "SEND_RATE_PER_SEC",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_TLS",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_REPORT_CHAT_ID",
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name: "defaults applied",
			env:  map[string]string{},
			want: &Config{
				DatabasePath:   DefaultDatabasePath,
				LogLevel:       "info",
				Schedule:       DefaultSchedule,
				SendWorkers:    4,
				SendRatePerSec: 5,
				SMTP:           SMTPConfig{Port: 587, TLS: TLSOpportunistic},
				Review:         *DefaultReview(),
			},
		},
		{
			name: "all values set",
			env: map[string]string{
				"DATABASE_PATH":           "/tmp/review.db",
				"LOG_LEVEL":               "debug",
				"LOG_PRETTY":              "true",
				"LOG_FILE":                "/var/log/review.log",
				"ADMIN_EMAIL":             "admin@example.com",
				"REVIEW_SCHEDULE":         "@daily",
				"SEND_WORKERS":            "2",
				"SEND_RATE_PER_SEC":       "10",
				"SMTP_HOST":               "smtp.example.com",
				"SMTP_PORT":               "2525",
				"SMTP_USERNAME":           "user",
				"SMTP_PASSWORD":           "secret",
				"SMTP_TLS":                "Mandatory",
				"TELEGRAM_BOT_TOKEN":      "tok",
				"TELEGRAM_REPORT_CHAT_ID": "-100123",
			},
			want: &Config{
				DatabasePath:   "/tmp/review.db",
				LogLevel:       "debug",
				LogPretty:      true,
				LogFile:        "/var/log/review.log",
				AdminEmail:     "admin@example.com",
				Schedule:       "@daily",
				SendWorkers:    2,
				SendRatePerSec: 10,
				SMTP: SMTPConfig{
					Host:     "smtp.example.com",
					Port:     2525,
					Username: "user",
					Password: "secret",
					TLS:      TLSMandatory,
				},
				TelegramBotToken:     "tok",
				TelegramReportChatID: -100123,
				Review:               *DefaultReview(),
			},
		},
		{
			name:    "invalid port",
			env:     map[string]string{"SMTP_PORT": "abc"},
			wantErr: true,
		},
		{
			name:    "unknown tls policy",
			env:     map[string]string{"SMTP_TLS": "sometimes"},
			wantErr: true,
		},
		{
			name:    "zero workers",
			env:     map[string]string{"SEND_WORKERS": "0"},
			wantErr: true,
		},
		{
			name:    "invalid chat id",
			env:     map[string]string{"TELEGRAM_REPORT_CHAT_ID": "chat"},
			wantErr: true,
		},
		{
			name:    "missing explicit review config",
			env:     map[string]string{"REVIEW_CONFIG_PATH": "/nonexistent/review.yaml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadReviewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review.yaml")
	data := []byte(`
reminder_intervals: [60, 30, 7, 1]
defaults:
  reminder_subject: "You have upcoming reviews!"
  from_address: reviews@example.com
templates:
  reminder: custom_reminder
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got, err := LoadReview(path)
	if err != nil {
		t.Fatalf("load review: %v", err)
	}

	want := DefaultReview()
	want.ReminderIntervals = model.ReminderIntervals{60, 30, 7, 1}
	want.Defaults.ReminderSubject = "You have upcoming reviews!"
	want.Defaults.FromAddress = "reviews@example.com"
	want.Templates.Reminder = "custom_reminder"

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadReview() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseReviewErrors(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantField string
	}{
		{name: "negative interval", yaml: "reminder_intervals: [7, -1]", wantField: "reminder_intervals"},
		{name: "zero interval", yaml: "reminder_intervals: [0]", wantField: "reminder_intervals"},
		{name: "duplicate interval", yaml: "reminder_intervals: [7, 30, 7]", wantField: "reminder_intervals"},
		{name: "schedule without none", yaml: "schedule: [{name: monthly, days: 30}]", wantField: "schedule"},
		{name: "duplicate period", yaml: "schedule: [{name: none, days: 0}, {name: none, days: 0}]", wantField: "schedule"},
		{name: "negative period", yaml: "schedule: [{name: none, days: 0}, {name: odd, days: -3}]", wantField: "schedule"},
		{name: "blank template", yaml: "templates: {review: \"\"}", wantField: "templates.review"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReview([]byte(tt.yaml))
			var cerr *ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if diff := cmp.Diff(tt.wantField, cerr.Field); diff != "" {
				t.Errorf("field mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseReviewUnknownField(t *testing.T) {
	if _, err := ParseReview([]byte("reminder_days: [7]")); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestEffectiveSettings(t *testing.T) {
	r := DefaultReview()

	tests := []struct {
		name     string
		settings model.ReviewSettings
		admin    string
		want     model.ReviewSettings
	}{
		{
			name:  "blank fields take defaults",
			admin: "admin@example.com",
			want: model.ReviewSettings{
				ReviewSubject:     DefaultReviewSubject,
				ReviewBody:        DefaultReviewBody,
				ReminderSubject:   DefaultReminderSubject,
				ReminderBody:      DefaultReminderBody,
				ReviewFromAddress: "admin@example.com",
			},
		},
		{
			name: "configured values kept",
			settings: model.ReviewSettings{
				ReviewPeriodDays:  30,
				ReminderSubject:   "You have upcoming reviews!",
				ReviewFromAddress: "reviews@example.com",
				ReviewBody:        "   ",
			},
			admin: "admin@example.com",
			want: model.ReviewSettings{
				ReviewPeriodDays:  30,
				ReviewSubject:     DefaultReviewSubject,
				ReviewBody:        DefaultReviewBody,
				ReminderSubject:   "You have upcoming reviews!",
				ReminderBody:      DefaultReminderBody,
				ReviewFromAddress: "reviews@example.com",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Effective(tt.settings, tt.admin)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Effective() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPeriodLookup(t *testing.T) {
	r := DefaultReview()

	days, ok := r.PeriodDays("quarterly")
	if !ok || days != 91 {
		t.Errorf("PeriodDays(quarterly) = %d, %v", days, ok)
	}
	if _, ok := r.PeriodDays("weekly"); ok {
		t.Error("PeriodDays(weekly) should not exist")
	}
	if !r.HasPeriod(365) || r.HasPeriod(14) {
		t.Error("HasPeriod mismatch")
	}
}

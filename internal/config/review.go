package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"content_review/internal/model"
)

// Default email copy. $PagesCount is replaced with the number of pages in
// the recipient's batch.
const (
	DefaultReviewSubject   = "Page(s) are due for content review"
	DefaultReviewBody      = "<h2>Page(s) due for review</h2><p>There are $PagesCount pages that are due for review today by you.</p>"
	DefaultReminderSubject = "Reminder: Page(s) are upcoming for content review"
	DefaultReminderBody    = "<h2>Reminder: Your Page(s) are approaching overdue for review</h2><p>There are $PagesCount pages that have reviews upcoming for you.</p>"

	DefaultReviewTemplate   = "review_email"
	DefaultReminderTemplate = "reminder_email"
)

// PeriodNone is the schedule entry that disables review.
const PeriodNone = "none"

// ConfigurationError reports an invalid configuration value. It is returned
// at load time, before any run starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Period is a named entry of the review schedule.
type Period struct {
	Name string `yaml:"name"`
	Days int    `yaml:"days"`
}

// Defaults are applied to site settings whose fields are blank.
type Defaults struct {
	ReviewSubject   string `yaml:"review_subject"`
	ReviewBody      string `yaml:"review_body"`
	ReminderSubject string `yaml:"reminder_subject"`
	ReminderBody    string `yaml:"reminder_body"`
	FromAddress     string `yaml:"from_address"`
}

// Templates name the fixed wrapper templates for each path.
type Templates struct {
	Review   string `yaml:"review"`
	Reminder string `yaml:"reminder"`
}

// Review is the deployment-wide review configuration.
type Review struct {
	ReminderIntervals model.ReminderIntervals `yaml:"reminder_intervals"`
	Schedule          []Period                `yaml:"schedule"`
	Defaults          Defaults                `yaml:"defaults"`
	Templates         Templates               `yaml:"templates"`
}

// DefaultReview returns the built-in review configuration.
func DefaultReview() *Review {
	return &Review{
		ReminderIntervals: model.ReminderIntervals{7, 30, 60},
		Schedule: []Period{
			{Name: PeriodNone, Days: 0},
			{Name: "monthly", Days: 30},
			{Name: "quarterly", Days: 91},
			{Name: "biannual", Days: 182},
			{Name: "annual", Days: 365},
		},
		Defaults: Defaults{
			ReviewSubject:   DefaultReviewSubject,
			ReviewBody:      DefaultReviewBody,
			ReminderSubject: DefaultReminderSubject,
			ReminderBody:    DefaultReminderBody,
		},
		Templates: Templates{
			Review:   DefaultReviewTemplate,
			Reminder: DefaultReminderTemplate,
		},
	}
}

// LoadReview reads the review configuration from a YAML file. Fields left
// out of the file keep their defaults. An empty path falls back to
// DefaultReviewConfigPath when that file exists, and to the built-in
// defaults otherwise.
func LoadReview(path string) (*Review, error) {
	r := DefaultReview()

	explicit := path != ""
	if !explicit {
		path = DefaultReviewConfigPath
	}

	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return r, r.Validate()
		}
		return nil, fmt.Errorf("open review config: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := decodeReview(f, r); err != nil {
		return nil, err
	}
	return r, r.Validate()
}

// ParseReview decodes review configuration from YAML on top of the defaults.
func ParseReview(data []byte) (*Review, error) {
	r := DefaultReview()
	if err := decodeReview(bytes.NewReader(data), r); err != nil {
		return nil, err
	}
	return r, r.Validate()
}

func decodeReview(rd io.Reader, r *Review) error {
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(r); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode review config: %w", err)
	}
	return nil
}

// Validate checks the reminder intervals, the schedule and the templates.
func (r *Review) Validate() error {
	seen := make(map[int]bool, len(r.ReminderIntervals))
	for _, v := range r.ReminderIntervals {
		if v <= 0 {
			return &ConfigurationError{Field: "reminder_intervals", Reason: fmt.Sprintf("interval %d is not positive", v)}
		}
		if seen[v] {
			return &ConfigurationError{Field: "reminder_intervals", Reason: fmt.Sprintf("interval %d is listed twice", v)}
		}
		seen[v] = true
	}

	if len(r.Schedule) == 0 {
		return &ConfigurationError{Field: "schedule", Reason: "no review periods configured"}
	}
	names := make(map[string]bool, len(r.Schedule))
	hasNone := false
	for _, p := range r.Schedule {
		if strings.TrimSpace(p.Name) == "" {
			return &ConfigurationError{Field: "schedule", Reason: "period without a name"}
		}
		if names[p.Name] {
			return &ConfigurationError{Field: "schedule", Reason: fmt.Sprintf("period %q is listed twice", p.Name)}
		}
		names[p.Name] = true
		if p.Days < 0 {
			return &ConfigurationError{Field: "schedule", Reason: fmt.Sprintf("period %q has negative days", p.Name)}
		}
		if p.Days == 0 {
			hasNone = true
		}
	}
	if !hasNone {
		return &ConfigurationError{Field: "schedule", Reason: "missing the \"none\" (0 days) entry"}
	}

	if strings.TrimSpace(r.Templates.Review) == "" {
		return &ConfigurationError{Field: "templates.review", Reason: "template identifier is empty"}
	}
	if strings.TrimSpace(r.Templates.Reminder) == "" {
		return &ConfigurationError{Field: "templates.reminder", Reason: "template identifier is empty"}
	}
	return nil
}

// PeriodDays looks up a schedule entry by name.
func (r *Review) PeriodDays(name string) (int, bool) {
	for _, p := range r.Schedule {
		if p.Name == name {
			return p.Days, true
		}
	}
	return 0, false
}

// HasPeriod reports whether days is one of the scheduled periods.
func (r *Review) HasPeriod(days int) bool {
	for _, p := range r.Schedule {
		if p.Days == days {
			return true
		}
	}
	return false
}

// Effective returns s with blank text fields replaced by the defaults. The
// from address falls back to the configured default and then to adminEmail.
// s itself is not modified.
func (r *Review) Effective(s model.ReviewSettings, adminEmail string) model.ReviewSettings {
	s.ReviewSubject = withDefault(s.ReviewSubject, r.Defaults.ReviewSubject, DefaultReviewSubject)
	s.ReviewBody = withDefault(s.ReviewBody, r.Defaults.ReviewBody, DefaultReviewBody)
	s.ReminderSubject = withDefault(s.ReminderSubject, r.Defaults.ReminderSubject, DefaultReminderSubject)
	s.ReminderBody = withDefault(s.ReminderBody, r.Defaults.ReminderBody, DefaultReminderBody)
	s.ReviewFromAddress = withDefault(s.ReviewFromAddress, r.Defaults.FromAddress, adminEmail)
	return s
}

func withDefault(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

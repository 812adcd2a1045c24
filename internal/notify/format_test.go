package notify

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"content_review/internal/config"
	"content_review/internal/model"
)

var recipient = model.Member{ID: 1, Email: "author@example.com", FirstName: "Test", Surname: "Author"}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(config.DefaultReview().Templates)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	return r
}

func settings() model.ReviewSettings {
	return config.DefaultReview().Effective(model.ReviewSettings{
		ReminderSubject:   "You have upcoming reviews!",
		ReviewFromAddress: "reviews@example.com",
	}, "")
}

func dueItem(id int64, title string, next string, days int) model.DueItem {
	d, _ := time.Parse(time.DateOnly, next)
	return model.DueItem{
		Item:           model.ContentItem{ID: id, Title: title, Link: "/" + strings.ToLower(title)},
		NextReviewDate: d,
		DaysUntilDue:   days,
	}
}

func TestRenderSnippet(t *testing.T) {
	vars := map[string]string{
		"PagesCount":  "2",
		"ToFirstName": "<Ann>",
	}

	tests := []struct {
		name    string
		snippet string
		want    string
	}{
		{name: "plain token", snippet: "<p>There are $PagesCount pages</p>", want: "<p>There are 2 pages</p>"},
		{name: "braced token", snippet: "{$PagesCount}x", want: "2x"},
		{name: "escaped value", snippet: "Hi $ToFirstName", want: "Hi &lt;Ann&gt;"},
		{name: "unknown token kept", snippet: "$Unknown and $5", want: "$Unknown and $5"},
		{name: "no tokens", snippet: "<h2>Hello</h2>", want: "<h2>Hello</h2>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, RenderSnippet(tt.snippet, vars)); diff != "" {
				t.Errorf("RenderSnippet mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVariables(t *testing.T) {
	got := Variables(model.PathReminder, settings(), recipient, 2)
	want := map[string]string{
		VarReminderSubject: "You have upcoming reviews!",
		VarPagesCount:      "2",
		VarFromEmail:       "reviews@example.com",
		VarToFirstName:     "Test",
		VarToSurname:       "Author",
		VarToEmail:         "author@example.com",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Variables mismatch (-want +got):\n%s", diff)
	}

	overdue := Variables(model.PathOverdue, settings(), recipient, 1)
	if overdue[VarReviewSubject] != config.DefaultReviewSubject {
		t.Errorf("ReviewSubject = %q", overdue[VarReviewSubject])
	}
	if _, ok := overdue[VarReminderSubject]; ok {
		t.Error("overdue variables should not carry ReminderSubject")
	}
}

func TestRenderReminder(t *testing.T) {
	r := newTestRenderer(t)
	items := []model.DueItem{
		dueItem(1, "Contact", "2010-03-03", 7),
		dueItem(2, "About", "2010-03-26", 30),
	}

	msg, err := r.Render(model.PathReminder, settings(), recipient, items)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if diff := cmp.Diff("You have upcoming reviews!", msg.Subject); diff != "" {
		t.Errorf("subject mismatch (-want +got):\n%s", diff)
	}
	if msg.To != "author@example.com" || msg.From != "reviews@example.com" {
		t.Errorf("addresses = %q -> %q", msg.From, msg.To)
	}
	for _, want := range []string{
		"There are 2 pages that have reviews upcoming for you.",
		"in 7 days",
		"in 30 days",
		`<a href="/contact">Contact</a>`,
		"2010-03-26",
		"Hi Test,",
	} {
		if !strings.Contains(msg.HTMLBody, want) {
			t.Errorf("body missing %q:\n%s", want, msg.HTMLBody)
		}
	}
	if len(msg.Items) != 2 {
		t.Errorf("items = %d, want 2", len(msg.Items))
	}
}

func TestRenderOverdue(t *testing.T) {
	r := newTestRenderer(t)
	items := []model.DueItem{dueItem(3, "Jobs", "2010-02-23", -1)}

	msg, err := r.Render(model.PathOverdue, settings(), recipient, items)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if diff := cmp.Diff(config.DefaultReviewSubject, msg.Subject); diff != "" {
		t.Errorf("subject mismatch (-want +got):\n%s", diff)
	}
	for _, want := range []string{
		"There are 1 pages that are due for review today by you.",
		"1 day",
	} {
		if !strings.Contains(msg.HTMLBody, want) {
			t.Errorf("body missing %q:\n%s", want, msg.HTMLBody)
		}
	}
}

func TestNewRendererUnknownTemplate(t *testing.T) {
	_, err := NewRenderer(config.Templates{Review: "review_email", Reminder: "missing"})
	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestNewSMTPRequiresHost(t *testing.T) {
	_, err := NewSMTP(config.SMTPConfig{Port: 25})
	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

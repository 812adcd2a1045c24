package runner

import (
	"fmt"
	"strings"
	"time"

	"content_review/internal/datemath"
	"content_review/internal/model"
)

// Summary counts what one path of a pass did.
type Summary struct {
	RunID string
	Path  model.Path

	// Considered is the number of candidate items loaded for the path, Due
	// the number classified as due on it.
	Considered int
	Due        int

	Owners int
	Sent   int
	// Skipped counts owners already notified earlier the same day.
	Skipped  int
	Failed   int
	Warnings int
}

// Report summarises a full pass.
type Report struct {
	Date     time.Time
	Reminder Summary
	Overdue  Summary
}

// Failed reports whether any send failed.
func (r Report) Failed() bool {
	return r.Reminder.Failed > 0 || r.Overdue.Failed > 0
}

// Format renders the report as plain text for chat delivery.
func (r Report) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Content review %s\n", datemath.Format(r.Date))
	for _, s := range []Summary{r.Reminder, r.Overdue} {
		fmt.Fprintf(&b, "\n%s: %d due of %d checked, %d owners\n", s.Path, s.Due, s.Considered, s.Owners)
		fmt.Fprintf(&b, "sent %d, already sent %d, failed %d", s.Sent, s.Skipped, s.Failed)
		if s.Warnings > 0 {
			fmt.Fprintf(&b, ", warnings %d", s.Warnings)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

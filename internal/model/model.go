// Package model defines the domain types used across the application.
package model

import "time"

// ContentItem is a node in the content tree that may be subject to periodic review.
type ContentItem struct {
	ID       int64
	ParentID *int64
	Title    string
	Link     string

	LastReviewDate *time.Time
	NextReviewDate *time.Time

	// ReviewPeriodDays is the item-level override. Nil or zero defers to the
	// inherited settings.
	ReviewPeriodDays *int

	OwnerUserIDs  []int64
	OwnerGroupIDs []int64
}

// HasOwners reports whether the item declares any owner user or group.
func (c *ContentItem) HasOwners() bool {
	return len(c.OwnerUserIDs) > 0 || len(c.OwnerGroupIDs) > 0
}

// ReviewSettings holds the site-wide review defaults.
//
// Text fields are stored as entered. Blank values are replaced by the
// configured defaults when read, so clearing a field reverts to the default.
type ReviewSettings struct {
	ReviewPeriodDays  int
	OwnerUserIDs      []int64
	OwnerGroupIDs     []int64
	ReviewSubject     string
	ReviewBody        string
	ReminderSubject   string
	ReminderBody      string
	ReviewFromAddress string
}

// OwnerSource is one link of an inheritance chain: the review period and the
// owners declared at that level. Ancestor items and the site-wide settings
// are both expressed as sources.
type OwnerSource struct {
	// Label names the level for logs, e.g. "item:12" or "site".
	Label            string
	ReviewPeriodDays *int
	OwnerUserIDs     []int64
	OwnerGroupIDs    []int64
}

// HasOwners reports whether the source declares any owner user or group.
func (s OwnerSource) HasOwners() bool {
	return len(s.OwnerUserIDs) > 0 || len(s.OwnerGroupIDs) > 0
}

// Group is a named set of members arranged in a tree.
type Group struct {
	ID            int64
	Name          string
	ParentGroupID *int64
	MemberIDs     []int64
}

// Member is a user that can be notified.
type Member struct {
	ID        int64
	Email     string
	FirstName string
	Surname   string
}

// Name returns the member's display name.
func (m Member) Name() string {
	switch {
	case m.FirstName != "" && m.Surname != "":
		return m.FirstName + " " + m.Surname
	case m.FirstName != "":
		return m.FirstName
	case m.Surname != "":
		return m.Surname
	default:
		return m.Email
	}
}

// Path identifies which notification flow a pass runs.
type Path string

// Supported notification paths.
const (
	PathReminder Path = "reminder"
	PathOverdue  Path = "overdue"
)

// Status is the classification of an item for a given day.
type Status int

// Classification outcomes.
const (
	NotDue Status = iota
	ReminderDue
	Overdue
)

func (s Status) String() string {
	switch s {
	case ReminderDue:
		return "reminder_due"
	case Overdue:
		return "overdue"
	default:
		return "not_due"
	}
}

// DueItem is an item selected for notification together with its distance
// from the review date on the day of the run.
type DueItem struct {
	Item           ContentItem
	NextReviewDate time.Time
	DaysUntilDue   int
}

// Run records a single scheduler pass.
type Run struct {
	ID         string
	Path       Path
	RunDate    time.Time
	StartedAt  time.Time
	FinishedAt *time.Time
	Items      int
	Owners     int
	Sent       int
	Failed     int
}

// ReminderIntervals are the "days before due" offsets at which an upcoming
// review notice fires. Order only affects display.
type ReminderIntervals []int

// Contains reports whether days exactly matches one of the intervals.
func (r ReminderIntervals) Contains(days int) bool {
	for _, v := range r {
		if v == days {
			return true
		}
	}
	return false
}

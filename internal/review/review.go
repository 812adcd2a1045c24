// Package review decides when content items are due for review.
//
// Classification is stateless: the same item, chain and calendar date always
// produce the same answer, so re-running a pass on the same day yields the
// same set of due items.
package review

import (
	"time"

	"content_review/internal/datemath"
	"content_review/internal/model"
)

// Classification is the outcome of classifying one item for one day.
type Classification struct {
	Status model.Status

	// PeriodDays is the effective review period. Zero means review is
	// disabled for the item.
	PeriodDays int

	// NextReviewDate is the stored review date, or the date derived from the
	// last review when none is stored. Zero when the item has neither.
	NextReviewDate time.Time
	Derived        bool

	// DaysUntilDue is the signed calendar-day distance from now to
	// NextReviewDate.
	DaysUntilDue int
}

// EffectivePeriod returns the review period that applies to item.
//
// The item's own period wins when set and positive. Otherwise the chain,
// ordered from the nearest ancestor to the site-wide default, is searched
// for the first positive period. Zero means no review.
func EffectivePeriod(item model.ContentItem, chain []model.OwnerSource) int {
	if p := item.ReviewPeriodDays; p != nil && *p > 0 {
		return *p
	}
	for _, src := range chain {
		if p := src.ReviewPeriodDays; p != nil && *p > 0 {
			return *p
		}
	}
	return 0
}

// Classify decides whether item needs a notice on the calendar date of now.
//
// Reminders fire only on the exact day the distance to the review date
// equals one of the intervals. Items without a stored review date are never
// reported overdue; if they have a last review date they are scheduled
// forward from it, otherwise they wait for their first review.
func Classify(item model.ContentItem, chain []model.OwnerSource, now time.Time, intervals model.ReminderIntervals) Classification {
	c := Classification{PeriodDays: EffectivePeriod(item, chain)}
	if c.PeriodDays == 0 {
		return c
	}

	switch {
	case item.NextReviewDate != nil:
		c.NextReviewDate = datemath.Date(*item.NextReviewDate)
	case item.LastReviewDate != nil:
		c.NextReviewDate = datemath.AddDays(*item.LastReviewDate, c.PeriodDays)
		c.Derived = true
	default:
		return c
	}

	c.DaysUntilDue = datemath.DaysBetween(now, c.NextReviewDate)

	switch {
	case c.DaysUntilDue < 0 && !c.Derived:
		c.Status = model.Overdue
	case intervals.Contains(c.DaysUntilDue):
		c.Status = model.ReminderDue
	}
	return c
}

// MarkReviewed records a completed review on item: the last review becomes
// today and the next review is one effective period later. With review
// disabled the next review date is cleared.
func MarkReviewed(item *model.ContentItem, chain []model.OwnerSource, now time.Time) {
	today := datemath.Date(now)
	item.LastReviewDate = &today

	period := EffectivePeriod(*item, chain)
	if period == 0 {
		item.NextReviewDate = nil
		return
	}
	next := datemath.AddDays(today, period)
	item.NextReviewDate = &next
}

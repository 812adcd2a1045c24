// Package datemath provides calendar-day arithmetic.
//
// All functions work on calendar dates: the time of day and the location's
// UTC offset are dropped, so results do not shift across DST transitions.
package datemath

import "time"

const secondsPerDay = 24 * 60 * 60

// Date returns midnight UTC of t's calendar date in t's own location.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from from to to.
func DaysBetween(from, to time.Time) int {
	return int((Date(to).Unix() - Date(from).Unix()) / secondsPerDay)
}

// AddDays returns the calendar date days after date.
func AddDays(date time.Time, days int) time.Time {
	return Date(date).AddDate(0, 0, days)
}

// Parse parses a YYYY-MM-DD date.
func Parse(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}

// Format renders a date as YYYY-MM-DD.
func Format(t time.Time) string {
	return Date(t).Format(time.DateOnly)
}

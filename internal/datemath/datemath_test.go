package datemath

import (
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := Parse(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want int
	}{
		{name: "same day", from: "2010-02-24", to: "2010-02-24", want: 0},
		{name: "one week", from: "2010-02-24", to: "2010-03-03", want: 7},
		{name: "not in interval", from: "2010-02-24", to: "2010-03-24", want: 28},
		{name: "thirty days", from: "2010-02-24", to: "2010-03-26", want: 30},
		{name: "sixty days", from: "2010-02-24", to: "2010-04-25", want: 60},
		{name: "past", from: "2010-02-24", to: "2010-02-20", want: -4},
		{name: "leap day", from: "2012-02-28", to: "2012-03-01", want: 2},
		{name: "year boundary", from: "2009-12-31", to: "2010-01-01", want: 1},
		{name: "full calendar range", from: "0001-01-01", to: "9999-12-31", want: 3652058},
		{name: "five centuries", from: "1700-01-01", to: "2200-01-01", want: 182621},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := mustDate(t, tt.from)
			to := mustDate(t, tt.to)
			if got := DaysBetween(from, to); got != tt.want {
				t.Errorf("DaysBetween(%s, %s) = %d, want %d", tt.from, tt.to, got, tt.want)
			}
			if got := DaysBetween(to, from); got != -tt.want {
				t.Errorf("DaysBetween(%s, %s) = %d, want %d", tt.to, tt.from, got, -tt.want)
			}
		})
	}
}

func TestDaysBetweenIgnoresTimeOfDay(t *testing.T) {
	from := time.Date(2010, 2, 24, 23, 59, 0, 0, time.UTC)
	to := time.Date(2010, 2, 25, 0, 1, 0, 0, time.UTC)
	if got := DaysBetween(from, to); got != 1 {
		t.Errorf("across midnight = %d, want 1", got)
	}

	from = time.Date(2010, 2, 24, 0, 0, 0, 0, time.UTC)
	to = time.Date(2010, 2, 24, 23, 0, 0, 0, time.UTC)
	if got := DaysBetween(from, to); got != 0 {
		t.Errorf("same day = %d, want 0", got)
	}
}

func TestDaysBetweenAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	// 2010-03-28 has only 23 hours in Berlin.
	from := time.Date(2010, 3, 27, 12, 0, 0, 0, loc)
	to := time.Date(2010, 3, 29, 0, 30, 0, 0, loc)
	if got := DaysBetween(from, to); got != 2 {
		t.Errorf("across DST = %d, want 2", got)
	}
}

func TestAddDays(t *testing.T) {
	base := time.Date(2010, 2, 24, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		days int
		want string
	}{
		{days: 7, want: "2010-03-03"},
		{days: -7, want: "2010-02-17"},
		{days: 365, want: "2011-02-24"},
	}
	for _, tt := range tests {
		if got := AddDays(base, tt.days); !got.Equal(mustDate(t, tt.want)) {
			t.Errorf("AddDays(%d) = %s, want %s", tt.days, Format(got), tt.want)
		}
	}

	for _, n := range []int{0, 1, 30, 91, 182, 365, -10} {
		if got := DaysBetween(base, AddDays(base, n)); got != n {
			t.Errorf("round trip %d: got %d", n, got)
		}
	}
}

func TestFormat(t *testing.T) {
	ts := time.Date(2010, 3, 3, 18, 30, 0, 0, time.FixedZone("X", 5*3600))
	if got := Format(ts); got != "2010-03-03" {
		t.Errorf("Format = %q, want 2010-03-03", got)
	}
}

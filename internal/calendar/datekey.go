package calendar

import (
	"fmt"
	"time"
)

// DateKeyLayout is the zero-padded YYYY-MM-DD layout of a DateKey.
const DateKeyLayout = "2006-01-02"

// DateKey formats the calendar day of t, as observed in t's own location.
// Lexicographic order of keys matches chronological order of days.
func DateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// ParseDateKey parses a DateKey into midnight of that day in loc. A nil loc
// is treated as UTC.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(DateKeyLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid date key %q: %w", key, err)
	}
	return day, nil
}

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// IsPast reports whether day falls on a calendar day strictly before the day
// of now. Both instants are compared in now's location and the time of day is
// ignored.
func IsPast(day, now time.Time) bool {
	return DateKey(day.In(now.Location())) < DateKey(now)
}

// Days returns n consecutive calendar days beginning with the day of from,
// each at local midnight.
func Days(from time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	start := StartOfDay(from)
	days := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, start.AddDate(0, 0, i))
	}
	return days
}

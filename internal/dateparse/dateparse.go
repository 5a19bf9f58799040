// Package dateparse provides natural language date parsing for CLI flags.
package dateparse

import (
	"fmt"
	"time"

	"github.com/tj/go-naturaldate"
)

// Parse parses a date string which can be:
// - Natural language: "today", "tomorrow", "next week", etc.
// - ISO 8601 date: "2025-01-15"
// - ISO 8601 datetime: "2025-01-15T09:00:00" (with or without zone)
//
// Ambiguous relative expressions resolve toward the future ("monday" is
// next Monday). The reference time anchors relative expressions; if ref
// is zero, time.Now() is used.
func Parse(s string, ref time.Time) (time.Time, error) {
	return parse(s, ref, naturaldate.Future)
}

// ParsePast is Parse with relative expressions resolving toward the past,
// for flags like --since "last monday".
func ParsePast(s string, ref time.Time) (time.Time, error) {
	return parse(s, ref, naturaldate.Past)
}

func parse(s string, ref time.Time, dir naturaldate.Direction) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	if ref.IsZero() {
		ref = time.Now()
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, ref.Location()); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, ref.Location()); err == nil {
		return t, nil
	}

	t, err := naturaldate.Parse(s, ref, naturaldate.WithDirection(dir))
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse date %q: %w", s, err)
	}

	return t, nil
}

// StartOfDay returns midnight of the given time's day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// AddDays adds the specified number of days to a time.
func AddDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

// FormatISO8601 formats a time for Graph API query parameters.
func FormatISO8601(t time.Time) string {
	return t.Format(time.RFC3339)
}

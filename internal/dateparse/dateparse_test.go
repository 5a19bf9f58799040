package dateparse

import (
	"testing"
	"time"
)

var ref = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func TestParseISODate(t *testing.T) {
	got, err := Parse("2026-09-15", ref)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestParseISODateTime(t *testing.T) {
	got, err := Parse("2026-09-15T09:30:00", ref)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := time.Date(2026, 9, 15, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestParseRFC3339(t *testing.T) {
	got, err := Parse("2026-09-15T09:30:00+02:00", ref)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got.UTC().Hour() != 7 {
		t.Errorf("Expected 07:30 UTC, got %v", got.UTC())
	}
}

func TestParseNaturalLanguage(t *testing.T) {
	got, err := Parse("tomorrow", ref)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got.Day() != 1 || got.Month() != time.September {
		t.Errorf("Expected September 1, got %v", got)
	}
}

func TestParseFutureDirection(t *testing.T) {
	// ref is a Monday; bare "friday" resolves forward.
	got, err := Parse("friday", ref)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !got.After(ref) {
		t.Errorf("Expected a future time, got %v", got)
	}
	if got.Weekday() != time.Friday {
		t.Errorf("Expected a Friday, got %v", got.Weekday())
	}
}

func TestParsePastDirection(t *testing.T) {
	got, err := ParsePast("friday", ref)
	if err != nil {
		t.Fatalf("ParsePast failed: %v", err)
	}
	if !got.Before(ref) {
		t.Errorf("Expected a past time, got %v", got)
	}
	if got.Weekday() != time.Friday {
		t.Errorf("Expected a Friday, got %v", got.Weekday())
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse("", ref); err == nil {
		t.Error("Expected error for empty string")
	}
	if _, err := Parse("not a date at all xyz", ref); err == nil {
		t.Error("Expected error for gibberish")
	}
}

func TestStartOfDay(t *testing.T) {
	got := StartOfDay(ref)
	want := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestAddDays(t *testing.T) {
	got := AddDays(ref, 7)
	if got.Day() != 7 || got.Month() != time.September {
		t.Errorf("Expected September 7, got %v", got)
	}
}

func TestFormatISO8601(t *testing.T) {
	if got := FormatISO8601(ref); got != "2026-08-31T12:00:00Z" {
		t.Errorf("Unexpected format: %s", got)
	}
}

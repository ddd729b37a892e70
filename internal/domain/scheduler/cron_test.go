package scheduler

import (
	"testing"
	"time"
)

func TestParseSchedule_Wildcards(t *testing.T) {
	s, err := ParseSchedule("* * * * *")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	after := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)
	next, err := s.Next(after)
	if err != nil {
		t.Fatalf("next error: %v", err)
	}
	want := time.Date(2026, 1, 1, 10, 31, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestParseSchedule_StepValues(t *testing.T) {
	s, err := ParseSchedule("*/15 * * * *")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	after := time.Date(2026, 1, 1, 10, 16, 0, 0, time.UTC)
	next, err := s.Next(after)
	if err != nil {
		t.Fatalf("next error: %v", err)
	}
	want := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestParseSchedule_RangeAndList(t *testing.T) {
	s, err := ParseSchedule("0 9-17 * * 1,3,5")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	// Thursday 2026-01-01 is a weekday=4, so the next match should be
	// Friday 2026-01-02 at 09:00.
	after := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	next, err := s.Next(after)
	if err != nil {
		t.Fatalf("next error: %v", err)
	}
	if next.Weekday() != time.Friday || next.Hour() != 9 || next.Minute() != 0 {
		t.Errorf("expected Friday 09:00, got %v (%v)", next, next.Weekday())
	}
}

func TestParseSchedule_Shorthands(t *testing.T) {
	cases := map[string]string{
		"@hourly":  "0 * * * *",
		"@daily":   "0 0 * * *",
		"@weekly":  "0 0 * * 0",
		"@monthly": "0 0 1 * *",
		"@yearly":  "0 0 1 1 *",
	}
	for shorthand, expanded := range cases {
		s1, err := ParseSchedule(shorthand)
		if err != nil {
			t.Fatalf("%s: %v", shorthand, err)
		}
		s2, err := ParseSchedule(expanded)
		if err != nil {
			t.Fatalf("%s: %v", expanded, err)
		}
		after := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
		n1, _ := s1.Next(after)
		n2, _ := s2.Next(after)
		if !n1.Equal(n2) {
			t.Errorf("%s expanded to %s mismatched: %v vs %v", shorthand, expanded, n1, n2)
		}
	}
}

func TestParseSchedule_InvalidFieldCount(t *testing.T) {
	if _, err := ParseSchedule("* * *"); err == nil {
		t.Error("expected error for malformed expression")
	}
}

func TestParseSchedule_OutOfRange(t *testing.T) {
	if _, err := ParseSchedule("60 * * * *"); err == nil {
		t.Error("expected error for out-of-range minute")
	}
}

func TestParseSchedule_MonthDayOfMonth(t *testing.T) {
	s, err := ParseSchedule("0 0 1 * *")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	after := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	next, err := s.Next(after)
	if err != nil {
		t.Fatalf("next error: %v", err)
	}
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

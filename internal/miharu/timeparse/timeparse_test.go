package timeparse

import (
	"testing"
	"time"
)

// Wednesday, 10:30 local time.
var base = time.Date(2026, time.March, 4, 10, 30, 0, 0, time.Local)

func TestParseAbsolute(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"now", "now", base},
		{"today keeps clock time", "today", base},
		{"tomorrow keeps clock time", "tomorrow", time.Date(2026, time.March, 5, 10, 30, 0, 0, time.Local)},
		{"tomorrow evening", "tomorrow evening", time.Date(2026, time.March, 5, 18, 0, 0, 0, time.Local)},
		{"tomorrow morning", "tomorrow morning", time.Date(2026, time.March, 5, 9, 0, 0, 0, time.Local)},
		{"friday noon", "friday noon", time.Date(2026, time.March, 6, 12, 0, 0, 0, time.Local)},
		{"friday lunch", "friday lunch", time.Date(2026, time.March, 6, 12, 0, 0, 0, time.Local)},
		{"monday afternoon", "monday afternoon", time.Date(2026, time.March, 9, 15, 0, 0, 0, time.Local)},
		{"same weekday means next week", "wednesday", time.Date(2026, time.March, 11, 10, 30, 0, 0, time.Local)},
		{"next week", "next week", time.Date(2026, time.March, 11, 10, 30, 0, 0, time.Local)},
		{"next friday", "next friday", time.Date(2026, time.March, 6, 10, 30, 0, 0, time.Local)},
		{"clock later today", "14:30", time.Date(2026, time.March, 4, 14, 30, 0, 0, time.Local)},
		{"clock already passed rolls to tomorrow", "09:00", time.Date(2026, time.March, 5, 9, 0, 0, 0, time.Local)},
		{"meridiem hour", "3pm", time.Date(2026, time.March, 4, 15, 0, 0, 0, time.Local)},
		{"midnight meridiem", "12am", time.Date(2026, time.March, 5, 0, 0, 0, 0, time.Local)},
		{"dotted date with time", "24.12.2026 18:00", time.Date(2026, time.December, 24, 18, 0, 0, 0, time.Local)},
		{"dotted date without year", "24.12. evening", time.Date(2026, time.December, 24, 18, 0, 0, 0, time.Local)},
		{"iso date", "2026-03-10 08:15", time.Date(2026, time.March, 10, 8, 15, 0, 0, time.Local)},
		{"month and ordinal", "april 1st noon", time.Date(2026, time.April, 1, 12, 0, 0, 0, time.Local)},
		{"ordinal and month", "1st april noon", time.Date(2026, time.April, 1, 12, 0, 0, 0, time.Local)},
		{"passed month rolls to next year", "january 2nd", time.Date(2027, time.January, 2, 10, 30, 0, 0, time.Local)},
		{"connector before time", "tomorrow at 8:00", time.Date(2026, time.March, 5, 8, 0, 0, 0, time.Local)},
		{"in minutes", "in 30 minutes", base.Add(30 * time.Minute)},
		{"in hours", "in 2 hours", base.Add(2 * time.Hour)},
		{"in an hour", "in an hour", base.Add(time.Hour)},
		{"in days", "in 3 days", base.Add(72 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input, base)
			if !ok {
				t.Fatalf("Parse(%q) not recognized", tt.input)
			}
			if !got.Time.Equal(tt.want) {
				t.Fatalf("Parse(%q) = %v, want %v", tt.input, got.Time, tt.want)
			}
		})
	}
}

func TestParseConsumed(t *testing.T) {
	tests := []struct {
		input     string
		remainder string
	}{
		{"tomorrow evening my comment", " my comment"},
		{"friday noon", ""},
		{"14:00 disk is full", " disk is full"},
		{"in 2 hours maintenance", " maintenance"},
		{"tomorrow at 8:00 window", " window"},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.input, base)
		if !ok {
			t.Fatalf("Parse(%q) not recognized", tt.input)
		}
		if rest := tt.input[got.Consumed:]; rest != tt.remainder {
			t.Errorf("Parse(%q) remainder = %q, want %q", tt.input, rest, tt.remainder)
		}
	}
}

func TestParseRejectsNonDates(t *testing.T) {
	for _, input := range []string{"", "webserver01", "at", "in five bananas", "99:99", "32.13.2026"} {
		if got, ok := Parse(input, base); ok {
			t.Errorf("Parse(%q) = %v, want no match", input, got.Time)
		}
	}
}

func TestParseStopsAtFirstUnknownToken(t *testing.T) {
	got, ok := Parse("tomorrow webserver down", base)
	if !ok {
		t.Fatal("expected a match for the leading token")
	}
	if rest := "tomorrow webserver down"[got.Consumed:]; rest != " webserver down" {
		t.Errorf("remainder = %q, want %q", rest, " webserver down")
	}
}

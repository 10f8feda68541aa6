package schedule

import (
	"testing"
	"time"
)

// 2024-04-01 was a Monday.
func monday(hour, min int) time.Time {
	return time.Date(2024, 4, 1, hour, min, 0, 0, time.UTC)
}

func TestParseClock(t *testing.T) {
	cases := map[string]int{
		"13:05":    785,
		"1:05 PM":  785,
		"1:05PM":   785,
		"1:05 pm":  785,
		"12:00 PM": 720,
		"12:00 AM": 0,
		"00:00":    0,
		"0:30":     30,
		"9:00":     540,
		"9:00 AM":  540,
		"23:59":    1439,
		"11:59 PM": 1439,
	}
	for input, expected := range cases {
		got, err := ParseClock(input)
		if err != nil {
			t.Fatalf("ParseClock(%q) error: %v", input, err)
		}
		if got != expected {
			t.Fatalf("ParseClock(%q) = %d, expected %d", input, got, expected)
		}
	}
}

func TestParseClockRejectsMalformed(t *testing.T) {
	for _, input := range []string{"", "noon", "25:00", "12:61", "13:00 PM", "0:00 AM", "1200"} {
		if _, err := ParseClock(input); err == nil {
			t.Fatalf("ParseClock(%q) should fail", input)
		}
	}
}

func TestTo12Hour(t *testing.T) {
	cases := map[string]string{
		"13:05": "1:05 PM",
		"00:00": "12:00 AM",
		"12:00": "12:00 PM",
		"0:30":  "12:30 AM",
		"9:05":  "9:05 AM",
	}
	for input, expected := range cases {
		got, err := To12Hour(input)
		if err != nil {
			t.Fatalf("To12Hour(%q) error: %v", input, err)
		}
		if got != expected {
			t.Fatalf("To12Hour(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestClockRoundTrip(t *testing.T) {
	// The two representations must agree once normalized to minutes.
	twelve, err := To12Hour("13:05")
	if err != nil {
		t.Fatalf("To12Hour error: %v", err)
	}
	mins, err := ParseClock(twelve)
	if err != nil {
		t.Fatalf("ParseClock error: %v", err)
	}
	if mins != 785 {
		t.Fatalf("expected 785 minutes, got %d", mins)
	}

	midnight, err := To12Hour("00:00")
	if err != nil {
		t.Fatalf("To12Hour error: %v", err)
	}
	mins, err = ParseClock(midnight)
	if err != nil {
		t.Fatalf("ParseClock error: %v", err)
	}
	if mins != 0 {
		t.Fatalf("expected 0 minutes for midnight, got %d", mins)
	}
}

func TestClassify(t *testing.T) {
	w := Window{Day: "Monday", Start: "9:00", End: "10:00"}
	grace := 20 * time.Minute
	cases := []struct {
		at       time.Time
		expected State
	}{
		{monday(8, 59), BeforeStart},
		{monday(9, 0), InWindow},
		{monday(9, 30), InWindow},
		{monday(10, 0), InWindow},
		{monday(10, 1), AfterEndGrace},
		{monday(10, 20), AfterEndGrace},
		{monday(10, 21), AfterGrace},
	}
	for _, tc := range cases {
		got, err := Classify(w, tc.at, grace)
		if err != nil {
			t.Fatalf("Classify at %s error: %v", tc.at, err)
		}
		if got != tc.expected {
			t.Fatalf("Classify at %s = %s, expected %s", tc.at.Format("15:04"), got, tc.expected)
		}
	}
}

func TestResolveTimeIn(t *testing.T) {
	windows := []Window{
		{Day: "Monday", Start: "9:00", End: "10:00"},
		{Day: "Monday", Start: "9:30", End: "11:00"}, // overlaps the first
		{Day: "Tuesday", Start: "9:00", End: "10:00"},
	}

	if _, ok := ResolveTimeIn(windows, monday(8, 59)); ok {
		t.Fatalf("8:59 should not match any window")
	}

	w, ok := ResolveTimeIn(windows, monday(9, 45))
	if !ok {
		t.Fatalf("9:45 should match")
	}
	// Both Monday windows contain 9:45; declaration order wins.
	if w.Start != "9:00" {
		t.Fatalf("expected first declared window, got start %s", w.Start)
	}

	w, ok = ResolveTimeIn(windows, monday(10, 30))
	if !ok || w.Start != "9:30" {
		t.Fatalf("10:30 should match the second window, got %v ok=%v", w, ok)
	}
}

func TestResolveTimeInMixedFormats(t *testing.T) {
	windows := []Window{{Day: "Monday", Start: "9:00 AM", End: "10:00"}}
	if _, ok := ResolveTimeIn(windows, monday(9, 30)); !ok {
		t.Fatalf("mixed 12h/24h window should match")
	}
}

func TestResolveTimeOut(t *testing.T) {
	windows := []Window{{Day: "Monday", Start: "9:00", End: "10:00"}}
	grace := 20 * time.Minute

	if _, state, ok := ResolveTimeOut(windows, monday(9, 59), grace); ok || state != InWindow {
		t.Fatalf("9:59 should be too early, got state %s ok=%v", state, ok)
	}
	if _, state, ok := ResolveTimeOut(windows, monday(10, 0), grace); ok || state != InWindow {
		t.Fatalf("10:00 should be too early (at end), got state %s ok=%v", state, ok)
	}
	if w, _, ok := ResolveTimeOut(windows, monday(10, 5), grace); !ok || w.End != "10:00" {
		t.Fatalf("10:05 should be accepted")
	}
	if _, state, ok := ResolveTimeOut(windows, monday(10, 21), grace); ok || state != AfterGrace {
		t.Fatalf("10:21 should be too late, got state %s ok=%v", state, ok)
	}
	if w, _, ok := ResolveTimeOut(windows, time.Date(2024, 4, 2, 10, 5, 0, 0, time.UTC), grace); ok || w != (Window{}) {
		t.Fatalf("Tuesday should have no matching window")
	}
}

func TestResolveTimeOutPrefersUpcomingWindow(t *testing.T) {
	windows := []Window{
		{Day: "Monday", Start: "8:00", End: "8:30"},
		{Day: "Monday", Start: "13:00", End: "14:00"},
	}
	// Morning grace has lapsed but the afternoon window is still ahead; the
	// rejection should read as too early, not too late.
	_, state, ok := ResolveTimeOut(windows, monday(12, 0), 20*time.Minute)
	if ok {
		t.Fatalf("12:00 should not be accepted")
	}
	if state != BeforeStart {
		t.Fatalf("expected before_start, got %s", state)
	}
}

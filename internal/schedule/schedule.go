package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultGrace is how long after a window's end a time-out is still accepted.
const DefaultGrace = 20 * time.Minute

// Window is one weekly slot in a class schedule: a weekday plus start and
// end clock times in local wall clock. Windows never span midnight.
type Window struct {
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// State classifies a point in time against a single window.
type State int

const (
	BeforeStart State = iota
	InWindow
	AfterEndGrace // past the end but still inside the grace period
	AfterGrace
)

func (s State) String() string {
	switch s {
	case BeforeStart:
		return "before_start"
	case InWindow:
		return "in_window"
	case AfterEndGrace:
		return "after_end_grace"
	case AfterGrace:
		return "after_grace"
	}
	return "unknown"
}

// ParseClock converts a clock string to minutes since midnight. Schedules
// are stored in 24-hour "H:MM" form, but several producers hand us the
// 12-hour "h:mm AM|PM" form instead, so both are accepted here and nowhere
// else: callers always compare minutes, never raw strings.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty clock value")
	}

	upper := strings.ToUpper(s)
	meridiem := ""
	switch {
	case strings.HasSuffix(upper, "AM"):
		meridiem = "AM"
	case strings.HasSuffix(upper, "PM"):
		meridiem = "PM"
	}
	if meridiem != "" {
		upper = strings.TrimSpace(upper[:len(upper)-2])
	}

	parts := strings.SplitN(upper, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock value %q", s)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, fmt.Errorf("malformed hour in %q", s)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("malformed minute in %q", s)
	}
	if minute < 0 || minute > 59 {
		return 0, fmt.Errorf("minute out of range in %q", s)
	}

	switch meridiem {
	case "AM":
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("hour out of range in %q", s)
		}
		if hour == 12 {
			hour = 0 // 12:xx AM is the first hour of the day
		}
	case "PM":
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("hour out of range in %q", s)
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour < 0 || hour > 23 {
			return 0, fmt.Errorf("hour out of range in %q", s)
		}
	}

	return hour*60 + minute, nil
}

// To12Hour renders a 24-hour clock string in "h:mm AM|PM" form. Noon is
// "12:00 PM" and midnight "12:00 AM".
func To12Hour(s string) (string, error) {
	mins, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	hour := mins / 60
	minute := mins % 60
	meridiem := "AM"
	switch {
	case hour == 0:
		hour = 12
	case hour == 12:
		meridiem = "PM"
	case hour > 12:
		hour -= 12
		meridiem = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", hour, minute, meridiem), nil
}

// MinuteOfDay returns the wall-clock minute of the given instant.
func MinuteOfDay(at time.Time) int {
	return at.Hour()*60 + at.Minute()
}

// Classify reports where the given instant falls relative to the window,
// assuming the weekday already matches. Time-in is valid only for InWindow;
// time-out only for AfterEndGrace.
func Classify(w Window, at time.Time, grace time.Duration) (State, error) {
	start, err := ParseClock(w.Start)
	if err != nil {
		return 0, fmt.Errorf("window start: %w", err)
	}
	end, err := ParseClock(w.End)
	if err != nil {
		return 0, fmt.Errorf("window end: %w", err)
	}
	now := MinuteOfDay(at)
	graceMins := int(grace / time.Minute)

	switch {
	case now < start:
		return BeforeStart, nil
	case now <= end:
		return InWindow, nil
	case now <= end+graceMins:
		return AfterEndGrace, nil
	default:
		return AfterGrace, nil
	}
}

// ResolveTimeIn returns the first window, in declaration order, matching the
// instant's weekday and containing its clock time. Declaration order is the
// documented tie-break when same-day windows overlap.
func ResolveTimeIn(windows []Window, at time.Time) (Window, bool) {
	day := at.Weekday().String()
	for _, w := range windows {
		if !sameDay(w.Day, day) {
			continue
		}
		state, err := Classify(w, at, 0)
		if err != nil {
			continue // malformed window cannot match
		}
		if state == InWindow {
			return w, true
		}
	}
	return Window{}, false
}

// ResolveTimeOut returns the first window for the instant's weekday whose
// grace interval (end, end+grace] contains the clock time. When none does it
// reports the most useful rejection instead: a window whose end is still
// ahead (too early) wins over one whose grace has lapsed (too late).
func ResolveTimeOut(windows []Window, at time.Time, grace time.Duration) (Window, State, bool) {
	day := at.Weekday().String()
	var (
		early, late         Window
		earlySeen, lateSeen bool
		earlyState          State
	)
	for _, w := range windows {
		if !sameDay(w.Day, day) {
			continue
		}
		state, err := Classify(w, at, grace)
		if err != nil {
			continue
		}
		switch state {
		case AfterEndGrace:
			return w, state, true
		case BeforeStart, InWindow:
			if !earlySeen {
				early, earlyState, earlySeen = w, state, true
			}
		case AfterGrace:
			if !lateSeen {
				late, lateSeen = w, true
			}
		}
	}
	if earlySeen {
		return early, earlyState, false
	}
	if lateSeen {
		return late, AfterGrace, false
	}
	return Window{}, AfterGrace, false
}

func sameDay(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

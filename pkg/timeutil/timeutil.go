package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// JST is the service timezone of the timetable API. A fixed zone keeps the
// binary independent of the host tzdata.
var JST = time.FixedZone("JST", 9*60*60)

// ErrNoClock is returned by LenientHHMM when no HH:MM part can be located.
var ErrNoClock = errors.New("no HH:MM component")

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04-0700",
	// no offset: service local time
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an ISO timestamp. A trailing "Z" is UTC, an offset
// may be written with or without a colon, and a timestamp without any offset
// is read as JST.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, JST); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// LenientHHMM reads the wall-clock hour and minute following the "T"
// separator, ignoring whatever offset or garbage trails it.
func LenientHHMM(s string) (hour, minute int, err error) {
	_, clock, found := strings.Cut(s, "T")
	if !found {
		return 0, 0, ErrNoClock
	}
	if i := strings.IndexAny(clock, "+Z"); i >= 0 {
		clock = clock[:i]
	}
	parts := strings.Split(clock, ":")
	if len(parts) < 2 {
		return 0, 0, ErrNoClock
	}
	hour, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("hour: %w", err)
	}
	minute, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("minute: %w", err)
	}
	if hour < 0 || hour > 29 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock %02d:%02d out of range", hour, minute)
	}
	return hour, minute, nil
}

// FormatTimestamp renders t as RFC3339, or "" for the zero time.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// RequestDateTime formats t the way the timetable API expects its datetime
// parameter: minute precision in JST.
func RequestDateTime(t time.Time) string {
	return t.In(JST).Format("2006-01-02T15:04:00-07:00")
}

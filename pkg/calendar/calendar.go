// Package calendar decides whether a service date runs the weekday or the
// holiday timetable.
package calendar

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"takao35/pkg/timeutil"
)

// Class is the service pattern a date belongs to.
type Class string

const (
	Weekday Class = "weekday"
	Holiday Class = "holiday"
)

// Classes lists every class in publication order.
var Classes = []Class{Weekday, Holiday}

// ParseClass converts a day-type label into a Class.
func ParseClass(s string) (Class, error) {
	switch Class(strings.ToLower(strings.TrimSpace(s))) {
	case Weekday:
		return Weekday, nil
	case Holiday:
		return Holiday, nil
	}
	return "", fmt.Errorf("unknown calendar class %q", s)
}

// HolidayTable reports whether a date is a public holiday. Only the calendar
// date of the argument is significant.
type HolidayTable interface {
	IsHoliday(date time.Time) bool
}

// HolidayFunc adapts a plain function to HolidayTable.
type HolidayFunc func(date time.Time) bool

func (f HolidayFunc) IsHoliday(date time.Time) bool { return f(date) }

// StaticHolidays is a fixed set of YYYY-MM-DD dates.
type StaticHolidays map[string]bool

func (s StaticHolidays) IsHoliday(date time.Time) bool {
	return s[date.Format("2006-01-02")]
}

// Classifier maps timestamps to calendar classes.
type Classifier struct {
	Table HolidayTable
}

// NewClassifier returns a Classifier backed by table, or by the Japanese
// national calendar when table is nil.
func NewClassifier(table HolidayTable) *Classifier {
	if table == nil {
		table = JapanHolidays{}
	}
	return &Classifier{Table: table}
}

// Classify returns Holiday for Saturdays, Sundays and table holidays.
// The weekday is taken in t's own offset, so a +09:00 timestamp is judged
// on its Japanese calendar date.
func (c *Classifier) Classify(t time.Time) Class {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return Holiday
	}
	if c.Table != nil && c.Table.IsHoliday(t) {
		return Holiday
	}
	return Weekday
}

// NextOfClass returns the first day from t onward, at t's clock time, that
// classifies as class. It looks two weeks ahead and falls back to t.
func (c *Classifier) NextOfClass(t time.Time, class Class) time.Time {
	for i := 0; i < 14; i++ {
		day := t.AddDate(0, 0, i)
		if c.Classify(day) == class {
			return day
		}
	}
	return t
}

// ClassifyString classifies an ISO timestamp string.
//
// Unparseable input classifies as Weekday. This is the fail-safe default of
// the collector: a record with a broken timestamp is kept on the weekday
// timetable rather than aborting the batch.
func (c *Classifier) ClassifyString(s string) Class {
	t, err := timeutil.ParseTimestamp(s)
	if err != nil {
		slog.Debug("Unparseable timestamp classified as weekday", "timestamp", s, "error", err)
		return Weekday
	}
	return c.Classify(t)
}

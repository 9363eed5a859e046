package calendar

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/jp"
)

var japan = func() *cal.BusinessCalendar {
	c := cal.NewBusinessCalendar()
	c.AddHoliday(jp.Holidays...)
	return c
}()

// JapanHolidays is the Japanese national calendar: the named public holidays
// plus the substitute (振替休日) and citizens' (国民の休日) holidays derived
// from them.
type JapanHolidays struct{}

func (JapanHolidays) IsHoliday(date time.Time) bool {
	return derivedHoliday(date, namedJapaneseHoliday)
}

func namedJapaneseHoliday(day time.Time) bool {
	actual, _, _ := japan.IsHoliday(day)
	return actual
}

// derivedHoliday applies the substitute and citizens' holiday rules to a
// table of named holidays. The calendar date of date is used, whatever its
// offset.
func derivedHoliday(date time.Time, named func(time.Time) bool) bool {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
	if named(day) {
		return true
	}

	// The first ordinary day after a run of holidays containing a Sunday.
	for prev := day.AddDate(0, 0, -1); named(prev); prev = prev.AddDate(0, 0, -1) {
		if prev.Weekday() == time.Sunday {
			return true
		}
	}

	// An ordinary weekday between two holidays.
	return day.Weekday() != time.Sunday &&
		named(day.AddDate(0, 0, -1)) && named(day.AddDate(0, 0, 1))
}

package verify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takao35/pkg/calendar"
	"takao35/pkg/timeutil"
	"takao35/pkg/types"
)

var poi = []string{"高尾", "高尾山口", "京王八王子", "北野", "新宿"}

func at(hh, mm int) time.Time {
	// 2025-08-25 is a Monday.
	return time.Date(2025, 8, 25, hh, mm, 0, 0, timeutil.JST)
}

func candidate(departure time.Time) types.DepartureCandidate {
	return types.DepartureCandidate{
		Hour:        departure.Hour(),
		Minute:      departure.Minute(),
		OperationID: "80040000",
		TrainType:   "特急",
		Destination: "高尾山口",
		Departure:   departure,
		TimeISO:     timeutil.FormatTimestamp(departure),
	}
}

func itinerary() []types.StopEvent {
	return []types.StopEvent{
		{StationName: "新宿", Time: at(6, 10)},
		{StationName: "明大前", Time: at(6, 18)},
		{StationName: "調布", Time: at(6, 29)},
		{StationName: "北野", Time: at(6, 51)},
		{StationName: "高尾", Time: at(7, 1)},
		{StationName: "高尾山口", Time: at(7, 4)},
	}
}

func TestVerify_Accepted(t *testing.T) {
	v := New(calendar.NewClassifier(calendar.StaticHolidays{}), poi)

	record, outcome := v.Verify(candidate(at(6, 10)), itinerary(), "高尾山口", calendar.Weekday)
	require.Equal(t, Accepted, outcome)
	assert.True(t, outcome.Kept())

	assert.Equal(t, "80040000", record.OperationID)
	assert.Equal(t, calendar.Weekday, record.CalendarClass)

	names := make([]string, 0, len(record.Stops))
	for _, s := range record.Stops {
		names = append(names, s.StationName)
	}
	assert.Equal(t, []string{"新宿", "北野", "高尾", "高尾山口"}, names)

	final, ok := record.LastStop()
	require.True(t, ok)
	assert.True(t, final.Time.Equal(at(7, 4)))
}

func TestVerify_TerminalMismatch(t *testing.T) {
	v := New(calendar.NewClassifier(calendar.StaticHolidays{}), poi)

	_, outcome := v.Verify(candidate(at(6, 10)), itinerary(), "新宿", calendar.Weekday)
	assert.Equal(t, RejectedTerminalMismatch, outcome)
	assert.False(t, outcome.Kept())
}

func TestVerify_TerminalOutsidePointsOfInterest(t *testing.T) {
	v := New(calendar.NewClassifier(calendar.StaticHolidays{}), []string{"新宿"})
	stops := []types.StopEvent{
		{StationName: "新宿", Time: at(6, 10)},
		{StationName: "橋本", Time: at(6, 50)},
	}

	record, outcome := v.Verify(candidate(at(6, 10)), stops, "橋本", calendar.Weekday)
	require.Equal(t, Accepted, outcome)
	require.Len(t, record.Stops, 1)
	assert.Equal(t, "新宿", record.Stops[0].StationName)
}

func TestVerify_NoRequiredFinal(t *testing.T) {
	v := New(calendar.NewClassifier(calendar.StaticHolidays{}), poi)

	_, outcome := v.Verify(candidate(at(6, 10)), itinerary(), "", calendar.Weekday)
	assert.Equal(t, Accepted, outcome)
}

func TestVerify_NoStops(t *testing.T) {
	v := New(nil, poi)

	_, outcome := v.Verify(candidate(at(6, 10)), nil, "高尾山口", calendar.Weekday)
	assert.Equal(t, RejectedNoStops, outcome)

	_, outcome = v.Verify(candidate(at(6, 10)), []types.StopEvent{}, "", calendar.Weekday)
	assert.Equal(t, RejectedNoStops, outcome)
}

func TestVerify_CalendarMismatch(t *testing.T) {
	holidays := calendar.StaticHolidays{"2025-08-25": true}
	v := New(calendar.NewClassifier(holidays), poi)

	_, outcome := v.Verify(candidate(at(6, 10)), itinerary(), "高尾山口", calendar.Weekday)
	assert.Equal(t, RejectedCalendarMismatch, outcome)

	record, outcome := v.Verify(candidate(at(6, 10)), itinerary(), "高尾山口", calendar.Holiday)
	assert.Equal(t, Accepted, outcome)
	assert.Equal(t, calendar.Holiday, record.CalendarClass)
}

func TestVerify_OffsetlessTimestampIsClassified(t *testing.T) {
	holidays := calendar.StaticHolidays{"2025-08-25": true}
	v := New(calendar.NewClassifier(holidays), poi)

	c := candidate(at(6, 10))
	c.Departure = time.Time{}
	c.TimeISO = "2025-08-25T06:10:00"

	_, outcome := v.Verify(c, itinerary(), "高尾山口", calendar.Weekday)
	assert.Equal(t, RejectedCalendarMismatch, outcome)

	record, outcome := v.Verify(c, itinerary(), "高尾山口", calendar.Holiday)
	assert.Equal(t, Accepted, outcome)
	assert.Equal(t, calendar.Holiday, record.CalendarClass)
}

func TestVerify_UnreadableTimestampIsWeekday(t *testing.T) {
	v := New(calendar.NewClassifier(calendar.StaticHolidays{}), poi)

	// 2025-08-19 is a Tuesday.
	for _, timeISO := range []string{"2025-08-19T06:10:00 JST", "garbage T06:10", "2025-08-19T06:10+9"} {
		c := candidate(at(6, 10))
		c.Departure = time.Time{}
		c.TimeISO = timeISO

		_, outcome := v.Verify(c, itinerary(), "高尾山口", calendar.Holiday)
		assert.Equal(t, RejectedCalendarMismatch, outcome, "holiday run, time %q", timeISO)

		record, outcome := v.Verify(c, itinerary(), "高尾山口", calendar.Weekday)
		assert.Equal(t, Accepted, outcome, "weekday run, time %q", timeISO)
		assert.Equal(t, calendar.Weekday, record.CalendarClass)
	}
}

func TestVerify_TuesdayTimestampsRejectedOnHolidayRun(t *testing.T) {
	v := New(calendar.NewClassifier(calendar.StaticHolidays{}), poi)

	for _, timeISO := range []string{"2025-08-19T06:10:00", "2025-08-19T06:10:00+0900"} {
		c := candidate(at(6, 10))
		c.Departure = time.Time{}
		c.TimeISO = timeISO

		_, outcome := v.Verify(c, itinerary(), "高尾山口", calendar.Holiday)
		assert.Equal(t, RejectedCalendarMismatch, outcome, "time %q", timeISO)
	}
}

func TestVerify_MissingTimestampTrustsCaller(t *testing.T) {
	holidays := calendar.StaticHolidays{"2025-08-25": true}
	v := New(calendar.NewClassifier(holidays), poi)

	c := candidate(at(6, 10))
	c.Departure = time.Time{}
	c.TimeISO = ""

	record, outcome := v.Verify(c, itinerary(), "高尾山口", calendar.Weekday)
	assert.Equal(t, AcceptedWithoutTimestamp, outcome)
	assert.True(t, outcome.Kept())
	assert.Equal(t, calendar.Weekday, record.CalendarClass)
}

func TestVerify_ProjectionPreservesOrderAndDuplicates(t *testing.T) {
	v := New(nil, []string{"北野"})
	stops := []types.StopEvent{
		{StationName: "北野", Time: at(6, 0)},
		{StationName: "京王片倉", Time: at(6, 3)},
		{StationName: "北野", Time: at(6, 8)},
	}

	got := v.Project(stops)
	require.Len(t, got, 2)
	assert.True(t, got[0].Time.Before(got[1].Time))
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "rejected_terminal_mismatch", RejectedTerminalMismatch.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}

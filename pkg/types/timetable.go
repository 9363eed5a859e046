package types

import (
	"encoding/json"
	"fmt"
	"time"

	"takao35/pkg/calendar"
	"takao35/pkg/timeutil"
)

// DepartureCandidate is one scheduled departure read from a station timetable,
// before its terminal and calendar have been confirmed.
type DepartureCandidate struct {
	Hour        int    `json:"hour"`
	Minute      int    `json:"minute"`
	OperationID string `json:"operation_id"`
	TrainType   string `json:"train_type"`
	Destination string `json:"destination"` // names joined with " / "
	Platform    string `json:"platform"`

	// Departure is the authoritative departure time; zero when the source
	// timestamp could only be read leniently.
	Departure time.Time `json:"-"`
	// TimeISO is the timestamp string exactly as the source supplied it.
	TimeISO string `json:"time_iso"`
}

// HasTimestamp reports whether the candidate carries an absolute departure time.
func (c DepartureCandidate) HasTimestamp() bool {
	return !c.Departure.IsZero()
}

// DepartureHHMM renders the wall-clock departure as "HH:MM".
func (c DepartureCandidate) DepartureHHMM() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Less orders candidates by (hour, minute, operation id).
func (c DepartureCandidate) Less(other DepartureCandidate) bool {
	if c.Hour != other.Hour {
		return c.Hour < other.Hour
	}
	if c.Minute != other.Minute {
		return c.Minute < other.Minute
	}
	return c.OperationID < other.OperationID
}

// SameKey reports whether both candidates share the uniqueness key.
func (c DepartureCandidate) SameKey(other DepartureCandidate) bool {
	return c.Hour == other.Hour && c.Minute == other.Minute && c.OperationID == other.OperationID
}

// StopEvent is one stop of a run's itinerary.
type StopEvent struct {
	StationName string
	Time        time.Time
}

type stopEventJSON struct {
	Station string `json:"station"`
	Time    string `json:"time"`
}

func (s StopEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(stopEventJSON{
		Station: s.StationName,
		Time:    timeutil.FormatTimestamp(s.Time),
	})
}

func (s *StopEvent) UnmarshalJSON(data []byte) error {
	var raw stopEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.StationName = raw.Station
	s.Time = time.Time{}
	if raw.Time != "" {
		t, err := timeutil.ParseTimestamp(raw.Time)
		if err != nil {
			return fmt.Errorf("stop %s: %w", raw.Station, err)
		}
		s.Time = t
	}
	return nil
}

// RouteRecord is a verified, calendar-classified journey leg.
type RouteRecord struct {
	DepartureCandidate
	CalendarClass calendar.Class
	// Stops holds the itinerary restricted to the points of interest, in
	// travel order.
	Stops []StopEvent
}

// StopTime returns the projected time at station.
func (r RouteRecord) StopTime(station string) (time.Time, bool) {
	for _, s := range r.Stops {
		if s.StationName == station && !s.Time.IsZero() {
			return s.Time, true
		}
	}
	return time.Time{}, false
}

// LastStop returns the final projected stop.
func (r RouteRecord) LastStop() (StopEvent, bool) {
	if len(r.Stops) == 0 {
		return StopEvent{}, false
	}
	return r.Stops[len(r.Stops)-1], true
}

// RouteRow is the published shape of a RouteRecord.
type RouteRow struct {
	Hour       int         `json:"hour"`
	Minute     int         `json:"minute"`
	OpID       string      `json:"opId"`
	TrainType  string      `json:"trainType"`
	Dest       string      `json:"dest"`
	Platform   string      `json:"platform"`
	DepartHHMM string      `json:"departHHMM"`
	TimeISO    string      `json:"timeISO"`
	Stops      []StopEvent `json:"stops"`
}

// Row converts the record to its published shape.
func (r RouteRecord) Row() RouteRow {
	stops := r.Stops
	if stops == nil {
		stops = []StopEvent{}
	}
	return RouteRow{
		Hour:       r.Hour,
		Minute:     r.Minute,
		OpID:       r.OperationID,
		TrainType:  r.TrainType,
		Dest:       r.Destination,
		Platform:   r.Platform,
		DepartHHMM: r.DepartureHHMM(),
		TimeISO:    r.TimeISO,
		Stops:      stops,
	}
}

// ThroughJourney is a rider-facing trip made of one or more legs. Legs joined
// at a transfer station carry TransferStation and TransferArrival; a direct
// run has a single leg and no transfer.
type ThroughJourney struct {
	Legs            []RouteRecord
	TransferStation string
	OriginArrival   time.Time // time at the boarding stop of the first leg
	TransferArrival time.Time
	FinalArrival    time.Time
}

type throughJourneyJSON struct {
	Legs            []RouteRow `json:"legs"`
	TransferStation string     `json:"transferStation,omitempty"`
	OriginArrival   string     `json:"originArrival"`
	TransferArrival string     `json:"transferArrival,omitempty"`
	FinalArrival    string     `json:"finalArrival"`
}

func (j ThroughJourney) MarshalJSON() ([]byte, error) {
	rows := make([]RouteRow, 0, len(j.Legs))
	for _, leg := range j.Legs {
		rows = append(rows, leg.Row())
	}
	return json.Marshal(throughJourneyJSON{
		Legs:            rows,
		TransferStation: j.TransferStation,
		OriginArrival:   timeutil.FormatTimestamp(j.OriginArrival),
		TransferArrival: timeutil.FormatTimestamp(j.TransferArrival),
		FinalArrival:    timeutil.FormatTimestamp(j.FinalArrival),
	})
}

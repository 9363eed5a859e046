// Package verify confirms that a departure candidate actually runs to the
// expected terminal on the expected calendar, and turns it into a RouteRecord.
package verify

import (
	"takao35/pkg/calendar"
	"takao35/pkg/types"
)

// Outcome is the verdict for one candidate.
type Outcome int

const (
	Accepted Outcome = iota
	// AcceptedWithoutTimestamp means the candidate carried no timestamp at
	// all, so the caller's calendar class was trusted as given.
	AcceptedWithoutTimestamp
	RejectedNoStops
	RejectedTerminalMismatch
	RejectedCalendarMismatch
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case AcceptedWithoutTimestamp:
		return "accepted_without_timestamp"
	case RejectedNoStops:
		return "rejected_no_stops"
	case RejectedTerminalMismatch:
		return "rejected_terminal_mismatch"
	case RejectedCalendarMismatch:
		return "rejected_calendar_mismatch"
	default:
		return "unknown"
	}
}

// Kept reports whether the outcome produced a record.
func (o Outcome) Kept() bool {
	return o == Accepted || o == AcceptedWithoutTimestamp
}

// Verifier holds the classifier and the stations retained in records.
type Verifier struct {
	classifier       *calendar.Classifier
	pointsOfInterest map[string]struct{}
}

// New builds a Verifier. A nil classifier uses the built-in Japanese calendar.
func New(classifier *calendar.Classifier, pointsOfInterest []string) *Verifier {
	if classifier == nil {
		classifier = calendar.NewClassifier(nil)
	}
	poi := make(map[string]struct{}, len(pointsOfInterest))
	for _, name := range pointsOfInterest {
		poi[name] = struct{}{}
	}
	return &Verifier{classifier: classifier, pointsOfInterest: poi}
}

// Verify checks the itinerary of c against requiredFinal and class.
//
// The last stop of the full itinerary is compared before projection, so a
// terminal that is not a point of interest still counts. An empty
// requiredFinal disables the terminal check.
func (v *Verifier) Verify(c types.DepartureCandidate, stops []types.StopEvent, requiredFinal string, class calendar.Class) (types.RouteRecord, Outcome) {
	if len(stops) == 0 {
		return types.RouteRecord{}, RejectedNoStops
	}

	if requiredFinal != "" && stops[len(stops)-1].StationName != requiredFinal {
		return types.RouteRecord{}, RejectedTerminalMismatch
	}

	outcome := Accepted
	var computed calendar.Class
	switch {
	case c.HasTimestamp():
		computed = v.classifier.Classify(c.Departure)
	case c.TimeISO != "":
		// Unreadable timestamps fall back to weekday.
		computed = v.classifier.ClassifyString(c.TimeISO)
	default:
		computed = class
		outcome = AcceptedWithoutTimestamp
	}
	if computed != class {
		return types.RouteRecord{}, RejectedCalendarMismatch
	}

	return types.RouteRecord{
		DepartureCandidate: c,
		CalendarClass:      class,
		Stops:              v.Project(stops),
	}, outcome
}

// Project keeps the stops at points of interest, in itinerary order.
func (v *Verifier) Project(stops []types.StopEvent) []types.StopEvent {
	projected := make([]types.StopEvent, 0, len(v.pointsOfInterest))
	for _, s := range stops {
		if _, ok := v.pointsOfInterest[s.StationName]; ok {
			projected = append(projected, s)
		}
	}
	return projected
}

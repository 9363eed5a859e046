// Package assemble joins verified legs into rider-facing through-journeys.
//
// Matching is greedy and local: each upstream leg takes the earliest
// downstream departure that respects the minimum connection time at the
// transfer station. It is not an itinerary search. A later downstream run
// that would reach the terminal sooner is never preferred, and two upstream
// legs may share the same downstream leg.
package assemble

import (
	"sort"
	"time"

	"takao35/pkg/types"
)

type upstreamLeg struct {
	index   int
	record  types.RouteRecord
	arrival time.Time
}

type downstreamLeg struct {
	record    types.RouteRecord
	departure time.Time
}

// Assemble matches every upstream leg to the nearest feasible downstream leg
// at transfer. Upstream legs without a time at transfer, and legs with no
// feasible connection, produce no journey. Results are in upstream
// departure order.
func Assemble(upstream, downstream []types.RouteRecord, transfer string, minConnection time.Duration) []types.ThroughJourney {
	ups := sortedUpstream(upstream, transfer)
	downs := sortedDownstream(downstream, transfer)

	matched := make([]*types.ThroughJourney, len(upstream))
	j := 0
	for _, up := range ups {
		earliest := up.arrival.Add(minConnection)
		for j < len(downs) && downs[j].departure.Before(earliest) {
			j++
		}
		if j == len(downs) {
			// Arrivals only grow from here, so nothing later can connect.
			break
		}
		down := downs[j].record
		matched[up.index] = &types.ThroughJourney{
			Legs:            []types.RouteRecord{up.record, down},
			TransferStation: transfer,
			OriginArrival:   boardingTime(up.record),
			TransferArrival: up.arrival,
			FinalArrival:    finalTime(down),
		}
	}

	journeys := make([]types.ThroughJourney, 0, len(ups))
	for _, m := range matched {
		if m != nil {
			journeys = append(journeys, *m)
		}
	}
	return journeys
}

// Direct wraps single-leg runs as journeys, boarding at origin. Records that
// do not call at origin board at their own departure time.
func Direct(records []types.RouteRecord, origin string) []types.ThroughJourney {
	sorted := make([]types.RouteRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Less(sorted[b].DepartureCandidate)
	})

	journeys := make([]types.ThroughJourney, 0, len(sorted))
	for _, r := range sorted {
		board, ok := r.StopTime(origin)
		if !ok {
			board = boardingTime(r)
		}
		journeys = append(journeys, types.ThroughJourney{
			Legs:          []types.RouteRecord{r},
			OriginArrival: board,
			FinalArrival:  finalTime(r),
		})
	}
	return journeys
}

func sortedUpstream(records []types.RouteRecord, transfer string) []upstreamLeg {
	ordered := make([]types.RouteRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].Less(ordered[b].DepartureCandidate)
	})

	legs := make([]upstreamLeg, 0, len(ordered))
	for i, r := range ordered {
		arrival, ok := r.StopTime(transfer)
		if !ok {
			continue
		}
		legs = append(legs, upstreamLeg{index: i, record: r, arrival: arrival})
	}
	sort.SliceStable(legs, func(a, b int) bool {
		return legs[a].arrival.Before(legs[b].arrival)
	})
	return legs
}

func sortedDownstream(records []types.RouteRecord, transfer string) []downstreamLeg {
	legs := make([]downstreamLeg, 0, len(records))
	for _, r := range records {
		departure, ok := r.StopTime(transfer)
		if !ok {
			if !r.HasTimestamp() {
				continue
			}
			departure = r.Departure
		}
		legs = append(legs, downstreamLeg{record: r, departure: departure})
	}
	sort.SliceStable(legs, func(a, b int) bool {
		if !legs[a].departure.Equal(legs[b].departure) {
			return legs[a].departure.Before(legs[b].departure)
		}
		return legs[a].record.OperationID < legs[b].record.OperationID
	})
	return legs
}

func boardingTime(r types.RouteRecord) time.Time {
	for _, s := range r.Stops {
		if !s.Time.IsZero() {
			return s.Time
		}
	}
	return r.Departure
}

func finalTime(r types.RouteRecord) time.Time {
	for i := len(r.Stops) - 1; i >= 0; i-- {
		if !r.Stops[i].Time.IsZero() {
			return r.Stops[i].Time
		}
	}
	return time.Time{}
}

package parser

import (
	"context"
	"fmt"
	"time"

	"takao35/pkg/timeutil"
	"takao35/pkg/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ParseStops decodes a stop-sequence payload ({"stops": [...]}) into the
// run's itinerary in travel order.
func (p *TimetableParser) ParseStops(ctx context.Context, payload []byte) ([]types.StopEvent, error) {
	_, span := p.tracer.Start(ctx, "timetable_parser.parse_stops",
		trace.WithAttributes(attribute.Int("payload_size_bytes", len(payload))),
	)
	defer span.End()

	doc, err := decodeJSON(payload)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse stops JSON: %w", err)
	}

	stops := StopsFromMap(doc)
	span.SetAttributes(attribute.Int("stops_count", len(stops)))
	return stops, nil
}

// StopsFromMap reads the stops list of a decoded payload. Entries that are
// not objects, or empty objects, are skipped; a stop without a name is kept
// with an empty name so the itinerary's last stop stays the real last stop.
func StopsFromMap(doc map[string]interface{}) []types.StopEvent {
	var stops []types.StopEvent
	for _, s := range listValue(doc["stops"]) {
		sm, ok := s.(map[string]interface{})
		if !ok || len(sm) == 0 {
			continue
		}
		stops = append(stops, types.StopEvent{
			StationName: stationName(sm),
			Time:        stopTime(sm),
		})
	}
	return stops
}

func stationName(stop map[string]interface{}) string {
	if name, ok := stringValue(stop["name"]); ok {
		return name
	}
	name, _ := stringValue(stop["station"])
	return name
}

// stopTime prefers the departure time and falls back to the arrival time.
func stopTime(stop map[string]interface{}) time.Time {
	for _, key := range []string{"departure_time", "arrive_time"} {
		s, ok := stop[key].(string)
		if !ok || s == "" {
			continue
		}
		if t, err := timeutil.ParseTimestamp(s); err == nil {
			return t
		}
	}
	return time.Time{}
}

package parser

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"takao35/pkg/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ExtractStats counts what happened to the minute entries of one payload.
type ExtractStats struct {
	Seen          int
	Malformed     int // not an object, or missing id/time
	TypeFiltered  int
	AmbiguousTime int // no minute could be resolved
	Duplicates    int
	Kept          int
}

// SkipReasons maps each skip reason to its count, omitting zeros.
func (s ExtractStats) SkipReasons() map[string]int {
	reasons := make(map[string]int, 4)
	for reason, n := range map[string]int{
		"malformed":      s.Malformed,
		"type_filtered":  s.TypeFiltered,
		"ambiguous_time": s.AmbiguousTime,
		"duplicate":      s.Duplicates,
	} {
		if n > 0 {
			reasons[reason] = n
		}
	}
	return reasons
}

type TimetableParser struct {
	tracer trace.Tracer
}

func NewTimetableParser() *TimetableParser {
	return &TimetableParser{
		tracer: otel.Tracer("timetable-parser"),
	}
}

// ExtractCandidates decodes a station timetable payload and returns its
// departure candidates. Only a payload that is not JSON at all is an error;
// malformed entries inside it are skipped.
func (p *TimetableParser) ExtractCandidates(ctx context.Context, payload []byte, typeKeywords []string) ([]types.DepartureCandidate, ExtractStats, error) {
	_, span := p.tracer.Start(ctx, "timetable_parser.extract_candidates",
		trace.WithAttributes(
			attribute.Int("payload_size_bytes", len(payload)),
			attribute.StringSlice("type_keywords", typeKeywords),
		),
	)
	defer span.End()

	doc, err := decodeJSON(payload)
	if err != nil {
		span.RecordError(err)
		return nil, ExtractStats{}, fmt.Errorf("failed to parse timetable JSON: %w", err)
	}

	candidates, stats := ExtractCandidates(doc, typeKeywords)

	span.SetAttributes(
		attribute.Int("entries_seen", stats.Seen),
		attribute.Int("entries_malformed", stats.Malformed),
		attribute.Int("entries_type_filtered", stats.TypeFiltered),
		attribute.Int("entries_ambiguous_time", stats.AmbiguousTime),
		attribute.Int("candidates", len(candidates)),
	)

	return candidates, stats, nil
}

// ExtractCandidates walks timetables[].operations[].minutes[] and returns the
// candidates sorted by (hour, minute, operation id) with duplicate keys
// removed. It never fails: anything it cannot read is counted and skipped.
func ExtractCandidates(doc map[string]interface{}, typeKeywords []string) ([]types.DepartureCandidate, ExtractStats) {
	var stats ExtractStats
	var out []types.DepartureCandidate

	for _, tbl := range listValue(doc["timetables"]) {
		tblMap, ok := tbl.(map[string]interface{})
		if !ok {
			continue
		}
		for _, op := range listValue(tblMap["operations"]) {
			opMap, ok := op.(map[string]interface{})
			if !ok {
				continue
			}
			hourHint, hasHint := intValue(opMap["hour"])
			for _, minute := range listValue(opMap["minutes"]) {
				stats.Seen++
				c, reason := parseMinute(minute, typeKeywords, hourHint, hasHint)
				switch reason {
				case skipNone:
					out = append(out, c)
				case skipMalformed:
					stats.Malformed++
				case skipType:
					stats.TypeFiltered++
				case skipAmbiguousTime:
					stats.AmbiguousTime++
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Less(out[j]) })

	uniq := out[:0]
	for i, c := range out {
		if i > 0 && c.SameKey(uniq[len(uniq)-1]) {
			stats.Duplicates++
			continue
		}
		uniq = append(uniq, c)
	}
	stats.Kept = len(uniq)

	return uniq, stats
}

type skipReason int

const (
	skipNone skipReason = iota
	skipMalformed
	skipType
	skipAmbiguousTime
)

func parseMinute(entry interface{}, typeKeywords []string, hourHint int, hasHint bool) (types.DepartureCandidate, skipReason) {
	m, ok := entry.(map[string]interface{})
	if !ok {
		return types.DepartureCandidate{}, skipMalformed
	}

	opID, _ := stringValue(m["id"])
	timeISO, _ := m["time"].(string)
	if opID == "" || timeISO == "" {
		return types.DepartureCandidate{}, skipMalformed
	}

	trainType, _ := m["type"].(string)
	if !IsTargetType(trainType, typeKeywords) {
		return types.DepartureCandidate{}, skipType
	}

	clock := resolveClock(timeISO, hourHint, hasHint)
	if !clock.hasMinute {
		return types.DepartureCandidate{}, skipAmbiguousTime
	}

	platform, _ := stringValue(m["platform"])

	return types.DepartureCandidate{
		Hour:        clock.hour,
		Minute:      clock.minute,
		OperationID: opID,
		TrainType:   trainType,
		Destination: strings.Join(destinationNames(m["destinations"]), " / "),
		Platform:    platform,
		Departure:   clock.departure,
		TimeISO:     timeISO,
	}, skipNone
}

// IsTargetType reports whether a train type passes the keyword filter. An
// empty keyword list accepts everything, including an unknown type.
func IsTargetType(trainType string, typeKeywords []string) bool {
	if len(typeKeywords) == 0 {
		return true
	}
	if trainType == "" {
		return false
	}
	for _, k := range typeKeywords {
		if k != "" && strings.Contains(trainType, k) {
			return true
		}
	}
	return false
}

func destinationNames(v interface{}) []string {
	var names []string
	for _, d := range listValue(v) {
		dm, ok := d.(map[string]interface{})
		if !ok {
			continue
		}
		if name, ok := dm["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

package metrics

import (
	"go.opentelemetry.io/otel/metric"
)

// Timetable API
var (
	// APIRequestsTotal counts timetable API requests by endpoint and status
	APIRequestsTotal metric.Int64Counter

	// APIRequestDuration measures the duration of timetable API requests
	APIRequestDuration metric.Float64Histogram

	// APIRetriesTotal counts retried timetable API requests
	APIRetriesTotal metric.Int64Counter

	// APIResponseBodySize measures the size of timetable API payloads
	APIResponseBodySize metric.Int64Histogram

	// StopCacheLookups counts stop cache lookups by result
	StopCacheLookups metric.Int64Counter
)

// Collection
var (
	// CollectCyclesTotal counts collection cycles
	CollectCyclesTotal metric.Int64Counter

	// CollectCycleDuration measures the duration of collection cycles
	CollectCycleDuration metric.Float64Histogram

	// CollectJobsInFlight tracks concurrent route x class jobs
	CollectJobsInFlight metric.Int64UpDownCounter

	// CandidatesExtracted counts candidates produced by the extractor
	CandidatesExtracted metric.Int64Counter

	// CandidatesSkipped counts raw timetable entries skipped by reason
	CandidatesSkipped metric.Int64Counter

	// VerificationOutcomes counts verifier outcomes
	VerificationOutcomes metric.Int64Counter

	// LookupFailures counts stop lookups that failed at transport level
	LookupFailures metric.Int64Counter

	// RecordsKept counts records that passed verification
	RecordsKept metric.Int64Counter
)

// Publishing
var (
	// JourneysAssembled counts published journeys by route
	JourneysAssembled metric.Int64Counter

	// LokiSendTotal counts Loki pushes by status
	LokiSendTotal metric.Int64Counter
)

// initializeInstruments creates all metric instruments
func initializeInstruments() error {
	var err error

	APIRequestsTotal, err = Meter.Int64Counter(
		"navitime.api.requests.total",
		metric.WithDescription("Total timetable API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	APIRequestDuration, err = Meter.Float64Histogram(
		"navitime.api.request.duration",
		metric.WithDescription("Duration of timetable API requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return err
	}

	APIRetriesTotal, err = Meter.Int64Counter(
		"navitime.api.retries.total",
		metric.WithDescription("Retried timetable API requests"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return err
	}

	APIResponseBodySize, err = Meter.Int64Histogram(
		"navitime.api.response.body.size",
		metric.WithDescription("Size of timetable API response bodies"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1024, 10240, 102400, 1048576, 10485760),
	)
	if err != nil {
		return err
	}

	StopCacheLookups, err = Meter.Int64Counter(
		"stop_cache.lookups",
		metric.WithDescription("Stop cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return err
	}

	CollectCyclesTotal, err = Meter.Int64Counter(
		"collector.cycles.total",
		metric.WithDescription("Total number of collection cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return err
	}

	CollectCycleDuration, err = Meter.Float64Histogram(
		"collector.cycle.duration",
		metric.WithDescription("Duration of collection cycles"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 10, 30, 60, 120, 300, 600, 1200, 1800),
	)
	if err != nil {
		return err
	}

	CollectJobsInFlight, err = Meter.Int64UpDownCounter(
		"collector.jobs.in_flight",
		metric.WithDescription("Route and calendar class jobs currently running"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return err
	}

	CandidatesExtracted, err = Meter.Int64Counter(
		"extractor.candidates.extracted",
		metric.WithDescription("Departure candidates extracted from timetables"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return err
	}

	CandidatesSkipped, err = Meter.Int64Counter(
		"extractor.entries.skipped",
		metric.WithDescription("Timetable entries skipped by reason"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return err
	}

	VerificationOutcomes, err = Meter.Int64Counter(
		"verifier.outcomes",
		metric.WithDescription("Terminal verification outcomes"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return err
	}

	LookupFailures, err = Meter.Int64Counter(
		"collector.lookup.failures",
		metric.WithDescription("Stop lookups that failed and were skipped"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return err
	}

	RecordsKept, err = Meter.Int64Counter(
		"collector.records.kept",
		metric.WithDescription("Route records kept after verification"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return err
	}

	JourneysAssembled, err = Meter.Int64Counter(
		"assembler.journeys",
		metric.WithDescription("Journeys assembled for publishing"),
		metric.WithUnit("{journey}"),
	)
	if err != nil {
		return err
	}

	LokiSendTotal, err = Meter.Int64Counter(
		"loki.send.total",
		metric.WithDescription("Total Loki sends by status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	return nil
}

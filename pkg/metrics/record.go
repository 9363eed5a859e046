package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// The helpers below are no-ops until InitMetrics has created the instruments.

func add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if c == nil || n == 0 {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}

// RecordAPIRequest records one timetable API attempt.
func RecordAPIRequest(ctx context.Context, endpoint string, status int, elapsed time.Duration, size int) {
	attrs := []attribute.KeyValue{
		attribute.String("endpoint", endpoint),
		attribute.Int("http.status_code", status),
	}
	add(ctx, APIRequestsTotal, 1, attrs...)
	if APIRequestDuration != nil {
		APIRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	}
	if APIResponseBodySize != nil && size > 0 {
		APIResponseBodySize.Record(ctx, int64(size), metric.WithAttributes(attribute.String("endpoint", endpoint)))
	}
}

func RecordAPIRetry(ctx context.Context, endpoint string) {
	add(ctx, APIRetriesTotal, 1, attribute.String("endpoint", endpoint))
}

func RecordStopCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	add(ctx, StopCacheLookups, 1, attribute.String("result", result))
}

// RecordExtraction records extractor output for one timetable.
func RecordExtraction(ctx context.Context, route string, kept int, skipped map[string]int) {
	add(ctx, CandidatesExtracted, int64(kept), attribute.String("route", route))
	for reason, n := range skipped {
		add(ctx, CandidatesSkipped, int64(n),
			attribute.String("route", route),
			attribute.String("reason", reason),
		)
	}
}

func RecordVerification(ctx context.Context, route, class, outcome string) {
	add(ctx, VerificationOutcomes, 1,
		attribute.String("route", route),
		attribute.String("calendar_class", class),
		attribute.String("outcome", outcome),
	)
}

func RecordLookupFailure(ctx context.Context, route string) {
	add(ctx, LookupFailures, 1, attribute.String("route", route))
}

func RecordKept(ctx context.Context, route, class string, n int) {
	add(ctx, RecordsKept, int64(n),
		attribute.String("route", route),
		attribute.String("calendar_class", class),
	)
}

// JobStarted marks a route x class job in flight and returns its completion func.
func JobStarted(ctx context.Context) func() {
	if CollectJobsInFlight == nil {
		return func() {}
	}
	CollectJobsInFlight.Add(ctx, 1)
	return func() { CollectJobsInFlight.Add(ctx, -1) }
}

func RecordCycle(ctx context.Context, mode string, elapsed time.Duration, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	add(ctx, CollectCyclesTotal, 1,
		attribute.String("mode", mode),
		attribute.String("status", status),
	)
	if CollectCycleDuration != nil {
		CollectCycleDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
	}
	if ok {
		RecordLastSuccessTimestamp()
	}
}

func RecordJourneys(ctx context.Context, route, class string, n int) {
	add(ctx, JourneysAssembled, int64(n),
		attribute.String("route", route),
		attribute.String("calendar_class", class),
	)
}

func RecordLokiSend(ctx context.Context, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	add(ctx, LokiSendTotal, 1, attribute.String("status", status))
}

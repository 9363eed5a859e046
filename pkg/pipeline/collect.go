package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"takao35/pkg/calendar"
	"takao35/pkg/config"
	"takao35/pkg/loki"
	"takao35/pkg/metrics"
	"takao35/pkg/store"
	"takao35/pkg/types"
	"takao35/pkg/verify"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const progressEvery = 25

// RouteResult is the outcome of collecting one route under one calendar class.
type RouteResult struct {
	Route         config.Route
	CalendarClass calendar.Class
	RequestTime   time.Time
	Records       []types.RouteRecord
	Considered    int
	Outcomes      map[verify.Outcome]int
	LookupFailed  int
	Path          string
}

// Collect runs every configured route under every calendar class. A job that
// fails is logged; Collect itself fails only when every job failed.
func (p *Pipeline) Collect(ctx context.Context, at time.Time) ([]RouteResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.collect",
		trace.WithAttributes(attribute.Int("routes_count", len(p.config.Routes))),
	)
	defer span.End()

	type job struct {
		route config.Route
		class calendar.Class
	}
	type jobResult struct {
		job    job
		result *RouteResult
		err    error
	}

	var jobs []job
	for _, class := range p.config.Classes {
		for _, route := range p.config.Routes {
			jobs = append(jobs, job{route: route, class: class})
		}
	}

	results := make(chan jobResult, len(jobs))
	sem := make(chan struct{}, p.config.MaxConcurrentJobs)

	for _, j := range jobs {
		go func(j job) {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- jobResult{job: j, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			done := metrics.JobStarted(ctx)
			defer done()

			res, err := p.CollectRoute(ctx, j.route, j.class, p.requestTime(at, j.class))
			results <- jobResult{job: j, result: res, err: err}
		}(j)
	}

	serviceDate := ServiceDate(at)
	var collected []RouteResult
	var errs []error
	for i := 0; i < len(jobs); i++ {
		r := <-results
		if r.err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", r.job.route.Key, r.job.class, r.err))
			slog.Error("Error collecting route", "route", r.job.route.Key, "calendar_class", r.job.class, "error", r.err)
			continue
		}
		p.finishRoute(ctx, serviceDate, r.result)
		collected = append(collected, *r.result)
	}

	span.SetAttributes(
		attribute.Int("successful_jobs", len(collected)),
		attribute.Int("failed_jobs", len(errs)),
	)

	// Return error only if all jobs failed
	if len(jobs) > 0 && len(errs) == len(jobs) {
		err := fmt.Errorf("all routes failed: %w", errors.Join(errs...))
		span.RecordError(err)
		return nil, err
	}
	return collected, nil
}

// finishRoute persists and forwards a collected route.
func (p *Pipeline) finishRoute(ctx context.Context, serviceDate time.Time, res *RouteResult) {
	p.remember(res.Route.Key, res.CalendarClass, res.Records)
	metrics.RecordKept(ctx, res.Route.Key, string(res.CalendarClass), len(res.Records))

	if p.config.DryRun {
		if err := p.handleDryRun(ctx, serviceDate, res); err != nil {
			slog.Error("Error in dry run", "route", res.Route.Key, "error", err)
		}
		return
	}

	path, err := p.store.SaveRoute(ctx, serviceDate, res.CalendarClass, res.Route.Key, res.Records)
	switch {
	case errors.Is(err, store.ErrNoRecords):
		slog.Warn("No records kept, nothing saved", "route", res.Route.Key, "calendar_class", res.CalendarClass)
	case err != nil:
		slog.Error("Error saving route", "route", res.Route.Key, "calendar_class", res.CalendarClass, "error", err)
	default:
		res.Path = path
		slog.Info("Saved route", "route", res.Route.Key, "calendar_class", res.CalendarClass,
			"records", len(res.Records), "path", path)
	}

	if p.lokiClient != nil && len(res.Records) > 0 {
		if err := p.sendToLoki(ctx, serviceDate, res); err != nil {
			slog.Error("Error sending to Loki", "route", res.Route.Key, "error", err)
		}
	}
}

// CollectRoute fetches one station timetable, looks up the stop sequence of
// every candidate and keeps those that pass verification.
func (p *Pipeline) CollectRoute(ctx context.Context, route config.Route, class calendar.Class, at time.Time) (*RouteResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.collect_route",
		trace.WithAttributes(
			attribute.String("route", route.Key),
			attribute.String("calendar_class", string(class)),
			attribute.String("request_time", at.Format(time.RFC3339)),
		),
	)
	defer span.End()

	payload, err := p.client.FetchTimetable(ctx, route, at, class)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch timetable: %w", err)
	}

	candidates, stats, err := p.parser.ExtractCandidates(ctx, payload.Body, route.TypeKeywords)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to extract candidates: %w", err)
	}
	metrics.RecordExtraction(ctx, route.Key, len(candidates), stats.SkipReasons())

	slog.Info("Extracted candidates", "route", route.Key, "calendar_class", class,
		"candidates", len(candidates), "skipped", stats.SkipReasons())

	res := &RouteResult{
		Route:         route,
		CalendarClass: class,
		RequestTime:   at,
		Records:       make([]types.RouteRecord, 0, len(candidates)),
		Outcomes:      make(map[verify.Outcome]int),
	}

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Considered++

		stops, err := p.lookupStops(ctx, route, c, at, class)
		if err != nil {
			res.LookupFailed++
			metrics.RecordLookupFailure(ctx, route.Key)
			slog.Warn("Stop lookup failed, skipping candidate",
				"route", route.Key, "operation_id", c.OperationID, "departure", c.DepartureHHMM(), "error", err)
		} else {
			record, outcome := p.verifier.Verify(c, stops, route.RequiredFinalStation, class)
			res.Outcomes[outcome]++
			metrics.RecordVerification(ctx, route.Key, string(class), outcome.String())
			if outcome.Kept() {
				res.Records = append(res.Records, record)
			} else {
				slog.Debug("Candidate rejected", "route", route.Key, "operation_id", c.OperationID,
					"departure", c.DepartureHHMM(), "outcome", outcome.String())
			}
		}

		if (i+1)%progressEvery == 0 {
			slog.Info("Progress", "route", route.Key, "calendar_class", class,
				"done", i+1, "total", len(candidates), "kept", len(res.Records))
		}
	}

	span.SetAttributes(
		attribute.Int("candidates_considered", res.Considered),
		attribute.Int("records_kept", len(res.Records)),
		attribute.Int("lookup_failures", res.LookupFailed),
	)
	slog.Info("Collected route", "route", route.Key, "calendar_class", class,
		"kept", len(res.Records), "considered", res.Considered, "lookup_failures", res.LookupFailed)
	return res, nil
}

// lookupStops fetches the itinerary of c. The request time is the candidate's
// own departure when known, otherwise its wall-clock time on the request date.
func (p *Pipeline) lookupStops(ctx context.Context, route config.Route, c types.DepartureCandidate, at time.Time, class calendar.Class) ([]types.StopEvent, error) {
	when := c.Departure
	if !c.HasTimestamp() {
		when = time.Date(at.Year(), at.Month(), at.Day(), c.Hour, c.Minute, 0, 0, at.Location())
	}

	payload, err := p.client.FetchStops(ctx, route, c.OperationID, when, class)
	if err != nil {
		return nil, err
	}
	stops, err := p.parser.ParseStops(ctx, payload.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stops: %w", err)
	}
	return stops, nil
}

func (p *Pipeline) sendToLoki(ctx context.Context, serviceDate time.Time, res *RouteResult) error {
	err := p.lokiClient.SendRouteRecords(ctx, loki.Batch{
		RouteKey:      res.Route.Key,
		CalendarClass: res.CalendarClass,
		ServiceDate:   serviceDate,
		Records:       res.Records,
	})
	metrics.RecordLokiSend(ctx, err == nil)
	return err
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"takao35/pkg/assemble"
	"takao35/pkg/calendar"
	"takao35/pkg/config"
	"takao35/pkg/metrics"
	"takao35/pkg/store"
	"takao35/pkg/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Published holds the documents built by Publish and where they were written.
type Published struct {
	Timetables    *store.Document[types.RouteRow]
	Journeys      *store.Document[types.ThroughJourney]
	TimetablePath string
	JourneysPath  string
}

// Publish builds the timetable and through-journey documents for serviceDate.
// Records collected by this process are used when present; otherwise they are
// read back from the store. A route with no saved file publishes as empty.
func (p *Pipeline) Publish(ctx context.Context, serviceDate time.Time) (*Published, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.publish",
		trace.WithAttributes(
			attribute.String("service_date", serviceDate.Format("2006-01-02")),
			attribute.Int("through_routes_count", len(p.config.ThroughRoutes)),
		),
	)
	defer span.End()

	generatedAt := p.clock.Now()
	out := &Published{
		Timetables: store.NewDocument[types.RouteRow](generatedAt, serviceDate),
		Journeys:   store.NewDocument[types.ThroughJourney](generatedAt, serviceDate),
	}

	records := make(map[collectKey][]types.RouteRecord)
	load := func(key string, class calendar.Class) ([]types.RouteRecord, error) {
		k := collectKey{key, class}
		if r, ok := records[k]; ok {
			return r, nil
		}
		r, err := p.recordsFor(ctx, serviceDate, key, class)
		if err != nil {
			return nil, err
		}
		records[k] = r
		return r, nil
	}

	for _, class := range p.config.Classes {
		for _, route := range p.config.Routes {
			r, err := load(route.Key, class)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}
			rows := make([]types.RouteRow, 0, len(r))
			for _, rec := range r {
				rows = append(rows, rec.Row())
			}
			out.Timetables.Set(route.Key, class, rows)
		}

		for _, tr := range p.config.ThroughRoutes {
			journeys, err := p.buildJourneys(tr, class, load)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}
			out.Journeys.Set(tr.Key, class, journeys)
			metrics.RecordJourneys(ctx, tr.Key, string(class), len(journeys))
			slog.Info("Assembled journeys", "through_route", tr.Key, "calendar_class", class, "journeys", len(journeys))
		}
	}

	if p.config.DryRun {
		p.printPublished(out)
		return out, nil
	}

	var err error
	out.TimetablePath, err = p.store.WriteDocument(ctx, store.TimetableDocumentName(serviceDate), out.Timetables)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out.JourneysPath, err = p.store.WriteDocument(ctx, store.JourneysDocumentName(serviceDate), out.Journeys)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	slog.Info("Published documents", "timetables", out.TimetablePath, "journeys", out.JourneysPath)
	return out, nil
}

func (p *Pipeline) buildJourneys(tr config.ThroughRoute, class calendar.Class,
	load func(string, calendar.Class) ([]types.RouteRecord, error)) ([]types.ThroughJourney, error) {
	upstream, err := load(tr.Upstream, class)
	if err != nil {
		return nil, err
	}
	if tr.IsDirect() {
		return assemble.Direct(upstream, tr.Origin), nil
	}
	downstream, err := load(tr.Downstream, class)
	if err != nil {
		return nil, err
	}
	return assemble.Assemble(upstream, downstream, tr.TransferStation, tr.MinConnection()), nil
}

func (p *Pipeline) recordsFor(ctx context.Context, serviceDate time.Time, key string, class calendar.Class) ([]types.RouteRecord, error) {
	if r, ok := p.recall(key, class); ok {
		return r, nil
	}
	if p.config.DryRun {
		return nil, nil
	}

	r, err := p.store.LoadRoute(ctx, serviceDate, class, key)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("No saved records", "route", key, "calendar_class", class)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s/%s: %w", key, class, err)
	}
	return r, nil
}

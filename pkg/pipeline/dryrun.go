package pipeline

import (
	"context"
	"fmt"
	"time"

	"takao35/pkg/loki"
	"takao35/pkg/verify"
)

func (p *Pipeline) handleDryRun(ctx context.Context, serviceDate time.Time, res *RouteResult) error {
	_, span := p.tracer.Start(ctx, "pipeline.dry_run")
	defer span.End()

	w := p.stdout
	fmt.Fprintf(w, "\n=== DRY RUN - %s (%s) ===\n", res.Route.Key, res.CalendarClass)
	fmt.Fprintf(w, "Request time: %s\n", res.RequestTime.Format(time.RFC3339))
	fmt.Fprintf(w, "Candidates considered: %d, kept: %d, lookup failures: %d\n",
		res.Considered, len(res.Records), res.LookupFailed)
	for _, o := range []verify.Outcome{verify.RejectedNoStops, verify.RejectedTerminalMismatch, verify.RejectedCalendarMismatch} {
		if n := res.Outcomes[o]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", o, n)
		}
	}

	lines, err := loki.Batch{
		RouteKey:      res.Route.Key,
		CalendarClass: res.CalendarClass,
		ServiceDate:   serviceDate,
		Records:       res.Records,
	}.LogLines()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to render log lines for dry run: %w", err)
	}

	fmt.Fprintln(w, "\nIndividual Log Lines (as sent to Loki):")
	fmt.Fprintln(w, "----------------------------------------")
	for i, line := range lines {
		fmt.Fprintf(w, "Log Line %d: %s\n", i+1, line)
	}
	fmt.Fprintln(w, "=== END DRY RUN ===")
	return nil
}

func (p *Pipeline) printPublished(out *Published) {
	w := p.stdout
	fmt.Fprintln(w, "\n=== DRY RUN - Published documents ===")
	for _, class := range p.config.Classes {
		for _, key := range out.Timetables.RouteKeys() {
			fmt.Fprintf(w, "timetable %s/%s: %d rows\n", key, class, len(out.Timetables.Get(key, class)))
		}
		for _, key := range out.Journeys.RouteKeys() {
			fmt.Fprintf(w, "journeys %s/%s: %d\n", key, class, len(out.Journeys.Get(key, class)))
		}
	}
	fmt.Fprintln(w, "=== END DRY RUN ===")
}

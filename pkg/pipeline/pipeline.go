package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"takao35/pkg/cache"
	"takao35/pkg/calendar"
	"takao35/pkg/clock"
	"takao35/pkg/config"
	"takao35/pkg/loki"
	"takao35/pkg/metrics"
	"takao35/pkg/navitime"
	"takao35/pkg/parser"
	"takao35/pkg/store"
	"takao35/pkg/timeutil"
	"takao35/pkg/types"
	"takao35/pkg/verify"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Mode selects what a cycle does.
type Mode string

const (
	ModeCollect Mode = "collect"
	ModePublish Mode = "publish"
	ModeAll     Mode = "all"
)

const defaultMaxConcurrentJobs = 4

type Config struct {
	Mode             Mode
	Routes           []config.Route
	ThroughRoutes    []config.ThroughRoute
	PointsOfInterest []string
	Classes          []calendar.Class

	// At is the request date-time sent to the timetable API. Zero means the
	// clock's current time at the start of each cycle.
	At time.Time
	// MatchClassDate moves the request date of each calendar class forward to
	// the first day of that class, so both timetables can be collected from
	// one run.
	MatchClassDate bool

	OutputDir string
	DryRun    bool
	Interval  time.Duration

	BaseURL           string
	RequestInterval   time.Duration
	MaxAttempts       int
	MaxConcurrentJobs int

	LokiURL      string
	LokiUser     string
	LokiPassword string
}

type Pipeline struct {
	config     Config
	client     *navitime.Client
	parser     *parser.TimetableParser
	classifier *calendar.Classifier
	verifier   *verify.Verifier
	store      *store.Store
	lokiClient *loki.Client
	clock      clock.Clock
	stopCache  cache.StopCache
	holidays   calendar.HolidayTable
	stdout     io.Writer
	tracer     trace.Tracer

	mu        sync.Mutex
	collected map[collectKey][]types.RouteRecord
}

type collectKey struct {
	route string
	class calendar.Class
}

type Option func(*Pipeline)

func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithHolidays replaces the built-in Japanese holiday table.
func WithHolidays(table calendar.HolidayTable) Option {
	return func(p *Pipeline) { p.holidays = table }
}

func WithStopCache(c cache.StopCache) Option {
	return func(p *Pipeline) { p.stopCache = c }
}

// WithOutput redirects dry-run output.
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) { p.stdout = w }
}

func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeAll
	}
	switch cfg.Mode {
	case ModeCollect, ModePublish, ModeAll:
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	if cfg.Mode != ModePublish {
		if len(cfg.Routes) == 0 {
			return nil, fmt.Errorf("at least one route is required")
		}
		if len(cfg.PointsOfInterest) == 0 {
			return nil, fmt.Errorf("points of interest are required")
		}
	}
	if cfg.Mode == ModePublish && len(cfg.Routes) == 0 && len(cfg.ThroughRoutes) == 0 {
		return nil, fmt.Errorf("nothing to publish: no routes or through routes")
	}

	if len(cfg.Classes) == 0 {
		cfg.Classes = calendar.Classes
	}
	for _, c := range cfg.Classes {
		if _, err := calendar.ParseClass(string(c)); err != nil {
			return nil, err
		}
	}

	if !cfg.DryRun && cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}

	p := &Pipeline{
		config:    cfg,
		parser:    parser.NewTimetableParser(),
		clock:     clock.RealClock{},
		stdout:    os.Stdout,
		tracer:    otelapi.Tracer("pipeline"),
		collected: make(map[collectKey][]types.RouteRecord),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.classifier = calendar.NewClassifier(p.holidays)
	p.verifier = verify.New(p.classifier, cfg.PointsOfInterest)
	p.store = store.New(cfg.OutputDir)
	p.client = navitime.NewClient(navitime.Config{
		BaseURL:         cfg.BaseURL,
		RequestInterval: cfg.RequestInterval,
		MaxAttempts:     cfg.MaxAttempts,
		Cache:           p.stopCache,
	})

	// Only create Loki client if configured and not in dry run mode
	if !cfg.DryRun && cfg.LokiURL != "" {
		p.lokiClient = loki.NewClient(cfg.LokiURL, cfg.LokiUser, cfg.LokiPassword)
	}

	return p, nil
}

// Run processes once and, when Interval is positive, again on every tick
// until ctx is done. A single run returns the cycle's error.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.config.Interval <= 0 {
		return p.processOnce(ctx)
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	slog.Info("Pipeline started", "mode", p.config.Mode, "interval", p.config.Interval)

	if err := p.processOnce(ctx); err != nil {
		slog.Error("Error in initial processing", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Pipeline stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.processOnce(ctx); err != nil {
				slog.Error("Error processing", "error", err)
			}
		}
	}
}

func (p *Pipeline) processOnce(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.process_once",
		trace.WithAttributes(
			attribute.String("mode", string(p.config.Mode)),
			attribute.Bool("dry_run", p.config.DryRun),
			attribute.Int("routes_count", len(p.config.Routes)),
		),
	)
	defer span.End()

	start := time.Now()
	at := p.requestBase()

	var err error
	if p.config.Mode != ModePublish {
		_, err = p.Collect(ctx, at)
	}
	if err == nil && p.config.Mode != ModeCollect {
		_, err = p.Publish(ctx, ServiceDate(at))
	}

	metrics.RecordCycle(ctx, string(p.config.Mode), time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.String("processing_duration", time.Since(start).String()))
	return err
}

func (p *Pipeline) requestBase() time.Time {
	if !p.config.At.IsZero() {
		return p.config.At.In(timeutil.JST)
	}
	return p.clock.Now().In(timeutil.JST)
}

// requestTime is the timetable request time for class.
func (p *Pipeline) requestTime(base time.Time, class calendar.Class) time.Time {
	if p.config.MatchClassDate {
		return p.classifier.NextOfClass(base, class)
	}
	return base
}

// ServiceDate is midnight JST of the day at falls on. Files of one run are
// named after it regardless of the per-class request date.
func ServiceDate(at time.Time) time.Time {
	at = at.In(timeutil.JST)
	return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, timeutil.JST)
}

func (p *Pipeline) remember(route string, class calendar.Class, records []types.RouteRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collected[collectKey{route, class}] = records
}

func (p *Pipeline) recall(route string, class calendar.Class) ([]types.RouteRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	records, ok := p.collected[collectKey{route, class}]
	return records, ok
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"takao35/pkg/cache"
	"takao35/pkg/calendar"
	"takao35/pkg/clock"
	"takao35/pkg/config"
	"takao35/pkg/logging"
	"takao35/pkg/metrics"
	"takao35/pkg/navitime"
	"takao35/pkg/otel"
	"takao35/pkg/pipeline"
	"takao35/pkg/profiling"
	"takao35/pkg/timeutil"
	"takao35/pkg/tracing"
)

func main() {
	// Command line flags
	var (
		dryRun          = flag.Bool("dry-run", false, "Print records to stdout instead of writing files and sending to Loki")
		routesFile      = flag.String("config", getEnv("TAKAO35_CONFIG", ""), "Routes YAML file (default: built-in Keio routes)")
		date            = flag.String("date", getEnv("TAKAO35_DATE", ""), "Service date YYYY-MM-DD or YYYYMMDD (default: today in JST)")
		atTime          = flag.String("time", getEnv("TAKAO35_TIME", "09:00"), "Request time of day HH:MM")
		targets         = flag.String("targets", getEnv("TAKAO35_TARGETS", "weekday,holiday"), "Calendar classes, comma-separated")
		routeKeys       = flag.String("routes", getEnv("TAKAO35_ROUTES", ""), "Route keys to collect, comma-separated (default: all)")
		outDir          = flag.String("out-dir", getEnv("TAKAO35_OUT_DIR", "data"), "Output directory for CSV files and published documents")
		mode            = flag.String("mode", getEnv("TAKAO35_MODE", string(pipeline.ModeAll)), "collect, publish or all")
		matchClassDate  = flag.Bool("match-class-date", getEnv("TAKAO35_MATCH_CLASS_DATE", "true") == "true", "Request each calendar class on its next matching day")
		baseURL         = flag.String("base-url", getEnv("TAKAO35_BASE_URL", navitime.DefaultBaseURL), "Timetable API base URL")
		requestInterval = flag.Duration("request-interval", getEnvDuration("TAKAO35_REQUEST_INTERVAL", navitime.DefaultRequestInterval), "Minimum gap between stop lookups")
		maxAttempts     = flag.Int("max-attempts", navitime.DefaultMaxAttempts, "Attempts per API request")
		concurrency     = flag.Int("concurrency", 4, "Routes collected in parallel")
		interval        = flag.String("interval", getEnv("TAKAO35_INTERVAL", "0"), "Run interval; 0 runs once and exits")
		lokiURL         = flag.String("loki-url", getEnv("TAKAO35_LOKI_URL", ""), "Grafana Loki URL (optional)")
		lokiUser        = flag.String("loki-user", getEnv("TAKAO35_LOKI_USER", ""), "Loki username (for Grafana Cloud authentication)")
		lokiPassword    = flag.String("loki-password", getEnv("TAKAO35_LOKI_PASSWORD", ""), "Loki password/token (for Grafana Cloud authentication)")
		redisAddr       = flag.String("redis-addr", getEnv("REDIS_ADDR", ""), "Redis address for the shared stop cache (optional, overrides REDIS_ADDR)")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "takao35 Keio timetable collector\n\n")
		fmt.Fprintf(os.Stderr, "Collects limited-express departures from station timetables, confirms\n")
		fmt.Fprintf(os.Stderr, "each run's terminal from its stop sequence, saves weekday and holiday\n")
		fmt.Fprintf(os.Stderr, "CSV files and publishes through-journey documents.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Dry run for one route\n")
		fmt.Fprintf(os.Stderr, "  %s --dry-run --routes=shinjuku_to_takao_direct --targets=weekday\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Collect and publish for a given date\n")
		fmt.Fprintf(os.Stderr, "  %s --date=2025-08-25 --out-dir=./data\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Rebuild published documents from saved CSV files\n")
		fmt.Fprintf(os.Stderr, "  %s --mode=publish --date=20250825\n\n", os.Args[0])
	}

	flag.Parse()

	logging.InitLogging()

	intervalDuration, err := time.ParseDuration(*interval)
	if err != nil {
		log.Fatalf("Invalid interval format: %v", err)
	}

	routeFile, err := loadRouteFile(*routesFile)
	if err != nil {
		log.Fatalf("Failed to load routes: %v", err)
	}
	routes, unknown := routeFile.Select(splitList(*routeKeys))
	if len(unknown) > 0 {
		log.Fatalf("Unknown route keys: %s", strings.Join(unknown, ", "))
	}

	var classes []calendar.Class
	for _, s := range splitList(*targets) {
		c, err := calendar.ParseClass(s)
		if err != nil {
			log.Fatalf("Invalid target: %v", err)
		}
		classes = append(classes, c)
	}

	// A polling run without a fixed date follows the clock.
	var at time.Time
	if *date != "" || intervalDuration <= 0 {
		at, err = requestTime(*date, *atTime, clock.RealClock{})
		if err != nil {
			log.Fatalf("Invalid date or time: %v", err)
		}
	}

	// Initialize tracing
	shutdownTracing, err := tracing.InitTracing()
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer shutdownTracing()

	// Initialize metrics
	shutdownMetrics, err := metrics.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer shutdownMetrics()

	// Initialize profiling
	shutdownProfiling, err := profiling.InitProfiling(otel.Version)
	if err != nil {
		log.Fatalf("Failed to initialize profiling: %v", err)
	}
	defer shutdownProfiling()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopCache, closeCache := newStopCache(ctx, *redisAddr)
	defer closeCache()

	cfg := pipeline.Config{
		Mode:              pipeline.Mode(*mode),
		Routes:            routes,
		ThroughRoutes:     routeFile.ThroughRoutes,
		PointsOfInterest:  routeFile.PointsOfInterest,
		Classes:           classes,
		At:                at,
		MatchClassDate:    *matchClassDate,
		OutputDir:         *outDir,
		DryRun:            *dryRun,
		Interval:          intervalDuration,
		BaseURL:           *baseURL,
		RequestInterval:   *requestInterval,
		MaxAttempts:       *maxAttempts,
		MaxConcurrentJobs: *concurrency,
		LokiURL:           *lokiURL,
		LokiUser:          *lokiUser,
		LokiPassword:      *lokiPassword,
	}

	p, err := pipeline.New(cfg, pipeline.WithStopCache(stopCache))
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	// Print startup information
	if *dryRun {
		slog.Info("Starting takao35 in DRY RUN mode; nothing is written or sent")
	} else {
		slog.Info("Starting takao35", "out_dir", *outDir, "loki_url", *lokiURL)
	}
	slog.Info("Configuration",
		"mode", cfg.Mode,
		"routes", len(routes),
		"through_routes", len(cfg.ThroughRoutes),
		"targets", classes,
		"request_time", timeutil.RequestDateTime(timeOrNow(at)),
		"interval", intervalDuration,
	)

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Pipeline error: %v", err)
	}

	slog.Info("takao35 shutdown complete")
}

func loadRouteFile(path string) (*config.RouteFile, error) {
	if path == "" {
		return config.DefaultRoutes()
	}
	return config.LoadRoutes(path)
}

// requestTime combines the service date and time of day. An empty date means
// today in JST.
func requestTime(date, hhmm string, c clock.Clock) (time.Time, error) {
	day := clock.ServiceDate(c)
	if date != "" {
		var err error
		if day, err = clock.ParseServiceDate(date); err != nil {
			return time.Time{}, err
		}
	}
	tod, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q is not HH:MM", hhmm)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), 0, 0, timeutil.JST), nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return clock.RealClock{}.Now()
	}
	return t
}

// newStopCache prefers Redis when an address is configured and reachable,
// falling back to an in-process cache.
func newStopCache(ctx context.Context, addr string) (cache.StopCache, func()) {
	if addr == "" {
		return cache.NewMemory(), func() {}
	}

	rc := cache.NewRedis(cache.NewRedisClient(addr), cache.DefaultTTL)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		slog.Warn("Redis unavailable, using in-memory stop cache", "addr", addr, "error", err)
		rc.Close()
		return cache.NewMemory(), func() {}
	}
	slog.Info("Using Redis stop cache", "addr", addr)
	return rc, func() { rc.Close() }
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns the value of an environment variable or a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}

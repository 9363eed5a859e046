// Package navitime fetches Keio timetables and per-operation stop sequences
// from the NAVITIME transfer service.
package navitime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"takao35/pkg/cache"
	"takao35/pkg/calendar"
	"takao35/pkg/config"
	"takao35/pkg/metrics"
	"takao35/pkg/otel"
	"takao35/pkg/timeutil"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL         = "https://transfer-train.navitime.biz"
	DefaultRequestInterval = time.Second
	DefaultTimeout         = 45 * time.Second
	DefaultMaxAttempts     = 5

	endpointTimetable = "timetable"
	endpointStops     = "stops"
)

type Config struct {
	BaseURL string
	// RequestInterval paces stop lookups across all goroutines sharing the
	// client. Zero disables pacing.
	RequestInterval time.Duration
	Timeout         time.Duration
	MaxAttempts     int
	// RetryInitialInterval is the first backoff delay; it doubles per retry.
	RetryInitialInterval time.Duration
	Cache                cache.StopCache
}

type Client struct {
	httpClient   *http.Client
	baseURL      string
	limiter      *rate.Limiter
	cache        cache.StopCache
	maxAttempts  int
	retryInitial time.Duration
	tracer       trace.Tracer
}

// Payload is a raw API response body.
type Payload struct {
	Body      []byte
	URL       string
	FetchedAt time.Time
	FromCache bool
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 2 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		},
		baseURL:      cfg.BaseURL,
		limiter:      rate.NewLimiter(limit, 1),
		cache:        cfg.Cache,
		maxAttempts:  cfg.MaxAttempts,
		retryInitial: cfg.RetryInitialInterval,
		tracer:       otelapi.Tracer("navitime-client"),
	}
}

// Referer is the timetable page a browser would be on for this route. The
// service keys its session on it, so it carries the calendar class.
func Referer(baseURL string, route config.Route, class calendar.Class) string {
	q := url.Values{}
	q.Set("station", route.StationID)
	q.Set("line", route.LineID)
	q.Set("target", string(class))
	q.Set("direction", route.DirectionID)
	return baseURL + "/keio/directions/timetable?" + q.Encode()
}

// FetchTimetable downloads the station timetable of route around at.
func (c *Client) FetchTimetable(ctx context.Context, route config.Route, at time.Time, class calendar.Class) (*Payload, error) {
	ctx, span := c.tracer.Start(ctx, "navitime.fetch_timetable",
		trace.WithAttributes(
			attribute.String("route", route.Key),
			attribute.String("station", route.StationID),
			attribute.String("calendar_class", string(class)),
		),
	)
	defer span.End()

	q := url.Values{}
	q.Set("datetime", timeutil.RequestDateTime(at))
	q.Set("lang", "ja")
	u := fmt.Sprintf("%s/api/keio/timetable/%s/%s/%s?%s",
		c.baseURL, url.PathEscape(route.StationID), url.PathEscape(route.LineID), url.PathEscape(route.DirectionID), q.Encode())

	body, err := c.get(ctx, span, endpointTimetable, u, Referer(c.baseURL, route, class))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch timetable for %s: %w", route.Key, err)
	}

	otel.SetSpanOk(span)
	return &Payload{Body: body, URL: u, FetchedAt: time.Now()}, nil
}

// FetchStops downloads the stop sequence of one operation. Requests are paced
// by the shared limiter; cached payloads skip both the limiter and the API.
func (c *Client) FetchStops(ctx context.Context, route config.Route, operationID string, at time.Time, class calendar.Class) (*Payload, error) {
	ctx, span := c.tracer.Start(ctx, "navitime.fetch_stops",
		trace.WithAttributes(
			attribute.String("route", route.Key),
			attribute.String("operation_id", operationID),
			attribute.String("calendar_class", string(class)),
		),
	)
	defer span.End()

	requestTime := timeutil.RequestDateTime(at)
	key := cache.StopKey(route.StationID, route.LineID, operationID, requestTime)

	if c.cache != nil {
		cached, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("Stop cache read failed", "key", key, "error", err)
		}
		metrics.RecordStopCacheLookup(ctx, ok)
		if ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &Payload{Body: cached, FetchedAt: time.Now(), FromCache: true}, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		otel.RecordError(span, err, otel.ErrorTypeNetwork, false)
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("operation_id", operationID)
	q.Set("datetime", requestTime)
	q.Set("lang", "ja")
	q.Set("direction", route.DirectionID)
	u := fmt.Sprintf("%s/api/keio/stops/%s/%s?%s",
		c.baseURL, url.PathEscape(route.StationID), url.PathEscape(route.LineID), q.Encode())

	body, err := c.get(ctx, span, endpointStops, u, Referer(c.baseURL, route, class))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stops for %s: %w", operationID, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, body); err != nil {
			slog.Warn("Stop cache write failed", "key", key, "error", err)
		}
	}

	otel.SetSpanOk(span)
	return &Payload{Body: body, URL: u, FetchedAt: time.Now()}, nil
}

// get performs a GET with exponential backoff on transport errors and
// retryable statuses.
func (c *Client) get(ctx context.Context, span trace.Span, endpoint, u, referer string) ([]byte, error) {
	span.SetAttributes(
		attribute.String("http.url", u),
		attribute.String("http.method", http.MethodGet),
	)

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		setBrowserHeaders(req, c.baseURL, referer)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordAPIRequest(ctx, endpoint, 0, time.Since(start), 0)
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("failed to make request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		metrics.RecordAPIRequest(ctx, endpoint, resp.StatusCode, time.Since(start), len(data))
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
			if statusErr.Retryable() {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		span.SetAttributes(
			attribute.Int("http.status_code", resp.StatusCode),
			attribute.Int("response.size_bytes", len(data)),
		)
		body = data
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)

	notify := func(err error, wait time.Duration) {
		metrics.RecordAPIRetry(ctx, endpoint)
		slog.Debug("Retrying timetable API request", "endpoint", endpoint, "attempt", attempt, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		span.SetAttributes(attribute.Int("http.attempts", attempt))
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			otel.RecordError(span, err, otel.ErrorTypeHTTP, statusErr.Retryable())
		} else {
			otel.RecordError(span, err, otel.ErrorTypeNetwork, true)
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.attempts", attempt))
	return body, nil
}

func setBrowserHeaders(req *http.Request, baseURL, referer string) {
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "ja")
	req.Header.Set("Origin", baseURL)
	req.Header.Set("Referer", referer)
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Dest", "empty")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"takao35/pkg/calendar"
	"takao35/pkg/otel"
	"takao35/pkg/types"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const userAgent = "takao35/1.0.0"

type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	tracer     trace.Tracer
	now        func() time.Time
}

type PushRequest struct {
	Streams []Stream `json:"streams"`
}

type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// Batch is one route's kept records for one calendar class.
type Batch struct {
	RouteKey      string
	CalendarClass calendar.Class
	ServiceDate   time.Time
	Records       []types.RouteRecord
}

// LogLine is the JSON body of a single pushed record.
type LogLine struct {
	Route         string `json:"route"`
	CalendarClass string `json:"calendar_class"`
	ServiceDate   string `json:"service_date"`
	types.RouteRow
}

func NewClient(baseURL, username, password string) *Client {
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   30 * time.Second,
	}

	return &Client{
		httpClient: client,
		baseURL:    baseURL,
		username:   username,
		password:   password,
		tracer:     otelapi.Tracer("loki-client"),
		now:        time.Now,
	}
}

// LogLines renders every record of the batch as it is pushed.
func (b Batch) LogLines() ([]string, error) {
	lines := make([]string, 0, len(b.Records))
	for _, r := range b.Records {
		line, err := json.Marshal(LogLine{
			Route:         b.RouteKey,
			CalendarClass: string(b.CalendarClass),
			ServiceDate:   b.ServiceDate.Format("2006-01-02"),
			RouteRow:      r.Row(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal record %s: %w", r.OperationID, err)
		}
		lines = append(lines, string(line))
	}
	return lines, nil
}

// SendRouteRecords pushes one log line per record under the batch's route and
// calendar labels.
func (c *Client) SendRouteRecords(ctx context.Context, batch Batch) error {
	ctx, span := c.tracer.Start(ctx, "loki.send_route_records",
		trace.WithAttributes(
			attribute.String("route", batch.RouteKey),
			attribute.String("calendar_class", string(batch.CalendarClass)),
			attribute.Int("records_count", len(batch.Records)),
		),
	)
	defer span.End()

	lines, err := batch.LogLines()
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeParse, false)
		return err
	}

	// Loki rejects identical timestamps with different lines in one stream.
	base := c.now().UnixNano()
	logValues := make([][]string, 0, len(lines))
	for i, line := range lines {
		logValues = append(logValues, []string{
			strconv.FormatInt(base+int64(i), 10),
			line,
		})
	}

	lokiReq := PushRequest{
		Streams: []Stream{
			{
				Stream: map[string]string{
					"job":            "takao35",
					"route":          batch.RouteKey,
					"calendar_class": string(batch.CalendarClass),
				},
				Values: logValues,
			},
		},
	}

	reqBody, err := json.Marshal(lokiReq)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeParse, false)
		return fmt.Errorf("failed to marshal Loki request: %w", err)
	}

	url := fmt.Sprintf("%s/loki/api/v1/push", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeValidation, false)
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
		span.SetAttributes(
			attribute.Bool("auth.enabled", true),
			attribute.String("auth.username", c.username),
		)
	} else {
		span.SetAttributes(attribute.Bool("auth.enabled", false))
	}

	span.SetAttributes(
		attribute.String("http.url", url),
		attribute.String("http.method", "POST"),
		attribute.Int("request.size_bytes", len(reqBody)),
		attribute.Int("log_lines_count", len(logValues)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeNetwork, true)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("Loki returned status %d", resp.StatusCode)
		otel.RecordError(span, err, otel.ErrorTypeHTTP, resp.StatusCode >= 500)
		return err
	}

	otel.SetSpanOk(span)
	return nil
}

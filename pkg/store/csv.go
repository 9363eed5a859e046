// Package store persists verified route records as CSV files and publishes
// the JSON documents consumed by the front end.
package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"takao35/pkg/calendar"
	"takao35/pkg/otel"
	"takao35/pkg/timeutil"
	"takao35/pkg/types"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Columns is the CSV header, in order.
var Columns = []string{
	"hour", "minute", "operation_id", "train_type", "destination", "platform",
	"departure_dt", "time_iso", "stop_stations",
}

// ErrNoRecords is returned by SaveRoute when there is nothing to write.
var ErrNoRecords = errors.New("no records to save")

type Store struct {
	dir    string
	tracer trace.Tracer
}

func New(dir string) *Store {
	return &Store{dir: dir, tracer: otelapi.Tracer("store")}
}

func (s *Store) Dir() string { return s.dir }

// FileName is the record file of one route, calendar class and service date.
func FileName(date time.Time, class calendar.Class, routeKey string) string {
	return fmt.Sprintf("%s_%s_%s.csv", date.Format("20060102"), class, routeKey)
}

// RoutePath is where SaveRoute writes and LoadRoute reads.
func (s *Store) RoutePath(date time.Time, class calendar.Class, routeKey string) string {
	return filepath.Join(s.dir, FileName(date, class, routeKey))
}

// WriteRecords writes the header and one row per record.
func WriteRecords(w io.Writer, records []types.RouteRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range records {
		row := r.Row()
		stops, err := json.Marshal(row.Stops)
		if err != nil {
			return fmt.Errorf("operation %s: %w", r.OperationID, err)
		}
		if err := cw.Write([]string{
			strconv.Itoa(r.Hour),
			strconv.Itoa(r.Minute),
			r.OperationID,
			r.TrainType,
			r.Destination,
			r.Platform,
			row.DepartHHMM,
			r.TimeISO,
			string(stops),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRecords parses a file written by WriteRecords. Columns are located by
// header name; hour, minute and operation_id are required.
func ReadRecords(r io.Reader, class calendar.Class) ([]types.RouteRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	head := rows[0]
	if len(head) > 0 {
		head[0] = strings.TrimPrefix(head[0], "\ufeff")
	}
	idx := func(col string) int {
		for i, h := range head {
			if strings.EqualFold(strings.TrimSpace(h), col) {
				return i
			}
		}
		return -1
	}
	for _, col := range []string{"hour", "minute", "operation_id"} {
		if idx(col) < 0 {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	field := func(row []string, col string) string {
		if i := idx(col); i >= 0 && i < len(row) {
			return row[i]
		}
		return ""
	}

	records := make([]types.RouteRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		hour, err := strconv.Atoi(field(row, "hour"))
		if err != nil {
			return nil, fmt.Errorf("line %d: hour: %w", line, err)
		}
		minute, err := strconv.Atoi(field(row, "minute"))
		if err != nil {
			return nil, fmt.Errorf("line %d: minute: %w", line, err)
		}

		rec := types.RouteRecord{CalendarClass: class}
		rec.Hour = hour
		rec.Minute = minute
		rec.OperationID = field(row, "operation_id")
		rec.TrainType = field(row, "train_type")
		rec.Destination = field(row, "destination")
		rec.Platform = field(row, "platform")
		rec.TimeISO = field(row, "time_iso")
		if t, err := timeutil.ParseTimestamp(rec.TimeISO); err == nil {
			rec.Departure = t
		}

		if raw := strings.TrimSpace(field(row, "stop_stations")); raw != "" {
			if err := json.Unmarshal([]byte(raw), &rec.Stops); err != nil {
				return nil, fmt.Errorf("line %d: stop_stations: %w", line, err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveRoute writes records for one route and class. An empty set is not
// written and returns ErrNoRecords.
func (s *Store) SaveRoute(ctx context.Context, date time.Time, class calendar.Class, routeKey string, records []types.RouteRecord) (string, error) {
	_, span := s.tracer.Start(ctx, "store.save_route",
		trace.WithAttributes(
			attribute.String("route", routeKey),
			attribute.String("calendar_class", string(class)),
			attribute.Int("records_count", len(records)),
		),
	)
	defer span.End()

	if len(records) == 0 {
		return "", ErrNoRecords
	}

	path := s.RoutePath(date, class, routeKey)
	err := writeFileAtomic(path, func(w io.Writer) error {
		return WriteRecords(w, records)
	})
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeStorage, false)
		return "", fmt.Errorf("failed to save %s: %w", path, err)
	}

	slog.Debug("Saved route records", "path", path, "records", len(records))
	otel.SetSpanOk(span)
	return path, nil
}

// LoadRoute reads records saved by SaveRoute. A missing file reports an
// error matching os.ErrNotExist.
func (s *Store) LoadRoute(ctx context.Context, date time.Time, class calendar.Class, routeKey string) ([]types.RouteRecord, error) {
	_, span := s.tracer.Start(ctx, "store.load_route",
		trace.WithAttributes(
			attribute.String("route", routeKey),
			attribute.String("calendar_class", string(class)),
		),
	)
	defer span.End()

	path := s.RoutePath(date, class, routeKey)
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			otel.RecordError(span, err, otel.ErrorTypeStorage, false)
		}
		return nil, err
	}
	defer f.Close()

	records, err := ReadRecords(f, class)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeParse, false)
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	span.SetAttributes(attribute.Int("records_count", len(records)))
	return records, nil
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

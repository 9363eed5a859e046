package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"takao35/pkg/calendar"
	"takao35/pkg/otel"
	"takao35/pkg/timeutil"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const publishDir = "publish"

// ClassSets holds one route's items per calendar class.
type ClassSets[T any] struct {
	Weekday []T `json:"weekday"`
	Holiday []T `json:"holiday"`
}

// Document is a published file: {generatedAt, serviceDate, routes}.
type Document[T any] struct {
	GeneratedAt string                   `json:"generatedAt"`
	ServiceDate string                   `json:"serviceDate"`
	Routes      map[string]*ClassSets[T] `json:"routes"`
}

func NewDocument[T any](generatedAt, serviceDate time.Time) *Document[T] {
	return &Document[T]{
		GeneratedAt: generatedAt.In(timeutil.JST).Format(time.RFC3339),
		ServiceDate: serviceDate.Format("2006-01-02"),
		Routes:      make(map[string]*ClassSets[T]),
	}
}

// Set stores items for route and class. Both classes of a route always
// serialise as lists, never null.
func (d *Document[T]) Set(route string, class calendar.Class, items []T) {
	sets, ok := d.Routes[route]
	if !ok {
		sets = &ClassSets[T]{Weekday: []T{}, Holiday: []T{}}
		d.Routes[route] = sets
	}
	if items == nil {
		items = []T{}
	}
	switch class {
	case calendar.Holiday:
		sets.Holiday = items
	default:
		sets.Weekday = items
	}
}

// Get returns the items for route and class.
func (d *Document[T]) Get(route string, class calendar.Class) []T {
	sets, ok := d.Routes[route]
	if !ok {
		return nil
	}
	if class == calendar.Holiday {
		return sets.Holiday
	}
	return sets.Weekday
}

// RouteKeys lists the routes in the document, sorted.
func (d *Document[T]) RouteKeys() []string {
	keys := make([]string, 0, len(d.Routes))
	for k := range d.Routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TimetableDocumentName(date time.Time) string {
	return fmt.Sprintf("takao35_timetable_%s.json", date.Format("20060102"))
}

func JourneysDocumentName(date time.Time) string {
	return fmt.Sprintf("takao35_journeys_%s.json", date.Format("20060102"))
}

// EncodeDocument writes doc as indented JSON without HTML escaping.
func EncodeDocument(w io.Writer, doc any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteDocument publishes doc under <dir>/publish/name and returns the path.
func (s *Store) WriteDocument(ctx context.Context, name string, doc any) (string, error) {
	_, span := s.tracer.Start(ctx, "store.write_document",
		trace.WithAttributes(attribute.String("document", name)),
	)
	defer span.End()

	path := filepath.Join(s.dir, publishDir, name)
	err := writeFileAtomic(path, func(w io.Writer) error {
		return EncodeDocument(w, doc)
	})
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeStorage, false)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	otel.SetSpanOk(span)
	return path, nil
}

// ReadDocument loads a published document.
func ReadDocument[T any](path string) (*Document[T], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document[T]
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &doc, nil
}

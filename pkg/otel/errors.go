package otel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error types recorded on spans as error.type. Dashboards group collector
// failures by these values.
const (
	ErrorTypeNetwork    = "network"    // transport failures and rate limiter waits
	ErrorTypeHTTP       = "http"       // non-2xx responses from NAVITIME or Loki
	ErrorTypeParse      = "parse"      // undecodable payloads and saved files
	ErrorTypeValidation = "validation" // requests that could not be built
	ErrorTypeStorage    = "storage"    // CSV and document writes
)

// RecordError records err on span with its type and whether retrying could
// succeed, then sets the span status to Error.
func RecordError(span trace.Span, err error, errorType string, transient bool) {
	span.RecordError(err, trace.WithAttributes(
		attribute.String("error.type", errorType),
		attribute.Bool("error.transient", transient),
	))
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOk sets the span status to Ok once an operation has completed
// without error.
func SetSpanOk(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

package otel

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Protocol is an OTLP transport.
type Protocol string

const (
	ProtocolGRPC         Protocol = "grpc"
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
	ProtocolHTTPJSON     Protocol = "http/json"
)

// SignalType selects the signal-specific OTEL_EXPORTER_OTLP_* overrides.
type SignalType string

const (
	SignalTraces  SignalType = "traces"
	SignalMetrics SignalType = "metrics"
)

// ExporterConfig is the resolved OTLP exporter setup for one signal.
type ExporterConfig struct {
	Endpoint    string
	Protocol    Protocol
	Headers     map[string]string
	Timeout     time.Duration
	Insecure    bool
	Compression string
}

func IsTracingEnabled() bool {
	return isTrue(os.Getenv("OTEL_TRACING_ENABLED"))
}

func IsMetricsEnabled() bool {
	return isTrue(os.Getenv("OTEL_METRICS_ENABLED"))
}

// signalEnv reads OTEL_EXPORTER_OTLP_<SIGNAL>_<key>, then
// OTEL_EXPORTER_OTLP_<key>.
type signalEnv struct {
	signal SignalType
}

func (e signalEnv) specific(key string) string {
	return os.Getenv("OTEL_EXPORTER_OTLP_" + strings.ToUpper(string(e.signal)) + "_" + key)
}

func (e signalEnv) get(key, def string) string {
	if v := e.specific(key); v != "" {
		return v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_" + key); v != "" {
		return v
	}
	return def
}

// GetExporterConfig resolves the exporter for signal from the standard
// OTEL_EXPORTER_OTLP_* variables.
func GetExporterConfig(signal SignalType) ExporterConfig {
	env := signalEnv{signal: signal}

	cfg := ExporterConfig{
		Protocol:    parseProtocol(env.get("PROTOCOL", string(ProtocolHTTPProtobuf))),
		Headers:     parseHeaders(env.get("HEADERS", "")),
		Timeout:     parseDuration(env.get("TIMEOUT", ""), 10*time.Second),
		Compression: env.get("COMPRESSION", ""),
	}
	cfg.Endpoint = resolveEndpoint(env, cfg.Protocol)

	if v := env.get("INSECURE", ""); v != "" {
		cfg.Insecure = isTrue(v)
	} else {
		cfg.Insecure = strings.HasPrefix(cfg.Endpoint, "http://")
	}
	return cfg
}

func parseProtocol(s string) Protocol {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "grpc":
		return ProtocolGRPC
	case "http/json":
		return ProtocolHTTPJSON
	default:
		return ProtocolHTTPProtobuf
	}
}

// resolveEndpoint uses a signal-specific endpoint as given and appends
// /v1/<signal> to a base endpoint for HTTP protocols.
func resolveEndpoint(env signalEnv, protocol Protocol) string {
	if v := env.specific("ENDPOINT"); v != "" {
		return normalizeEndpoint(v, protocol)
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		return withSignalPath(normalizeEndpoint(v, protocol), env.signal, protocol)
	}
	if protocol == ProtocolGRPC {
		return "localhost:4317"
	}
	return "http://localhost:4318/v1/" + string(env.signal)
}

func normalizeEndpoint(endpoint string, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		endpoint = strings.TrimPrefix(endpoint, "http://")
		endpoint = strings.TrimPrefix(endpoint, "https://")
		host, _, _ := strings.Cut(endpoint, "/")
		return host
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return "https://" + endpoint
	}
	return endpoint
}

func withSignalPath(endpoint string, signal SignalType, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		return endpoint
	}
	suffix := "/v1/" + string(signal)

	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimSuffix(endpoint, "/") + suffix
	}
	if strings.HasSuffix(u.Path, suffix) {
		return endpoint
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + suffix
	return u.String()
}

func isTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// parseHeaders reads "k1=v1,k2=v2". Values keep everything after the first '='.
func parseHeaders(s string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = value
		slog.Debug("Parsed OTEL header", "key", key, "value_length", len(value))
	}
	return headers
}

// parseDuration accepts Go durations and plain milliseconds.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

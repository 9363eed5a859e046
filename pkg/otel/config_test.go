package otel

import (
	"testing"
	"time"
)

func TestGetExporterConfig_Defaults(t *testing.T) {
	cfg := GetExporterConfig(SignalTraces)

	if cfg.Protocol != ProtocolHTTPProtobuf {
		t.Errorf("Protocol = %q, want %q", cfg.Protocol, ProtocolHTTPProtobuf)
	}
	if cfg.Endpoint != "http://localhost:4318/v1/traces" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if !cfg.Insecure {
		t.Error("plain http endpoint should be insecure")
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
}

func TestGetExporterConfig_BaseEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://otlp.example.com/otlp")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "Authorization=Basic abc==,X-Scope=takao")
	t.Setenv("OTEL_EXPORTER_OTLP_TIMEOUT", "2500")

	cfg := GetExporterConfig(SignalMetrics)

	if cfg.Endpoint != "https://otlp.example.com/otlp/v1/metrics" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.Insecure {
		t.Error("https endpoint should not be insecure")
	}
	if cfg.Headers["Authorization"] != "Basic abc==" {
		t.Errorf("Authorization header = %q", cfg.Headers["Authorization"])
	}
	if cfg.Headers["X-Scope"] != "takao" {
		t.Errorf("X-Scope header = %q", cfg.Headers["X-Scope"])
	}
	if cfg.Timeout != 2500*time.Millisecond {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
}

func TestGetExporterConfig_SignalOverride(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://base.example.com")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "collector.internal/custom")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_INSECURE", "true")

	cfg := GetExporterConfig(SignalTraces)

	if cfg.Protocol != ProtocolGRPC {
		t.Errorf("Protocol = %q", cfg.Protocol)
	}
	if cfg.Endpoint != "collector.internal" {
		t.Errorf("Endpoint = %q, want host only for grpc", cfg.Endpoint)
	}
	if !cfg.Insecure {
		t.Error("explicit insecure flag ignored")
	}
}

func TestEnabledFlags(t *testing.T) {
	t.Setenv("OTEL_TRACING_ENABLED", "yes")
	t.Setenv("OTEL_METRICS_ENABLED", "off")

	if !IsTracingEnabled() {
		t.Error("tracing should be enabled")
	}
	if IsMetricsEnabled() {
		t.Error("metrics should be disabled")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"3s", 3 * time.Second},
		{"750", 750 * time.Millisecond},
		{"soon", time.Second},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Second); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

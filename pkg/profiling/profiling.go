package profiling

import (
	"log/slog"
	"os"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// InitProfiling starts continuous profiling when PYROSCOPE_PROFILING_ENABLED
// is set. A profiler that fails to start is logged and skipped, so the
// collector still runs.
func InitProfiling(version string) (func(), error) {
	// Check if profiling is enabled
	if enabled := getEnv("PYROSCOPE_PROFILING_ENABLED", "false"); !isTrue(enabled) {
		slog.Debug("Pyroscope profiling is disabled")
		return func() {}, nil
	}

	config := profilerConfig(version)

	// Start profiling
	profiler, err := pyroscope.Start(config)
	if err != nil {
		slog.Warn("Failed to start Pyroscope profiler", "error", err)
		return func() {}, nil
	}

	slog.Debug("Pyroscope profiling started", "server", config.ServerAddress, "application", config.ApplicationName)

	// Return shutdown function
	return func() {
		if err := profiler.Stop(); err != nil {
			slog.Error("Error stopping Pyroscope profiler", "error", err)
		} else {
			slog.Debug("Pyroscope profiler stopped")
		}
	}, nil
}

// profilerConfig reads the PYROSCOPE_* environment. Collection runs are
// dominated by waiting on the API, so goroutine and allocation profiles are
// enabled next to CPU.
func profilerConfig(version string) pyroscope.Config {
	config := pyroscope.Config{
		ApplicationName: getEnv("PYROSCOPE_APPLICATION_NAME", "takao35"),
		ServerAddress:   getEnv("PYROSCOPE_SERVER_ADDRESS", "http://localhost:4040"),
		Logger:          pyroscope.StandardLogger,
		Tags: map[string]string{
			"service": "takao35",
			"version": version,
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	}

	// Add basic authentication if provided
	user := getEnv("PYROSCOPE_BASIC_AUTH_USER", "")
	password := getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")
	if user != "" && password != "" {
		config.BasicAuthUser = user
		config.BasicAuthPassword = password
	}

	return config
}

// getEnv returns the value of an environment variable or a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// isTrue accepts the usual spellings of an enabled flag.
func isTrue(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

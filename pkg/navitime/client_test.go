package navitime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"takao35/pkg/cache"
	"takao35/pkg/calendar"
	"takao35/pkg/config"
	"takao35/pkg/timeutil"
)

var testRoute = config.Route{
	Key:                  "shinjuku_to_takao_direct",
	StationID:            "4254",
	LineID:               "1",
	DirectionID:          "1",
	TypeKeywords:         []string{"特急"},
	RequiredFinalStation: "高尾山口",
}

func testAt() time.Time {
	return time.Date(2025, 8, 25, 6, 10, 0, 0, timeutil.JST)
}

func newTestClient(serverURL string, c cache.StopCache) *Client {
	return NewClient(Config{
		BaseURL:              serverURL,
		RetryInitialInterval: time.Millisecond,
		Cache:                c,
	})
}

func TestNewClient(t *testing.T) {
	client := NewClient(Config{})

	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	if client.httpClient == nil {
		t.Error("httpClient should not be nil")
	}
	if client.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", client.baseURL, DefaultBaseURL)
	}
	if client.maxAttempts != DefaultMaxAttempts {
		t.Errorf("maxAttempts = %d, want %d", client.maxAttempts, DefaultMaxAttempts)
	}
	if client.httpClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", client.httpClient.Timeout, DefaultTimeout)
	}
}

func TestReferer(t *testing.T) {
	got := Referer("https://example.test", testRoute, calendar.Holiday)

	for _, want := range []string{
		"https://example.test/keio/directions/timetable?",
		"station=4254", "line=1", "direction=1", "target=holiday",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Referer %q missing %q", got, want)
		}
	}
}

func TestFetchTimetable_MockServer(t *testing.T) {
	var receivedPath string
	var receivedQuery map[string]string
	var receivedHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		receivedHeaders = r.Header
		receivedQuery = map[string]string{
			"datetime": r.URL.Query().Get("datetime"),
			"lang":     r.URL.Query().Get("lang"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"timetables":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	payload, err := client.FetchTimetable(context.Background(), testRoute, testAt(), calendar.Weekday)
	if err != nil {
		t.Fatalf("FetchTimetable failed: %v", err)
	}

	if receivedPath != "/api/keio/timetable/4254/1/1" {
		t.Errorf("path = %q", receivedPath)
	}
	if receivedQuery["datetime"] != "2025-08-25T06:10:00+09:00" {
		t.Errorf("datetime = %q", receivedQuery["datetime"])
	}
	if receivedQuery["lang"] != "ja" {
		t.Errorf("lang = %q", receivedQuery["lang"])
	}
	if receivedHeaders.Get("X-Requested-With") != "XMLHttpRequest" {
		t.Errorf("X-Requested-With = %q", receivedHeaders.Get("X-Requested-With"))
	}
	if !strings.Contains(receivedHeaders.Get("Referer"), "target=weekday") {
		t.Errorf("Referer = %q", receivedHeaders.Get("Referer"))
	}
	if receivedHeaders.Get("Origin") != server.URL {
		t.Errorf("Origin = %q", receivedHeaders.Get("Origin"))
	}

	if string(payload.Body) != `{"timetables":[]}` {
		t.Errorf("Body = %q", payload.Body)
	}
	if payload.FromCache {
		t.Error("timetable payload should not come from cache")
	}
	if payload.FetchedAt.IsZero() {
		t.Error("FetchedAt should not be zero")
	}
}

func TestFetchStops_MockServer(t *testing.T) {
	var receivedPath string
	var receivedQuery string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		receivedQuery = r.URL.Query().Encode()
		w.Write([]byte(`{"stops":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	if _, err := client.FetchStops(context.Background(), testRoute, "80040000", testAt(), calendar.Holiday); err != nil {
		t.Fatalf("FetchStops failed: %v", err)
	}

	if receivedPath != "/api/keio/stops/4254/1" {
		t.Errorf("path = %q", receivedPath)
	}
	for _, want := range []string{"operation_id=80040000", "direction=1", "lang=ja", "datetime=2025-08-25T06%3A10%3A00%2B09%3A00"} {
		if !strings.Contains(receivedQuery, want) {
			t.Errorf("query %q missing %q", receivedQuery, want)
		}
	}
}

func TestFetch_RetriesTransientStatus(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"stops":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	if _, err := client.FetchStops(context.Background(), testRoute, "1", testAt(), calendar.Weekday); err != nil {
		t.Fatalf("FetchStops failed after retries: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestFetch_GivesUpAfterMaxAttempts(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	_, err := client.FetchTimetable(context.Background(), testRoute, testAt(), calendar.Weekday)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected 429 StatusError, got %v", err)
	}
	if got := attempts.Load(); got != DefaultMaxAttempts {
		t.Errorf("attempts = %d, want %d", got, DefaultMaxAttempts)
	}
}

func TestFetch_PermanentStatusNotRetried(t *testing.T) {
	tests := []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound}

	for _, status := range tests {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(status)
				w.Write([]byte("nope"))
			}))
			defer server.Close()

			client := newTestClient(server.URL, nil)

			_, err := client.FetchStops(context.Background(), testRoute, "1", testAt(), calendar.Weekday)
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("Expected StatusError, got %v", err)
			}
			if statusErr.StatusCode != status {
				t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, status)
			}
			if got := attempts.Load(); got != 1 {
				t.Errorf("attempts = %d, want 1", got)
			}
		})
	}
}

func TestFetchStops_UsesCache(t *testing.T) {
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"stops":[{"name":"北野"}]}`))
	}))
	defer server.Close()

	mem := cache.NewMemory()
	client := newTestClient(server.URL, mem)
	ctx := context.Background()

	first, err := client.FetchStops(ctx, testRoute, "80040000", testAt(), calendar.Weekday)
	if err != nil {
		t.Fatalf("first FetchStops failed: %v", err)
	}
	second, err := client.FetchStops(ctx, testRoute, "80040000", testAt(), calendar.Weekday)
	if err != nil {
		t.Fatalf("second FetchStops failed: %v", err)
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
	if first.FromCache || !second.FromCache {
		t.Errorf("FromCache = %v, %v; want false, true", first.FromCache, second.FromCache)
	}
	if string(second.Body) != string(first.Body) {
		t.Errorf("cached body differs: %q vs %q", second.Body, first.Body)
	}
	if mem.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", mem.Len())
	}
}

func TestFetchStops_FailedFetchNotCached(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	mem := cache.NewMemory()
	client := newTestClient(server.URL, mem)

	if _, err := client.FetchStops(context.Background(), testRoute, "1", testAt(), calendar.Weekday); err == nil {
		t.Fatal("Expected error")
	}
	if mem.Len() != 0 {
		t.Errorf("cache entries = %d, want 0", mem.Len())
	}
}

func TestFetchStops_Paced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stops":[]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, RequestInterval: 50 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.FetchStops(context.Background(), testRoute, "1", testAt(), calendar.Weekday); err != nil {
			t.Fatalf("FetchStops failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 paced requests took %v, want at least ~100ms", elapsed)
	}
}

func TestFetch_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.FetchTimetable(ctx, testRoute, testAt(), calendar.Weekday); err == nil {
		t.Error("Expected error when context is cancelled, got nil")
	}
}

func TestFetchTimetable_Integration(t *testing.T) {
	if os.Getenv("NAVITIME_INTEGRATION") == "" {
		t.Skip("NAVITIME_INTEGRATION not set")
	}

	client := NewClient(Config{})
	payload, err := client.FetchTimetable(context.Background(), testRoute, time.Now(), calendar.Weekday)
	if err != nil {
		t.Fatalf("FetchTimetable failed: %v", err)
	}
	if !strings.Contains(string(payload.Body), "timetables") {
		t.Errorf("unexpected payload: %.200s", payload.Body)
	}
}

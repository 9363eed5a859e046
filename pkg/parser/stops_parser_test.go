package parser

import (
	"context"
	"testing"
)

func TestParseStops_Fixture(t *testing.T) {
	parser := NewTimetableParser()
	payload := loadFixture(t, "stops_80040000.json")

	stops, err := parser.ParseStops(context.Background(), payload)
	if err != nil {
		t.Fatalf("ParseStops failed: %v", err)
	}

	wantNames := []string{"新宿", "笹塚", "明大前", "調布", "北野", "高尾", "高尾山口"}
	if len(stops) != len(wantNames) {
		t.Fatalf("Expected %d stops, got %d", len(wantNames), len(stops))
	}
	for i, name := range wantNames {
		if stops[i].StationName != name {
			t.Errorf("stop %d = %q, want %q", i, stops[i].StationName, name)
		}
	}

	tests := []struct {
		index  int
		hhmm   string
		reason string
	}{
		{2, "06:18", "departure preferred over arrival"},
		{4, "06:51", "station alias with arrival only"},
		{5, "07:01", "unparseable departure falls back to arrival"},
		{6, "07:04", "terminal arrival"},
	}
	for _, tt := range tests {
		if got := stops[tt.index].Time.Format("15:04"); got != tt.hhmm {
			t.Errorf("%s: stop %d time = %s, want %s", tt.reason, tt.index, got, tt.hhmm)
		}
	}
}

func TestStopsFromMap(t *testing.T) {
	tests := []struct {
		name      string
		doc       map[string]interface{}
		wantCount int
	}{
		{"missing stops", map[string]interface{}{}, 0},
		{"stops not a list", map[string]interface{}{"stops": "none"}, 0},
		{"only junk", map[string]interface{}{"stops": []interface{}{1.0, nil, map[string]interface{}{}}}, 0},
		{
			"nameless stop kept",
			map[string]interface{}{"stops": []interface{}{
				map[string]interface{}{"name": "北野"},
				map[string]interface{}{"departure_time": "2025-08-24T07:04:00+09:00"},
			}},
			2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StopsFromMap(tt.doc)
			if len(got) != tt.wantCount {
				t.Errorf("StopsFromMap returned %d stops, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestParseStops_InvalidPayload(t *testing.T) {
	parser := NewTimetableParser()
	if _, err := parser.ParseStops(context.Background(), []byte("not json")); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

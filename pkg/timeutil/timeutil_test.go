package timeutil

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expectErr bool
		hour, min int
	}{
		{"offset with seconds", "2025-08-18T20:41:00+09:00", false, 20, 41},
		{"offset without seconds", "2025-08-18T20:41+09:00", false, 20, 41},
		{"utc designator", "2025-08-18T11:41:00Z", false, 11, 41},
		{"surrounding whitespace", "  2025-08-18T06:05:00+09:00 ", false, 6, 5},
		{"offset without colon", "2025-08-18T20:41:00+0900", false, 20, 41},
		{"no offset", "2025-08-18T20:41:00", false, 20, 41},
		{"no offset without seconds", "2025-08-18T20:41", false, 20, 41},
		{"service hour past midnight", "2025-08-18T24:10:00", true, 0, 0},
		{"trailing zone name", "2025-08-18T20:41:00 JST", true, 0, 0},
		{"empty", "", true, 0, 0},
		{"garbage", "not-a-time", true, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Errorf("ParseTimestamp(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) unexpected error: %v", tt.input, err)
			}
			if got.Hour() != tt.hour || got.Minute() != tt.min {
				t.Errorf("ParseTimestamp(%q) = %02d:%02d, want %02d:%02d", tt.input, got.Hour(), got.Minute(), tt.hour, tt.min)
			}
		})
	}
}

func TestParseTimestamp_NoOffsetIsJST(t *testing.T) {
	got, err := ParseTimestamp("2025-08-24T23:30:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 8, 24, 23, 30, 0, 0, JST)
	if !got.Equal(want) {
		t.Errorf("ParseTimestamp = %v, want %v", got, want)
	}
	if got.Day() != 24 {
		t.Errorf("calendar day should stay the JST day, got %d", got.Day())
	}
}

func TestLenientHHMM(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		expectErr    bool
		hour, minute int
	}{
		{"missing offset", "2025-08-18T20:41:00", false, 20, 41},
		{"broken offset", "2025-08-18T07:03+9", false, 7, 3},
		{"after midnight service hour", "2025-08-18T24:10:00", false, 24, 10},
		{"no separator", "20:41", true, 0, 0},
		{"hour only", "2025-08-18T20", true, 0, 0},
		{"non numeric", "2025-08-18Txx:yy", true, 0, 0},
		{"minute out of range", "2025-08-18T20:75", true, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m, err := LenientHHMM(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Errorf("LenientHHMM(%q) expected error, got %02d:%02d", tt.input, h, m)
				}
				return
			}
			if err != nil {
				t.Fatalf("LenientHHMM(%q) unexpected error: %v", tt.input, err)
			}
			if h != tt.hour || m != tt.minute {
				t.Errorf("LenientHHMM(%q) = %02d:%02d, want %02d:%02d", tt.input, h, m, tt.hour, tt.minute)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := FormatTimestamp(time.Time{}); got != "" {
		t.Errorf("FormatTimestamp(zero) = %q, want empty", got)
	}

	ts := time.Date(2025, 8, 24, 6, 51, 0, 0, JST)
	if got := FormatTimestamp(ts); got != "2025-08-24T06:51:00+09:00" {
		t.Errorf("FormatTimestamp = %q", got)
	}
}

func TestRequestDateTime(t *testing.T) {
	ts := time.Date(2025, 8, 17, 0, 0, 30, 0, time.UTC)
	if got := RequestDateTime(ts); got != "2025-08-17T09:00:00+09:00" {
		t.Errorf("RequestDateTime = %q, want %q", got, "2025-08-17T09:00:00+09:00")
	}
}

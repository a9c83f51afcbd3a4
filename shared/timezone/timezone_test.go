package timezone_test

import (
	"mlaku/shared/timezone"
	"testing"
	"time"
)

func TestTimezoneInit(t *testing.T) {
	// Test Now() function
	now := timezone.Now()
	if now.IsZero() {
		t.Error("Now() returned zero time")
	}

	// Test GetLocation()
	loc := timezone.GetLocation()
	if loc == nil {
		t.Error("GetLocation() returned nil")
	}
}

func TestTimezoneWithStandardLocation(t *testing.T) {
	utcTime := time.Now().UTC()
	appTime := timezone.ToAppTime(utcTime)

	if appTime.Location() == nil {
		t.Error("Expected converted time to have a location")
	}
}

func TestTimezoneFormat(t *testing.T) {
	testTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	formatted := timezone.Format(testTime, "2006-01-02 15:04:05 MST")

	if formatted == "" {
		t.Error("Format() returned empty string")
	}

	parsed, err := timezone.Parse("2006-01-02", "2024-01-01")
	if err != nil {
		t.Errorf("Parse() failed: %v", err)
	}

	if parsed == (time.Time{}) {
		t.Error("Parse() returned a zero time")
	}
}

func TestParseUTC(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "zulu", value: "2025-02-10T12:00:00Z"},
		{name: "zero offset", value: "2025-02-10T12:00:00+00:00"},
		{name: "fractional seconds", value: "2025-02-10T12:00:00.250Z"},
		{name: "local offset", value: "2025-02-10T12:00:00+07:00", wantErr: true},
		{name: "no marker", value: "2025-02-10T12:00:00", wantErr: true},
		{name: "date only", value: "2025-02-10", wantErr: true},
		{name: "garbage with marker", value: "tomorrowZ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := timezone.ParseUTC(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.value)
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if parsed.Location() != time.UTC {
				t.Errorf("expected UTC location, got %s", parsed.Location())
			}
		})
	}
}

package timezone

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mlaku/config"
)

// ErrNotUTC is returned when a timestamp carries no explicit UTC marker.
var ErrNotUTC = errors.New("timestamp must be an ISO 8601 UTC string (e.g., 2025-02-10T12:00:00Z)")

var (
	appLocation *time.Location
)

func init() {
	cfg := config.Get()

	if cfg.App.Timezone == "" {
		log.Warn().Msg("No timezone configured, using UTC as default")
		cfg.App.Timezone = "UTC"
	}

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		log.Error().
			Err(err).
			Str("timezone", cfg.App.Timezone).
			Msg("Failed to load timezone, falling back to UTC. Please use standard timezone names like 'Asia/Jakarta', 'UTC', 'America/New_York'")
		appLocation = time.UTC
		return
	}

	appLocation = loc
	log.Info().
		Str("timezone", cfg.App.Timezone).
		Str("location", loc.String()).
		Msg("Application timezone initialized")
}

// Now returns the current time in the application timezone
func Now() time.Time {
	if appLocation == nil {
		log.Warn().Msg("Timezone not initialized, using UTC")
		return time.Now().UTC()
	}
	return time.Now().In(appLocation)
}

// ToAppTime converts a time to the application timezone
func ToAppTime(t time.Time) time.Time {
	if appLocation == nil {
		log.Warn().Msg("Timezone not initialized, using UTC")
		return t.UTC()
	}
	return t.In(appLocation)
}

// GetLocation returns the current application timezone location
func GetLocation() *time.Location {
	if appLocation == nil {
		log.Warn().Msg("Timezone not initialized, returning UTC")
		return time.UTC
	}
	return appLocation
}

// Parse parses a time string in the application timezone
func Parse(layout, value string) (time.Time, error) {
	if appLocation == nil {
		log.Warn().Msg("Timezone not initialized, parsing in UTC")
		return time.Parse(layout, value)
	}
	return time.ParseInLocation(layout, value, appLocation)
}

// Format formats a time in the application timezone
func Format(t time.Time, layout string) string {
	return ToAppTime(t).Format(layout)
}

// ParseUTC parses an RFC 3339 timestamp that is explicitly marked as UTC with
// either a trailing Z or a +00:00 offset.
func ParseUTC(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if !strings.HasSuffix(value, "Z") && !strings.HasSuffix(value, "+00:00") && !strings.HasSuffix(value, "-00:00") {
		return time.Time{}, ErrNotUTC
	}

	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, ErrNotUTC
	}

	return parsed.UTC(), nil
}

// IsUTC reports whether value is a UTC marked RFC 3339 timestamp.
func IsUTC(value string) bool {
	_, err := ParseUTC(value)

	return err == nil
}

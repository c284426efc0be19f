package timezone

import (
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DayLayout is the key format of an attendance day.
const DayLayout = "2006-01-02"

var (
	mu              sync.RWMutex
	currentLocation *time.Location
	clock           = time.Now
)

// Initialize sets the display zone from the TZ environment variable, UTC by default.
// Attendance days are always UTC regardless of this setting.
func Initialize() {
	tzName := "UTC"
	if envTZ := os.Getenv("TZ"); envTZ != "" {
		tzName = envTZ
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Warnf("Failed to load timezone %s from environment: %v. Falling back to UTC.", tzName, err)
		loc = time.UTC
	} else {
		log.Infof("Display timezone set to %s", tzName)
	}

	mu.Lock()
	currentLocation = loc
	mu.Unlock()
}

func location() *time.Location {
	mu.RLock()
	loc := currentLocation
	mu.RUnlock()
	if loc == nil {
		Initialize()
		mu.RLock()
		loc = currentLocation
		mu.RUnlock()
	}
	return loc
}

// Now returns the current instant in UTC.
func Now() time.Time {
	mu.RLock()
	now := clock
	mu.RUnlock()
	return now().UTC()
}

// SetClock replaces the time source and returns a func restoring the previous one.
func SetClock(now func() time.Time) (restore func()) {
	mu.Lock()
	prev := clock
	clock = now
	mu.Unlock()
	return func() {
		mu.Lock()
		clock = prev
		mu.Unlock()
	}
}

// Format renders t in the display zone.
func Format(t time.Time, layout string) string {
	return t.In(location()).Format(layout)
}

// RFC3339 renders t as RFC 3339 in the display zone.
func RFC3339(t time.Time) string {
	return Format(t, time.RFC3339)
}

// DayKey returns the UTC calendar day of t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// DayBounds returns [00:00:00, next 00:00:00) of t's UTC calendar day.
func DayBounds(t time.Time) (start, end time.Time) {
	u := t.UTC()
	start = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// ParseDay parses a YYYY-MM-DD key as a UTC day start.
func ParseDay(key string) (time.Time, error) {
	day, err := time.ParseInLocation(DayLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q, expected YYYY-MM-DD: %w", key, err)
	}
	return day, nil
}

// Package window computes rate-limit accounting windows.
// Every counter, queue item and pause flag in the system is partitioned by
// the hourly window its timestamp falls into, so all components must agree
// on window boundaries. Windows are aligned to wall-clock hours in UTC and
// identified by their start time.
package window

import "time"

// Keys are RFC3339 strings so they sort chronologically in the database.
const KeyFormat = time.RFC3339

// CurrentStart returns the start of the window containing now.
func CurrentStart(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour)
}

// NextStart returns the start of the window after the one containing now.
func NextStart(now time.Time) time.Time {
	return CurrentStart(now).Add(time.Hour)
}

// IsCurrent reports whether windowStart identifies the window containing now.
func IsCurrent(windowStart, now time.Time) bool {
	return windowStart.Equal(CurrentStart(now))
}

// Key returns the storage key for the window starting at windowStart.
func Key(windowStart time.Time) string {
	return windowStart.UTC().Format(KeyFormat)
}

// ParseKey parses a storage key back into a window start time.
func ParseKey(key string) (time.Time, error) {
	t, err := time.Parse(KeyFormat, key)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

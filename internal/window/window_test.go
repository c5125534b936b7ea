package window

import (
	"testing"
	"time"
)

func TestCurrentStart(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 37, 22, 99, time.UTC)
	got := CurrentStart(now)
	want := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("CurrentStart() = %v, want %v", got, want)
	}
}

func TestCurrentStartNonUTC(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2025, 6, 15, 20, 7, 0, 0, loc) // 14:37 UTC
	got := CurrentStart(now)
	want := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("CurrentStart() = %v, want %v", got, want)
	}
	if got.Location() != time.UTC {
		t.Errorf("CurrentStart() location = %v, want UTC", got.Location())
	}
}

func TestNextStart(t *testing.T) {
	now := time.Date(2025, 6, 15, 23, 59, 59, 0, time.UTC)
	got := NextStart(now)
	want := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NextStart() = %v, want %v", got, want)
	}
}

func TestIsCurrent(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	if !IsCurrent(time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC), now) {
		t.Error("expected 14:00 window to be current at 14:30")
	}
	if IsCurrent(time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC), now) {
		t.Error("expected 13:00 window to be stale at 14:30")
	}
}

func TestKeyRoundTrip(t *testing.T) {
	start := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
	key := Key(start)
	if key != "2025-06-15T14:00:00Z" {
		t.Errorf("Key() = %q", key)
	}
	parsed, err := ParseKey(key)
	if err != nil {
		t.Fatalf("ParseKey() error = %v", err)
	}
	if !parsed.Equal(start) {
		t.Errorf("ParseKey() = %v, want %v", parsed, start)
	}
}

func TestParseKeyInvalid(t *testing.T) {
	if _, err := ParseKey("not-a-time"); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestKeysSortChronologically(t *testing.T) {
	a := Key(time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC))
	b := Key(time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC))
	if !(a < b) {
		t.Errorf("expected %q < %q", a, b)
	}
}

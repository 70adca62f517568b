package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	durations := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for _, d := range durations {
		tracker.Observe(d)
	}

	if tracker.Count() != len(durations) {
		t.Fatalf("expected count %d, got %d", len(durations), tracker.Count())
	}

	p95 := tracker.Percentile(95)
	if p95 < 40*time.Millisecond {
		t.Fatalf("expected percentile >= 40ms, got %v", p95)
	}
	if tracker.Percentile(0) != 10*time.Millisecond {
		t.Fatalf("expected 0th percentile 10ms, got %v", tracker.Percentile(0))
	}
	if tracker.Percentile(100) != 50*time.Millisecond {
		t.Fatalf("expected 100th percentile 50ms, got %v", tracker.Percentile(100))
	}
}

func TestLatencyTrackerEvictsOldest(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 1; i <= 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if tracker.Count() != 3 {
		t.Fatalf("expected tracker size 3, got %d", tracker.Count())
	}
	// Only the last three observations survive.
	if got := tracker.Percentile(0); got != 8*time.Millisecond {
		t.Fatalf("expected oldest surviving sample 8ms, got %v", got)
	}
}

func TestLatencyTrackerEmpty(t *testing.T) {
	tracker := NewLatencyTracker(4)
	if tracker.Percentile(50) != 0 {
		t.Fatalf("expected zero percentile with no samples")
	}
}

func TestParseWindow(t *testing.T) {
	from, to, err := ParseWindow("2024-01-01T00:00:00Z", "2024-12-31T23:59:59Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !to.After(from) {
		t.Fatalf("expected end after start, got %v / %v", from, to)
	}

	if _, _, err := ParseWindow("2024-06-01T00:00:00Z", "2024-01-01T00:00:00Z"); err == nil {
		t.Fatalf("expected error for inverted window")
	}
	if _, _, err := ParseWindow("", "2024-01-01T00:00:00Z"); err == nil {
		t.Fatalf("expected error for empty start")
	}
}

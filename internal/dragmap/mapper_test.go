package dragmap

import (
	"testing"
	"time"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestMap_SnapsStartDownEndUp(t *testing.T) {
	m := New(0, 0) // defaults: 15m granularity, 15m minimum

	// 60 px/hour: 1 px per minute. Drag from 09:07 to 10:22.
	got, err := m.Map(day, 547, 622, 60)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if !got.Start.Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected start snapped down to 09:00, got %s", got.Start)
	}
	if !got.End.Equal(day.Add(10*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected end snapped up to 10:30, got %s", got.End)
	}
}

func TestMap_ShortDragClampsToMinDuration(t *testing.T) {
	m := New(15*time.Minute, 15*time.Minute)

	// A 3-minute drag inside one granularity cell.
	got, err := m.Map(day, 541, 544, 60)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if got.Duration() != 15*time.Minute {
		t.Fatalf("expected 15m minimum duration, got %s", got.Duration())
	}
	if !got.Start.Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected start 09:00, got %s", got.Start)
	}
}

func TestMap_InvertedDragIsNormalized(t *testing.T) {
	m := New(0, 0)
	got, err := m.Map(day, 600, 540, 60)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if !got.Start.Equal(day.Add(9*time.Hour)) || !got.End.Equal(day.Add(10*time.Hour)) {
		t.Fatalf("expected 09:00-10:00 from upward drag, got %v", got)
	}
}

func TestMap_ClampsToDayEnd(t *testing.T) {
	m := New(0, 0)
	got, err := m.Map(day, 1435, 1500, 60)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if !got.End.Equal(day.Add(24 * time.Hour)) {
		t.Fatalf("expected end clamped to midnight, got %s", got.End)
	}
	if got.Duration() < 15*time.Minute {
		t.Fatalf("clamping must preserve the minimum duration, got %s", got.Duration())
	}
}

func TestMap_RejectsBadScale(t *testing.T) {
	m := New(0, 0)
	if _, err := m.Map(day, 0, 60, 0); err == nil {
		t.Fatal("expected error for non-positive pixelsPerHour")
	}
}

func TestMap_ExactBoundariesUnchanged(t *testing.T) {
	m := New(0, 0)
	got, err := m.Map(day, 540, 630, 60)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if !got.Start.Equal(day.Add(9*time.Hour)) || !got.End.Equal(day.Add(10*time.Hour+30*time.Minute)) {
		t.Fatalf("aligned drag must map exactly, got %v", got)
	}
}

package interval

import (
	"errors"
	"testing"
	"time"
)

func utc(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func TestNew_RejectsZeroLength(t *testing.T) {
	at := utc(9, 0)
	if _, err := New(at, at); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
	if _, err := New(utc(10, 0), utc(9, 0)); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval for inverted interval, got %v", err)
	}
}

func TestOverlaps_HalfOpen(t *testing.T) {
	a := Interval{Start: utc(9, 0), End: utc(10, 0)}
	b := Interval{Start: utc(10, 0), End: utc(11, 0)}
	if a.Overlaps(b) {
		t.Fatal("back-to-back intervals must not overlap")
	}
	c := Interval{Start: utc(9, 30), End: utc(10, 30)}
	if !a.Overlaps(c) || !c.Overlaps(a) {
		t.Fatal("expected overlap")
	}
}

func TestExpand(t *testing.T) {
	iv := Interval{Start: utc(10, 0), End: utc(10, 30)}
	got := iv.Expand(10*time.Minute, 5*time.Minute)
	if !got.Start.Equal(utc(9, 50)) || !got.End.Equal(utc(10, 35)) {
		t.Fatalf("unexpected expansion: %v", got)
	}
	same := iv.Expand(-time.Minute, 0)
	if !same.Start.Equal(iv.Start) || !same.End.Equal(iv.End) {
		t.Fatalf("negative buffers must be ignored, got %v", same)
	}
}

func TestMerge_CoalescesOverlappingAndAdjacent(t *testing.T) {
	got := Merge([]Interval{
		{Start: utc(13, 0), End: utc(14, 0)},
		{Start: utc(9, 0), End: utc(10, 0)},
		{Start: utc(10, 0), End: utc(10, 30)},
		{Start: utc(9, 45), End: utc(10, 15)},
	})
	want := []Interval{
		{Start: utc(9, 0), End: utc(10, 30)},
		{Start: utc(13, 0), End: utc(14, 0)},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d intervals, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("interval %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestSubtract_SplitsBase(t *testing.T) {
	base := Interval{Start: utc(9, 0), End: utc(12, 0)}
	busy := []Interval{
		{Start: utc(10, 0), End: utc(10, 30)},
		{Start: utc(11, 0), End: utc(11, 15)},
	}
	got := Subtract(base, busy)
	want := []Interval{
		{Start: utc(9, 0), End: utc(10, 0)},
		{Start: utc(10, 30), End: utc(11, 0)},
		{Start: utc(11, 15), End: utc(12, 0)},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d free intervals, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("free %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestSubtract_BusyCoversBase(t *testing.T) {
	base := Interval{Start: utc(9, 0), End: utc(10, 0)}
	got := Subtract(base, []Interval{{Start: utc(8, 0), End: utc(11, 0)}})
	if len(got) != 0 {
		t.Fatalf("expected no free time, got %v", got)
	}
}

func TestFromLocal_DSTSpringForward(t *testing.T) {
	nyc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 2026-03-07 is the day before the US spring-forward; 2026-03-08 crosses it.
	before, err := FromLocal(nyc, 2026, time.March, 7, 9*60, 17*60)
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	after, err := FromLocal(nyc, 2026, time.March, 8, 9*60, 17*60)
	if err != nil {
		t.Fatalf("after: %v", err)
	}

	if before.Duration() != 8*time.Hour || after.Duration() != 8*time.Hour {
		t.Fatalf("local wall-clock duration must stay 8h, got %s and %s", before.Duration(), after.Duration())
	}
	// EST is UTC-5, EDT is UTC-4: the UTC start shifts by exactly the DST delta.
	if !before.Start.Equal(time.Date(2026, 3, 7, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected EST start: %s", before.Start)
	}
	if !after.Start.Equal(time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected EDT start: %s", after.Start)
	}
}

func TestFromLocal_RejectsBadMinutes(t *testing.T) {
	if _, err := FromLocal(time.UTC, 2026, time.March, 2, 600, 540); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

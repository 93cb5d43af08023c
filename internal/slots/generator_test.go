package slots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/advisorly/schedcore/internal/busy"
	"github.com/advisorly/schedcore/internal/interval"
	"github.com/advisorly/schedcore/internal/model"
)

type fakeSources struct {
	rules      []model.AvailabilityRule
	eventTypes map[string]model.EventType
	busy       busy.Result
}

func (f *fakeSources) ListActiveRules(_ context.Context, personID string) ([]model.AvailabilityRule, error) {
	var out []model.AvailabilityRule
	for _, r := range f.rules {
		if r.PersonID == personID && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSources) GetEventType(_ context.Context, id string) (model.EventType, bool, error) {
	et, ok := f.eventTypes[id]
	return et, ok, nil
}

func (f *fakeSources) BusyIntervals(context.Context, string, interval.Interval) (busy.Result, error) {
	return f.busy, nil
}

// Monday 2026-03-02.
func monday(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func mondayRange(t *testing.T) interval.Interval {
	t.Helper()
	iv, err := interval.New(monday(0, 0), time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	return iv
}

func epoch() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func newTestGenerator(f *fakeSources) *Generator {
	return NewGenerator(f, f, f, 15*time.Minute)
}

func TestGenerate_ChunksAroundBooking(t *testing.T) {
	f := &fakeSources{
		rules: []model.AvailabilityRule{
			{PersonID: "p1", Weekday: 1, StartMinute: 540, EndMinute: 720, Timezone: "UTC", Active: true},
		},
		eventTypes: map[string]model.EventType{
			"et30": {ID: "et30", OwnerID: "p1", DurationMins: 30, Active: true},
		},
		busy: busy.Result{Intervals: []interval.Interval{
			{Start: monday(10, 0), End: monday(10, 30)},
		}},
	}

	res, err := newTestGenerator(f).Generate(context.Background(), "p1", mondayRange(t), "et30", epoch())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	want := [][2]time.Time{
		{monday(9, 0), monday(9, 30)},
		{monday(9, 30), monday(10, 0)},
		{monday(10, 30), monday(11, 0)},
		{monday(11, 0), monday(11, 30)},
		{monday(11, 30), monday(12, 0)},
	}
	if len(res.Slots) != len(want) {
		t.Fatalf("expected %d slots, got %d: %v", len(want), len(res.Slots), res.Slots)
	}
	for i, w := range want {
		if !res.Slots[i].Start.Equal(w[0]) || !res.Slots[i].End.Equal(w[1]) {
			t.Fatalf("slot %d: expected [%s, %s), got [%s, %s)", i, w[0], w[1], res.Slots[i].Start, res.Slots[i].End)
		}
	}
}

func TestGenerate_SlotsStayInsideRulesAndOutsideBusy(t *testing.T) {
	f := &fakeSources{
		rules: []model.AvailabilityRule{
			{PersonID: "p1", Weekday: 1, StartMinute: 540, EndMinute: 1020, Timezone: "UTC", Active: true},
		},
		eventTypes: map[string]model.EventType{
			"et45": {ID: "et45", OwnerID: "p1", DurationMins: 45, Active: true},
		},
		busy: busy.Result{Intervals: []interval.Interval{
			{Start: monday(11, 0), End: monday(12, 10)},
			{Start: monday(14, 0), End: monday(14, 5)},
		}},
	}

	res, err := newTestGenerator(f).Generate(context.Background(), "p1", mondayRange(t), "et45", epoch())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Slots) == 0 {
		t.Fatal("expected some slots")
	}

	window := interval.Interval{Start: monday(9, 0), End: monday(17, 0)}
	for _, s := range res.Slots {
		iv := interval.Interval{Start: s.Start, End: s.End}
		if !window.Contains(iv) {
			t.Fatalf("slot %v escapes the availability window", iv)
		}
		for _, b := range f.busy.Intervals {
			if iv.Overlaps(b) {
				t.Fatalf("slot %v overlaps busy %v", iv, b)
			}
		}
		if !s.Start.Equal(s.Start.Truncate(15 * time.Minute)) {
			t.Fatalf("slot start %s not aligned to granularity", s.Start)
		}
	}
}

func TestGenerate_FreeIntervalsWithoutEventType(t *testing.T) {
	f := &fakeSources{
		rules: []model.AvailabilityRule{
			{PersonID: "p1", Weekday: 1, StartMinute: 540, EndMinute: 720, Timezone: "UTC", Active: true},
		},
		busy: busy.Result{Intervals: []interval.Interval{
			{Start: monday(10, 0), End: monday(10, 30)},
		}},
	}

	res, err := newTestGenerator(f).Generate(context.Background(), "p1", mondayRange(t), "", epoch())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Slots) != 2 {
		t.Fatalf("expected 2 free intervals, got %v", res.Slots)
	}
	if !res.Slots[0].End.Equal(monday(10, 0)) || !res.Slots[1].Start.Equal(monday(10, 30)) {
		t.Fatalf("free intervals must bracket the booking, got %v", res.Slots)
	}
}

func TestGenerate_PropagatesPartialFlag(t *testing.T) {
	f := &fakeSources{
		rules: []model.AvailabilityRule{
			{PersonID: "p1", Weekday: 1, StartMinute: 540, EndMinute: 720, Timezone: "UTC", Active: true},
		},
		busy: busy.Result{Partial: true},
	}

	res, err := newTestGenerator(f).Generate(context.Background(), "p1", mondayRange(t), "", epoch())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !res.Partial {
		t.Fatal("partial flag must propagate to the caller")
	}
}

func TestGenerate_UnknownEventType(t *testing.T) {
	f := &fakeSources{eventTypes: map[string]model.EventType{}}
	_, err := newTestGenerator(f).Generate(context.Background(), "p1", mondayRange(t), "missing", epoch())
	if !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestGenerate_ExcludesPastSlots(t *testing.T) {
	f := &fakeSources{
		rules: []model.AvailabilityRule{
			{PersonID: "p1", Weekday: 1, StartMinute: 540, EndMinute: 720, Timezone: "UTC", Active: true},
		},
		eventTypes: map[string]model.EventType{
			"et30": {ID: "et30", OwnerID: "p1", DurationMins: 30, Active: true},
		},
	}

	now := monday(10, 10)
	res, err := newTestGenerator(f).Generate(context.Background(), "p1", mondayRange(t), "et30", now)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, s := range res.Slots {
		if s.Start.Before(now) {
			t.Fatalf("slot %s starts in the past", s.Start)
		}
	}
	if len(res.Slots) != 3 {
		t.Fatalf("expected 3 future slots (10:30, 11:00, 11:30), got %v", res.Slots)
	}
}

func TestGenerate_DiscardsRemainderShorterThanDuration(t *testing.T) {
	f := &fakeSources{
		rules: []model.AvailabilityRule{
			// 09:00-09:50: room for one 30m slot, 20m remainder dropped.
			{PersonID: "p1", Weekday: 1, StartMinute: 540, EndMinute: 590, Timezone: "UTC", Active: true},
		},
		eventTypes: map[string]model.EventType{
			"et30": {ID: "et30", OwnerID: "p1", DurationMins: 30, Active: true},
		},
	}

	res, err := newTestGenerator(f).Generate(context.Background(), "p1", mondayRange(t), "et30", epoch())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Slots) != 1 {
		t.Fatalf("expected a single slot, got %v", res.Slots)
	}
	if !res.Slots[0].Start.Equal(monday(9, 0)) || !res.Slots[0].End.Equal(monday(9, 30)) {
		t.Fatalf("unexpected slot %v", res.Slots[0])
	}
}

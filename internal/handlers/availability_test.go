package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/advisorly/schedcore/internal/busy"
	"github.com/advisorly/schedcore/internal/interval"
	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/internal/slots"
)

type fakeSlotSources struct {
	rules []model.AvailabilityRule
	busy  busy.Result
}

func (f *fakeSlotSources) ListActiveRules(_ context.Context, personID string) ([]model.AvailabilityRule, error) {
	var out []model.AvailabilityRule
	for _, r := range f.rules {
		if r.PersonID == personID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSlotSources) GetEventType(context.Context, string) (model.EventType, bool, error) {
	return model.EventType{}, false, nil
}

func (f *fakeSlotSources) BusyIntervals(context.Context, string, interval.Interval) (busy.Result, error) {
	return f.busy, nil
}

func newAvailabilityHandler(f *fakeSlotSources) *AvailabilityHandler {
	gen := slots.NewGenerator(f, f, f, 15*time.Minute)
	return NewAvailabilityHandler(gen, nil, slog.New(slog.DiscardHandler))
}

func TestAvailabilityGet_ReturnsFreeIntervals(t *testing.T) {
	f := &fakeSlotSources{
		rules: []model.AvailabilityRule{
			// Monday 2100-01-04, 09:00-12:00 UTC. Far in the future so the
			// handler's wall-clock cutoff never trims the range.
			{PersonID: "p1", Weekday: 1, StartMinute: 540, EndMinute: 720, Timezone: "UTC", Active: true},
		},
		busy: busy.Result{Partial: true},
	}
	h := newAvailabilityHandler(f)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/availability?person_id=p1&start=2100-01-04T00:00:00Z&end=2100-01-05T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp availabilityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Slots) != 1 {
		t.Fatalf("expected one free interval, got %v", resp.Slots)
	}
	if resp.Slots[0].StartTime != "2100-01-04T09:00:00Z" || resp.Slots[0].EndTime != "2100-01-04T12:00:00Z" {
		t.Fatalf("unexpected interval %+v", resp.Slots[0])
	}
	if !resp.Partial {
		t.Fatal("partial flag must surface in the response")
	}
}

func TestAvailabilityGet_RejectsBadRange(t *testing.T) {
	h := newAvailabilityHandler(&fakeSlotSources{})

	cases := []string{
		"/api/v1/availability?start=2026-03-02T00:00:00Z&end=2026-03-03T00:00:00Z",              // no person
		"/api/v1/availability?person_id=p1&start=bogus&end=2026-03-03T00:00:00Z",                // bad start
		"/api/v1/availability?person_id=p1&start=2026-03-03T00:00:00Z&end=2026-03-02T00:00:00Z", // inverted
	}
	for _, url := range cases {
		rec := httptest.NewRecorder()
		h.Get(rec, httptest.NewRequest(http.MethodGet, url, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", url, rec.Code)
		}
	}
}

func TestAvailabilityGet_UnknownEventType(t *testing.T) {
	h := newAvailabilityHandler(&fakeSlotSources{})

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/availability?person_id=p1&event_type_id=nope&start=2026-03-02T00:00:00Z&end=2026-03-03T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

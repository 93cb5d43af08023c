// Package slots projects availability rules onto a date range, subtracts
// busy time, and yields bookable slots. Slots are a derived view: recomputed
// on every query, never stored.
package slots

import (
	"context"
	"errors"
	"time"

	"github.com/advisorly/schedcore/internal/busy"
	"github.com/advisorly/schedcore/internal/interval"
	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/internal/rules"
)

var ErrUnknownEventType = errors.New("unknown or inactive event type")

type RuleSource interface {
	ListActiveRules(ctx context.Context, personID string) ([]model.AvailabilityRule, error)
}

type EventTypeSource interface {
	GetEventType(ctx context.Context, id string) (model.EventType, bool, error)
}

type BusySource interface {
	BusyIntervals(ctx context.Context, personID string, rangeUTC interval.Interval) (busy.Result, error)
}

type Slot struct {
	OwnerID string
	Start   time.Time
	End     time.Time
}

// Result mirrors the aggregator's partial flag so the caller can show a
// "sync may be stale" notice without failing the query.
type Result struct {
	Slots   []Slot
	Partial bool
}

type Generator struct {
	rules       RuleSource
	eventTypes  EventTypeSource
	busy        BusySource
	granularity time.Duration
}

func NewGenerator(ruleSource RuleSource, eventTypes EventTypeSource, busySource BusySource, granularity time.Duration) *Generator {
	if granularity <= 0 {
		granularity = 15 * time.Minute
	}
	return &Generator{
		rules:       ruleSource,
		eventTypes:  eventTypes,
		busy:        busySource,
		granularity: granularity,
	}
}

// Generate computes the bookable slots for a person over rangeUTC. With an
// event type, free time is chunked into consecutive duration-sized slots
// whose starts align to the granularity; without one, the raw free intervals
// are returned for grid rendering. Slots starting before now are dropped.
// Output is deterministic and sorted by start.
func (g *Generator) Generate(ctx context.Context, personID string, rangeUTC interval.Interval, eventTypeID string, now time.Time) (Result, error) {
	var et model.EventType
	if eventTypeID != "" {
		loaded, found, err := g.eventTypes.GetEventType(ctx, eventTypeID)
		if err != nil {
			return Result{}, err
		}
		if !found || !loaded.Active || loaded.OwnerID != personID {
			return Result{}, ErrUnknownEventType
		}
		et = loaded
	}

	activeRules, err := g.rules.ListActiveRules(ctx, personID)
	if err != nil {
		return Result{}, err
	}
	available, err := rules.ProjectOntoRange(activeRules, rangeUTC)
	if err != nil {
		return Result{}, err
	}

	busyRes, err := g.busy.BusyIntervals(ctx, personID, rangeUTC)
	if err != nil {
		return Result{}, err
	}

	free := interval.SubtractAll(available, busyRes.Intervals)

	var out []Slot
	if eventTypeID == "" {
		for _, f := range free {
			if f.End.After(now) {
				out = append(out, Slot{OwnerID: personID, Start: f.Start, End: f.End})
			}
		}
		return Result{Slots: out, Partial: busyRes.Partial}, nil
	}

	duration := time.Duration(et.DurationMins) * time.Minute
	for _, f := range free {
		for t := alignUp(f.Start, g.granularity); !t.Add(duration).After(f.End); t = t.Add(duration) {
			if t.Before(now) {
				continue
			}
			out = append(out, Slot{OwnerID: personID, Start: t, End: t.Add(duration)})
		}
	}
	return Result{Slots: out, Partial: busyRes.Partial}, nil
}

func alignUp(t time.Time, granularity time.Duration) time.Time {
	truncated := t.Truncate(granularity)
	if truncated.Equal(t) {
		return t
	}
	return truncated.Add(granularity)
}

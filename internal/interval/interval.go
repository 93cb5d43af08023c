// Package interval implements the half-open UTC time interval primitives the
// scheduling engine is built on. Intervals are [Start, End): back-to-back
// meetings never overlap.
package interval

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrInvalidInterval = errors.New("invalid interval")

type Interval struct {
	Start time.Time
	End   time.Time
}

// New validates and normalizes an interval to UTC. Zero-length and inverted
// intervals are rejected.
func New(start, end time.Time) (Interval, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return Interval{}, fmt.Errorf("%w: [%s, %s)", ErrInvalidInterval, start, end)
	}
	return Interval{Start: start.UTC(), End: end.UTC()}, nil
}

// FromLocal builds a UTC interval from a local calendar date plus wall-clock
// minutes since midnight in loc. Going through time.Date keeps DST days
// correct: the wall-clock bounds hold even when the UTC offset shifts
// mid-range.
func FromLocal(loc *time.Location, year int, month time.Month, day, startMinute, endMinute int) (Interval, error) {
	if loc == nil {
		return Interval{}, fmt.Errorf("%w: nil location", ErrInvalidInterval)
	}
	if startMinute < 0 || endMinute > 24*60 || startMinute >= endMinute {
		return Interval{}, fmt.Errorf("%w: minutes [%d, %d)", ErrInvalidInterval, startMinute, endMinute)
	}
	start := time.Date(year, month, day, 0, startMinute, 0, 0, loc)
	end := time.Date(year, month, day, 0, endMinute, 0, 0, loc)
	return New(start, end)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps is the strict half-open test: [a,b) and [c,d) overlap iff a < d && c < b.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

// Contains reports whether o lies entirely within iv.
func (iv Interval) Contains(o Interval) bool {
	return !o.Start.Before(iv.Start) && !o.End.After(iv.End)
}

// Expand widens the interval by the given buffers. Negative buffers are
// treated as zero.
func (iv Interval) Expand(before, after time.Duration) Interval {
	if before > 0 {
		iv.Start = iv.Start.Add(-before)
	}
	if after > 0 {
		iv.End = iv.End.Add(after)
	}
	return iv
}

// Merge coalesces overlapping and adjacent intervals into a minimal sorted
// set. The input is not modified.
func Merge(list []Interval) []Interval {
	if len(list) == 0 {
		return nil
	}
	sorted := make([]Interval, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.Start.After(last.End) {
			out = append(out, iv)
			continue
		}
		if iv.End.After(last.End) {
			last.End = iv.End
		}
	}
	return out
}

// Subtract returns the free remainder of base after removing every
// overlapping busy interval, splitting base as needed. The result is sorted
// by start.
func Subtract(base Interval, busy []Interval) []Interval {
	free := []Interval{base}
	for _, b := range Merge(busy) {
		var next []Interval
		for _, f := range free {
			if !f.Overlaps(b) {
				next = append(next, f)
				continue
			}
			if b.Start.After(f.Start) {
				next = append(next, Interval{Start: f.Start, End: b.Start})
			}
			if b.End.Before(f.End) {
				next = append(next, Interval{Start: b.End, End: f.End})
			}
		}
		free = next
	}
	return free
}

// SubtractAll subtracts busy from every base interval and returns the merged,
// sorted free set.
func SubtractAll(bases, busy []Interval) []Interval {
	var free []Interval
	for _, base := range Merge(bases) {
		free = append(free, Subtract(base, busy)...)
	}
	return free
}

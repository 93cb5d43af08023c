// Package rules projects recurring weekly availability onto concrete date
// ranges.
package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/advisorly/schedcore/internal/interval"
	"github.com/advisorly/schedcore/internal/model"
)

var ErrInvalidRule = errors.New("invalid availability rule")

// rrule uses Monday-based weekday constants; rules use time.Weekday numbering.
var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func Validate(r model.AvailabilityRule) error {
	if r.PersonID == "" {
		return fmt.Errorf("%w: person id required", ErrInvalidRule)
	}
	if r.Weekday < 0 || r.Weekday > 6 {
		return fmt.Errorf("%w: weekday %d", ErrInvalidRule, r.Weekday)
	}
	if r.StartMinute < 0 || r.EndMinute > 24*60 || r.StartMinute >= r.EndMinute {
		return fmt.Errorf("%w: minutes [%d, %d)", ErrInvalidRule, r.StartMinute, r.EndMinute)
	}
	if _, err := time.LoadLocation(r.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q", ErrInvalidRule, r.Timezone)
	}
	return nil
}

// ProjectOntoRange expands every active rule into the UTC intervals it
// produces within rangeUTC, clipped to the range. Weekdays without an active
// rule contribute nothing. Output is merged and sorted.
func ProjectOntoRange(rs []model.AvailabilityRule, rangeUTC interval.Interval) ([]interval.Interval, error) {
	var out []interval.Interval
	for _, r := range rs {
		if !r.Active {
			continue
		}
		if err := Validate(r); err != nil {
			return nil, err
		}
		loc, err := time.LoadLocation(r.Timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: timezone %q", ErrInvalidRule, r.Timezone)
		}

		// Occurrence dates are local days. Widen the recurrence window by a
		// day on each side: a local day can start before the UTC range does
		// and still contribute an overlapping interval.
		localStart := rangeUTC.Start.In(loc)
		windowStart := time.Date(localStart.Year(), localStart.Month(), localStart.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -1)
		localEnd := rangeUTC.End.In(loc)
		windowEnd := time.Date(localEnd.Year(), localEnd.Month(), localEnd.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

		rule, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Byweekday: []rrule.Weekday{rruleWeekdays[r.Weekday]},
			Dtstart:   windowStart,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}

		for _, day := range rule.Between(windowStart, windowEnd, true) {
			day = day.In(loc)
			iv, err := interval.FromLocal(loc, day.Year(), day.Month(), day.Day(), r.StartMinute, r.EndMinute)
			if err != nil {
				return nil, err
			}
			if !iv.Overlaps(rangeUTC) {
				continue
			}
			if iv.Start.Before(rangeUTC.Start) {
				iv.Start = rangeUTC.Start
			}
			if iv.End.After(rangeUTC.End) {
				iv.End = rangeUTC.End
			}
			out = append(out, iv)
		}
	}
	return interval.Merge(out), nil
}

// Package dragmap converts raw pointer drags from the week grid into
// quantized booking drafts. It is pure so the snapping rules stay testable
// without any pointer-event plumbing.
package dragmap

import (
	"time"

	"github.com/advisorly/schedcore/internal/interval"
)

const (
	DefaultGranularity = 15 * time.Minute
	DefaultMinDuration = 15 * time.Minute
)

type Mapper struct {
	Granularity time.Duration
	MinDuration time.Duration
}

func New(granularity, minDuration time.Duration) Mapper {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	if minDuration <= 0 {
		minDuration = DefaultMinDuration
	}
	return Mapper{Granularity: granularity, MinDuration: minDuration}
}

// Map snaps a finished drag on the given day column to a bookable interval.
// The start snaps down and the end snaps up, so a drag never shrinks below
// what the user touched; drags shorter than MinDuration are extended. The
// result is clamped to the day.
func (m Mapper) Map(day time.Time, startPx, endPx, pixelsPerHour float64) (interval.Interval, error) {
	if pixelsPerHour <= 0 {
		return interval.Interval{}, interval.ErrInvalidInterval
	}
	if endPx < startPx {
		startPx, endPx = endPx, startPx
	}

	startMin := snapDown(pxToMinutes(startPx, pixelsPerHour), m.Granularity)
	endMin := snapUp(pxToMinutes(endPx, pixelsPerHour), m.Granularity)
	if endMin-startMin < m.MinDuration {
		endMin = startMin + m.MinDuration
	}

	dayLen := 24 * time.Hour
	if startMin < 0 {
		startMin = 0
	}
	if endMin > dayLen {
		endMin = dayLen
		if endMin-startMin < m.MinDuration {
			startMin = endMin - m.MinDuration
		}
	}

	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return interval.New(midnight.Add(startMin), midnight.Add(endMin))
}

func pxToMinutes(px, pixelsPerHour float64) time.Duration {
	return time.Duration(px / pixelsPerHour * float64(time.Hour))
}

func snapDown(d, granularity time.Duration) time.Duration {
	return d - (d % granularity)
}

func snapUp(d, granularity time.Duration) time.Duration {
	if rem := d % granularity; rem != 0 {
		return d + granularity - rem
	}
	return d
}

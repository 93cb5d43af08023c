// Package busy merges every source of committed time for a person: confirmed
// bookings, their buffer zones, and the external calendar overlay.
package busy

import (
	"context"
	"log/slog"
	"time"

	"github.com/advisorly/schedcore/internal/calsync"
	"github.com/advisorly/schedcore/internal/interval"
	"github.com/advisorly/schedcore/internal/model"
)

// bufferSlack widens the internal booking query so bookings just outside the
// range still contribute their buffers. Buffers are minutes-scale; 4h is a
// hard ceiling, enforced at event type creation.
const bufferSlack = 4 * time.Hour

type BookingSource interface {
	ListConfirmedBookings(ctx context.Context, personID string, rangeUTC interval.Interval) ([]model.Booking, error)
}

type EventTypeSource interface {
	GetEventType(ctx context.Context, id string) (model.EventType, bool, error)
}

type ConnectionSource interface {
	GetConnection(ctx context.Context, personID string) (model.CalendarConnection, bool, error)
}

type Aggregator struct {
	bookings    BookingSource
	eventTypes  EventTypeSource
	connections ConnectionSource
	adapter     calsync.Adapter
	pullTimeout time.Duration
	logger      *slog.Logger
}

// Result carries the merged busy set. Partial means the external pull failed
// and the set reflects internal data only; callers surface it as a staleness
// signal and never block on it.
type Result struct {
	Intervals []interval.Interval
	Partial   bool
}

func NewAggregator(bookings BookingSource, eventTypes EventTypeSource, connections ConnectionSource, adapter calsync.Adapter, pullTimeout time.Duration, logger *slog.Logger) *Aggregator {
	if pullTimeout <= 0 {
		pullTimeout = 5 * time.Second
	}
	return &Aggregator{
		bookings:    bookings,
		eventTypes:  eventTypes,
		connections: connections,
		adapter:     adapter,
		pullTimeout: pullTimeout,
		logger:      logger,
	}
}

func (a *Aggregator) BusyIntervals(ctx context.Context, personID string, rangeUTC interval.Interval) (Result, error) {
	queryRange := rangeUTC.Expand(bufferSlack, bufferSlack)
	bookings, err := a.bookings.ListConfirmedBookings(ctx, personID, queryRange)
	if err != nil {
		return Result{}, err
	}

	etCache := map[string]model.EventType{}
	var out []interval.Interval
	for _, b := range bookings {
		iv := b.Interval()
		if b.EventTypeID != "" {
			et, ok := etCache[b.EventTypeID]
			if !ok {
				loaded, found, err := a.eventTypes.GetEventType(ctx, b.EventTypeID)
				if err != nil {
					return Result{}, err
				}
				if found {
					et = loaded
				}
				etCache[b.EventTypeID] = et
			}
			iv = iv.Expand(
				time.Duration(et.BufferBefore)*time.Minute,
				time.Duration(et.BufferAfter)*time.Minute,
			)
		}
		if iv.Overlaps(rangeUTC) {
			out = append(out, iv)
		}
	}

	external, partial := a.pullExternal(ctx, personID, rangeUTC)
	out = append(out, external...)

	return Result{Intervals: interval.Merge(out), Partial: partial}, nil
}

// pullExternal degrades gracefully: any failure yields internal-only results
// flagged partial, never an error.
func (a *Aggregator) pullExternal(ctx context.Context, personID string, rangeUTC interval.Interval) ([]interval.Interval, bool) {
	if a.adapter == nil || a.connections == nil {
		return nil, false
	}
	conn, found, err := a.connections.GetConnection(ctx, personID)
	if err != nil {
		a.logger.Warn("calendar connection lookup failed; treating sync as degraded", "person_id", personID, "err", err)
		return nil, true
	}
	if !found || !conn.Enabled {
		return nil, false
	}

	pullCtx, cancel := context.WithTimeout(ctx, a.pullTimeout)
	defer cancel()

	busy, err := a.adapter.PullBusy(pullCtx, conn, rangeUTC)
	if err != nil {
		a.logger.Warn("external busy pull failed; availability is internal-only", "person_id", personID, "err", err)
		return nil, true
	}

	out := make([]interval.Interval, 0, len(busy))
	for _, b := range busy {
		iv, err := interval.New(b.Start, b.End)
		if err != nil {
			continue
		}
		out = append(out, iv)
	}
	return out, false
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/advisorly/schedcore/internal/interval"
	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/internal/outbox"
)

var (
	// ErrSlotConflict means the requested interval overlaps a confirmed
	// booking once buffers are applied. Never retried by the engine.
	ErrSlotConflict = errors.New("slot conflicts with an existing booking")

	ErrNotFound         = errors.New("booking not found")
	ErrUnknownEventType = errors.New("unknown or inactive event type")
)

// Neighbouring bookings whose buffers could reach into the requested
// interval start no further than this from its edges.
const conflictSlack = 4 * time.Hour

// Store opens a transaction holding a per-person advisory lock, so all
// booking writes for one person serialize while other persons proceed.
type Store interface {
	InTx(ctx context.Context, personID string, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of statements a booking transaction may run. The storage
// implementation maps the overlap exclusion constraint to ErrSlotConflict
// and missing rows to ErrNotFound.
type Tx interface {
	GetEventType(ctx context.Context, id string) (model.EventType, bool, error)
	ListConfirmedBookings(ctx context.Context, personID string, rangeUTC interval.Interval) ([]model.Booking, error)
	InsertBooking(ctx context.Context, b *model.Booking) (string, error)
	GetBookingForUpdate(ctx context.Context, id string) (model.Booking, error)
	CancelBooking(ctx context.Context, id, reason string) (time.Time, error)
	EnqueueSyncJob(ctx context.Context, job model.SyncJob) error
	InsertOutboxEvent(ctx context.Context, evt outbox.Event) error
	LockIdempotencyKey(ctx context.Context, personID, key string) (bookingID string, done bool, err error)
	FinalizeIdempotency(ctx context.Context, personID, key, bookingID string) error
}

type Service struct {
	store           Store
	logger          *slog.Logger
	syncMaxAttempts int
}

func NewService(store Store, logger *slog.Logger, syncMaxAttempts int) *Service {
	if syncMaxAttempts <= 0 {
		syncMaxAttempts = 5
	}
	return &Service{store: store, logger: logger, syncMaxAttempts: syncMaxAttempts}
}

type BookRequest struct {
	PersonID       string
	EventTypeID    string // empty for ad-hoc bookings with an explicit end
	Start          time.Time
	End            time.Time // derived from the event type duration when zero
	BookerName     string
	BookerEmail    string
	BookerCompany  string
	IdempotencyKey string
}

// Book confirms a booking or fails with ErrSlotConflict. The confirmed row,
// its calendar push job, and the outbox event commit atomically; the external
// calendar is mirrored afterwards by the sync worker and never blocks here.
func (s *Service) Book(ctx context.Context, req BookRequest) (model.Booking, error) {
	if req.PersonID == "" {
		return model.Booking{}, fmt.Errorf("person id required")
	}

	var out model.Booking
	err := s.store.InTx(ctx, req.PersonID, func(ctx context.Context, tx Tx) error {
		if req.IdempotencyKey != "" {
			id, done, err := tx.LockIdempotencyKey(ctx, req.PersonID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if done && id != "" {
				prev, err := tx.GetBookingForUpdate(ctx, id)
				if err != nil {
					return err
				}
				out = prev
				return nil
			}
		}

		var et model.EventType
		if req.EventTypeID != "" {
			found, ok, err := tx.GetEventType(ctx, req.EventTypeID)
			if err != nil {
				return err
			}
			if !ok || !found.Active || found.OwnerID != req.PersonID {
				return ErrUnknownEventType
			}
			et = found
		}

		start := req.Start.UTC()
		end := req.End.UTC()
		if req.End.IsZero() {
			if et.DurationMins <= 0 {
				return interval.ErrInvalidInterval
			}
			end = start.Add(time.Duration(et.DurationMins) * time.Minute)
		}
		want, err := interval.New(start, end)
		if err != nil {
			return err
		}

		probe := want.Expand(
			time.Duration(et.BufferBefore)*time.Minute,
			time.Duration(et.BufferAfter)*time.Minute,
		)
		if err := s.assertFree(ctx, tx, req.PersonID, probe, ""); err != nil {
			return err
		}

		b := model.Booking{
			OwnerID:       req.PersonID,
			EventTypeID:   req.EventTypeID,
			StartTime:     want.Start,
			EndTime:       want.End,
			Status:        model.BookingStatusConfirmed,
			SyncState:     model.SyncStatePending,
			BookerName:    req.BookerName,
			BookerEmail:   req.BookerEmail,
			BookerCompany: req.BookerCompany,
		}
		id, err := tx.InsertBooking(ctx, &b)
		if err != nil {
			return err
		}
		b.ID = id

		if err := tx.EnqueueSyncJob(ctx, model.SyncJob{
			BookingID:   id,
			PersonID:    req.PersonID,
			Action:      model.SyncActionPush,
			MaxAttempts: s.syncMaxAttempts,
		}); err != nil {
			return err
		}

		evt, err := outbox.BookingConfirmed(b)
		if err != nil {
			return err
		}
		if err := tx.InsertOutboxEvent(ctx, evt); err != nil {
			return err
		}

		if req.IdempotencyKey != "" {
			if err := tx.FinalizeIdempotency(ctx, req.PersonID, req.IdempotencyKey, id); err != nil {
				return err
			}
		}

		out = b
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

// Cancel moves a confirmed booking to cancelled. Cancelling an already
// cancelled booking is a no-op and returns the booking as-is.
func (s *Service) Cancel(ctx context.Context, personID, bookingID, reason string) (model.Booking, error) {
	var out model.Booking
	err := s.store.InTx(ctx, personID, func(ctx context.Context, tx Tx) error {
		b, err := s.cancelLocked(ctx, tx, personID, bookingID, reason)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

type RescheduleRequest struct {
	PersonID  string
	BookingID string
	Start     time.Time
	End       time.Time // derived from the event type duration when zero
}

// Reschedule cancels the old booking and confirms a replacement in one
// transaction, leaving two audit rows. A conflict on the new interval rolls
// both back.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (model.Booking, error) {
	var out model.Booking
	err := s.store.InTx(ctx, req.PersonID, func(ctx context.Context, tx Tx) error {
		old, err := tx.GetBookingForUpdate(ctx, req.BookingID)
		if err != nil {
			return err
		}
		if old.OwnerID != req.PersonID {
			return ErrNotFound
		}
		if old.Status != model.BookingStatusConfirmed {
			return ErrNotFound
		}

		var et model.EventType
		if old.EventTypeID != "" {
			found, ok, err := tx.GetEventType(ctx, old.EventTypeID)
			if err != nil {
				return err
			}
			if ok {
				et = found
			}
		}

		start := req.Start.UTC()
		end := req.End.UTC()
		if req.End.IsZero() {
			end = start.Add(old.EndTime.Sub(old.StartTime))
		}
		want, err := interval.New(start, end)
		if err != nil {
			return err
		}

		if _, err := s.cancelLocked(ctx, tx, req.PersonID, req.BookingID, "rescheduled"); err != nil {
			return err
		}

		probe := want.Expand(
			time.Duration(et.BufferBefore)*time.Minute,
			time.Duration(et.BufferAfter)*time.Minute,
		)
		if err := s.assertFree(ctx, tx, req.PersonID, probe, old.ID); err != nil {
			return err
		}

		b := model.Booking{
			OwnerID:       req.PersonID,
			EventTypeID:   old.EventTypeID,
			StartTime:     want.Start,
			EndTime:       want.End,
			Status:        model.BookingStatusConfirmed,
			SyncState:     model.SyncStatePending,
			BookerName:    old.BookerName,
			BookerEmail:   old.BookerEmail,
			BookerCompany: old.BookerCompany,
		}
		id, err := tx.InsertBooking(ctx, &b)
		if err != nil {
			return err
		}
		b.ID = id

		if err := tx.EnqueueSyncJob(ctx, model.SyncJob{
			BookingID:   id,
			PersonID:    req.PersonID,
			Action:      model.SyncActionPush,
			MaxAttempts: s.syncMaxAttempts,
		}); err != nil {
			return err
		}
		evt, err := outbox.BookingConfirmed(b)
		if err != nil {
			return err
		}
		if err := tx.InsertOutboxEvent(ctx, evt); err != nil {
			return err
		}

		out = b
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

func (s *Service) cancelLocked(ctx context.Context, tx Tx, personID, bookingID, reason string) (model.Booking, error) {
	b, err := tx.GetBookingForUpdate(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.OwnerID != personID {
		return model.Booking{}, ErrNotFound
	}
	if b.Status == model.BookingStatusCancelled {
		return b, nil
	}

	cancelledAt, err := tx.CancelBooking(ctx, bookingID, reason)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.BookingStatusCancelled
	b.CancelReason = reason
	b.CancelledAt = &cancelledAt

	if b.ExternalRef != "" {
		if err := tx.EnqueueSyncJob(ctx, model.SyncJob{
			BookingID:   bookingID,
			PersonID:    personID,
			Action:      model.SyncActionDelete,
			ExternalRef: b.ExternalRef,
			MaxAttempts: s.syncMaxAttempts,
		}); err != nil {
			return model.Booking{}, err
		}
	}

	evt, err := outbox.BookingCancelled(b, reason, cancelledAt)
	if err != nil {
		return model.Booking{}, err
	}
	if err := tx.InsertOutboxEvent(ctx, evt); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// assertFree overlap-checks the buffer-expanded request against confirmed
// bookings, each expanded by its own event type's buffers. External calendar
// busy data is deliberately not consulted here.
func (s *Service) assertFree(ctx context.Context, tx Tx, personID string, probe interval.Interval, excludeID string) error {
	widened := probe.Expand(conflictSlack, conflictSlack)
	existing, err := tx.ListConfirmedBookings(ctx, personID, widened)
	if err != nil {
		return err
	}

	etCache := make(map[string]model.EventType)
	for _, b := range existing {
		if b.ID == excludeID {
			continue
		}
		iv := b.Interval()
		if b.EventTypeID != "" {
			et, ok := etCache[b.EventTypeID]
			if !ok {
				loaded, found, err := tx.GetEventType(ctx, b.EventTypeID)
				if err != nil {
					return err
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
		if probe.Overlaps(iv) {
			return ErrSlotConflict
		}
	}
	return nil
}

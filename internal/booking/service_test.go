package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/advisorly/schedcore/internal/interval"
	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/internal/outbox"
)

// memStore serializes transactions per person with a mutex, matching the
// advisory-lock behaviour of the real store.
type memStore struct {
	mu         sync.Mutex
	locks      map[string]*sync.Mutex
	bookings   map[string]*model.Booking
	eventTypes map[string]model.EventType
	jobs       []model.SyncJob
	events     []outbox.Event
	idem       map[string]string
	nextID     int
}

func newMemStore() *memStore {
	return &memStore{
		locks:      make(map[string]*sync.Mutex),
		bookings:   make(map[string]*model.Booking),
		eventTypes: make(map[string]model.EventType),
		idem:       make(map[string]string),
	}
}

func (m *memStore) personLock(personID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[personID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[personID] = l
	}
	return l
}

func (m *memStore) InTx(ctx context.Context, personID string, fn func(ctx context.Context, tx Tx) error) error {
	l := m.personLock(personID)
	l.Lock()
	defer l.Unlock()

	tx := &memTx{store: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx buffers writes until commit so a failed transaction leaves no trace.
type memTx struct {
	store      *memStore
	inserted   []*model.Booking
	cancelled  map[string]string
	jobs       []model.SyncJob
	events     []outbox.Event
	idemWrites map[string]string
}

func (t *memTx) GetEventType(_ context.Context, id string) (model.EventType, bool, error) {
	et, ok := t.store.eventTypes[id]
	return et, ok, nil
}

func (t *memTx) ListConfirmedBookings(_ context.Context, personID string, rangeUTC interval.Interval) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range t.store.bookings {
		if b.OwnerID != personID || b.Status != model.BookingStatusConfirmed {
			continue
		}
		if _, wasCancelled := t.cancelled[b.ID]; wasCancelled {
			continue
		}
		if b.Interval().Overlaps(rangeUTC) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (t *memTx) InsertBooking(_ context.Context, b *model.Booking) (string, error) {
	t.store.mu.Lock()
	t.store.nextID++
	id := fmt.Sprintf("bk-%d", t.store.nextID)
	t.store.mu.Unlock()
	copied := *b
	copied.ID = id
	copied.CreatedAt = time.Now().UTC()
	t.inserted = append(t.inserted, &copied)
	return id, nil
}

func (t *memTx) GetBookingForUpdate(_ context.Context, id string) (model.Booking, error) {
	if b, ok := t.store.bookings[id]; ok {
		return *b, nil
	}
	for _, b := range t.inserted {
		if b.ID == id {
			return *b, nil
		}
	}
	return model.Booking{}, ErrNotFound
}

func (t *memTx) CancelBooking(_ context.Context, id, reason string) (time.Time, error) {
	if t.cancelled == nil {
		t.cancelled = make(map[string]string)
	}
	t.cancelled[id] = reason
	return time.Now().UTC(), nil
}

func (t *memTx) EnqueueSyncJob(_ context.Context, job model.SyncJob) error {
	t.jobs = append(t.jobs, job)
	return nil
}

func (t *memTx) InsertOutboxEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

func (t *memTx) LockIdempotencyKey(_ context.Context, personID, key string) (string, bool, error) {
	id, ok := t.store.idem[personID+"/"+key]
	return id, ok, nil
}

func (t *memTx) FinalizeIdempotency(_ context.Context, personID, key, bookingID string) error {
	if t.idemWrites == nil {
		t.idemWrites = make(map[string]string)
	}
	t.idemWrites[personID+"/"+key] = bookingID
	return nil
}

func (t *memTx) commit() {
	for _, b := range t.inserted {
		t.store.bookings[b.ID] = b
	}
	for id, reason := range t.cancelled {
		if b, ok := t.store.bookings[id]; ok {
			now := time.Now().UTC()
			b.Status = model.BookingStatusCancelled
			b.CancelReason = reason
			b.CancelledAt = &now
		}
	}
	t.store.jobs = append(t.store.jobs, t.jobs...)
	t.store.events = append(t.store.events, t.events...)
	for k, v := range t.idemWrites {
		t.store.idem[k] = v
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func at(h, m int) time.Time {
	return time.Date(2026, 4, 6, h, m, 0, 0, time.UTC)
}

func TestBook_ConfirmsAndEnqueues(t *testing.T) {
	store := newMemStore()
	store.eventTypes["et1"] = model.EventType{ID: "et1", OwnerID: "p1", DurationMins: 30, Active: true}
	svc := NewService(store, testLogger(), 5)

	b, err := svc.Book(context.Background(), BookRequest{
		PersonID:    "p1",
		EventTypeID: "et1",
		Start:       at(10, 0),
		BookerName:  "Ada",
		BookerEmail: "ada@example.com",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if b.Status != model.BookingStatusConfirmed {
		t.Fatalf("expected confirmed, got %q", b.Status)
	}
	if !b.EndTime.Equal(at(10, 30)) {
		t.Fatalf("end must derive from the event type duration, got %s", b.EndTime)
	}
	if b.SyncState != model.SyncStatePending {
		t.Fatalf("expected pending sync state, got %q", b.SyncState)
	}

	if len(store.jobs) != 1 || store.jobs[0].Action != model.SyncActionPush {
		t.Fatalf("expected one push job, got %v", store.jobs)
	}
	if len(store.events) != 1 || store.events[0].EventType != outbox.EventBookingConfirmed {
		t.Fatalf("expected a confirmed event, got %v", store.events)
	}
}

func TestBook_RejectsOverlapWithBuffers(t *testing.T) {
	store := newMemStore()
	store.eventTypes["et1"] = model.EventType{ID: "et1", OwnerID: "p1", DurationMins: 30, BufferAfter: 15, Active: true}
	svc := NewService(store, testLogger(), 5)

	if _, err := svc.Book(context.Background(), BookRequest{PersonID: "p1", EventTypeID: "et1", Start: at(10, 0)}); err != nil {
		t.Fatalf("first book: %v", err)
	}

	// 10:30-11:00 touches the first booking's trailing buffer (10:30-10:45).
	_, err := svc.Book(context.Background(), BookRequest{PersonID: "p1", EventTypeID: "et1", Start: at(10, 30)})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}

	// 11:00 clears both buffers.
	if _, err := svc.Book(context.Background(), BookRequest{PersonID: "p1", EventTypeID: "et1", Start: at(11, 0)}); err != nil {
		t.Fatalf("book after buffer: %v", err)
	}
}

func TestBook_AdjacentBookingsDoNotConflict(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, testLogger(), 5)

	if _, err := svc.Book(context.Background(), BookRequest{PersonID: "p1", Start: at(9, 0), End: at(10, 0)}); err != nil {
		t.Fatalf("first book: %v", err)
	}
	if _, err := svc.Book(context.Background(), BookRequest{PersonID: "p1", Start: at(10, 0), End: at(11, 0)}); err != nil {
		t.Fatalf("back-to-back book must succeed, got %v", err)
	}
}

func TestBook_UnknownEventType(t *testing.T) {
	store := newMemStore()
	store.eventTypes["other"] = model.EventType{ID: "other", OwnerID: "p2", DurationMins: 30, Active: true}
	svc := NewService(store, testLogger(), 5)

	for _, id := range []string{"missing", "other"} {
		_, err := svc.Book(context.Background(), BookRequest{PersonID: "p1", EventTypeID: id, Start: at(10, 0)})
		if !errors.Is(err, ErrUnknownEventType) {
			t.Fatalf("event type %q: expected ErrUnknownEventType, got %v", id, err)
		}
	}
}

func TestBook_ConcurrentSameSlotSingleWinner(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, testLogger(), 5)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), BookRequest{
				PersonID: "p1",
				Start:    at(14, 0),
				End:      at(14, 30),
			})
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSlotConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
}

func TestBook_IdempotencyKeyReplays(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, testLogger(), 5)

	first, err := svc.Book(context.Background(), BookRequest{
		PersonID:       "p1",
		Start:          at(10, 0),
		End:            at(10, 30),
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	second, err := svc.Book(context.Background(), BookRequest{
		PersonID:       "p1",
		Start:          at(10, 0),
		End:            at(10, 30),
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay must return the original booking, got %q and %q", first.ID, second.ID)
	}
	if len(store.events) != 1 {
		t.Fatalf("replay must not emit a second event, got %d", len(store.events))
	}
}

func TestCancel_IdempotentAndEnqueuesDelete(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, testLogger(), 5)

	b, err := svc.Book(context.Background(), BookRequest{PersonID: "p1", Start: at(10, 0), End: at(10, 30)})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	// Simulate a completed calendar push.
	store.bookings[b.ID].ExternalRef = "ext-123"

	cancelled, err := svc.Cancel(context.Background(), "p1", b.ID, "booker asked")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.BookingStatusCancelled {
		t.Fatalf("expected cancelled, got %q", cancelled.Status)
	}

	var deletes int
	for _, j := range store.jobs {
		if j.Action == model.SyncActionDelete && j.ExternalRef == "ext-123" {
			deletes++
		}
	}
	if deletes != 1 {
		t.Fatalf("expected one delete job, got %d", deletes)
	}

	eventsBefore := len(store.events)
	again, err := svc.Cancel(context.Background(), "p1", b.ID, "booker asked")
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if again.Status != model.BookingStatusCancelled {
		t.Fatalf("second cancel must report cancelled, got %q", again.Status)
	}
	if len(store.events) != eventsBefore {
		t.Fatal("second cancel must not emit another event")
	}
}

func TestCancel_WrongOwner(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, testLogger(), 5)

	b, err := svc.Book(context.Background(), BookRequest{PersonID: "p1", Start: at(10, 0), End: at(10, 30)})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), "p2", b.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReschedule_MovesBookingAtomically(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, testLogger(), 5)

	b, err := svc.Book(context.Background(), BookRequest{PersonID: "p1", Start: at(10, 0), End: at(10, 30), BookerName: "Ada"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	moved, err := svc.Reschedule(context.Background(), RescheduleRequest{
		PersonID:  "p1",
		BookingID: b.ID,
		Start:     at(15, 0),
	})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.ID == b.ID {
		t.Fatal("reschedule must create a new row")
	}
	if !moved.StartTime.Equal(at(15, 0)) || !moved.EndTime.Equal(at(15, 30)) {
		t.Fatalf("duration must carry over, got [%s, %s)", moved.StartTime, moved.EndTime)
	}
	if moved.BookerName != "Ada" {
		t.Fatalf("booker details must carry over, got %q", moved.BookerName)
	}
	if store.bookings[b.ID].Status != model.BookingStatusCancelled {
		t.Fatal("old booking must be cancelled")
	}
}

func TestReschedule_ConflictRollsBackCancellation(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, testLogger(), 5)

	first, err := svc.Book(context.Background(), BookRequest{PersonID: "p1", Start: at(10, 0), End: at(10, 30)})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	blocker, err := svc.Book(context.Background(), BookRequest{PersonID: "p1", Start: at(15, 0), End: at(15, 30)})
	if err != nil {
		t.Fatalf("book blocker: %v", err)
	}

	_, err = svc.Reschedule(context.Background(), RescheduleRequest{
		PersonID:  "p1",
		BookingID: first.ID,
		Start:     at(15, 0),
	})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
	if store.bookings[first.ID].Status != model.BookingStatusConfirmed {
		t.Fatal("failed reschedule must leave the original booking confirmed")
	}
	if store.bookings[blocker.ID].Status != model.BookingStatusConfirmed {
		t.Fatal("blocker must be untouched")
	}
}

func TestReschedule_CancelledBookingNotFound(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, testLogger(), 5)

	b, err := svc.Book(context.Background(), BookRequest{PersonID: "p1", Start: at(10, 0), End: at(10, 30)})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), "p1", b.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err = svc.Reschedule(context.Background(), RescheduleRequest{PersonID: "p1", BookingID: b.ID, Start: at(12, 0)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

package outbox

import (
	"encoding/json"
	"time"

	"github.com/advisorly/schedcore/internal/model"
)

// Kafka topic names equal the event type (one topic per event).
const (
	EventBookingConfirmed = "scheduling.booking.confirmed.v1"
	EventBookingCancelled = "scheduling.booking.cancelled.v1"
	EventBookingSyncFail  = "scheduling.booking.sync_failed.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

func BookingConfirmed(b model.Booking) (Event, error) {
	payload, err := json.Marshal(map[string]any{
		"booking_id":    b.ID,
		"owner_id":      b.OwnerID,
		"event_type_id": b.EventTypeID,
		"start_time":    b.StartTime.UTC().Format(time.RFC3339),
		"end_time":      b.EndTime.UTC().Format(time.RFC3339),
		"booker_name":   b.BookerName,
		"booker_email":  b.BookerEmail,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     EventBookingConfirmed,
		Payload:       payload,
	}, nil
}

func BookingCancelled(b model.Booking, reason string, cancelledAt time.Time) (Event, error) {
	payload, err := json.Marshal(map[string]any{
		"booking_id":   b.ID,
		"owner_id":     b.OwnerID,
		"start_time":   b.StartTime.UTC().Format(time.RFC3339),
		"end_time":     b.EndTime.UTC().Format(time.RFC3339),
		"reason":       reason,
		"cancelled_at": cancelledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     EventBookingCancelled,
		Payload:       payload,
	}, nil
}

func BookingSyncFailed(bookingID, personID, action, lastError string, attempts int) (Event, error) {
	payload, err := json.Marshal(map[string]any{
		"booking_id": bookingID,
		"owner_id":   personID,
		"action":     action,
		"attempts":   attempts,
		"last_error": lastError,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "booking",
		AggregateID:   bookingID,
		EventType:     EventBookingSyncFail,
		Payload:       payload,
	}, nil
}

package model

import (
	"time"

	"github.com/advisorly/schedcore/internal/interval"
)

const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)

const (
	SyncStatePending        = "pending"
	SyncStateSynced         = "synced"
	SyncStateReconciliation = "needs_reconciliation"
)

// AvailabilityRule is one weekday of a person's recurring availability,
// expressed as wall-clock minutes in the rule's timezone. Replaced rules are
// deactivated rather than deleted so past weeks stay reproducible.
type AvailabilityRule struct {
	ID          int64
	PersonID    string
	Weekday     int // 0-6, Sunday = 0
	StartMinute int
	EndMinute   int
	Timezone    string
	Active      bool
	CreatedAt   time.Time
}

type EventType struct {
	ID           string
	OwnerID      string
	Name         string
	DurationMins int
	BufferBefore int // minutes
	BufferAfter  int // minutes
	Active       bool
	CreatedAt    time.Time
}

type Booking struct {
	ID            string
	OwnerID       string
	EventTypeID   string // empty for ad-hoc bookings
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	ExternalRef   string // opaque id in the synced calendar, empty until acknowledged
	SyncState     string
	BookerName    string
	BookerEmail   string
	BookerCompany string
	CancelReason  string
	CancelledAt   *time.Time
	CreatedAt     time.Time
}

func (b Booking) Interval() interval.Interval {
	return interval.Interval{Start: b.StartTime.UTC(), End: b.EndTime.UTC()}
}

// CalendarConnection is a person's link to the external calendar provider.
// External busy data is consulted only while Enabled.
type CalendarConnection struct {
	PersonID  string
	Provider  string
	FeedURL   string
	PushURL   string
	AuthToken string
	Enabled   bool
	Status    string
	UpdatedAt time.Time
}

const (
	SyncActionPush   = "push"
	SyncActionUpdate = "update"
	SyncActionDelete = "delete"
)

// SyncJob is one pending mirror operation against the external calendar.
// Jobs are retried with backoff by the sync worker; the booking they belong
// to is already committed and is never rolled back by a job failure.
type SyncJob struct {
	ID          int64
	BookingID   string
	PersonID    string
	Action      string
	ExternalRef string
	Attempts    int
	MaxAttempts int
	NextRunAt   time.Time
	Status      string
	LastError   string
}

// ExternalBusyInterval is a volatile read-time overlay pulled from the
// provider; never persisted, never authoritative for conflict checks.
type ExternalBusyInterval struct {
	Start            time.Time
	End              time.Time
	SourceCalendarID string
}

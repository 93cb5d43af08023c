// Package calsync is the boundary to the external calendar system. The
// engine treats the provider as fallible and eventually consistent: every
// operation is a single attempt, and callers own retry policy.
package calsync

import (
	"context"
	"errors"

	"github.com/advisorly/schedcore/internal/interval"
	"github.com/advisorly/schedcore/internal/model"
)

var (
	// ErrProvider wraps any transport or provider-side failure.
	ErrProvider = errors.New("calendar provider error")
	// ErrNotConnected is returned when the connection has no usable endpoint
	// for the requested operation.
	ErrNotConnected = errors.New("calendar connection not configured")
)

type Adapter interface {
	PullBusy(ctx context.Context, conn model.CalendarConnection, rangeUTC interval.Interval) ([]model.ExternalBusyInterval, error)
	Push(ctx context.Context, conn model.CalendarConnection, b model.Booking) (externalRef string, err error)
	Update(ctx context.Context, conn model.CalendarConnection, externalRef string, b model.Booking) error
	Delete(ctx context.Context, conn model.CalendarConnection, externalRef string) error
}

//go:build protogen

package calsync

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/advisorly/schedcore/internal/interval"
	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/libs/grpcx"
	bridgev1 "github.com/advisorly/schedcore/protos/gen/calendarbridge/v1"
)

// grpcAdapter talks to a calendar-bridge service that owns the provider
// credentials and API quirks. Used in deployments where the engine must not
// hold provider tokens itself.
type grpcAdapter struct {
	client bridgev1.CalendarBridgeClient
}

// NewBridgeAdapter dials the bridge; a blank addr disables the adapter.
func NewBridgeAdapter(addr string) (Adapter, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcAdapter{client: bridgev1.NewCalendarBridgeClient(conn)}, nil
}

func (a *grpcAdapter) PullBusy(ctx context.Context, conn model.CalendarConnection, rangeUTC interval.Interval) ([]model.ExternalBusyInterval, error) {
	resp, err := a.client.PullBusy(ctx, &bridgev1.PullBusyRequest{
		PersonId: conn.PersonID,
		Provider: conn.Provider,
		StartUtc: timestamppb.New(rangeUTC.Start),
		EndUtc:   timestamppb.New(rangeUTC.End),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	var out []model.ExternalBusyInterval
	for _, iv := range resp.GetBusy() {
		if iv.GetStartUtc() == nil || iv.GetEndUtc() == nil {
			continue
		}
		out = append(out, model.ExternalBusyInterval{
			Start:            iv.GetStartUtc().AsTime(),
			End:              iv.GetEndUtc().AsTime(),
			SourceCalendarID: iv.GetCalendarId(),
		})
	}
	return out, nil
}

func (a *grpcAdapter) Push(ctx context.Context, conn model.CalendarConnection, b model.Booking) (string, error) {
	resp, err := a.client.PushEvent(ctx, &bridgev1.PushEventRequest{
		PersonId:  conn.PersonID,
		Provider:  conn.Provider,
		BookingId: b.ID,
		StartUtc:  timestamppb.New(b.StartTime),
		EndUtc:    timestamppb.New(b.EndTime),
		Summary:   b.BookerName,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return resp.GetExternalRef(), nil
}

func (a *grpcAdapter) Update(ctx context.Context, conn model.CalendarConnection, externalRef string, b model.Booking) error {
	_, err := a.client.UpdateEvent(ctx, &bridgev1.UpdateEventRequest{
		PersonId:    conn.PersonID,
		Provider:    conn.Provider,
		ExternalRef: externalRef,
		StartUtc:    timestamppb.New(b.StartTime),
		EndUtc:      timestamppb.New(b.EndTime),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return nil
}

func (a *grpcAdapter) Delete(ctx context.Context, conn model.CalendarConnection, externalRef string) error {
	_, err := a.client.DeleteEvent(ctx, &bridgev1.DeleteEventRequest{
		PersonId:    conn.PersonID,
		Provider:    conn.Provider,
		ExternalRef: externalRef,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return nil
}

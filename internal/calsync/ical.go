package calsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/advisorly/schedcore/internal/interval"
	"github.com/advisorly/schedcore/internal/model"
)

// HTTPAdapter talks to calendar providers that expose an iCalendar busy feed
// and a JSON events endpoint. Busy time is read from the feed; bookings are
// mirrored via POST/PUT/DELETE against the events endpoint.
type HTTPAdapter struct {
	client *http.Client
}

func NewHTTPAdapter(client *http.Client) *HTTPAdapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPAdapter{client: client}
}

func (a *HTTPAdapter) PullBusy(ctx context.Context, conn model.CalendarConnection, rangeUTC interval.Interval) ([]model.ExternalBusyInterval, error) {
	if strings.TrimSpace(conn.FeedURL) == "" {
		return nil, ErrNotConnected
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, conn.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	a.authorize(req, conn)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: feed returned %d", ErrProvider, resp.StatusCode)
	}

	cal, err := ics.ParseCalendar(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed: %v", ErrProvider, err)
	}

	var out []model.ExternalBusyInterval
	for _, ev := range cal.Events() {
		start, err := ev.GetStartAt()
		if err != nil {
			continue
		}
		end, err := ev.GetEndAt()
		if err != nil || !end.After(start) {
			continue
		}
		iv := interval.Interval{Start: start.UTC(), End: end.UTC()}
		if !iv.Overlaps(rangeUTC) {
			continue
		}
		source := conn.Provider
		if p := ev.GetProperty(ics.ComponentPropertyUniqueId); p != nil && p.Value != "" {
			source = p.Value
		}
		out = append(out, model.ExternalBusyInterval{
			Start:            iv.Start,
			End:              iv.End,
			SourceCalendarID: source,
		})
	}
	return out, nil
}

type eventPayload struct {
	Title     string `json:"title"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	BookedBy  string `json:"booked_by,omitempty"`
}

type eventResponse struct {
	ID string `json:"id"`
}

func (a *HTTPAdapter) Push(ctx context.Context, conn model.CalendarConnection, b model.Booking) (string, error) {
	if strings.TrimSpace(conn.PushURL) == "" {
		return "", ErrNotConnected
	}

	resp, err := a.send(ctx, conn, http.MethodPost, conn.PushURL, b)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: push returned %d", ErrProvider, resp.StatusCode)
	}

	var ev eventResponse
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil || ev.ID == "" {
		return "", fmt.Errorf("%w: push response missing event id", ErrProvider)
	}
	return ev.ID, nil
}

func (a *HTTPAdapter) Update(ctx context.Context, conn model.CalendarConnection, externalRef string, b model.Booking) error {
	if strings.TrimSpace(conn.PushURL) == "" {
		return ErrNotConnected
	}
	resp, err := a.send(ctx, conn, http.MethodPut, conn.PushURL+"/"+externalRef, b)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: update returned %d", ErrProvider, resp.StatusCode)
	}
	return nil
}

func (a *HTTPAdapter) Delete(ctx context.Context, conn model.CalendarConnection, externalRef string) error {
	if strings.TrimSpace(conn.PushURL) == "" {
		return ErrNotConnected
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, conn.PushURL+"/"+externalRef, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	a.authorize(req, conn)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()
	// The mirrored event being gone already is success for a delete.
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound, http.StatusGone:
		return nil
	}
	return fmt.Errorf("%w: delete returned %d", ErrProvider, resp.StatusCode)
}

func (a *HTTPAdapter) send(ctx context.Context, conn model.CalendarConnection, method, url string, b model.Booking) (*http.Response, error) {
	title := "Booked meeting"
	if b.BookerName != "" {
		title = "Meeting with " + b.BookerName
	}
	body, err := json.Marshal(eventPayload{
		Title:     title,
		StartTime: b.StartTime.UTC().Format(time.RFC3339),
		EndTime:   b.EndTime.UTC().Format(time.RFC3339),
		BookedBy:  b.BookerEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	a.authorize(req, conn)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return resp, nil
}

func (a *HTTPAdapter) authorize(req *http.Request, conn model.CalendarConnection) {
	if conn.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+conn.AuthToken)
	}
}

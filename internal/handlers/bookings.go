package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/advisorly/schedcore/internal/booking"
	"github.com/advisorly/schedcore/internal/cache"
	"github.com/advisorly/schedcore/internal/interval"
	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/internal/storage"
)

type BookingsHandler struct {
	svc    *booking.Service
	store  *storage.BookingStore
	cache  *cache.Availability
	logger *slog.Logger
}

func NewBookingsHandler(svc *booking.Service, store *storage.BookingStore, availCache *cache.Availability, logger *slog.Logger) *BookingsHandler {
	return &BookingsHandler{svc: svc, store: store, cache: availCache, logger: logger}
}

type createBookingRequest struct {
	PersonID      string `json:"person_id"`
	EventTypeID   string `json:"event_type_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	BookerName    string `json:"booker_name"`
	BookerEmail   string `json:"booker_email"`
	BookerCompany string `json:"booker_company"`
}

type bookingItem struct {
	BookingID   string `json:"booking_id"`
	PersonID    string `json:"person_id"`
	EventTypeID string `json:"event_type_id,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Status      string `json:"status"`
	SyncState   string `json:"sync_state"`
	BookerName  string `json:"booker_name,omitempty"`
	CancelledAt string `json:"cancelled_at,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

func toBookingItem(b model.Booking) bookingItem {
	item := bookingItem{
		BookingID:   b.ID,
		PersonID:    b.OwnerID,
		EventTypeID: b.EventTypeID,
		StartTime:   b.StartTime.UTC().Format(time.RFC3339),
		EndTime:     b.EndTime.UTC().Format(time.RFC3339),
		Status:      b.Status,
		SyncState:   b.SyncState,
		BookerName:  b.BookerName,
	}
	if b.CancelledAt != nil {
		item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	if !b.CreatedAt.IsZero() {
		item.CreatedAt = b.CreatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (h *BookingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PersonID = strings.TrimSpace(req.PersonID)
	req.BookerName = strings.TrimSpace(req.BookerName)
	if req.PersonID == "" || req.BookerName == "" {
		http.Error(w, "person_id and booker_name required", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	var end time.Time
	if strings.TrimSpace(req.EndTime) != "" {
		end, err = time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			http.Error(w, "invalid end_time", http.StatusBadRequest)
			return
		}
	}

	b, err := h.svc.Book(r.Context(), booking.BookRequest{
		PersonID:       req.PersonID,
		EventTypeID:    strings.TrimSpace(req.EventTypeID),
		Start:          start,
		End:            end,
		BookerName:     req.BookerName,
		BookerEmail:    strings.TrimSpace(req.BookerEmail),
		BookerCompany:  strings.TrimSpace(req.BookerCompany),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrSlotConflict):
			http.Error(w, "slot already booked", http.StatusConflict)
		case errors.Is(err, booking.ErrUnknownEventType):
			http.Error(w, "unknown event type", http.StatusBadRequest)
		case errors.Is(err, interval.ErrInvalidInterval):
			http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		default:
			h.logger.Error("booking create failed", "person_id", req.PersonID, "err", err)
			http.Error(w, "failed to create booking", http.StatusInternalServerError)
		}
		return
	}

	h.cache.InvalidatePerson(r.Context(), req.PersonID)
	writeJSON(w, http.StatusCreated, toBookingItem(b))
}

type cancelBookingRequest struct {
	PersonID  string `json:"person_id"`
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

func (h *BookingsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PersonID = strings.TrimSpace(req.PersonID)
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.PersonID == "" || req.BookingID == "" {
		http.Error(w, "person_id and booking_id required", http.StatusBadRequest)
		return
	}

	b, err := h.svc.Cancel(r.Context(), req.PersonID, req.BookingID, strings.TrimSpace(req.Reason))
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		h.logger.Error("booking cancel failed", "booking_id", req.BookingID, "err", err)
		http.Error(w, "failed to cancel booking", http.StatusInternalServerError)
		return
	}

	h.cache.InvalidatePerson(r.Context(), req.PersonID)
	writeJSON(w, http.StatusOK, toBookingItem(b))
}

type rescheduleRequest struct {
	PersonID  string `json:"person_id"`
	BookingID string `json:"booking_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *BookingsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PersonID = strings.TrimSpace(req.PersonID)
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.PersonID == "" || req.BookingID == "" {
		http.Error(w, "person_id and booking_id required", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	var end time.Time
	if strings.TrimSpace(req.EndTime) != "" {
		end, err = time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			http.Error(w, "invalid end_time", http.StatusBadRequest)
			return
		}
	}

	b, err := h.svc.Reschedule(r.Context(), booking.RescheduleRequest{
		PersonID:  req.PersonID,
		BookingID: req.BookingID,
		Start:     start,
		End:       end,
	})
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrNotFound):
			http.Error(w, "booking not found", http.StatusNotFound)
		case errors.Is(err, booking.ErrSlotConflict):
			http.Error(w, "new slot already booked", http.StatusConflict)
		case errors.Is(err, interval.ErrInvalidInterval):
			http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		default:
			h.logger.Error("booking reschedule failed", "booking_id", req.BookingID, "err", err)
			http.Error(w, "failed to reschedule booking", http.StatusInternalServerError)
		}
		return
	}

	h.cache.InvalidatePerson(r.Context(), req.PersonID)
	writeJSON(w, http.StatusOK, toBookingItem(b))
}

func (h *BookingsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	personID := strings.TrimSpace(r.URL.Query().Get("person_id"))
	if personID == "" {
		http.Error(w, "person_id required", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.store.ListByOwner(r.Context(), personID, limit)
	if err != nil {
		h.logger.Error("booking list failed", "person_id", personID, "err", err)
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}

	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingItem(b))
	}
	writeJSON(w, http.StatusOK, items)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

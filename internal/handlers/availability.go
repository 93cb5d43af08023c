package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/advisorly/schedcore/internal/cache"
	"github.com/advisorly/schedcore/internal/interval"
	"github.com/advisorly/schedcore/internal/slots"
)

type AvailabilityHandler struct {
	generator *slots.Generator
	cache     *cache.Availability
	logger    *slog.Logger
}

func NewAvailabilityHandler(generator *slots.Generator, availCache *cache.Availability, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{generator: generator, cache: availCache, logger: logger}
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type availabilityResponse struct {
	Slots   []slotItem `json:"slots"`
	Partial bool       `json:"partial"`
}

func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	personID := strings.TrimSpace(r.URL.Query().Get("person_id"))
	if personID == "" {
		http.Error(w, "person_id required", http.StatusBadRequest)
		return
	}
	eventTypeID := strings.TrimSpace(r.URL.Query().Get("event_type_id"))

	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		http.Error(w, "invalid end", http.StatusBadRequest)
		return
	}
	rangeUTC, err := interval.New(start.UTC(), end.UTC())
	if err != nil {
		http.Error(w, "end must be after start", http.StatusBadRequest)
		return
	}

	if payload, ok := h.cache.Get(r.Context(), personID, rangeUTC, eventTypeID); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
		return
	}

	res, err := h.generator.Generate(r.Context(), personID, rangeUTC, eventTypeID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, slots.ErrUnknownEventType) {
			http.Error(w, "unknown event type", http.StatusNotFound)
			return
		}
		if errors.Is(err, interval.ErrInvalidInterval) {
			http.Error(w, "invalid range", http.StatusBadRequest)
			return
		}
		h.logger.Error("availability query failed", "person_id", personID, "err", err)
		http.Error(w, "failed to compute availability", http.StatusInternalServerError)
		return
	}

	resp := availabilityResponse{Slots: make([]slotItem, 0, len(res.Slots)), Partial: res.Partial}
	for _, s := range res.Slots {
		resp.Slots = append(resp.Slots, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
	}

	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	// Partial responses reflect a degraded external pull; don't pin them.
	if !res.Partial {
		h.cache.Set(r.Context(), personID, rangeUTC, eventTypeID, body)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

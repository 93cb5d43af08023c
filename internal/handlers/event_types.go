package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/internal/storage"
)

type EventTypesHandler struct {
	repo   *storage.EventTypesRepository
	logger *slog.Logger
}

func NewEventTypesHandler(repo *storage.EventTypesRepository, logger *slog.Logger) *EventTypesHandler {
	return &EventTypesHandler{repo: repo, logger: logger}
}

type eventTypeItem struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DurationMins int    `json:"duration_minutes"`
	BufferBefore int    `json:"buffer_before_minutes"`
	BufferAfter  int    `json:"buffer_after_minutes"`
}

func (h *EventTypesHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *EventTypesHandler) list(w http.ResponseWriter, r *http.Request) {
	ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if ownerID == "" {
		http.Error(w, "owner_id required", http.StatusBadRequest)
		return
	}

	types, err := h.repo.ListByOwner(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("event type list failed", "owner_id", ownerID, "err", err)
		http.Error(w, "failed to list event types", http.StatusInternalServerError)
		return
	}

	items := make([]eventTypeItem, 0, len(types))
	for _, et := range types {
		items = append(items, eventTypeItem{
			ID:           et.ID,
			Name:         et.Name,
			DurationMins: et.DurationMins,
			BufferBefore: et.BufferBefore,
			BufferAfter:  et.BufferAfter,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type createEventTypeRequest struct {
	OwnerID      string `json:"owner_id"`
	Name         string `json:"name"`
	DurationMins int    `json:"duration_minutes"`
	BufferBefore int    `json:"buffer_before_minutes"`
	BufferAfter  int    `json:"buffer_after_minutes"`
}

func (h *EventTypesHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createEventTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.Name = strings.TrimSpace(req.Name)
	if req.OwnerID == "" || req.Name == "" {
		http.Error(w, "owner_id and name required", http.StatusBadRequest)
		return
	}

	et := &model.EventType{
		OwnerID:      req.OwnerID,
		Name:         req.Name,
		DurationMins: req.DurationMins,
		BufferBefore: req.BufferBefore,
		BufferAfter:  req.BufferAfter,
	}
	id, err := h.repo.Create(r.Context(), et)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidEventType) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("event type create failed", "owner_id", req.OwnerID, "err", err)
		http.Error(w, "failed to create event type", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, eventTypeItem{
		ID:           id,
		Name:         et.Name,
		DurationMins: et.DurationMins,
		BufferBefore: et.BufferBefore,
		BufferAfter:  et.BufferAfter,
	})
}

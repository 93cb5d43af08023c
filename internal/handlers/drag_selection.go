package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/advisorly/schedcore/internal/dragmap"
)

// DragSelectionHandler snaps a calendar-grid drag to a bookable interval so
// every frontend shares one snapping implementation.
type DragSelectionHandler struct {
	mapper dragmap.Mapper
}

func NewDragSelectionHandler(mapper dragmap.Mapper) *DragSelectionHandler {
	return &DragSelectionHandler{mapper: mapper}
}

type dragSelectionRequest struct {
	Day           string  `json:"day"` // YYYY-MM-DD, interpreted as UTC
	StartPx       float64 `json:"start_px"`
	EndPx         float64 `json:"end_px"`
	PixelsPerHour float64 `json:"pixels_per_hour"`
}

type dragSelectionResponse struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *DragSelectionHandler) Map(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dragSelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	day, err := time.ParseInLocation("2006-01-02", req.Day, time.UTC)
	if err != nil {
		http.Error(w, "invalid day", http.StatusBadRequest)
		return
	}

	iv, err := h.mapper.Map(day, req.StartPx, req.EndPx, req.PixelsPerHour)
	if err != nil {
		http.Error(w, "invalid drag selection", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, dragSelectionResponse{
		StartTime: iv.Start.UTC().Format(time.RFC3339),
		EndTime:   iv.End.UTC().Format(time.RFC3339),
	})
}

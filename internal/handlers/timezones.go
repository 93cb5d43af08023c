package handlers

import (
	"net/http"

	"github.com/advisorly/schedcore/libs/config"
)

// TimezonesHandler serves the curated timezone picker list from the engine
// defaults file.
type TimezonesHandler struct {
	labels []config.TimezoneLabel
}

func NewTimezonesHandler(labels []config.TimezoneLabel) *TimezonesHandler {
	return &TimezonesHandler{labels: labels}
}

type timezoneItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (h *TimezonesHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	items := make([]timezoneItem, 0, len(h.labels))
	for _, tz := range h.labels {
		items = append(items, timezoneItem{ID: tz.ID, Label: tz.Label})
	}
	writeJSON(w, http.StatusOK, items)
}

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/advisorly/schedcore/internal/cache"
	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/internal/storage"
)

type ConnectionHandler struct {
	repo   *storage.ConnectionsRepository
	cache  *cache.Availability
	logger *slog.Logger
}

func NewConnectionHandler(repo *storage.ConnectionsRepository, availCache *cache.Availability, logger *slog.Logger) *ConnectionHandler {
	return &ConnectionHandler{repo: repo, cache: availCache, logger: logger}
}

type connectionItem struct {
	Provider string `json:"provider"`
	FeedURL  string `json:"feed_url"`
	PushURL  string `json:"push_url"`
	Enabled  bool   `json:"enabled"`
	Status   string `json:"status"`
}

func (h *ConnectionHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.put(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ConnectionHandler) get(w http.ResponseWriter, r *http.Request) {
	personID := strings.TrimSpace(r.URL.Query().Get("person_id"))
	if personID == "" {
		http.Error(w, "person_id required", http.StatusBadRequest)
		return
	}

	conn, ok, err := h.repo.GetConnection(r.Context(), personID)
	if err != nil {
		h.logger.Error("connection fetch failed", "person_id", personID, "err", err)
		http.Error(w, "failed to load connection", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no calendar connection", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, connectionItem{
		Provider: conn.Provider,
		FeedURL:  conn.FeedURL,
		PushURL:  conn.PushURL,
		Enabled:  conn.Enabled,
		Status:   conn.Status,
	})
}

type putConnectionRequest struct {
	PersonID  string `json:"person_id"`
	Provider  string `json:"provider"`
	FeedURL   string `json:"feed_url"`
	PushURL   string `json:"push_url"`
	AuthToken string `json:"auth_token"`
	Enabled   bool   `json:"enabled"`
}

func (h *ConnectionHandler) put(w http.ResponseWriter, r *http.Request) {
	var req putConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PersonID = strings.TrimSpace(req.PersonID)
	req.Provider = strings.TrimSpace(req.Provider)
	if req.PersonID == "" || req.Provider == "" {
		http.Error(w, "person_id and provider required", http.StatusBadRequest)
		return
	}

	err := h.repo.Upsert(r.Context(), model.CalendarConnection{
		PersonID:  req.PersonID,
		Provider:  req.Provider,
		FeedURL:   strings.TrimSpace(req.FeedURL),
		PushURL:   strings.TrimSpace(req.PushURL),
		AuthToken: strings.TrimSpace(req.AuthToken),
		Enabled:   req.Enabled,
		Status:    "ok",
	})
	if err != nil {
		h.logger.Error("connection upsert failed", "person_id", req.PersonID, "err", err)
		http.Error(w, "failed to save connection", http.StatusInternalServerError)
		return
	}

	// Toggling the connection changes what counts as busy.
	h.cache.InvalidatePerson(r.Context(), req.PersonID)
	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/advisorly/schedcore/internal/cache"
	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/internal/rules"
	"github.com/advisorly/schedcore/internal/storage"
)

type RulesHandler struct {
	repo   *storage.RulesRepository
	cache  *cache.Availability
	logger *slog.Logger
}

func NewRulesHandler(repo *storage.RulesRepository, availCache *cache.Availability, logger *slog.Logger) *RulesHandler {
	return &RulesHandler{repo: repo, cache: availCache, logger: logger}
}

type ruleItem struct {
	Weekday     int    `json:"weekday"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	Timezone    string `json:"timezone"`
}

func (h *RulesHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPut:
		h.replace(w, r)
	case http.MethodDelete:
		h.clear(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RulesHandler) list(w http.ResponseWriter, r *http.Request) {
	personID := strings.TrimSpace(r.URL.Query().Get("person_id"))
	if personID == "" {
		http.Error(w, "person_id required", http.StatusBadRequest)
		return
	}

	active, err := h.repo.ListActiveRules(r.Context(), personID)
	if err != nil {
		h.logger.Error("rules list failed", "person_id", personID, "err", err)
		http.Error(w, "failed to list rules", http.StatusInternalServerError)
		return
	}

	items := make([]ruleItem, 0, len(active))
	for _, rule := range active {
		items = append(items, ruleItem{
			Weekday:     rule.Weekday,
			StartMinute: rule.StartMinute,
			EndMinute:   rule.EndMinute,
			Timezone:    rule.Timezone,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type putRuleRequest struct {
	PersonID    string `json:"person_id"`
	Weekday     int    `json:"weekday"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	Timezone    string `json:"timezone"`
}

func (h *RulesHandler) replace(w http.ResponseWriter, r *http.Request) {
	var req putRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PersonID = strings.TrimSpace(req.PersonID)
	if req.PersonID == "" {
		http.Error(w, "person_id required", http.StatusBadRequest)
		return
	}

	rule, err := h.repo.Replace(r.Context(), model.AvailabilityRule{
		PersonID:    req.PersonID,
		Weekday:     req.Weekday,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		Timezone:    strings.TrimSpace(req.Timezone),
	})
	if err != nil {
		if errors.Is(err, rules.ErrInvalidRule) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("rule replace failed", "person_id", req.PersonID, "err", err)
		http.Error(w, "failed to save rule", http.StatusInternalServerError)
		return
	}

	h.cache.InvalidatePerson(r.Context(), req.PersonID)
	writeJSON(w, http.StatusOK, ruleItem{
		Weekday:     rule.Weekday,
		StartMinute: rule.StartMinute,
		EndMinute:   rule.EndMinute,
		Timezone:    rule.Timezone,
	})
}

func (h *RulesHandler) clear(w http.ResponseWriter, r *http.Request) {
	personID := strings.TrimSpace(r.URL.Query().Get("person_id"))
	weekdayRaw := strings.TrimSpace(r.URL.Query().Get("weekday"))
	if personID == "" || weekdayRaw == "" {
		http.Error(w, "person_id and weekday required", http.StatusBadRequest)
		return
	}
	weekday, err := strconv.Atoi(weekdayRaw)
	if err != nil || weekday < 0 || weekday > 6 {
		http.Error(w, "weekday must be 0-6", http.StatusBadRequest)
		return
	}

	if err := h.repo.Clear(r.Context(), personID, weekday); err != nil {
		h.logger.Error("rule clear failed", "person_id", personID, "err", err)
		http.Error(w, "failed to clear rule", http.StatusInternalServerError)
		return
	}
	h.cache.InvalidatePerson(r.Context(), personID)
	w.WriteHeader(http.StatusNoContent)
}

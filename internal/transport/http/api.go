package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"

	"go.uber.org/zap"
)

// ActorHeader carries the id of the user making an API call.
const ActorHeader = "X-User-ID"

// APIHandler serves the JSON read and admin endpoints.
type APIHandler struct {
	stats *app.StatsService
	log   *zap.Logger
}

func NewAPIHandler(stats *app.StatsService, log *zap.Logger) *APIHandler {
	return &APIHandler{stats: stats, log: log}
}

type statsResponse struct {
	Stats    domain.UserStats `json:"stats"`
	Degraded bool             `json:"degraded"`
}

type roleResponse struct {
	UserID   string      `json:"userId"`
	Role     domain.Role `json:"role"`
	Degraded bool        `json:"degraded,omitempty"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type leaderboardResponse struct {
	Query   string                    `json:"query,omitempty"`
	Entries []domain.LeaderboardEntry `json:"entries"`
}

// GetStats always answers 200; a failed lookup returns default stats with
// degraded set so clients can show a hint instead of an error page.
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.stats.Stats(r.Context(), r.PathValue("id"))
	writeJSON(w, http.StatusOK, statsResponse{Stats: st, Degraded: err != nil})
}

func (h *APIHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	role, err := h.stats.Role(r.Context(), id)
	writeJSON(w, http.StatusOK, roleResponse{UserID: id, Role: role, Degraded: err != nil})
}

func (h *APIHandler) PutRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "Invalid request body."})
		return
	}
	id := r.PathValue("id")
	role := domain.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if err := h.stats.SetRole(r.Context(), r.Header.Get(ActorHeader), id, role); err != nil {
		h.log.Debug("role update rejected", zap.String("user", id), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roleResponse{UserID: id, Role: role})
}

func (h *APIHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, domain.ErrInvalidLimit)
			return
		}
		limit = n
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	var (
		entries []domain.LeaderboardEntry
		err     error
	)
	if query != "" {
		entries, err = h.stats.SearchLeaderboard(r.Context(), query, limit)
	} else {
		entries, err = h.stats.Leaderboard(r.Context(), limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Query: query, Entries: entries})
}

// ResetCache drops every cached read. Admins only.
func (h *APIHandler) ResetCache(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(ActorHeader)
	if actor == "" {
		writeError(w, domain.ErrMissingUser)
		return
	}
	role, err := h.stats.Role(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	if role != domain.RoleAdmin {
		writeError(w, domain.ErrForbidden)
		return
	}
	if err := h.stats.Reset(r.Context()); err != nil {
		h.log.Warn("cache reset failed", zap.String("op", "reset_cache"), zap.String("actor", actor), zap.Error(err))
		writeError(w, err)
		return
	}
	h.log.Info("cache reset", zap.String("actor", actor))
	w.WriteHeader(http.StatusNoContent)
}

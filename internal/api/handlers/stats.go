package handlers

import (
	"net/http"

	"github.com/recallhq/recall/internal/api/middleware"
	"github.com/recallhq/recall/internal/domain"
)

type StatsHandler struct {
	access domain.AccessStore
}

func NewStatsHandler(access domain.AccessStore) *StatsHandler {
	return &StatsHandler{access: access}
}

func (h *StatsHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	stats, err := h.access.UserStats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

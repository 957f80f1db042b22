package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/recallhq/recall/internal/domain"
	"github.com/recallhq/recall/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the error envelope; every error response carries a
// `detail` field.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// handleServiceError maps service and store errors onto status codes.
// Not-found and not-owned are indistinguishable on purpose.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrContentEmpty),
		errors.Is(err, service.ErrUserIDMissing),
		errors.Is(err, service.ErrQueryEmpty),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrBulkEmpty),
		errors.Is(err, service.ErrBulkTooLarge),
		errors.Is(err, service.ErrInvalidBackupBlob):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrCapabilityUnavailable):
		writeError(w, http.StatusGone, "capability unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parsePagination reads page/size query parameters with defaults.
func parsePagination(r *http.Request) (page, size int) {
	page, size = 1, 20
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && v > 0 && v <= 100 {
		size = v
	}
	return page, size
}

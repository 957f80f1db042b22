package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/recallhq/recall/internal/api/middleware"
	"github.com/recallhq/recall/internal/service"
)

type BulkHandler struct {
	svc *service.BulkService
}

func NewBulkHandler(svc *service.BulkService) *BulkHandler {
	return &BulkHandler{svc: svc}
}

type bulkAddRequest struct {
	Items        []service.BulkItem `json:"items"`
	AppName      string             `json:"app_name,omitempty"`
	Concurrency  int                `json:"concurrency,omitempty"`
	DedupEnabled *bool              `json:"dedup_enabled,omitempty"`
}

func (h *BulkHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req bulkAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Dedup is on unless the caller switches it off.
	dedup := true
	if req.DedupEnabled != nil {
		dedup = *req.DedupEnabled
	}

	result, err := h.svc.BulkAdd(r.Context(), service.BulkRequest{
		UserID:       userID,
		AppName:      req.AppName,
		Items:        req.Items,
		Concurrency:  req.Concurrency,
		DedupEnabled: dedup,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/recallhq/recall/internal/api/middleware"
	"github.com/recallhq/recall/internal/service"
)

// maxImportBytes caps the import body at 64 MiB.
const maxImportBytes = 64 << 20

type BackupHandler struct {
	svc *service.BackupService
}

func NewBackupHandler(svc *service.BackupService) *BackupHandler {
	return &BackupHandler{svc: svc}
}

// Export streams the user's full memory set as a downloadable JSON file.
func (h *BackupHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	file, err := h.svc.Export(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="memories_backup.json"`)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(file)
}

func (h *BackupHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	blob, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	result, err := h.svc.Import(r.Context(), userID, blob)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

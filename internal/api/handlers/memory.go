package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/api/middleware"
	"github.com/recallhq/recall/internal/domain"
	"github.com/recallhq/recall/internal/service"
)

type MemoryHandler struct {
	svc    *service.MemoryService
	access domain.AccessStore
}

func NewMemoryHandler(svc *service.MemoryService, access domain.AccessStore) *MemoryHandler {
	return &MemoryHandler{svc: svc, access: access}
}

type createMemoryRequest struct {
	Text     string         `json:"text"`
	AppName  string         `json:"app_name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type createMemoryResponse struct {
	ID    uuid.UUID `json:"id"`
	Event string    `json:"event"`
}

func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req createMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Add(r.Context(), userID, req.Text, req.AppName, req.Metadata)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Action == domain.DedupSkip {
		status = http.StatusOK
	}
	writeJSON(w, status, createMemoryResponse{ID: result.Memory.ID, Event: string(result.Action)})
}

func (h *MemoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	memory, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memory)
}

type updateMemoryRequest struct {
	Text     string         `json:"text"`
	AppName  string         `json:"app_name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Update supersedes the memory with new content and returns the successor.
func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	var req updateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	successor, err := h.svc.Supersede(r.Context(), userID, id, req.Text, req.AppName, req.Metadata)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successor)
}

func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// DeleteAll hard-deletes the user's memories, optionally scoped to one app.
func (h *MemoryHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	deleted, err := h.svc.DeleteAll(r.Context(), userID, r.URL.Query().Get("app_name"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

type filterRequest struct {
	State             string     `json:"state,omitempty"`
	AppName           string     `json:"app_name,omitempty"`
	Category          string     `json:"category,omitempty"`
	Contains          string     `json:"contains,omitempty"`
	ShowArchived      bool       `json:"show_archived,omitempty"`
	IncludeSuperseded bool       `json:"include_superseded,omitempty"`
	AsOf              *time.Time `json:"as_of,omitempty"`
	Page              int        `json:"page,omitempty"`
	Size              int        `json:"size,omitempty"`
}

func (h *MemoryHandler) Filter(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f := domain.ListFilter{
		AppName:           req.AppName,
		Category:          req.Category,
		Contains:          req.Contains,
		ShowArchived:      req.ShowArchived,
		IncludeSuperseded: req.IncludeSuperseded,
		AsOf:              req.AsOf,
		Page:              req.Page,
		Size:              req.Size,
	}
	if req.State != "" {
		if !domain.ValidState(req.State) {
			writeError(w, http.StatusBadRequest, "invalid state filter")
			return
		}
		state := domain.MemoryState(req.State)
		f.State = &state
	}

	page, err := h.svc.List(r.Context(), userID, f)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *MemoryHandler) AccessLog(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid memory id")
		return
	}

	// Ownership check before reading the log: a foreign memory must look
	// absent.
	if _, err := h.svc.Get(r.Context(), userID, id); err != nil {
		handleServiceError(w, err)
		return
	}

	page, size := parsePagination(r)
	logs, err := h.access.ListForMemory(r.Context(), userID, id, page, size)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

type batchActionRequest struct {
	MemoryIDs []uuid.UUID `json:"memory_ids"`
	Pause     *bool       `json:"pause,omitempty"`
}

func (h *MemoryHandler) BatchArchive(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req batchActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.MemoryIDs) == 0 {
		writeError(w, http.StatusBadRequest, "memory_ids is required")
		return
	}

	archived, err := h.svc.BatchArchive(r.Context(), userID, req.MemoryIDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"archived": archived})
}

func (h *MemoryHandler) BatchPause(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req batchActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.MemoryIDs) == 0 {
		writeError(w, http.StatusBadRequest, "memory_ids is required")
		return
	}

	pause := true
	if req.Pause != nil {
		pause = *req.Pause
	}
	changed, err := h.svc.BatchSetPause(r.Context(), userID, req.MemoryIDs, pause)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"changed": changed})
}

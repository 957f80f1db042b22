package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/recallhq/recall/internal/api/middleware"
	"github.com/recallhq/recall/internal/domain"
	"github.com/recallhq/recall/internal/service"
)

type SearchHandler struct {
	svc *service.SearchService
}

func NewSearchHandler(svc *service.SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type searchRequest struct {
	Query     string  `json:"query"`
	AppName   string  `json:"app_name,omitempty"`
	TopK      int     `json:"top_k,omitempty"`
	Mode      string  `json:"mode,omitempty"`
	Rerank    bool    `json:"rerank,omitempty"`
	MMRLambda float64 `json:"mmr_lambda,omitempty"`
	UseGraph  bool    `json:"use_graph,omitempty"`
}

type searchResponse struct {
	Query   string                 `json:"query"`
	Results []*domain.SearchResult `json:"results"`
	Total   int                    `json:"total"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Mode != "" && !domain.ValidSearchMode(req.Mode) {
		writeError(w, http.StatusBadRequest, "invalid search mode")
		return
	}

	results, err := h.svc.Search(r.Context(), domain.SearchRequest{
		Query:     req.Query,
		UserID:    userID,
		AppName:   req.AppName,
		TopK:      req.TopK,
		Mode:      domain.SearchMode(req.Mode),
		Rerank:    req.Rerank,
		MMRLambda: req.MMRLambda,
		UseGraph:  req.UseGraph,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Query: req.Query, Results: results, Total: len(results)})
}

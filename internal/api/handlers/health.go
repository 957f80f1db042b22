package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/recallhq/recall/internal/domain"
	"github.com/recallhq/recall/internal/graph"
)

const healthTimeout = 5 * time.Second

type HealthHandler struct {
	graph    *graph.Client
	embedder domain.EmbeddingClient
}

func NewHealthHandler(g *graph.Client, ec domain.EmbeddingClient) *HealthHandler {
	return &HealthHandler{graph: g, embedder: ec}
}

type healthCheck struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type healthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]healthCheck `json:"checks"`
}

// Health probes the graph store and the embedding provider. Any failing
// dependency turns the response into a 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	checks := map[string]healthCheck{}
	healthy := true

	if err := h.graph.Ping(ctx); err != nil {
		checks["memgraph"] = healthCheck{OK: false, Detail: err.Error()}
		healthy = false
	} else {
		checks["memgraph"] = healthCheck{OK: true}
	}

	if eh, err := h.embedder.Health(ctx); err != nil || !eh.OK {
		detail := "embedding provider unhealthy"
		if err != nil {
			detail = err.Error()
		}
		checks["embeddings"] = healthCheck{OK: false, Detail: detail}
		healthy = false
	} else {
		checks["embeddings"] = healthCheck{OK: true}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{Status: status, Checks: checks})
}

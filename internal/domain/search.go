package domain

import (
	"time"

	"github.com/google/uuid"
)

// SearchMode selects which retrieval arms run.
type SearchMode string

const (
	SearchHybrid SearchMode = "hybrid"
	SearchText   SearchMode = "text"
	SearchVector SearchMode = "vector"
)

func ValidSearchMode(s string) bool {
	switch SearchMode(s) {
	case SearchHybrid, SearchText, SearchVector:
		return true
	}
	return false
}

// SearchRequest is a hybrid search over one user's live memories.
type SearchRequest struct {
	Query     string
	UserID    string
	AppName   string
	TopK      int
	Mode      SearchMode
	Rerank    bool
	MMRLambda float64
	UseGraph  bool
}

// RankedHit is one document from a single retrieval arm, with a 1-based rank.
type RankedHit struct {
	ID    uuid.UUID
	Rank  int
	Score float64
}

// ScoredMemory is a memory with a similarity score, used by the dedup
// candidate query.
type ScoredMemory struct {
	ID         uuid.UUID
	Content    string
	Similarity float64
}

// SearchResult is one hydrated hit of a hybrid search.
type SearchResult struct {
	ID         uuid.UUID `json:"id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	AppName    string    `json:"app_name,omitempty"`
	Categories []string  `json:"categories,omitempty"`
	RRFScore   float64   `json:"rrf_score"`
	TextRank   int       `json:"text_rank,omitempty"`
	VectorRank int       `json:"vector_rank,omitempty"`
	GraphRank  int       `json:"graph_rank,omitempty"`
	Embedding  []float32 `json:"-"`
}

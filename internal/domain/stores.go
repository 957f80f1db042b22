package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a graph path anchored at the user yields no
// node. A memory owned by another user is indistinguishable from a missing
// one by design.
var ErrNotFound = errors.New("not found")

// ErrCapabilityUnavailable is returned when the graph store lacks a required
// extension (e.g. the community-detection procedure).
var ErrCapabilityUnavailable = errors.New("capability unavailable")

type MemoryStore interface {
	Create(ctx context.Context, m *Memory) error
	CreateBatch(ctx context.Context, ms []*Memory) error
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*Memory, error)
	List(ctx context.Context, userID string, f ListFilter) (*MemoryPage, error)
	UpdateContent(ctx context.Context, userID string, id uuid.UUID, content string, embedding []float32, at time.Time) error
	SetState(ctx context.Context, userID string, id uuid.UUID, state MemoryState, at time.Time) error
	SoftDelete(ctx context.Context, userID string, id uuid.UUID, at time.Time) error
	DeleteAll(ctx context.Context, userID, appName string) (int, error)
	Supersede(ctx context.Context, userID string, oldID uuid.UUID, successor *Memory, at time.Time) error
	AttachApp(ctx context.Context, userID string, memoryID uuid.UUID, appName string) error

	// LastLive returns the user's most recent live memories in chronological
	// order, for the context-window prefix.
	LastLive(ctx context.Context, userID string, n int) ([]Memory, error)

	// SimilarLive returns live memories above the similarity threshold,
	// ordered by similarity descending. Backed by the vector index with
	// post-filtering.
	SimilarLive(ctx context.Context, userID string, embedding []float32, threshold float64, k int) ([]ScoredMemory, error)

	// TextSearch and VectorSearch are the two retrieval arms; both return
	// 1-based ranked hits over the user's live memories.
	TextSearch(ctx context.Context, userID, query string, limit int) ([]RankedHit, error)
	VectorSearch(ctx context.Context, userID string, embedding []float32, limit int) ([]RankedHit, error)

	// Hydrate fetches display fields (and optionally embeddings) for the
	// surviving ids in one batched lookup.
	Hydrate(ctx context.Context, userID string, ids []uuid.UUID, withEmbeddings bool) (map[uuid.UUID]*SearchResult, error)

	AddCategories(ctx context.Context, userID string, id uuid.UUID, categories []string) error

	// Extraction state machine.
	MarkExtractionPending(ctx context.Context, id uuid.UUID) (attempts int, err error)
	SetExtractionStatus(ctx context.Context, id uuid.UUID, status ExtractionStatus, errMsg string) error
	SweepStaleExtractions(ctx context.Context, maxAttempts int) (int, error)

	// ExportAll returns every memory of the user regardless of state,
	// embeddings included.
	ExportAll(ctx context.Context, userID string) ([]Memory, error)
}

type EntityStore interface {
	FindByName(ctx context.Context, userID, name string) (*Entity, error)
	FindPersonByPrefix(ctx context.Context, userID, name string) (*Entity, error)
	Create(ctx context.Context, e *Entity) error
	UpdateResolved(ctx context.Context, id uuid.UUID, name, entityType, description string, at time.Time) error
	SetDescriptionEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
	SetSummary(ctx context.Context, id uuid.UUID, summary string, at time.Time) error

	LinkMention(ctx context.Context, userID string, memoryID, entityID uuid.UUID, role string, confidence float64, at time.Time) error
	RecomputeRank(ctx context.Context, id uuid.UUID) (int, error)
	LiveMentionCount(ctx context.Context, id uuid.UUID) (int, error)
	ConnectedMemories(ctx context.Context, id uuid.UUID, limit int) ([]Memory, error)
	OutgoingRelations(ctx context.Context, id uuid.UUID, limit int) ([]RelatedEdge, error)

	GetLiveRelation(ctx context.Context, srcID, tgtID uuid.UUID, relType string) (*RelatedEdge, error)
	CreateRelation(ctx context.Context, e *RelatedEdge) error
	IncrementRelation(ctx context.Context, edgeID uuid.UUID) error
	InvalidateRelation(ctx context.Context, edgeID uuid.UUID, at time.Time) error

	List(ctx context.Context, userID string, page, size int) (*EntityPage, error)
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*Entity, int, error)
	MemoriesFor(ctx context.Context, userID string, id uuid.UUID, page, size int) (*MemoryPage, error)

	// Graph-traversal arm support.
	SeedSearch(ctx context.Context, userID string, terms []string, limit int) ([]Entity, error)
	Neighbors(ctx context.Context, userID string, ids []uuid.UUID, limit int) ([]Entity, error)
	MemoriesMentionedBy(ctx context.Context, userID string, ids []uuid.UUID, limit int) ([]RankedHit, error)
}

type CommunityStore interface {
	// DetectCommunities runs graph community detection over the user's live
	// entity relationships and returns community id -> member entity ids.
	// Returns ErrCapabilityUnavailable when the procedure is missing.
	DetectCommunities(ctx context.Context, userID string) (map[int64][]uuid.UUID, error)
	DeleteAll(ctx context.Context, userID string) error
	Create(ctx context.Context, userID string, c *Community, entityIDs []uuid.UUID) error
	List(ctx context.Context, userID string) ([]Community, error)
	Memories(ctx context.Context, userID string, id uuid.UUID, limit int) ([]Memory, error)
}

type AccessStore interface {
	Record(ctx context.Context, userID string, memoryID uuid.UUID, appName, query string, at time.Time) error
	ListForMemory(ctx context.Context, userID string, memoryID uuid.UUID, page, size int) (*AccessLogPage, error)
	UserStats(ctx context.Context, userID string) (*UserStats, error)
}

type HistoryStore interface {
	Record(ctx context.Context, h *MemoryHistory) error
}

// EmbeddingHealth reports the embedding provider's liveness.
type EmbeddingHealth struct {
	OK        bool   `json:"ok"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Dim       int    `json:"dim"`
	LatencyMs int64  `json:"latency_ms"`
}

// EmbeddingClient produces unit-norm dense vectors of a fixed dimension.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dims() int
	Health(ctx context.Context) (*EmbeddingHealth, error)
}

// DedupVerdict is the LLM's judgment on a pair of memory texts.
type DedupVerdict string

const (
	VerdictDuplicate  DedupVerdict = "DUPLICATE"
	VerdictSupersedes DedupVerdict = "SUPERSEDES"
	VerdictDifferent  DedupVerdict = "DIFFERENT"
)

// RelationVerdict classifies a repeated entity-entity assertion against the
// existing live edge.
type RelationVerdict string

const (
	RelationSame          RelationVerdict = "SAME"
	RelationUpdate        RelationVerdict = "UPDATE"
	RelationContradiction RelationVerdict = "CONTRADICTION"
)

// LLMClient is the narrow gateway to the chat model. Every caller is
// fail-open: on error it falls back to a documented safe default.
type LLMClient interface {
	VerifyDuplicate(ctx context.Context, existing, incoming string) (DedupVerdict, error)
	ExtractEntities(ctx context.Context, content string) ([]ExtractedEntity, []ExtractedRelation, error)
	ClassifyRelation(ctx context.Context, relType, oldDesc, newDesc string) (RelationVerdict, error)
	ConfirmEntityMerge(ctx context.Context, a, b string) (bool, error)
	SummarizeEntity(ctx context.Context, name, entityType string, memories, relations []string) (string, error)
	SummarizeCluster(ctx context.Context, snippets []string) (name, summary string, err error)
	ExtractSearchTerms(ctx context.Context, query string) ([]string, error)
	Categorize(ctx context.Context, content string) ([]string, error)
}

// DedupAction is the dedup engine's decision for an incoming text.
type DedupAction string

const (
	DedupInsert    DedupAction = "insert"
	DedupSkip      DedupAction = "skip"
	DedupSupersede DedupAction = "supersede"
)

// DedupDecision carries the action plus the existing memory it refers to for
// skip/supersede.
type DedupDecision struct {
	Action     DedupAction
	ExistingID uuid.UUID
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// MemoryState is the lifecycle state of a memory.
type MemoryState string

const (
	StateActive   MemoryState = "active"
	StatePaused   MemoryState = "paused"
	StateArchived MemoryState = "archived"
	StateDeleted  MemoryState = "deleted"
)

func ValidState(s string) bool {
	switch MemoryState(s) {
	case StateActive, StatePaused, StateArchived, StateDeleted:
		return true
	}
	return false
}

// ExtractionStatus tracks the entity-extraction state machine for a memory.
// The empty string means extraction has not been attempted yet.
type ExtractionStatus string

const (
	ExtractionPending ExtractionStatus = "pending"
	ExtractionDone    ExtractionStatus = "done"
	ExtractionFailed  ExtractionStatus = "failed"
)

// Memory is a single self-contained natural-language fact owned by a user.
// It is bi-temporal: ValidAt/InvalidAt bound the fact's valid time, while
// CreatedAt/UpdatedAt are system timestamps. InvalidAt == nil means the
// memory is live.
type Memory struct {
	ID         uuid.UUID      `json:"id"`
	UserID     string         `json:"user_id"`
	Content    string         `json:"content"`
	State      MemoryState    `json:"state"`
	Embedding  []float32      `json:"-"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	AppName    string         `json:"app_name,omitempty"`
	Categories []string       `json:"categories,omitempty"`

	ValidAt   time.Time  `json:"valid_at"`
	InvalidAt *time.Time `json:"invalid_at,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`

	ExtractionStatus   ExtractionStatus `json:"extraction_status,omitempty"`
	ExtractionAttempts int              `json:"extraction_attempts,omitempty"`
	ExtractionError    string           `json:"extraction_error,omitempty"`
}

// Live reports whether the memory is currently valid and not deleted.
func (m *Memory) Live() bool {
	return m.InvalidAt == nil && m.State != StateDeleted
}

// ListFilter selects memories for listing. Temporal modes:
// default (live only), IncludeSuperseded (no validity filter), or AsOf
// (valid at the given instant).
type ListFilter struct {
	State             *MemoryState
	AppName           string
	Category          string
	Contains          string
	ShowArchived      bool
	IncludeSuperseded bool
	AsOf              *time.Time
	Page              int
	Size              int
}

// MemoryPage is one page of a memory listing.
type MemoryPage struct {
	Items []Memory `json:"items"`
	Total int      `json:"total"`
	Page  int      `json:"page"`
	Size  int      `json:"size"`
	Pages int      `json:"pages"`
}

// MemoryHistory is an audit record for a memory mutation.
type MemoryHistory struct {
	ID        uuid.UUID `json:"id"`
	MemoryID  uuid.UUID `json:"memory_id"`
	Action    string    `json:"action"`
	Previous  string    `json:"previous,omitempty"`
	New       string    `json:"new,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AccessLogEntry records one retrieval of a memory by an app.
type AccessLogEntry struct {
	MemoryID   uuid.UUID `json:"memory_id"`
	AppName    string    `json:"app_name"`
	QueryUsed  string    `json:"query_used"`
	AccessedAt time.Time `json:"accessed_at"`
}

// AccessLogPage is one page of a memory's access log.
type AccessLogPage struct {
	Logs     []AccessLogEntry `json:"logs"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// AppStats is a per-app memory count for the stats endpoint.
type AppStats struct {
	Name        string `json:"name"`
	MemoryCount int    `json:"memory_count"`
}

// UserStats summarizes a user's stored memories.
type UserStats struct {
	TotalMemories int        `json:"total_memories"`
	TotalApps     int        `json:"total_apps"`
	Apps          []AppStats `json:"apps"`
}

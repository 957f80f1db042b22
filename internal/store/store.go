// Package store implements the graph-backed persistence layer. Every query
// anchors at the owning User node; a miss and a not-owned node are the same
// ErrNotFound.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/recallhq/recall/internal/domain"
)

var ErrNotFound = domain.ErrNotFound

const liveMemory = `m.invalidAt IS NULL AND m.state <> 'deleted'`

// Timestamps are stored as epoch milliseconds so they index and compare
// uniformly over Bolt.
func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func timeFromAny(v any) time.Time {
	ms, ok := v.(int64)
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func timePtrFromAny(v any) *time.Time {
	if v == nil {
		return nil
	}
	ms, ok := v.(int64)
	if !ok {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// Bolt carries float64 lists; embeddings cross the wire as []float64.
func vectorParam(v []float32) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func vectorFromAny(v any) []float32 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, item := range list {
		f, ok := item.(float64)
		if !ok {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

func intFromAny(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func floatFromAny(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func stringsFromAny(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func idFromAny(v any) uuid.UUID {
	id, err := uuid.Parse(stringFromAny(v))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Metadata is an opaque mapping; it is serialized to a JSON string property.
func metadataParam(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

func metadataFromAny(v any) map[string]any {
	s := stringFromAny(v)
	if s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

func nodeProps(v any) map[string]any {
	node, ok := v.(neo4j.Node)
	if !ok {
		return nil
	}
	return node.Props
}

func memoryFromProps(props map[string]any) domain.Memory {
	m := domain.Memory{
		ID:        idFromAny(props["id"]),
		Content:   stringFromAny(props["content"]),
		State:     domain.MemoryState(stringFromAny(props["state"])),
		Embedding: vectorFromAny(props["embedding"]),
		Metadata:  metadataFromAny(props["metadata"]),
		ValidAt:   timeFromAny(props["validAt"]),
		InvalidAt: timePtrFromAny(props["invalidAt"]),
		CreatedAt: timeFromAny(props["createdAt"]),
		UpdatedAt: timeFromAny(props["updatedAt"]),

		ArchivedAt: timePtrFromAny(props["archivedAt"]),
		DeletedAt:  timePtrFromAny(props["deletedAt"]),

		ExtractionStatus:   domain.ExtractionStatus(stringFromAny(props["extractionStatus"])),
		ExtractionAttempts: intFromAny(props["extractionAttempts"]),
		ExtractionError:    stringFromAny(props["extractionError"]),
	}
	return m
}

func entityFromProps(props map[string]any) domain.Entity {
	return domain.Entity{
		ID:                   idFromAny(props["id"]),
		Name:                 stringFromAny(props["name"]),
		Type:                 stringFromAny(props["type"]),
		Description:          stringFromAny(props["description"]),
		DescriptionEmbedding: vectorFromAny(props["descriptionEmbedding"]),
		Rank:                 intFromAny(props["rank"]),
		Summary:              stringFromAny(props["summary"]),
		SummaryUpdatedAt:     timePtrFromAny(props["summaryUpdatedAt"]),
		CreatedAt:            timeFromAny(props["createdAt"]),
		UpdatedAt:            timeFromAny(props["updatedAt"]),
	}
}

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entity is a named thing referenced by one or more memories. The match key
// is (userId, lowercased name); Type is an open UPPER_SNAKE_CASE vocabulary.
type Entity struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               string     `json:"user_id"`
	Name                 string     `json:"name"`
	Type                 string     `json:"type"`
	Description          string     `json:"description,omitempty"`
	DescriptionEmbedding []float32  `json:"-"`
	Rank                 int        `json:"rank"`
	Summary              string     `json:"summary,omitempty"`
	SummaryUpdatedAt     *time.Time `json:"summary_updated_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// EntityPage is one page of an entity listing.
type EntityPage struct {
	Entities []Entity `json:"entities"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	Size     int      `json:"size"`
}

// ExtractedEntity is one entity mention produced by the LLM extractor.
type ExtractedEntity struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Role        string  `json:"role"`
	Confidence  float64 `json:"confidence"`
}

const EntityTypeOther = "OTHER"
const EntityTypePerson = "PERSON"

// typeSpecificity orders the canonical entity types from most to least
// specific. Free-form types from the open vocabulary sit between the
// canonical ones and OTHER.
var typeSpecificity = map[string]int{
	"PERSON":       0,
	"ORGANIZATION": 1,
	"LOCATION":     2,
	"PRODUCT":      3,
	"CONCEPT":      4,
	"OTHER":        6,
}

func specificity(t string) int {
	if s, ok := typeSpecificity[t]; ok {
		return s
	}
	return 5
}

// MoreSpecificType returns whichever of the two entity types is more
// specific. Any concrete type beats OTHER; ties keep the existing type.
func MoreSpecificType(existing, incoming string) string {
	if incoming == "" {
		return existing
	}
	if existing == "" {
		return incoming
	}
	if specificity(incoming) < specificity(existing) {
		return incoming
	}
	return existing
}

// NormalizeRelationType maps a free-form relation name to the
// UPPER_SNAKE_CASE vocabulary used on RELATED_TO edges.
func NormalizeRelationType(relType string) string {
	fields := strings.Fields(strings.TrimSpace(relType))
	for i, f := range fields {
		fields[i] = strings.ToUpper(f)
	}
	s := strings.Join(fields, "_")
	return strings.ReplaceAll(s, "-", "_")
}

// RelatedEdge is a fact about two entities, stored as a RELATED_TO edge.
// InvalidAt == nil means the edge is live; at most one live edge exists per
// (source, target, type).
type RelatedEdge struct {
	ID             uuid.UUID  `json:"id"`
	SourceID       uuid.UUID  `json:"source_id"`
	TargetID       uuid.UUID  `json:"target_id"`
	Type           string     `json:"type"`
	Description    string     `json:"description,omitempty"`
	ValidAt        time.Time  `json:"valid_at"`
	InvalidAt      *time.Time `json:"invalid_at,omitempty"`
	ConfirmedCount int        `json:"confirmed_count"`
	TargetName     string     `json:"target_name,omitempty"`
}

// PrefixOnWordBoundary reports whether one name is a whole-word prefix of
// the other ("Alice" / "Alice Smith"), ignoring case.
func PrefixOnWordBoundary(a, b string) bool {
	short, long := strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if len(short) > len(long) {
		short, long = long, short
	}
	if short == "" || !strings.HasPrefix(long, short) {
		return false
	}
	return len(long) == len(short) || long[len(short)] == ' '
}

// ExtractedRelation is one entity-entity fact produced by the LLM extractor.
type ExtractedRelation struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Community is a detected group of entities with an LLM-generated name and
// summary. Memories mentioning member entities are linked IN_COMMUNITY.
type Community struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Summary     string    `json:"summary"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

package llm

import (
	"fmt"
	"strings"

	"github.com/recallhq/recall/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// NewClient creates an LLM client based on the provider name. rpm caps the
// OpenAI client's outbound requests per minute.
// Returns an error if the provider is unknown or the API key is empty (except for mock).
func NewClient(provider, apiKey string, rpm int) (domain.LLMClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return NewOpenAIClient(apiKey, rpm), nil

	case ProviderMock:
		return NewMockClient(), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (valid options: openai, mock)", provider)
	}
}

// stripFences removes markdown code fences the model sometimes wraps JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseDedupVerdict maps model output onto a verdict. Anything unrecognized
// reads as DIFFERENT so a confused model never suppresses an insert.
func parseDedupVerdict(s string) domain.DedupVerdict {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(domain.VerdictDuplicate):
		return domain.VerdictDuplicate
	case string(domain.VerdictSupersedes):
		return domain.VerdictSupersedes
	default:
		return domain.VerdictDifferent
	}
}

// parseRelationVerdict maps model output onto a relation verdict. Anything
// unrecognized reads as UPDATE, the least destructive outcome.
func parseRelationVerdict(s string) domain.RelationVerdict {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(domain.RelationSame):
		return domain.RelationSame
	case string(domain.RelationContradiction):
		return domain.RelationContradiction
	default:
		return domain.RelationUpdate
	}
}

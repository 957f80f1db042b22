package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/domain"
)

func TestNewClient(t *testing.T) {
	c, err := NewClient(ProviderMock, "", 0)
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, c)

	c, err = NewClient(ProviderOpenAI, "sk-test", 500)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	_, err = NewClient(ProviderOpenAI, "", 500)
	assert.Error(t, err)

	_, err = NewClient("anthropic", "key", 0)
	assert.Error(t, err)
}

func TestNewOpenAIClient_RateLimiter(t *testing.T) {
	c := NewOpenAIClient("sk-test", 120)
	require.NotNil(t, c.limiter)
	assert.InDelta(t, 2.0, float64(c.limiter.Limit()), 1e-9)

	assert.Nil(t, NewOpenAIClient("sk-test", 0).limiter)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}

func TestParseDedupVerdict(t *testing.T) {
	assert.Equal(t, domain.VerdictDuplicate, parseDedupVerdict("DUPLICATE"))
	assert.Equal(t, domain.VerdictSupersedes, parseDedupVerdict(" supersedes \n"))
	assert.Equal(t, domain.VerdictDifferent, parseDedupVerdict("DIFFERENT"))
	// Unrecognized output must never suppress an insert.
	assert.Equal(t, domain.VerdictDifferent, parseDedupVerdict("maybe a duplicate?"))
	assert.Equal(t, domain.VerdictDifferent, parseDedupVerdict(""))
}

func TestParseRelationVerdict(t *testing.T) {
	assert.Equal(t, domain.RelationSame, parseRelationVerdict("same"))
	assert.Equal(t, domain.RelationContradiction, parseRelationVerdict("CONTRADICTION"))
	assert.Equal(t, domain.RelationUpdate, parseRelationVerdict("UPDATE"))
	assert.Equal(t, domain.RelationUpdate, parseRelationVerdict("unsure"))
}

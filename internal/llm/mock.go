package llm

import (
	"context"

	"github.com/recallhq/recall/internal/domain"
)

// MockClient is a configurable LLM client for testing.
// Set the response fields to control what each method returns.
type MockClient struct {
	VerifyDuplicateResponse    domain.DedupVerdict
	VerifyDuplicateError       error
	ExtractEntitiesResponse    []domain.ExtractedEntity
	ExtractRelationsResponse   []domain.ExtractedRelation
	ExtractEntitiesError       error
	ClassifyRelationResponse   domain.RelationVerdict
	ClassifyRelationError      error
	ConfirmEntityMergeResponse bool
	ConfirmEntityMergeError    error
	SummarizeEntityResponse    string
	SummarizeEntityError       error
	ClusterNameResponse        string
	ClusterSummaryResponse     string
	SummarizeClusterError      error
	SearchTermsResponse        []string
	SearchTermsError           error
	CategorizeResponse         []string
	CategorizeError            error

	// Call tracking for assertions
	VerifyDuplicateCalls    []struct{ Existing, Incoming string }
	ExtractEntitiesCalls    []string
	ClassifyRelationCalls   []struct{ Type, OldDesc, NewDesc string }
	ConfirmEntityMergeCalls []struct{ A, B string }
	SummarizeEntityCalls    []string
	SummarizeClusterCalls   [][]string
	SearchTermsCalls        []string
	CategorizeCalls         []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		VerifyDuplicateResponse:  domain.VerdictDifferent,
		ExtractEntitiesResponse:  []domain.ExtractedEntity{},
		ExtractRelationsResponse: []domain.ExtractedRelation{},
		ClassifyRelationResponse: domain.RelationSame,
		SummarizeEntityResponse:  "Mock entity summary",
		ClusterNameResponse:      "Mock Cluster",
		ClusterSummaryResponse:   "A mock cluster summary",
		SearchTermsResponse:      []string{},
		CategorizeResponse:       []string{},
	}
}

func (c *MockClient) VerifyDuplicate(ctx context.Context, existing, incoming string) (domain.DedupVerdict, error) {
	c.VerifyDuplicateCalls = append(c.VerifyDuplicateCalls, struct{ Existing, Incoming string }{existing, incoming})
	if c.VerifyDuplicateError != nil {
		return "", c.VerifyDuplicateError
	}
	return c.VerifyDuplicateResponse, nil
}

func (c *MockClient) ExtractEntities(ctx context.Context, content string) ([]domain.ExtractedEntity, []domain.ExtractedRelation, error) {
	c.ExtractEntitiesCalls = append(c.ExtractEntitiesCalls, content)
	if c.ExtractEntitiesError != nil {
		return nil, nil, c.ExtractEntitiesError
	}
	return c.ExtractEntitiesResponse, c.ExtractRelationsResponse, nil
}

func (c *MockClient) ClassifyRelation(ctx context.Context, relType, oldDesc, newDesc string) (domain.RelationVerdict, error) {
	c.ClassifyRelationCalls = append(c.ClassifyRelationCalls, struct{ Type, OldDesc, NewDesc string }{relType, oldDesc, newDesc})
	if c.ClassifyRelationError != nil {
		return "", c.ClassifyRelationError
	}
	return c.ClassifyRelationResponse, nil
}

func (c *MockClient) ConfirmEntityMerge(ctx context.Context, a, b string) (bool, error) {
	c.ConfirmEntityMergeCalls = append(c.ConfirmEntityMergeCalls, struct{ A, B string }{a, b})
	if c.ConfirmEntityMergeError != nil {
		return false, c.ConfirmEntityMergeError
	}
	return c.ConfirmEntityMergeResponse, nil
}

func (c *MockClient) SummarizeEntity(ctx context.Context, name, entityType string, memories, relations []string) (string, error) {
	c.SummarizeEntityCalls = append(c.SummarizeEntityCalls, name)
	if c.SummarizeEntityError != nil {
		return "", c.SummarizeEntityError
	}
	return c.SummarizeEntityResponse, nil
}

func (c *MockClient) SummarizeCluster(ctx context.Context, snippets []string) (string, string, error) {
	c.SummarizeClusterCalls = append(c.SummarizeClusterCalls, snippets)
	if c.SummarizeClusterError != nil {
		return "", "", c.SummarizeClusterError
	}
	return c.ClusterNameResponse, c.ClusterSummaryResponse, nil
}

func (c *MockClient) ExtractSearchTerms(ctx context.Context, query string) ([]string, error) {
	c.SearchTermsCalls = append(c.SearchTermsCalls, query)
	if c.SearchTermsError != nil {
		return nil, c.SearchTermsError
	}
	return c.SearchTermsResponse, nil
}

func (c *MockClient) Categorize(ctx context.Context, content string) ([]string, error) {
	c.CategorizeCalls = append(c.CategorizeCalls, content)
	if c.CategorizeError != nil {
		return nil, c.CategorizeError
	}
	return c.CategorizeResponse, nil
}

// Reset clears all recorded calls and resets responses to defaults.
func (c *MockClient) Reset() {
	*c = *NewMockClient()
}

package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/recallhq/recall/internal/domain"
)

// MockClient is a deterministic embedding client for testing.
// Vectors are derived from a hash of the input text, so equal texts always
// embed identically. Set EmbedError to make every call fail.
type MockClient struct {
	dims       int
	EmbedError error

	// Call tracking for assertions
	EmbedCalls      []string
	EmbedBatchCalls [][]string
}

func NewMockClient(dims int) *MockClient {
	if dims <= 0 {
		dims = 8
	}
	return &MockClient{dims: dims}
}

func (c *MockClient) Dims() int {
	return c.dims
}

func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c.EmbedCalls = append(c.EmbedCalls, text)
	if c.EmbedError != nil {
		return nil, c.EmbedError
	}
	return c.vector(text), nil
}

func (c *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.EmbedBatchCalls = append(c.EmbedBatchCalls, texts)
	if c.EmbedError != nil {
		return nil, c.EmbedError
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = c.vector(t)
	}
	return out, nil
}

func (c *MockClient) Health(ctx context.Context) (*domain.EmbeddingHealth, error) {
	if c.EmbedError != nil {
		return &domain.EmbeddingHealth{OK: false, Provider: ProviderMock, Model: "mock", Dim: c.dims}, c.EmbedError
	}
	return &domain.EmbeddingHealth{OK: true, Provider: ProviderMock, Model: "mock", Dim: c.dims}, nil
}

func (c *MockClient) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, c.dims)
	for i := range v {
		word := binary.BigEndian.Uint32(sum[(i*4)%28:])
		v[i] = float32(word%1000)/500.0 - 1.0
	}
	return normalize(v)
}

// Reset clears all recorded calls and the configured error.
func (c *MockClient) Reset() {
	c.EmbedError = nil
	c.EmbedCalls = nil
	c.EmbedBatchCalls = nil
}

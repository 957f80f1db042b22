package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/recallhq/recall/internal/domain"
)

const (
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	chatModel     = "gpt-4o-mini"
)

type OpenAIClient struct {
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewOpenAIClient builds a client for the OpenAI chat API. rpm caps outbound
// requests per minute across all callers; zero or negative disables the
// limiter.
func NewOpenAIClient(apiKey string, rpm int) *OpenAIClient {
	var limiter *rate.Limiter
	if rpm > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm/10+1)
	}
	return &OpenAIClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    limiter,
	}
}

// chat types for OpenAI API
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) complete(ctx context.Context, messages []chatMessage, temp float32) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("chat rate limit: %w", err)
		}
	}

	body, err := json.Marshal(chatRequest{
		Model:       chatModel,
		Messages:    messages,
		Temperature: temp,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIChatURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}

	if result.Error != nil {
		return "", fmt.Errorf("chat API error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) VerifyDuplicate(ctx context.Context, existing, incoming string) (domain.DedupVerdict, error) {
	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(verifyDuplicatePrompt, existing, incoming)},
	}

	result, err := c.complete(ctx, messages, 0)
	if err != nil {
		return "", fmt.Errorf("verify duplicate: %w", err)
	}

	return parseDedupVerdict(result), nil
}

type extractionResult struct {
	Entities  []domain.ExtractedEntity   `json:"entities"`
	Relations []domain.ExtractedRelation `json:"relations"`
}

func (c *OpenAIClient) ExtractEntities(ctx context.Context, content string) ([]domain.ExtractedEntity, []domain.ExtractedRelation, error) {
	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(extractEntitiesPrompt, content)},
	}

	result, err := c.complete(ctx, messages, 0.2)
	if err != nil {
		return nil, nil, fmt.Errorf("extract entities: %w", err)
	}

	result = stripFences(result)

	var extracted extractionResult
	if err := json.Unmarshal([]byte(result), &extracted); err != nil {
		return nil, nil, fmt.Errorf("parse extraction result: %w (raw: %s)", err, result)
	}

	return extracted.Entities, extracted.Relations, nil
}

func (c *OpenAIClient) ClassifyRelation(ctx context.Context, relType, oldDesc, newDesc string) (domain.RelationVerdict, error) {
	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(classifyRelationPrompt, relType, oldDesc, newDesc)},
	}

	result, err := c.complete(ctx, messages, 0)
	if err != nil {
		return "", fmt.Errorf("classify relation: %w", err)
	}

	return parseRelationVerdict(result), nil
}

func (c *OpenAIClient) ConfirmEntityMerge(ctx context.Context, a, b string) (bool, error) {
	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(confirmEntityMergePrompt, a, b)},
	}

	result, err := c.complete(ctx, messages, 0)
	if err != nil {
		return false, fmt.Errorf("confirm entity merge: %w", err)
	}

	return strings.EqualFold(strings.TrimSpace(result), "true"), nil
}

func (c *OpenAIClient) SummarizeEntity(ctx context.Context, name, entityType string, memories, relations []string) (string, error) {
	var mems, rels strings.Builder
	for i, m := range memories {
		fmt.Fprintf(&mems, "%d. %s\n", i+1, m)
	}
	for i, r := range relations {
		fmt.Fprintf(&rels, "%d. %s\n", i+1, r)
	}

	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(summarizeEntityPrompt, name, entityType, mems.String(), rels.String())},
	}

	result, err := c.complete(ctx, messages, 0.3)
	if err != nil {
		return "", fmt.Errorf("summarize entity: %w", err)
	}

	return result, nil
}

type clusterSummary struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

func (c *OpenAIClient) SummarizeCluster(ctx context.Context, snippets []string) (string, string, error) {
	var sb strings.Builder
	for i, s := range snippets {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}

	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(summarizeClusterPrompt, sb.String())},
	}

	result, err := c.complete(ctx, messages, 0.3)
	if err != nil {
		return "", "", fmt.Errorf("summarize cluster: %w", err)
	}

	result = stripFences(result)

	var cs clusterSummary
	if err := json.Unmarshal([]byte(result), &cs); err != nil {
		return "", "", fmt.Errorf("parse cluster summary: %w (raw: %s)", err, result)
	}

	return cs.Name, cs.Summary, nil
}

func (c *OpenAIClient) ExtractSearchTerms(ctx context.Context, query string) ([]string, error) {
	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(extractSearchTermsPrompt, query)},
	}

	result, err := c.complete(ctx, messages, 0)
	if err != nil {
		return nil, fmt.Errorf("extract search terms: %w", err)
	}

	result = stripFences(result)

	var terms []string
	if err := json.Unmarshal([]byte(result), &terms); err != nil {
		return nil, fmt.Errorf("parse search terms: %w (raw: %s)", err, result)
	}

	return terms, nil
}

func (c *OpenAIClient) Categorize(ctx context.Context, content string) ([]string, error) {
	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(categorizePrompt, content)},
	}

	result, err := c.complete(ctx, messages, 0.2)
	if err != nil {
		return nil, fmt.Errorf("categorize: %w", err)
	}

	result = stripFences(result)

	var categories []string
	if err := json.Unmarshal([]byte(result), &categories); err != nil {
		return nil, fmt.Errorf("parse categories: %w (raw: %s)", err, result)
	}

	return categories, nil
}

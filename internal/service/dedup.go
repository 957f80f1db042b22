package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/recallhq/recall/internal/domain"
)

const (
	// dedupCandidateLimit bounds how many similar memories the verifier sees.
	dedupCandidateLimit = 5
	dedupCacheSize      = 4096
)

// negationTokens flag pair texts where surface similarity hides opposite
// meaning ("likes sushi" / "no longer likes sushi"). A flagged DUPLICATE
// verdict is downgraded to DIFFERENT; SUPERSEDES is exempt because an update
// is exactly what a negation usually is. The lexicon is English-only;
// "n't" contractions are caught by suffix.
var negationTokens = map[string]bool{
	"no":      true,
	"not":     true,
	"never":   true,
	"stopped": true,
	"quit":    true,
	"cannot":  true,
}

// Deduper decides whether an incoming text is new information, a repeat of an
// existing memory, or an update that should supersede one. It is fail-open:
// any error on the way reads as "insert".
type Deduper struct {
	memories  domain.MemoryStore
	llm       domain.LLMClient
	threshold float64
	cache     *lru.Cache[string, domain.DedupVerdict]
	logger    *zap.Logger
}

func NewDeduper(ms domain.MemoryStore, lc domain.LLMClient, threshold float64, logger *zap.Logger) (*Deduper, error) {
	cache, err := lru.New[string, domain.DedupVerdict](dedupCacheSize)
	if err != nil {
		return nil, err
	}
	return &Deduper{
		memories:  ms,
		llm:       lc,
		threshold: threshold,
		cache:     cache,
		logger:    logger,
	}, nil
}

// Decide checks the incoming content against the user's most similar live
// memory. The LLM verifies only the top candidate; everything below the
// similarity threshold is new by definition.
func (d *Deduper) Decide(ctx context.Context, userID, content string, embedding []float32) domain.DedupDecision {
	candidates, err := d.memories.SimilarLive(ctx, userID, embedding, d.threshold, dedupCandidateLimit)
	if err != nil {
		d.logger.Warn("dedup candidate lookup failed, inserting", zap.Error(err))
		return domain.DedupDecision{Action: domain.DedupInsert}
	}
	if len(candidates) == 0 {
		return domain.DedupDecision{Action: domain.DedupInsert}
	}

	top := candidates[0]
	verdict := d.verify(ctx, top.Content, content)
	if verdict == domain.VerdictDuplicate && containsNegation(top.Content, content) {
		// Surface similarity with opposite polarity: keep both memories.
		verdict = domain.VerdictDifferent
	}
	switch verdict {
	case domain.VerdictDuplicate:
		return domain.DedupDecision{Action: domain.DedupSkip, ExistingID: top.ID}
	case domain.VerdictSupersedes:
		return domain.DedupDecision{Action: domain.DedupSupersede, ExistingID: top.ID}
	default:
		return domain.DedupDecision{Action: domain.DedupInsert}
	}
}

func (d *Deduper) verify(ctx context.Context, existing, incoming string) domain.DedupVerdict {
	key := pairHash(existing, incoming)
	if v, ok := d.cache.Get(key); ok {
		return v
	}

	verdict, err := d.llm.VerifyDuplicate(ctx, existing, incoming)
	if err != nil {
		d.logger.Warn("dedup verification failed, treating as different", zap.Error(err))
		return domain.VerdictDifferent
	}
	d.cache.Add(key, verdict)
	return verdict
}

// pairHash keys the verdict cache on the unordered text pair.
func pairHash(a, b string) string {
	if a > b {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + "\x00" + b))
	return hex.EncodeToString(sum[:])
}

func containsNegation(a, b string) bool {
	return hasNegationMarker(a) != hasNegationMarker(b)
}

// hasNegationMarker matches on whole words so markers next to punctuation
// ("I quit.", "never!") still count and "notes" never does.
func hasNegationMarker(s string) bool {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	for _, w := range words {
		if negationTokens[w] || strings.HasSuffix(w, "n't") {
			return true
		}
	}
	return false
}

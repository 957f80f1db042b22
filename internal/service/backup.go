package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recallhq/recall/internal/domain"
)

const backupVersion = "2.0"

type BackupFile struct {
	Version    string         `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	Memories   []BackupMemory `json:"memories"`
}

type BackupMemory struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	State      string         `json:"state"`
	CreatedAt  time.Time      `json:"created_at"`
	UserID     string         `json:"user_id"`
	AppName    string         `json:"app_name,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Embedding  []float32      `json:"embedding,omitempty"`
}

type ImportResult struct {
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`
}

// BackupService exports a user's memories and re-ingests exported files.
type BackupService struct {
	memories  domain.MemoryStore
	embedder  domain.EmbeddingClient
	extractor Extractor
	logger    *zap.Logger
}

func NewBackupService(ms domain.MemoryStore, ec domain.EmbeddingClient, logger *zap.Logger) *BackupService {
	return &BackupService{
		memories: ms,
		embedder: ec,
		logger:   logger,
	}
}

func (s *BackupService) SetExtractor(e Extractor) {
	s.extractor = e
}

// Export returns every memory of the user regardless of state, embeddings
// included, in the versioned backup format.
func (s *BackupService) Export(ctx context.Context, userID string) (*BackupFile, error) {
	if userID == "" {
		return nil, ErrUserIDMissing
	}
	memories, err := s.memories.ExportAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &BackupFile{
		Version:    backupVersion,
		ExportedAt: time.Now().UTC(),
		Memories:   make([]BackupMemory, 0, len(memories)),
	}
	for _, m := range memories {
		out.Memories = append(out.Memories, BackupMemory{
			ID:         m.ID.String(),
			Content:    m.Content,
			State:      string(m.State),
			CreatedAt:  m.CreatedAt,
			UserID:     m.UserID,
			AppName:    m.AppName,
			Categories: m.Categories,
			Metadata:   m.Metadata,
			Embedding:  m.Embedding,
		})
	}
	return out, nil
}

// Import re-runs the full embedding and write path for every memory in the
// blob, with dedup disabled. Per-item failures are counted, not fatal.
func (s *BackupService) Import(ctx context.Context, userID string, blob []byte) (*ImportResult, error) {
	if userID == "" {
		return nil, ErrUserIDMissing
	}

	var file BackupFile
	if err := json.Unmarshal(blob, &file); err != nil {
		return nil, ErrInvalidBackupBlob
	}
	if !strings.HasPrefix(file.Version, "2.") {
		return nil, ErrInvalidBackupBlob
	}

	result := &ImportResult{Total: len(file.Memories)}
	now := time.Now().UTC()
	for _, bm := range file.Memories {
		if strings.TrimSpace(bm.Content) == "" {
			result.Failed++
			continue
		}
		embedding, err := s.embedder.Embed(ctx, bm.Content)
		if err != nil {
			s.logger.Warn("import embedding failed", zap.Error(err))
			result.Failed++
			continue
		}

		validAt := bm.CreatedAt
		if validAt.IsZero() {
			validAt = now
		}
		state := domain.MemoryState(bm.State)
		if !domain.ValidState(bm.State) {
			state = domain.StateActive
		}
		m := &domain.Memory{
			ID:        uuid.New(),
			UserID:    userID,
			Content:   bm.Content,
			State:     state,
			Embedding: embedding,
			Metadata:  bm.Metadata,
			AppName:   bm.AppName,
			ValidAt:   validAt,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.memories.Create(ctx, m); err != nil {
			s.logger.Warn("import write failed", zap.Error(err))
			result.Failed++
			continue
		}
		if bm.AppName != "" {
			if err := s.memories.AttachApp(ctx, userID, m.ID, bm.AppName); err != nil {
				s.logger.Warn("import app attach failed", zap.Error(err))
			}
		}
		if len(bm.Categories) > 0 {
			if err := s.memories.AddCategories(ctx, userID, m.ID, bm.Categories); err != nil {
				s.logger.Warn("import category write failed", zap.Error(err))
			}
		}
		if s.extractor != nil {
			s.extractor.Enqueue(userID, m.ID)
		}
		result.Imported++
	}
	return result, nil
}

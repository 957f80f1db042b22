package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/recallhq/recall/internal/api/handlers"
	mw "github.com/recallhq/recall/internal/api/middleware"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/domain"
	"github.com/recallhq/recall/internal/embedding"
	"github.com/recallhq/recall/internal/graph"
	"github.com/recallhq/recall/internal/llm"
	"github.com/recallhq/recall/internal/service"
	"github.com/recallhq/recall/internal/store"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router *chi.Mux
	Pool   *service.ExtractionPool
	Reaper *service.Reaper
}

func NewApp(db *graph.Client, logger *zap.Logger) (*App, error) {
	// Stores
	memoryStore := store.NewMemoryStore(db)
	entityStore := store.NewEntityStore(db)
	communityStore := store.NewCommunityStore(db)
	accessStore := store.NewAccessStore(db)
	historyStore := store.NewHistoryStore(db)

	// External clients via provider factory
	rpm := config.OpenAIRequestsPerMinute()
	embeddingClient, err := embedding.NewClient(config.EmbeddingProvider(), config.OpenAIAPIKey(), config.EmbeddingDims(), rpm)
	if err != nil {
		return nil, err
	}
	logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))

	llmClient, err := llm.NewClient(config.LLMProvider(), config.OpenAIAPIKey(), rpm)
	if err != nil {
		return nil, err
	}
	logger.Info("llm client initialized", zap.String("provider", config.LLMProvider()))

	// Services
	memorySvc := service.NewMemoryService(memoryStore, historyStore, embeddingClient, logger)
	searchSvc := service.NewSearchService(memoryStore, entityStore, accessStore, embeddingClient, llmClient, logger)
	entitySvc := service.NewEntityService(memoryStore, entityStore, embeddingClient, llmClient, logger)
	bulkSvc := service.NewBulkService(memoryStore, embeddingClient, rpm, logger)
	clusterSvc := service.NewClusterService(communityStore, entityStore, llmClient, logger)
	backupSvc := service.NewBackupService(memoryStore, embeddingClient, logger)

	if config.DedupEnabled() {
		deduper, err := service.NewDeduper(memoryStore, llmClient, config.DedupThreshold(), logger)
		if err != nil {
			return nil, err
		}
		memorySvc.SetDeduper(deduper)
		bulkSvc.SetDeduper(deduper)
	}
	if config.ContextWindowEnabled() {
		memorySvc.SetContextWindow(config.ContextWindowSize())
	}

	// Background workers
	pool := service.NewExtractionPool(entitySvc, logger)
	memorySvc.SetExtractor(pool)
	bulkSvc.SetExtractor(pool)
	backupSvc.SetExtractor(pool)
	reaper := service.NewReaper(memoryStore, logger)

	// Handlers
	memoryHandler := handlers.NewMemoryHandler(memorySvc, accessStore)
	searchHandler := handlers.NewSearchHandler(searchSvc)
	bulkHandler := handlers.NewBulkHandler(bulkSvc)
	entityHandler := handlers.NewEntityHandler(entitySvc)
	clusterHandler := handlers.NewClusterHandler(clusterSvc)
	backupHandler := handlers.NewBackupHandler(backupSvc)
	statsHandler := handlers.NewStatsHandler(accessStore)
	healthHandler := handlers.NewHealthHandler(db, embeddingClient)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health (no user scope)
	r.Get("/health", healthHandler.Health)

	// Every other route is user-scoped.
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireUserID)

		r.Route("/memories", func(r chi.Router) {
			r.Post("/", memoryHandler.Create)
			r.Delete("/", memoryHandler.DeleteAll)
			r.Post("/bulk", bulkHandler.Add)
			r.Post("/filter", memoryHandler.Filter)
			r.Post("/search", searchHandler.Search)
			r.Post("/actions/archive", memoryHandler.BatchArchive)
			r.Post("/actions/pause", memoryHandler.BatchPause)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", memoryHandler.GetByID)
				r.Put("/", memoryHandler.Update)
				r.Delete("/", memoryHandler.Delete)
				r.Get("/access-log", memoryHandler.AccessLog)
			})
		})

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", entityHandler.List)
			r.Get("/{id}", entityHandler.GetByID)
			r.Get("/{id}/memories", entityHandler.Memories)
		})

		r.Route("/clusters", func(r chi.Router) {
			r.Post("/rebuild", clusterHandler.Rebuild)
			r.Get("/", clusterHandler.List)
			r.Get("/{id}/memories", clusterHandler.Memories)
		})

		r.Route("/backup", func(r chi.Router) {
			r.Post("/export", backupHandler.Export)
			r.Post("/import", backupHandler.Import)
		})

		r.Get("/stats", statsHandler.UserStats)
	})

	return &App{Router: r, Pool: pool, Reaper: reaper}, nil
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.MemoryStore    = (*store.MemoryStore)(nil)
	_ domain.EntityStore    = (*store.EntityStore)(nil)
	_ domain.CommunityStore = (*store.CommunityStore)(nil)
	_ domain.AccessStore    = (*store.AccessStore)(nil)
	_ domain.HistoryStore   = (*store.HistoryStore)(nil)

	_ domain.EmbeddingClient = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient = (*embedding.MockClient)(nil)
	_ domain.LLMClient       = (*llm.OpenAIClient)(nil)
	_ domain.LLMClient       = (*llm.MockClient)(nil)

	_ service.Extractor = (*service.ExtractionPool)(nil)
)

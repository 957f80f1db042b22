package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recallhq/recall/internal/domain"
)

const (
	defaultExtractionWorkers = 4
	defaultExtractionQueue   = 256
	extractionJobTimeout     = 2 * time.Minute

	defaultReaperInterval = 10 * time.Minute
)

type extractionJob struct {
	userID   string
	memoryID uuid.UUID
}

// ExtractionPool runs entity extraction off the request path with a bounded
// queue and a fixed number of workers. A full queue drops the job with a
// warning; the reaper recovers anything left pending.
type ExtractionPool struct {
	entities *EntityService
	logger   *zap.Logger

	workers int
	jobs    chan extractionJob
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewExtractionPool(es *EntityService, logger *zap.Logger) *ExtractionPool {
	return &ExtractionPool{
		entities: es,
		logger:   logger,
		workers:  defaultExtractionWorkers,
		jobs:     make(chan extractionJob, defaultExtractionQueue),
		stopCh:   make(chan struct{}),
	}
}

func (p *ExtractionPool) SetWorkers(n int) {
	if n > 0 {
		p.workers = n
	}
}

// Enqueue submits a fire-and-forget extraction job. Never blocks the caller.
func (p *ExtractionPool) Enqueue(userID string, memoryID uuid.UUID) {
	select {
	case p.jobs <- extractionJob{userID: userID, memoryID: memoryID}:
	default:
		p.logger.Warn("extraction queue full, dropping job",
			zap.String("memory_id", memoryID.String()))
	}
}

// Start launches the worker goroutines.
func (p *ExtractionPool) Start() {
	p.logger.Info("extraction pool started", zap.Int("workers", p.workers))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case job := <-p.jobs:
					p.process(job)
				case <-p.stopCh:
					return
				}
			}
		}()
	}
}

// Stop drains no further jobs and waits for in-flight work to finish.
func (p *ExtractionPool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("extraction pool stopped")
}

func (p *ExtractionPool) process(job extractionJob) {
	ctx, cancel := context.WithTimeout(context.Background(), extractionJobTimeout)
	defer cancel()
	if err := p.entities.ProcessMemory(ctx, job.userID, job.memoryID); err != nil {
		p.logger.Warn("entity extraction failed",
			zap.String("memory_id", job.memoryID.String()), zap.Error(err))
	}
}

// Reaper periodically sweeps memories stuck in 'pending' with exhausted
// attempts to 'failed', so the extraction queue being in-process and lossy on
// crash stays recoverable.
type Reaper struct {
	memories domain.MemoryStore
	logger   *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewReaper(ms domain.MemoryStore, logger *zap.Logger) *Reaper {
	return &Reaper{
		memories: ms,
		logger:   logger,
		interval: defaultReaperInterval,
		stopCh:   make(chan struct{}),
	}
}

func (r *Reaper) SetInterval(d time.Duration) {
	r.interval = d
}

// Start runs the reaper on a periodic schedule in a background goroutine.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.logger.Info("extraction reaper started", zap.Duration("interval", r.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				r.run(ctx)
				cancel()
			case <-r.stopCh:
				r.logger.Info("extraction reaper stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the reaper.
func (r *Reaper) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Reaper) run(ctx context.Context) {
	swept, err := r.memories.SweepStaleExtractions(ctx, MaxExtractionAttempts)
	if err != nil {
		r.logger.Error("stale extraction sweep failed", zap.Error(err))
		return
	}
	if swept > 0 {
		r.logger.Info("swept stale extractions", zap.Int("count", swept))
	}
}

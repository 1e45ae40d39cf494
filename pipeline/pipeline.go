package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/ai/local"
	"github.com/poiesic/docflow/chunk"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/extract"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/vector"
)

// Pipeline orchestrates document processing from submitted file to
// searchable chunks. It manages a worker pool, per-stage retries, and
// the job control surface.
type Pipeline struct {
	config    Config
	documents storage.DocumentRepository
	jobs      storage.JobRepository
	chunks    storage.ChunkRepository
	vectors   vector.Store

	classifier ai.Classifier
	entities   ai.EntityExtractor
	embedder   ai.Embedder
	fallback   ai.Embedder

	extractor *extract.Extractor
	chunker   *chunk.Chunker
	pool      *ants.Pool
	logger    *slog.Logger

	mu        sync.Mutex
	running   map[string]bool   // job id -> queued or executing
	cancelled map[string]string // job id -> reason
	released  bool
	wg        sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithPoolSize sets the worker pool size for concurrent jobs.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithConfig replaces the default configuration.
func WithConfig(config Config) Option {
	return func(p *Pipeline) error {
		p.config = config
		return nil
	}
}

// NewPipeline creates a processing pipeline.
func NewPipeline(
	documents storage.DocumentRepository,
	jobs storage.JobRepository,
	chunks storage.ChunkRepository,
	vectors vector.Store,
	provider ai.Provider,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		config:     DefaultConfig(),
		documents:  documents,
		jobs:       jobs,
		chunks:     chunks,
		vectors:    vectors,
		classifier: provider.Classifier(),
		entities:   provider.EntityExtractor(),
		embedder:   provider.Embedder(),
		extractor:  extract.NewExtractor(),
		pool:       pool,
		logger:     slog.Default().With("component", "pipeline"),
		running:    make(map[string]bool),
		cancelled:  make(map[string]string),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if err := p.config.Validate(); err != nil {
		p.Release()
		return nil, err
	}

	p.chunker, err = chunk.NewChunker(p.config.ChunkSize, p.config.ChunkOverlap)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.fallback = local.NewEmbedder(p.config.LocalDimensions)

	return p, nil
}

// Submit registers a file for processing and queues a job. If the same
// content is already mid-flight the existing job is returned; if it
// already completed, ErrAlreadyProcessed.
func (p *Pipeline) Submit(ctx context.Context, path string) (*core.ProcessingJob, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	id, hash := core.HashBytes(content)
	mimeType := extract.MimeTypeForFilename(path)

	doc, err := p.documents.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		doc = &core.Document{
			Id:          id,
			Filename:    filepath.Base(path),
			Path:        path,
			Size:        int64(len(content)),
			MimeType:    mimeType,
			ContentHash: hash,
			Status:      core.DocumentPending,
		}
		if doc, err = p.documents.PutDocument(ctx, doc); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else if doc.Status == core.DocumentCompleted {
		return nil, fmt.Errorf("%w: %s (document %d)", ErrAlreadyProcessed, doc.Filename, doc.Id)
	} else if doc.Path != path {
		// Same bytes resubmitted from a new location.
		doc.Path = path
		doc.Filename = filepath.Base(path)
		if _, err := p.documents.UpdateDocument(ctx, doc); err != nil {
			return nil, err
		}
	}

	job := &core.ProcessingJob{
		Id:         uuid.NewString(),
		DocumentId: id,
		Status:     core.JobPending,
	}
	result, created, err := p.jobs.CreateOrAttach(ctx, job)
	if err != nil {
		return nil, err
	}
	if !created {
		p.logger.Info("attached to existing job", "jobId", result.Id, "documentId", id)
	}

	if err := p.enqueue(result.Id); err != nil {
		return nil, err
	}
	return result, nil
}

// JobStatus returns the current state of a job.
func (p *Pipeline) JobStatus(ctx context.Context, jobID string) (*core.ProcessingJob, error) {
	return p.jobs.GetJob(ctx, jobID)
}

// ListJobs returns up to limit jobs, optionally filtered by status.
func (p *Pipeline) ListJobs(ctx context.Context, status core.JobStatus, limit int) ([]*core.ProcessingJob, error) {
	return p.jobs.ListJobs(ctx, status, limit)
}

// CancelJob requests cancellation of a job. Running jobs stop at the
// next stage boundary; queued jobs stop before their first stage.
func (p *Pipeline) CancelJob(ctx context.Context, jobID, reason string) error {
	job, err := p.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, jobID, job.Status)
	}
	if reason == "" {
		reason = "cancelled by operator"
	}

	p.mu.Lock()
	running := p.running[jobID]
	p.cancelled[jobID] = reason
	p.mu.Unlock()

	if !running {
		// No worker holds the job (e.g. an interrupted earlier run);
		// finalize it here.
		return p.failJob(ctx, job, fmt.Errorf("%w: %s", core.ErrCancelled, reason))
	}
	return nil
}

// RetryJob restarts a failed job from the beginning with fresh attempt
// budgets.
func (p *Pipeline) RetryJob(ctx context.Context, jobID string) (*core.ProcessingJob, error) {
	job, err := p.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrJobActive, jobID)
	}

	job.Status = core.JobPending
	job.Stage = core.StageNone
	job.Progress = 0
	job.Error = ""
	job.CancelReason = ""
	job.Attempts = nil
	job, err = p.jobs.UpdateJob(ctx, job)
	if err != nil {
		return nil, err
	}

	doc, err := p.documents.GetDocument(ctx, job.DocumentId)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		doc.Status = core.DocumentPending
		doc.Error = ""
		if _, err := p.documents.UpdateDocument(ctx, doc); err != nil {
			return nil, err
		}
	}

	if err := p.enqueue(job.Id); err != nil {
		return nil, err
	}
	return job, nil
}

// Reprocess drops a document's chunks and vectors, resets its derived
// state, and runs the pipeline again from its current file.
func (p *Pipeline) Reprocess(ctx context.Context, documentID core.ID) (*core.ProcessingJob, error) {
	doc, err := p.documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, storage.ErrNotFound
	}
	if _, err := p.jobs.GetActiveJob(ctx, documentID); err == nil {
		return nil, fmt.Errorf("%w: document %d", ErrJobActive, documentID)
	}

	if err := p.vectors.DeleteByDocument(ctx, p.config.Collection, documentID); err != nil {
		return nil, err
	}
	if err := p.chunks.DeleteChunks(ctx, documentID); err != nil {
		return nil, err
	}

	doc.Text = ""
	doc.PageCount = 0
	doc.Category = ""
	doc.Subcategory = ""
	doc.Confidence = 0
	doc.Entities = nil
	doc.ChunkCount = 0
	doc.Status = core.DocumentPending
	doc.Error = ""
	doc.Provider = ""
	if _, err := p.documents.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}

	job := &core.ProcessingJob{
		Id:         uuid.NewString(),
		DocumentId: documentID,
		Status:     core.JobPending,
	}
	result, _, err := p.jobs.CreateOrAttach(ctx, job)
	if err != nil {
		return nil, err
	}
	if err := p.enqueue(result.Id); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteDocument removes a document and everything derived from it:
// vectors, chunks, and job history.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID core.ID) error {
	if _, err := p.jobs.GetActiveJob(ctx, documentID); err == nil {
		return fmt.Errorf("%w: document %d", ErrJobActive, documentID)
	}

	if err := p.vectors.DeleteByDocument(ctx, p.config.Collection, documentID); err != nil {
		return err
	}
	if err := p.chunks.DeleteChunks(ctx, documentID); err != nil {
		return err
	}

	jobs, err := p.jobs.ListJobs(ctx, 0, 0)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if job.DocumentId != documentID {
			continue
		}
		if err := p.jobs.DeleteJob(ctx, job.Id); err != nil {
			return err
		}
	}

	return p.documents.DeleteDocument(ctx, documentID)
}

// Wait blocks until all queued and running jobs finish.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Release waits for in-flight jobs and frees the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.mu.Lock()
	p.released = true
	p.mu.Unlock()

	p.wg.Wait()
	if p.pool != nil {
		p.pool.Release()
	}
}

// enqueue hands a job to the worker pool unless it is already queued or
// executing.
func (p *Pipeline) enqueue(jobID string) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrReleased
	}
	if p.running[jobID] {
		p.mu.Unlock()
		return nil
	}
	p.running[jobID] = true
	p.mu.Unlock()

	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.running, jobID)
			delete(p.cancelled, jobID)
			p.mu.Unlock()
		}()
		p.run(jobID)
	})
	if err != nil {
		p.wg.Done()
		p.mu.Lock()
		delete(p.running, jobID)
		p.mu.Unlock()
		return err
	}
	return nil
}

// cancelReason returns the pending cancellation reason for a job, if
// any.
func (p *Pipeline) cancelReason(jobID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	reason, ok := p.cancelled[jobID]
	return reason, ok
}

package storage

import (
	"context"

	"github.com/poiesic/docflow/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// DocumentRepository provides operations for managing documents.
type DocumentRepository interface {
	Repository

	// PutDocument stores a document under its content-derived ID.
	// Sets InsertedAt if not already set, and maintains the content-hash
	// index. Writing an ID that already exists overwrites it.
	PutDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// UpdateDocument updates an existing document, refreshing UpdatedAt.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// DeleteDocument removes a document and its indices.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// FindByContentHash looks a document up by its full content digest.
	// Returns ErrNotFound if no document has that hash. This is the
	// duplicate-suppression check: same bytes, same document.
	FindByContentHash(ctx context.Context, hash string) (*core.Document, error)

	// ListDocuments returns up to limit documents, newest first.
	// A zero status matches all statuses; limit <= 0 means no limit.
	ListDocuments(ctx context.Context, status core.DocumentStatus, limit int) ([]*core.Document, error)
}

// JobRepository provides operations for managing processing jobs.
type JobRepository interface {
	Repository

	// CreateOrAttach stores a new job for a document, unless that
	// document already has a non-terminal job, in which case the
	// existing job is returned and created is false. The check and the
	// insert happen in one transaction, so two concurrent submissions
	// of the same document yield exactly one active job.
	CreateOrAttach(ctx context.Context, job *core.ProcessingJob) (result *core.ProcessingJob, created bool, err error)

	// UpdateJob atomically replaces a job record, refreshing UpdatedAt
	// and releasing the document's active-job slot when the job enters
	// a terminal status. Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, job *core.ProcessingJob) (*core.ProcessingJob, error)

	// GetJob retrieves a job by ID.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id string) (*core.ProcessingJob, error)

	// GetActiveJob returns the non-terminal job for a document.
	// Returns ErrNotFound if the document has no active job.
	GetActiveJob(ctx context.Context, documentID core.ID) (*core.ProcessingJob, error)

	// ListJobs returns up to limit jobs. A zero status matches all
	// statuses; limit <= 0 means no limit.
	ListJobs(ctx context.Context, status core.JobStatus, limit int) ([]*core.ProcessingJob, error)

	// DeleteJob removes a job record and its indices.
	// Returns ErrNotFound if the job doesn't exist.
	DeleteJob(ctx context.Context, id string) error
}

// ChunkRepository provides operations for managing document chunks.
type ChunkRepository interface {
	Repository

	// PutChunks stores chunks, setting InsertedAt if not already set.
	// Chunk IDs derive from (document, ordinal), so re-running a
	// chunking stage overwrites rather than duplicates.
	PutChunks(ctx context.Context, chunks ...*core.DocumentChunk) ([]*core.DocumentChunk, error)

	// GetChunks retrieves all chunks of a document ordered by ordinal.
	GetChunks(ctx context.Context, documentID core.ID) ([]*core.DocumentChunk, error)

	// DeleteChunks removes all chunks of a document.
	DeleteChunks(ctx context.Context, documentID core.ID) error

	// ScanAll visits every stored chunk. Iteration stops at the first
	// error fn returns, which is then returned to the caller.
	ScanAll(ctx context.Context, fn func(chunk *core.DocumentChunk) error) error
}

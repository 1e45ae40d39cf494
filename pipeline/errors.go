package pipeline

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrJobRepositoryRequired is returned when a job repository is not provided.
	ErrJobRepositoryRequired = errors.New("job repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrAlreadyProcessed is returned when a submitted file's content
	// matches a document that already completed processing.
	ErrAlreadyProcessed = errors.New("document already processed")

	// ErrJobTerminal is returned when cancelling a job that already finished.
	ErrJobTerminal = errors.New("job already terminal")

	// ErrJobActive is returned when retrying or reprocessing while a
	// non-terminal job exists for the document.
	ErrJobActive = errors.New("job still active")

	// ErrReleased is returned when submitting to a released pipeline.
	ErrReleased = errors.New("pipeline released")
)

package reembed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrDocumentRepositoryRequired is returned when no document repository is provided
	ErrDocumentRepositoryRequired = errors.New("document repository is required")

	// ErrChunkRepositoryRequired is returned when no chunk repository is provided
	ErrChunkRepositoryRequired = errors.New("chunk repository is required")

	// ErrVectorStoreRequired is returned when no vector store is provided
	ErrVectorStoreRequired = errors.New("vector store is required")

	// ErrEmbedderRequired is returned when no embedder is provided
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrClassifierRequired is returned when no classifier is provided
	ErrClassifierRequired = errors.New("classifier is required")

	// ErrExtractorRequired is returned when no entity extractor is provided
	ErrExtractorRequired = errors.New("entity extractor is required")
)

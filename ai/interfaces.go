package ai

import (
	"context"

	"github.com/poiesic/docflow/core"
)

// Classifier assigns a document to a category based on its text.
// Implementations must be thread-safe for concurrent use.
type Classifier interface {
	// Classify analyzes document text and returns its category,
	// subcategory and a confidence score in [0,1]. Implementations that
	// cannot decide return the Unknown category with low confidence
	// rather than an error.
	Classify(ctx context.Context, text string) (core.Classification, error)
}

// EntityExtractor pulls typed domain entities out of document text.
// Implementations must be thread-safe for concurrent use.
type EntityExtractor interface {
	// ExtractEntities returns the entities found in text. Entities whose
	// type falls outside the configured vocabulary are returned flagged,
	// not dropped. Returns an empty slice if nothing is found.
	ExtractEntities(ctx context.Context, text string) ([]core.Entity, error)
}

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in
	// a batch. The returned slice contains embeddings in the same order
	// as the input texts. Returns an error if any embedding fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Name identifies the provider, recorded on documents and chunks so
	// search results can report which backend produced the vectors.
	Name() string
}

// Provider aggregates AI services for convenient initialization and
// lifecycle management. A provider creates and manages Classifier,
// EntityExtractor and Embedder instances, ensuring they share
// configuration and resources appropriately.
type Provider interface {
	// Classifier returns the document classification service.
	Classifier() Classifier

	// EntityExtractor returns the entity extraction service.
	EntityExtractor() EntityExtractor

	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}

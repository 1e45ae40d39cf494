package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/vector"
)

// BatchProcessor regenerates embeddings for one document's chunks and
// replaces the stored points.
type BatchProcessor struct {
	documents      storage.DocumentRepository
	vectors        vector.Store
	embedder       ai.Embedder
	collection     string
	batchSize      int
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// batchSize: maximum number of chunk texts per embedding API call
// maxRetries: maximum number of retry attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(documents storage.DocumentRepository, vectors vector.Store, embedder ai.Embedder, collection string, batchSize, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		documents:      documents,
		vectors:        vectors,
		embedder:       embedder,
		collection:     collection,
		batchSize:      batchSize,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds every chunk of doc with the configured embedder and
// upserts the resulting points. Point IDs derive from the chunk IDs, so
// re-running replaces vectors instead of duplicating them. The document
// record is updated with the embedder's provider name.
func (bp *BatchProcessor) Process(ctx context.Context, doc *core.Document, chunks []*core.DocumentChunk) error {
	if len(chunks) == 0 {
		return bp.updateProvider(ctx, doc)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings := make([][]float32, 0, len(chunks))
	for start := 0; start < len(texts); start += bp.batchSize {
		end := start + bp.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		var batch [][]float32
		err := RetryWithBackoff(ctx, func() error {
			var err error
			batch, err = bp.embedder.EmbedTexts(ctx, texts[start:end])
			return err
		}, bp.maxRetries, bp.retryBaseDelay)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
		}
		embeddings = append(embeddings, batch...)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(embeddings))
	}

	points := make([]vector.Point, len(chunks))
	for i, chunk := range chunks {
		points[i] = vector.Point{
			Id:         chunk.Id,
			DocumentId: chunk.DocumentId,
			Vector:     embeddings[i],
			Payload: map[string]string{
				"category": doc.Category,
				"filename": doc.Filename,
				"provider": bp.embedder.Name(),
			},
		}
	}

	if err := bp.vectors.Upsert(ctx, bp.collection, points...); err != nil {
		return fmt.Errorf("failed to store vectors: %w", err)
	}

	return bp.updateProvider(ctx, doc)
}

func (bp *BatchProcessor) updateProvider(ctx context.Context, doc *core.Document) error {
	if doc.Provider == bp.embedder.Name() {
		return nil
	}
	doc.Provider = bp.embedder.Name()
	if _, err := bp.documents.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

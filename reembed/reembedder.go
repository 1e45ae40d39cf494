// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/vector"
)

// Config holds configuration for maintenance runs.
type Config struct {
	// Collection is the vector collection written to
	Collection string

	// BatchSize is the maximum number of chunk texts per embedding call
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Collection:     vector.DefaultCollection,
		BatchSize:      16,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder orchestrates the reembedding of every completed document's
// chunks. Existing points are replaced in place, keyed by chunk ID.
//
// A reembedding run assumes the new model produces vectors of the same
// width as the collection; switching to a model with a different
// dimension requires a fresh collection name in Config.
type Reembedder struct {
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *DocumentIterator
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(documents storage.DocumentRepository, chunks storage.ChunkRepository, vectors vector.Store, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	switch {
	case documents == nil:
		return nil, ErrDocumentRepositoryRequired
	case chunks == nil:
		return nil, ErrChunkRepositoryRequired
	case vectors == nil:
		return nil, ErrVectorStoreRequired
	case embedder == nil:
		return nil, ErrEmbedderRequired
	}

	if config == nil {
		config = DefaultConfig()
	}

	return &Reembedder{
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(documents, vectors, embedder, config.Collection, config.BatchSize, config.MaxRetries, config.RetryDelay),
		iterator:  NewDocumentIterator(documents, chunks),
	}, nil
}

// Run executes the reembedding operation. Every completed document's
// chunks are reembedded with the configured embedder and their points
// replaced. Progress is reported to the configured writer.
func (r *Reembedder) Run(ctx context.Context) error {
	totalDocs, totalChunks, err := r.iterator.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}

	if totalDocs == 0 {
		fmt.Fprintf(r.progress, "No completed documents found (0 documents)\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks across %d documents (batch size: %d)\n",
		totalChunks, totalDocs, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, totalChunks, r.config.ReportInterval)
	tracker.Start()

	processed := 0

	err = r.iterator.ForEach(ctx, func(doc *core.Document, chunks []*core.DocumentChunk) error {
		if err := r.processor.Process(ctx, doc, chunks); err != nil {
			return fmt.Errorf("document %d (%s): %w", doc.Id, doc.Filename, err)
		}

		processed += len(chunks)
		tracker.Update(processed)

		return nil
	})

	if err != nil {
		return err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		totalChunks, elapsed.Round(time.Second), float64(totalChunks)/elapsed.Seconds())

	return nil
}

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
)

// Reclassifier re-runs classification and entity extraction over the
// stored text of every completed document, replacing each document's
// category, subcategory, confidence and entities. Source files are not
// read; the extracted text persisted by the pipeline is the input.
//
// Vector payloads carry the category at embedding time, so a
// reclassification that changes categories should be followed by a
// Reembedder run to keep category filtering consistent.
type Reclassifier struct {
	documents  storage.DocumentRepository
	classifier ai.Classifier
	extractor  ai.EntityExtractor
	config     *Config
	progress   io.Writer
}

// NewReclassifier creates a new reclassifier.
// progress: where to write progress output (typically os.Stderr)
func NewReclassifier(documents storage.DocumentRepository, classifier ai.Classifier, extractor ai.EntityExtractor, config *Config, progress io.Writer) (*Reclassifier, error) {
	switch {
	case documents == nil:
		return nil, ErrDocumentRepositoryRequired
	case classifier == nil:
		return nil, ErrClassifierRequired
	case extractor == nil:
		return nil, ErrExtractorRequired
	}

	if config == nil {
		config = DefaultConfig()
	}

	return &Reclassifier{
		documents:  documents,
		classifier: classifier,
		extractor:  extractor,
		config:     config,
		progress:   progress,
	}, nil
}

// Run executes the reclassification operation over all completed
// documents. Progress is reported to the configured writer.
func (r *Reclassifier) Run(ctx context.Context) error {
	docs, err := r.documents.ListDocuments(ctx, core.DocumentCompleted, 0)
	if err != nil {
		return fmt.Errorf("failed to query documents: %w", err)
	}

	if len(docs) == 0 {
		fmt.Fprintf(r.progress, "No completed documents found (0 documents)\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Starting reclassification of %d documents\n", len(docs))

	tracker := NewProgressTracker(r.progress, len(docs), r.config.ReportInterval)
	tracker.Start()

	for i, doc := range docs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.reclassify(ctx, doc); err != nil {
			return fmt.Errorf("document %d (%s): %w", doc.Id, doc.Filename, err)
		}

		tracker.Update(i + 1)
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reclassification complete. Processed %d documents in %v (%.1f documents/sec)\n",
		len(docs), elapsed.Round(time.Second), float64(len(docs))/elapsed.Seconds())

	return nil
}

func (r *Reclassifier) reclassify(ctx context.Context, doc *core.Document) error {
	var class core.Classification
	err := RetryWithBackoff(ctx, func() error {
		var err error
		class, err = r.classifier.Classify(ctx, doc.Text)
		return err
	}, r.config.MaxRetries, r.config.RetryDelay)
	if err != nil {
		return fmt.Errorf("classification failed after %d attempts: %w", r.config.MaxRetries, err)
	}

	var entities []core.Entity
	err = RetryWithBackoff(ctx, func() error {
		var err error
		entities, err = r.extractor.ExtractEntities(ctx, doc.Text)
		return err
	}, r.config.MaxRetries, r.config.RetryDelay)
	if err != nil {
		return fmt.Errorf("entity extraction failed after %d attempts: %w", r.config.MaxRetries, err)
	}

	doc.Category = class.Category
	doc.Subcategory = class.Subcategory
	doc.Confidence = class.Confidence
	doc.Entities = entities

	if _, err := r.documents.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

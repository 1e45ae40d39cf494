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

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// DocumentIterator visits every completed document together with its
// chunks. Only completed documents are visited: pending and processing
// documents have no durable vectors yet, and failed documents may not
// have reached the chunking stage.
type DocumentIterator struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
}

// NewDocumentIterator creates a new document iterator.
func NewDocumentIterator(documents storage.DocumentRepository, chunks storage.ChunkRepository) *DocumentIterator {
	return &DocumentIterator{
		documents: documents,
		chunks:    chunks,
	}
}

// ForEach calls fn once per completed document with the document's
// chunks, ordered by ordinal. Iteration stops on the first error from
// fn. Context cancellation is checked between documents.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func(doc *core.Document, chunks []*core.DocumentChunk) error) error {
	docs, err := it.documents.ListDocuments(ctx, core.DocumentCompleted, 0)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunks, err := it.chunks.GetChunks(ctx, doc.Id)
		if err != nil {
			return err
		}

		if err := fn(doc, chunks); err != nil {
			return err
		}
	}

	return nil
}

// Count returns the number of completed documents and the total number
// of chunks they hold.
func (it *DocumentIterator) Count(ctx context.Context) (documents, chunks int, err error) {
	err = it.ForEach(ctx, func(_ *core.Document, c []*core.DocumentChunk) error {
		documents++
		chunks += len(c)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return documents, chunks, nil
}

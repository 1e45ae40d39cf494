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


package core

import "fmt"

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Filename must not be empty
//   - ContentHash must not be empty
//   - Confidence must be in [0,1]
//
// NOT validated (populated by pipeline stages):
//   - Text, Category, Entities, ChunkCount, Provider
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.Filename == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyFilename)
	}
	if doc.ContentHash == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContentHash)
	}
	if doc.Confidence < 0 || doc.Confidence > 1 {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrInvalidConfidence)
	}
	return nil
}

// ValidateChunk validates a DocumentChunk according to domain rules.
//
// Validation rules:
//   - Ordinal must not be negative
//   - Text must not be empty
//   - End must not precede Start
func ValidateChunk(chunk *DocumentChunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.Ordinal < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrInvalidOrdinal)
	}
	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyChunkText)
	}
	if chunk.End < chunk.Start {
		return fmt.Errorf("%w: span [%d,%d) is inverted", ErrInvalidChunk, chunk.Start, chunk.End)
	}
	return nil
}

// ValidateJob validates a ProcessingJob according to domain rules.
func ValidateJob(job *ProcessingJob) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}
	if job.Id == "" {
		return fmt.Errorf("%w: job id is empty", ErrInvalidJob)
	}
	if job.DocumentId == 0 {
		return fmt.Errorf("%w: document id is zero", ErrInvalidJob)
	}
	if job.Progress < 0 || job.Progress > 100 {
		return fmt.Errorf("%w: progress %d outside [0,100]", ErrInvalidJob, job.Progress)
	}
	return nil
}

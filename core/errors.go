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

import (
	"context"
	"errors"
)

// Pipeline error taxonomy. Stages wrap these sentinels so the
// orchestrator can route failures: some are retried with backoff, some
// fail the job immediately.
var (
	// ErrUnsupportedFormat indicates a mime type outside the supported set.
	// Never retried; the job fails directly.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrExtraction indicates text extraction failed (e.g. corrupt file).
	ErrExtraction = errors.New("extraction failed")

	// ErrClassification indicates the classifier could not produce a result.
	ErrClassification = errors.New("classification failed")

	// ErrEntityExtraction indicates entity extraction failed.
	ErrEntityExtraction = errors.New("entity extraction failed")

	// ErrConfiguration indicates invalid component configuration.
	// Never retried.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrEmbedding indicates embedding generation failed on every path.
	ErrEmbedding = errors.New("embedding failed")

	// ErrStore indicates a vector store operation failed.
	ErrStore = errors.New("vector store error")

	// ErrTimeout indicates an external call exceeded its deadline.
	// Always retryable, counted against the stage's attempt budget.
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled indicates the job was cancelled at a stage boundary.
	ErrCancelled = errors.New("job cancelled")
)

// retryableError marks an error as transient so the orchestrator retries
// the stage instead of failing the job.
type retryableError struct {
	err error
}

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

// MarkRetryable wraps err so IsRetryable reports true for it.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether an error should be retried with backoff.
// Timeouts are always retryable; configuration, unsupported-format and
// cancellation errors never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrCancelled) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var r *retryableError
	return errors.As(err, &r)
}

// Domain validation errors.
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a DocumentChunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidJob indicates a ProcessingJob failed validation.
	ErrInvalidJob = errors.New("invalid job")

	// ErrEmptyFilename indicates the document filename is empty.
	ErrEmptyFilename = errors.New("filename cannot be empty")

	// ErrEmptyContentHash indicates the document content hash is empty.
	ErrEmptyContentHash = errors.New("content hash cannot be empty")

	// ErrInvalidConfidence indicates a confidence score outside [0,1].
	ErrInvalidConfidence = errors.New("confidence must be in [0,1]")

	// ErrInvalidOrdinal indicates a negative chunk ordinal.
	ErrInvalidOrdinal = errors.New("chunk ordinal cannot be negative")

	// ErrEmptyChunkText indicates a chunk with no text.
	ErrEmptyChunkText = errors.New("chunk text cannot be empty")
)

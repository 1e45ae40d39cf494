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


package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/vector"
)

// stageSequence is the execution order. A job's Stage field records the
// last entry whose results were durably persisted.
var stageSequence = []core.Stage{
	core.StageExtracting,
	core.StageClassifying,
	core.StageExtractingEntities,
	core.StageChunking,
	core.StageEmbedding,
	core.StageStoring,
}

// progressFor maps completed stages to progress percentages. 100 is
// reserved for full completion.
func progressFor(stage core.Stage) int {
	switch stage {
	case core.StageExtracting:
		return 16
	case core.StageClassifying:
		return 32
	case core.StageExtractingEntities:
		return 48
	case core.StageChunking:
		return 64
	case core.StageEmbedding:
		return 82
	case core.StageStoring:
		return 100
	}
	return 0
}

// resumeIndex returns where in stageSequence a job with the given
// durable marker re-enters. Embedding output is held in memory only, so
// markers at Embedding or later restart from Embedding.
func resumeIndex(marker core.Stage) int {
	if marker >= core.StageEmbedding {
		return 4
	}
	for i, stage := range stageSequence {
		if stage == marker {
			return i + 1
		}
	}
	return 0
}

// runState carries in-memory stage outputs through one job execution.
type runState struct {
	job     *core.ProcessingJob
	doc     *core.Document
	chunks  []*core.DocumentChunk
	vectors [][]float32
	// provider tags which embedder produced the vectors.
	provider string
}

// run executes a job to a terminal state. It is the worker-pool entry
// point; errors are recorded on the job and document, not returned.
func (p *Pipeline) run(jobID string) {
	ctx := context.Background()

	job, err := p.jobs.GetJob(ctx, jobID)
	if err != nil {
		p.logger.Error("cannot load job", "jobId", jobID, "err", err)
		return
	}
	if job.Status.Terminal() {
		return
	}

	doc, err := p.documents.GetDocument(ctx, job.DocumentId)
	if err != nil || doc == nil {
		p.failJob(ctx, job, fmt.Errorf("document %d missing: %v", job.DocumentId, err))
		return
	}

	job.Status = core.JobProcessing
	if job, err = p.jobs.UpdateJob(ctx, job); err != nil {
		p.logger.Error("cannot update job", "jobId", jobID, "err", err)
		return
	}
	if doc.Status != core.DocumentProcessing {
		doc.Status = core.DocumentProcessing
		if doc, err = p.documents.UpdateDocument(ctx, doc); err != nil {
			p.failJob(ctx, job, err)
			return
		}
	}

	state := &runState{job: job, doc: doc}
	start := resumeIndex(job.Stage)
	if start > 0 {
		p.logger.Info("resuming job", "jobId", jobID, "fromStage", stageSequence[start].String())
	}

	for _, stage := range stageSequence[start:] {
		if reason, ok := p.cancelReason(jobID); ok {
			p.failJob(ctx, job, fmt.Errorf("%w: %s", core.ErrCancelled, reason))
			return
		}

		if err := p.runStage(ctx, state, stage); err != nil {
			p.failJob(ctx, state.job, err)
			return
		}

		if stage != core.StageStoring {
			state.job.Stage = stage
			state.job.Progress = progressFor(stage)
			if state.job, err = p.jobs.UpdateJob(ctx, state.job); err != nil {
				p.logger.Error("cannot persist stage marker", "jobId", jobID, "err", err)
				return
			}
		}
	}

	p.completeJob(ctx, state)
}

// runStage executes one stage with the retry/backoff/timeout policy.
func (p *Pipeline) runStage(ctx context.Context, state *runState, stage core.Stage) error {
	for {
		attempt := state.job.RecordAttempt(stage)
		job, err := p.jobs.UpdateJob(ctx, state.job)
		if err != nil {
			return err
		}
		state.job = job

		stageCtx, cancel := context.WithTimeout(ctx, p.config.StageTimeout)
		err = p.executeStage(stageCtx, state, stage)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, core.ErrTimeout) {
			err = fmt.Errorf("%w: %s stage exceeded %s", core.ErrTimeout, stage, p.config.StageTimeout)
		}

		if !core.IsRetryable(err) || attempt >= p.config.MaxAttempts {
			return fmt.Errorf("%s stage: %w", stage, err)
		}

		delay := p.backoff(attempt)
		p.logger.Warn("stage failed, backing off",
			"jobId", state.job.Id, "stage", stage.String(), "attempt", attempt, "delay", delay, "err", err)
		time.Sleep(delay)
	}
}

// backoff computes the delay before the next attempt.
func (p *Pipeline) backoff(attempt int) time.Duration {
	delay := p.config.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.config.MaxRetryDelay {
			return p.config.MaxRetryDelay
		}
	}
	if delay > p.config.MaxRetryDelay {
		return p.config.MaxRetryDelay
	}
	return delay
}

func (p *Pipeline) executeStage(ctx context.Context, state *runState, stage core.Stage) error {
	switch stage {
	case core.StageExtracting:
		return p.stageExtract(ctx, state)
	case core.StageClassifying:
		return p.stageClassify(ctx, state)
	case core.StageExtractingEntities:
		return p.stageEntities(ctx, state)
	case core.StageChunking:
		return p.stageChunk(ctx, state)
	case core.StageEmbedding:
		return p.stageEmbed(ctx, state)
	case core.StageStoring:
		return p.stageStore(ctx, state)
	}
	return fmt.Errorf("unknown stage %d", stage)
}

func (p *Pipeline) stageExtract(ctx context.Context, state *runState) error {
	content, err := os.ReadFile(state.doc.Path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", core.ErrExtraction, state.doc.Path, err)
	}

	result, err := p.extractor.Extract(ctx, content, state.doc.MimeType)
	if err != nil {
		// Corrupt input gets one retry; unsupported formats never do.
		if errors.Is(err, core.ErrExtraction) && state.job.AttemptCount(core.StageExtracting) < 2 {
			return core.MarkRetryable(err)
		}
		return err
	}

	state.doc.Text = result.Text
	state.doc.PageCount = result.PageCount
	return p.saveDocument(ctx, state)
}

func (p *Pipeline) stageClassify(ctx context.Context, state *runState) error {
	classification, err := p.classifier.Classify(ctx, state.doc.Text)
	if err != nil {
		return err
	}

	state.doc.Category = classification.Category
	state.doc.Subcategory = classification.Subcategory
	state.doc.Confidence = classification.Confidence
	return p.saveDocument(ctx, state)
}

func (p *Pipeline) stageEntities(ctx context.Context, state *runState) error {
	entities, err := p.entities.ExtractEntities(ctx, state.doc.Text)

	// Persist whatever came back even on failure, so pattern-matched
	// entities survive a later Failed verdict.
	if len(entities) > 0 {
		state.doc.Entities = entities
		if saveErr := p.saveDocument(ctx, state); saveErr != nil {
			return saveErr
		}
	}
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		state.doc.Entities = nil
		return p.saveDocument(ctx, state)
	}
	return nil
}

func (p *Pipeline) stageChunk(ctx context.Context, state *runState) error {
	spans := p.chunker.Chunk(state.doc.Text)

	chunks := make([]*core.DocumentChunk, len(spans))
	for i, span := range spans {
		chunks[i] = &core.DocumentChunk{
			Id:         core.ChunkID(state.doc.Id, i),
			DocumentId: state.doc.Id,
			Ordinal:    i,
			Text:       state.doc.Text[span.Start:span.End],
			Start:      span.Start,
			End:        span.End,
			Metadata: map[string]string{
				"category": state.doc.Category,
				"filename": state.doc.Filename,
			},
		}
	}

	if len(chunks) > 0 {
		stored, err := p.chunks.PutChunks(ctx, chunks...)
		if err != nil {
			return err
		}
		chunks = stored
	}

	state.chunks = chunks
	state.doc.ChunkCount = len(chunks)
	return p.saveDocument(ctx, state)
}

func (p *Pipeline) stageEmbed(ctx context.Context, state *runState) error {
	// On resume the chunking output is durable but not in memory.
	if state.chunks == nil {
		chunks, err := p.chunks.GetChunks(ctx, state.doc.Id)
		if err != nil {
			return err
		}
		state.chunks = chunks
	}
	if len(state.chunks) == 0 {
		state.vectors = nil
		state.provider = p.embedder.Name()
		return nil
	}

	texts := make([]string, len(state.chunks))
	for i, c := range state.chunks {
		texts[i] = c.Text
	}

	vectors, provider, err := p.embedTexts(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", core.ErrEmbedding, len(vectors), len(texts))
	}

	state.vectors = vectors
	state.provider = provider
	return nil
}

// embedTexts runs the primary embedder in sub-batches. Rate limits are
// surfaced as retryable so the stage backs off; any other provider
// failure falls over to the local embedder for the whole document, so
// one provider tag covers all its vectors.
func (p *Pipeline) embedTexts(ctx context.Context, texts []string) ([][]float32, string, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += p.config.EmbedBatchSize {
		end := start + p.config.EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := p.embedder.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			if ai.IsRateLimited(err) {
				return nil, "", core.MarkRetryable(fmt.Errorf("%w: %v", core.ErrEmbedding, err))
			}
			p.logger.Warn("primary embedder unavailable, falling back to local",
				"provider", p.embedder.Name(), "err", err)
			return p.embedWithFallback(ctx, texts)
		}
		vectors = append(vectors, batch...)
	}

	return vectors, p.embedder.Name(), nil
}

func (p *Pipeline) embedWithFallback(ctx context.Context, texts []string) ([][]float32, string, error) {
	vectors, err := p.fallback.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, "", core.MarkRetryable(fmt.Errorf("%w: local fallback: %v", core.ErrEmbedding, err))
	}
	return vectors, p.fallback.Name(), nil
}

func (p *Pipeline) stageStore(ctx context.Context, state *runState) error {
	if len(state.vectors) == 0 {
		return nil
	}

	points := make([]vector.Point, len(state.chunks))
	for i, c := range state.chunks {
		points[i] = vector.Point{
			Id:         c.Id,
			DocumentId: c.DocumentId,
			Vector:     state.vectors[i],
			Payload: map[string]string{
				"category": state.doc.Category,
				"filename": state.doc.Filename,
				"provider": state.provider,
			},
		}
	}

	if err := p.vectors.Upsert(ctx, p.config.Collection, points...); err != nil {
		return err
	}
	return nil
}

// completeJob commits the terminal success state. Vectors are already
// stored; only after this commit does the job read Completed. The
// source file moves only once the terminal state is durable, so a
// crash in between never leaves a resumable job pointing at a path
// that no longer exists.
func (p *Pipeline) completeJob(ctx context.Context, state *runState) {
	state.doc.Status = core.DocumentCompleted
	state.doc.Error = ""
	state.doc.Provider = state.provider
	if err := p.saveDocument(ctx, state); err != nil {
		p.logger.Error("cannot finalize document", "documentId", state.doc.Id, "err", err)
		return
	}

	state.job.Status = core.JobCompleted
	state.job.Stage = core.StageStoring
	state.job.Progress = 100
	state.job.Error = ""
	if _, err := p.jobs.UpdateJob(ctx, state.job); err != nil {
		p.logger.Error("cannot finalize job", "jobId", state.job.Id, "err", err)
		return
	}

	if p.moveFile(state.doc, p.config.ProcessedDir) {
		if err := p.saveDocument(ctx, state); err != nil {
			p.logger.Warn("cannot persist relocated path", "documentId", state.doc.Id, "err", err)
		}
	}

	p.logger.Info("job completed",
		"jobId", state.job.Id, "documentId", state.doc.Id,
		"chunks", state.doc.ChunkCount, "provider", state.provider)
}

// failJob commits the terminal failure state and relocates the source
// file.
func (p *Pipeline) failJob(ctx context.Context, job *core.ProcessingJob, cause error) error {
	job.Status = core.JobFailed
	job.Error = cause.Error()
	if errors.Is(cause, core.ErrCancelled) {
		job.CancelReason = cause.Error()
	}
	if _, err := p.jobs.UpdateJob(ctx, job); err != nil {
		p.logger.Error("cannot persist failed job", "jobId", job.Id, "err", err)
		return err
	}

	doc, err := p.documents.GetDocument(ctx, job.DocumentId)
	if err != nil || doc == nil {
		p.logger.Error("cannot load document of failed job", "jobId", job.Id, "err", err)
		return err
	}

	p.moveFile(doc, p.config.FailedDir)
	doc.Status = core.DocumentFailed
	doc.Error = cause.Error()
	if _, err := p.documents.UpdateDocument(ctx, doc); err != nil {
		p.logger.Error("cannot persist failed document", "documentId", doc.Id, "err", err)
		return err
	}

	p.logger.Warn("job failed", "jobId", job.Id, "documentId", doc.Id, "err", cause)
	return nil
}

// saveDocument persists the run's document and keeps the in-memory copy
// current.
func (p *Pipeline) saveDocument(ctx context.Context, state *runState) error {
	doc, err := p.documents.UpdateDocument(ctx, state.doc)
	if err != nil {
		return err
	}
	state.doc = doc
	return nil
}

// moveFile relocates a document's source file and reports whether the
// path changed. Relocation failures are logged, never fatal.
func (p *Pipeline) moveFile(doc *core.Document, destDir string) bool {
	if destDir == "" || doc.Path == "" {
		return false
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		p.logger.Warn("cannot create relocation directory", "dir", destDir, "err", err)
		return false
	}
	dest := filepath.Join(destDir, doc.Filename)
	if dest == doc.Path {
		return false
	}
	if err := os.Rename(doc.Path, dest); err != nil {
		p.logger.Warn("cannot relocate file", "from", doc.Path, "to", dest, "err", err)
		return false
	}
	doc.Path = dest
	return true
}

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docflow/ai/mock"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/storage/badger"
	"github.com/poiesic/docflow/vector"
	vectorbadger "github.com/poiesic/docflow/vector/badger"
)

type pipeEnv struct {
	dir       string
	processed string
	failed    string
	documents storage.DocumentRepository
	jobs      storage.JobRepository
	chunks    storage.ChunkRepository
	vectors   *vectorbadger.Store
	provider  *mock.MockProvider
	pipeline  *Pipeline
}

func newPipeEnv(t *testing.T, opts ...ConfigOption) *pipeEnv {
	t.Helper()

	dir := t.TempDir()
	docRepo, jobRepo, chunkRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		chunkRepo.Close()
		jobRepo.Close()
		docRepo.Close()
		backend.Close()
	})

	vectors := vectorbadger.NewStore(backend)
	provider := mock.NewMockProvider()

	processed := filepath.Join(dir, "processed")
	failed := filepath.Join(dir, "failed")
	config := DefaultConfig(append([]ConfigOption{
		WithChunking(200, 40),
		WithRetryDelays(time.Millisecond, 10*time.Millisecond),
		WithStageTimeout(5 * time.Second),
		WithRelocation(processed, failed),
	}, opts...)...)

	p, err := NewPipeline(docRepo, jobRepo, chunkRepo, vectors, provider,
		WithConfig(config), WithPoolSize(2))
	require.NoError(t, err)
	t.Cleanup(p.Release)

	return &pipeEnv{
		dir:       dir,
		processed: processed,
		failed:    failed,
		documents: docRepo,
		jobs:      jobRepo,
		chunks:    chunkRepo,
		vectors:   vectors,
		provider:  provider.(*mock.MockProvider),
		pipeline:  p,
	}
}

func (e *pipeEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const safetyText = "Material safety data sheet for benzene storage. " +
	"Hazard class flammable. Tank T-101 holds benzene at 15.5 psi. " +
	"Emergency contact posted at the terminal gate. Keep ignition sources away."

func TestNewPipeline_Validation(t *testing.T) {
	env := newPipeEnv(t)

	_, err := NewPipeline(nil, env.jobs, env.chunks, env.vectors, mock.NewMockProvider())
	assert.Equal(t, ErrDocumentRepositoryRequired, err)

	_, err = NewPipeline(env.documents, nil, env.chunks, env.vectors, mock.NewMockProvider())
	assert.Equal(t, ErrJobRepositoryRequired, err)

	_, err = NewPipeline(env.documents, env.jobs, nil, env.vectors, mock.NewMockProvider())
	assert.Equal(t, ErrChunkRepositoryRequired, err)

	_, err = NewPipeline(env.documents, env.jobs, env.chunks, nil, mock.NewMockProvider())
	assert.Equal(t, ErrVectorStoreRequired, err)

	_, err = NewPipeline(env.documents, env.jobs, env.chunks, env.vectors, nil)
	assert.Equal(t, ErrAIProviderRequired, err)

	_, err = NewPipeline(env.documents, env.jobs, env.chunks, env.vectors, mock.NewMockProvider(),
		WithConfig(DefaultConfig(WithChunking(100, 100))))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestSubmit_HappyPath(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	path := env.writeFile(t, "msds.txt", safetyText)
	job, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	env.pipeline.Wait()

	job, err = env.pipeline.JobStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Empty(t, job.Error)

	doc, err := env.documents.GetDocument(ctx, job.DocumentId)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, core.DocumentCompleted, doc.Status)
	assert.Equal(t, "safety", doc.Category)
	assert.Equal(t, "mock", doc.Provider)
	assert.Greater(t, doc.ChunkCount, 0)
	assert.NotEmpty(t, doc.Entities, "pattern entities should have been found")

	chunks, err := env.chunks.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	assert.Len(t, chunks, doc.ChunkCount)

	// Vectors are stored under chunk ids.
	matches, err := env.vectors.Search(ctx, vector.DefaultCollection, make([]float32, 384), 100, vector.Filter{MinScore: -1})
	require.NoError(t, err)
	assert.Len(t, matches, doc.ChunkCount)

	// Source file moved to the processed directory.
	assert.Equal(t, filepath.Join(env.processed, "msds.txt"), doc.Path)
	_, err = os.Stat(doc.Path)
	assert.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRelocationFailure_StillCompletes(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	// Occupy the processed path with a regular file so relocation
	// cannot happen. Terminal state must be durable regardless.
	require.NoError(t, os.WriteFile(env.processed, []byte("in the way"), 0644))

	path := env.writeFile(t, "msds.txt", safetyText)
	job, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	env.pipeline.Wait()

	job, err = env.pipeline.JobStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)

	doc, err := env.documents.GetDocument(ctx, job.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentCompleted, doc.Status)
	assert.Equal(t, path, doc.Path, "path stays put when relocation fails")
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSubmit_DuplicateAttaches(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	started := make(chan struct{})
	proceed := make(chan struct{})
	env.provider.GetMockClassifier().ClassifyFunc = func(ctx context.Context, text string) (core.Classification, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-proceed
		return core.Classification{Category: "safety", Confidence: 0.9}, nil
	}

	pathA := env.writeFile(t, "a.txt", safetyText)
	pathB := env.writeFile(t, "b.txt", safetyText)

	jobA, err := env.pipeline.Submit(ctx, pathA)
	require.NoError(t, err)
	<-started

	// Same bytes from another path attach to the running job.
	jobB, err := env.pipeline.Submit(ctx, pathB)
	require.NoError(t, err)
	assert.Equal(t, jobA.Id, jobB.Id)

	close(proceed)
	env.pipeline.Wait()

	job, err := env.pipeline.JobStatus(ctx, jobA.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)
}

func TestSubmit_AlreadyProcessed(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	path := env.writeFile(t, "doc.txt", safetyText)
	_, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	env.pipeline.Wait()

	resubmit := env.writeFile(t, "copy.txt", safetyText)
	_, err = env.pipeline.Submit(ctx, resubmit)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestSubmit_UnsupportedFormat(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	path := env.writeFile(t, "image.bmp", "not a document")
	job, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	env.pipeline.Wait()

	job, err = env.pipeline.JobStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, job.Status)
	assert.Contains(t, job.Error, "unsupported format")
	assert.Equal(t, 1, job.AttemptCount(core.StageExtracting), "unsupported formats get no retries")

	doc, err := env.documents.GetDocument(ctx, job.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentFailed, doc.Status)
	assert.Equal(t, filepath.Join(env.failed, "image.bmp"), doc.Path)
}

func TestClassifier_TimeoutsThenSuccess(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	calls := 0
	env.provider.GetMockClassifier().ClassifyFunc = func(ctx context.Context, text string) (core.Classification, error) {
		calls++
		if calls <= 2 {
			return core.Classification{}, context.DeadlineExceeded
		}
		return core.Classification{Category: "safety", Subcategory: "msds", Confidence: 0.9}, nil
	}

	path := env.writeFile(t, "doc.txt", safetyText)
	job, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	env.pipeline.Wait()

	job, err = env.pipeline.JobStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Equal(t, 3, job.AttemptCount(core.StageClassifying))
}

func TestRetryExhaustion(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	env.provider.GetMockClassifier().ClassifyFunc = func(ctx context.Context, text string) (core.Classification, error) {
		return core.Classification{}, core.MarkRetryable(errors.New("model overloaded"))
	}

	path := env.writeFile(t, "doc.txt", safetyText)
	job, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	env.pipeline.Wait()

	job, err = env.pipeline.JobStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, job.Status)
	assert.Equal(t, 3, job.AttemptCount(core.StageClassifying), "exactly max attempts, no more")
	assert.Contains(t, job.Error, "classifying")

	// Earlier stage output survives the failure.
	doc, err := env.documents.GetDocument(ctx, job.DocumentId)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Text)
	assert.Equal(t, core.DocumentFailed, doc.Status)
}

func TestEntityFailure_KeepsClassification(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	env.provider.GetMockExtractor().ExtractEntitiesFunc = func(ctx context.Context, text string) ([]core.Entity, error) {
		return []core.Entity{{Type: "equipment_id", Value: "T-101", Confidence: 0.9}},
			errors.New("model unreachable")
	}

	path := env.writeFile(t, "doc.txt", safetyText)
	job, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	env.pipeline.Wait()

	job, err = env.pipeline.JobStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, job.Status)

	doc, err := env.documents.GetDocument(ctx, job.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, "safety", doc.Category, "classification persists across entity failure")
	require.Len(t, doc.Entities, 1)
	assert.Equal(t, "T-101", doc.Entities[0].Value)
}

func TestEmbedder_RateLimitRetries(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	calls := 0
	env.provider.GetMockEmbedder().EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("429 too many requests")
		}
		vecs := make([][]float32, len(texts))
		for i := range vecs {
			vecs[i] = []float32{1, 0, 0, 0}
		}
		return vecs, nil
	}

	path := env.writeFile(t, "doc.txt", safetyText)
	job, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	env.pipeline.Wait()

	job, err = env.pipeline.JobStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Equal(t, 2, job.AttemptCount(core.StageEmbedding))

	doc, err := env.documents.GetDocument(ctx, job.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, "mock", doc.Provider)
}

func TestEmbedder_OutageFallsBackToLocal(t *testing.T) {
	env := newPipeEnv(t, WithLocalDimensions(8))
	ctx := context.Background()

	env.provider.GetMockEmbedder().EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("connection refused")
	}

	path := env.writeFile(t, "doc.txt", safetyText)
	job, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	env.pipeline.Wait()

	job, err = env.pipeline.JobStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)

	doc, err := env.documents.GetDocument(ctx, job.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, "local", doc.Provider)

	matches, err := env.vectors.Search(ctx, vector.DefaultCollection, make([]float32, 8), 100, vector.Filter{MinScore: -1})
	require.NoError(t, err)
	assert.Len(t, matches, doc.ChunkCount)
	for _, m := range matches {
		assert.Equal(t, "local", m.Point.Payload["provider"])
	}
}

func TestCancelJob_AtStageBoundary(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	started := make(chan struct{})
	proceed := make(chan struct{})
	env.provider.GetMockClassifier().ClassifyFunc = func(ctx context.Context, text string) (core.Classification, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-proceed
		return core.Classification{Category: "safety", Confidence: 0.9}, nil
	}

	path := env.writeFile(t, "doc.txt", safetyText)
	job, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	<-started

	require.NoError(t, env.pipeline.CancelJob(ctx, job.Id, "operator request"))
	close(proceed)
	env.pipeline.Wait()

	job, err = env.pipeline.JobStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, job.Status)
	assert.Contains(t, job.CancelReason, "operator request")

	// Cancelling a terminal job is rejected.
	err = env.pipeline.CancelJob(ctx, job.Id, "again")
	assert.ErrorIs(t, err, ErrJobTerminal)
}

func TestRetryJob_FreshBudgets(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	env.provider.GetMockClassifier().ClassifyFunc = func(ctx context.Context, text string) (core.Classification, error) {
		return core.Classification{}, core.MarkRetryable(errors.New("model overloaded"))
	}

	path := env.writeFile(t, "doc.txt", safetyText)
	job, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	env.pipeline.Wait()

	job, err = env.pipeline.JobStatus(ctx, job.Id)
	require.NoError(t, err)
	require.Equal(t, core.JobFailed, job.Status)

	env.provider.GetMockClassifier().Reset()
	retried, err := env.pipeline.RetryJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, job.Id, retried.Id)
	env.pipeline.Wait()

	job, err = env.pipeline.JobStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 1, job.AttemptCount(core.StageClassifying), "retry starts with fresh attempt budgets")
}

func TestReprocess(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	path := env.writeFile(t, "doc.txt", safetyText)
	job, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	env.pipeline.Wait()

	reJob, err := env.pipeline.Reprocess(ctx, job.DocumentId)
	require.NoError(t, err)
	assert.NotEqual(t, job.Id, reJob.Id)
	env.pipeline.Wait()

	reJob, err = env.pipeline.JobStatus(ctx, reJob.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, reJob.Status)

	doc, err := env.documents.GetDocument(ctx, job.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentCompleted, doc.Status)
	assert.Greater(t, doc.ChunkCount, 0)
}

func TestDeleteDocument_Cascades(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	path := env.writeFile(t, "doc.txt", safetyText)
	job, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	env.pipeline.Wait()

	require.NoError(t, env.pipeline.DeleteDocument(ctx, job.DocumentId))

	_, err = env.documents.GetDocument(ctx, job.DocumentId)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	chunks, err := env.chunks.GetChunks(ctx, job.DocumentId)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	matches, err := env.vectors.Search(ctx, vector.DefaultCollection, make([]float32, 384), 100, vector.Filter{MinScore: -1})
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = env.pipeline.JobStatus(ctx, job.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestResumeIndex(t *testing.T) {
	tests := []struct {
		marker core.Stage
		want   core.Stage
	}{
		{core.StageNone, core.StageExtracting},
		{core.StageExtracting, core.StageClassifying},
		{core.StageChunking, core.StageEmbedding},
		// Embedding output is in-memory only, so these re-enter Embedding.
		{core.StageEmbedding, core.StageEmbedding},
		{core.StageStoring, core.StageEmbedding},
	}
	for _, tt := range tests {
		got := stageSequence[resumeIndex(tt.marker)]
		if got != tt.want {
			t.Errorf("resume from %s: got %s, want %s", tt.marker, got, tt.want)
		}
	}
}

func TestInterruptedJob_ResumesFromDurableStage(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	// Simulate a run that died after chunking: document state and
	// chunks are durable, the job marker points at Chunking.
	path := env.writeFile(t, "doc.txt", safetyText)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	id, hash := core.HashBytes(content)

	doc := &core.Document{
		Id:          id,
		Filename:    "doc.txt",
		Path:        path,
		Size:        int64(len(content)),
		MimeType:    "text/plain",
		ContentHash: hash,
		Text:        safetyText,
		Category:    "safety",
		ChunkCount:  1,
		Status:      core.DocumentProcessing,
	}
	_, err = env.documents.PutDocument(ctx, doc)
	require.NoError(t, err)
	_, err = env.chunks.PutChunks(ctx, &core.DocumentChunk{
		Id:         core.ChunkID(id, 0),
		DocumentId: id,
		Ordinal:    0,
		Text:       safetyText,
		Start:      0,
		End:        len(safetyText),
		Metadata:   map[string]string{"category": "safety"},
	})
	require.NoError(t, err)

	stale := &core.ProcessingJob{
		Id:         "11111111-2222-3333-4444-555555555555",
		DocumentId: id,
		Status:     core.JobProcessing,
		Stage:      core.StageChunking,
		Progress:   64,
	}
	_, created, err := env.jobs.CreateOrAttach(ctx, stale)
	require.NoError(t, err)
	require.True(t, created)

	// Resubmitting the same bytes attaches to the stale job and
	// resumes it.
	job, err := env.pipeline.Submit(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, stale.Id, job.Id)
	env.pipeline.Wait()

	job, err = env.pipeline.JobStatus(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)

	// The extraction stage never re-ran: no attempts were recorded.
	assert.Equal(t, 0, job.AttemptCount(core.StageExtracting))
	assert.Equal(t, 1, job.AttemptCount(core.StageEmbedding))
}

func TestListJobs(t *testing.T) {
	env := newPipeEnv(t)
	ctx := context.Background()

	pathA := env.writeFile(t, "a.txt", safetyText)
	pathB := env.writeFile(t, "b.txt", safetyText+" second document variant")

	_, err := env.pipeline.Submit(ctx, pathA)
	require.NoError(t, err)
	_, err = env.pipeline.Submit(ctx, pathB)
	require.NoError(t, err)
	env.pipeline.Wait()

	jobs, err := env.pipeline.ListJobs(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	completed, err := env.pipeline.ListJobs(ctx, core.JobCompleted, 0)
	require.NoError(t, err)
	assert.Len(t, completed, 2)
}

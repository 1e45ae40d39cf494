package reembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docflow/ai/mock"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
	storagebadger "github.com/poiesic/docflow/storage/badger"
	"github.com/poiesic/docflow/vector"
	vectorbadger "github.com/poiesic/docflow/vector/badger"
)

type testEnv struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	vectors   vector.Store
	embedder  *mock.MockEmbedder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	documents, _, chunks, backend, err := storagebadger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 0, 0, 0}
		}
		return out, nil
	}

	return &testEnv{
		documents: documents,
		chunks:    chunks,
		vectors:   vectorbadger.NewStore(backend),
		embedder:  embedder,
	}
}

func testConfig() *Config {
	return &Config{
		Collection:     vector.DefaultCollection,
		BatchSize:      2,
		ReportInterval: 2,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
	}
}

func (env *testEnv) seedDocument(t *testing.T, name string, status core.DocumentStatus, chunkTexts ...string) *core.Document {
	t.Helper()
	ctx := context.Background()

	doc := &core.Document{
		Id:          core.IDFromContent(name),
		Filename:    name,
		ContentHash: "hash-of-" + name,
		Text:        "stored text of " + name,
		Category:    "Safety",
		Status:      status,
		Provider:    "openai",
	}
	doc, err := env.documents.PutDocument(ctx, doc)
	require.NoError(t, err)

	chunks := make([]*core.DocumentChunk, len(chunkTexts))
	for i, text := range chunkTexts {
		chunks[i] = &core.DocumentChunk{
			Id:         core.ChunkID(doc.Id, i),
			DocumentId: doc.Id,
			Ordinal:    i,
			Text:       text,
		}
	}
	if len(chunks) > 0 {
		_, err = env.chunks.PutChunks(ctx, chunks...)
		require.NoError(t, err)
	}
	return doc
}

func (env *testEnv) countPoints(t *testing.T) []vector.Match {
	t.Helper()
	matches, err := env.vectors.Search(context.Background(), vector.DefaultCollection,
		[]float32{0, 0, 0, 0}, 100, vector.Filter{MinScore: -1})
	require.NoError(t, err)
	return matches
}

func TestNewReembedder_Validation(t *testing.T) {
	env := newTestEnv(t)
	var buf bytes.Buffer

	_, err := NewReembedder(nil, env.chunks, env.vectors, env.embedder, nil, &buf)
	require.ErrorIs(t, err, ErrDocumentRepositoryRequired)

	_, err = NewReembedder(env.documents, nil, env.vectors, env.embedder, nil, &buf)
	require.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewReembedder(env.documents, env.chunks, nil, env.embedder, nil, &buf)
	require.ErrorIs(t, err, ErrVectorStoreRequired)

	_, err = NewReembedder(env.documents, env.chunks, env.vectors, nil, nil, &buf)
	require.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestReembedder_Run(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc1 := env.seedDocument(t, "manifest.pdf", core.DocumentCompleted, "tank T-101", "pressure reading", "inspection log")
	doc2 := env.seedDocument(t, "invoice.txt", core.DocumentCompleted, "terminal fees")

	var buf bytes.Buffer
	reembedder, err := NewReembedder(env.documents, env.chunks, env.vectors, env.embedder, testConfig(), &buf)
	require.NoError(t, err)

	require.NoError(t, reembedder.Run(ctx))

	matches := env.countPoints(t)
	require.Len(t, matches, 4)
	for _, m := range matches {
		assert.Equal(t, "mock", m.Point.Payload["provider"])
		assert.Equal(t, "Safety", m.Point.Payload["category"])
	}

	for _, id := range []core.ID{doc1.Id, doc2.Id} {
		doc, err := env.documents.GetDocument(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "mock", doc.Provider)
	}

	output := buf.String()
	assert.Contains(t, output, "4 chunks across 2 documents")
	assert.Contains(t, output, "4/4")
}

func TestReembedder_ReplacesExistingPoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := env.seedDocument(t, "manifest.pdf", core.DocumentCompleted, "tank T-101")
	require.NoError(t, env.vectors.Upsert(ctx, vector.DefaultCollection, vector.Point{
		Id:         core.ChunkID(doc.Id, 0),
		DocumentId: doc.Id,
		Vector:     []float32{0, 1, 0, 0},
		Payload:    map[string]string{"provider": "openai"},
	}))

	var buf bytes.Buffer
	reembedder, err := NewReembedder(env.documents, env.chunks, env.vectors, env.embedder, testConfig(), &buf)
	require.NoError(t, err)
	require.NoError(t, reembedder.Run(ctx))

	matches := env.countPoints(t)
	require.Len(t, matches, 1, "reembedding replaces points, never duplicates them")
	assert.Equal(t, "mock", matches[0].Point.Payload["provider"])
	assert.InDelta(t, 1.0, matches[0].Point.Vector[0], 0.001)
}

func TestReembedder_SkipsUnfinishedDocuments(t *testing.T) {
	env := newTestEnv(t)

	env.seedDocument(t, "done.txt", core.DocumentCompleted, "finished")
	env.seedDocument(t, "broken.txt", core.DocumentFailed, "never embedded")
	env.seedDocument(t, "queued.txt", core.DocumentPending)

	var buf bytes.Buffer
	reembedder, err := NewReembedder(env.documents, env.chunks, env.vectors, env.embedder, testConfig(), &buf)
	require.NoError(t, err)
	require.NoError(t, reembedder.Run(context.Background()))

	matches := env.countPoints(t)
	require.Len(t, matches, 1)

	failed, err := env.documents.GetDocument(context.Background(), core.IDFromContent("broken.txt"))
	require.NoError(t, err)
	assert.Equal(t, "openai", failed.Provider, "failed documents are left alone")
}

func TestReembedder_EmptyDatabase(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	reembedder, err := NewReembedder(env.documents, env.chunks, env.vectors, env.embedder, testConfig(), &buf)
	require.NoError(t, err)
	require.NoError(t, reembedder.Run(context.Background()))

	assert.Contains(t, buf.String(), "No completed documents")
}

func TestReembedder_RetriesTransientEmbeddingErrors(t *testing.T) {
	env := newTestEnv(t)

	calls := 0
	env.embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("429 too many requests")
		}
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 0, 0, 0}
		}
		return out, nil
	}

	env.seedDocument(t, "manifest.pdf", core.DocumentCompleted, "tank T-101")

	var buf bytes.Buffer
	reembedder, err := NewReembedder(env.documents, env.chunks, env.vectors, env.embedder, testConfig(), &buf)
	require.NoError(t, err)
	require.NoError(t, reembedder.Run(context.Background()))

	assert.Equal(t, 2, calls)
	require.Len(t, env.countPoints(t), 1)
}

func TestReembedder_PermanentErrorAborts(t *testing.T) {
	env := newTestEnv(t)

	env.embedder.EmbedTextsFunc = func(_ context.Context, _ []string) ([][]float32, error) {
		return nil, errors.New("model not found")
	}

	env.seedDocument(t, "manifest.pdf", core.DocumentCompleted, "tank T-101")

	var buf bytes.Buffer
	reembedder, err := NewReembedder(env.documents, env.chunks, env.vectors, env.embedder, testConfig(), &buf)
	require.NoError(t, err)

	err = reembedder.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest.pdf")
}

func TestDocumentIterator_Count(t *testing.T) {
	env := newTestEnv(t)

	env.seedDocument(t, "a.txt", core.DocumentCompleted, "one", "two")
	env.seedDocument(t, "b.txt", core.DocumentCompleted, "three")
	env.seedDocument(t, "c.txt", core.DocumentFailed, "ignored")

	it := NewDocumentIterator(env.documents, env.chunks)
	docs, chunks, err := it.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, docs)
	assert.Equal(t, 3, chunks)
}

func TestReclassifier_Run(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := env.seedDocument(t, "manifest.pdf", core.DocumentCompleted, "tank T-101")

	classifier := mock.NewMockClassifier()
	classifier.ClassifyFunc = func(_ context.Context, _ string) (core.Classification, error) {
		return core.Classification{Category: "Compliance", Subcategory: "Permit", Confidence: 0.9}, nil
	}
	extractor := mock.NewMockEntityExtractor()
	extractor.ExtractEntitiesFunc = func(_ context.Context, _ string) ([]core.Entity, error) {
		return []core.Entity{{Type: "tank_id", Value: "T-101", Confidence: 0.95}}, nil
	}

	var buf bytes.Buffer
	reclassifier, err := NewReclassifier(env.documents, classifier, extractor, testConfig(), &buf)
	require.NoError(t, err)
	require.NoError(t, reclassifier.Run(ctx))

	updated, err := env.documents.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, "Compliance", updated.Category)
	assert.Equal(t, "Permit", updated.Subcategory)
	require.Len(t, updated.Entities, 1)
	assert.Equal(t, "T-101", updated.Entities[0].Value)

	assert.Contains(t, buf.String(), "Reclassification complete")
}

func TestReclassifier_ClassifierErrorNamesDocument(t *testing.T) {
	env := newTestEnv(t)

	env.seedDocument(t, "manifest.pdf", core.DocumentCompleted, "tank T-101")

	classifier := mock.NewMockClassifier()
	classifier.ClassifyFunc = func(_ context.Context, _ string) (core.Classification, error) {
		return core.Classification{}, fmt.Errorf("schema validation failed")
	}

	var buf bytes.Buffer
	reclassifier, err := NewReclassifier(env.documents, classifier, mock.NewMockEntityExtractor(), testConfig(), &buf)
	require.NoError(t, err)

	err = reclassifier.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest.pdf")
}

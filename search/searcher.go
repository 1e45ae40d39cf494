package search

import (
	"context"
	"log/slog"
	"sort"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/vector"
)

const (
	// DefaultMaxHits bounds result counts when the caller does not.
	DefaultMaxHits = 10

	// DefaultMinSimilarity is the vector-search admission threshold.
	DefaultMinSimilarity = 0.60

	// Default blend weights for the two signals.
	DefaultVectorWeight  = 0.7
	DefaultKeywordWeight = 0.3
)

// Result is one search hit: a chunk, its parent document, and the
// blended relevance score.
type Result struct {
	Chunk    *core.DocumentChunk
	Document *core.Document
	Score    float32
}

// Options narrows a search.
type Options struct {
	// MaxHits caps the result count. Zero means DefaultMaxHits.
	MaxHits int

	// Category restricts hits to chunks of documents in that category.
	Category string

	// MinSimilarity overrides the vector admission threshold when
	// positive.
	MinSimilarity float32
}

// Searcher provides hybrid semantic and keyword search over document chunks.
type Searcher struct {
	documents     storage.DocumentRepository
	chunks        storage.ChunkRepository
	vectors       vector.Store
	embedder      ai.Embedder
	collection    string
	vectorWeight  float32
	keywordWeight float32
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithCollection sets the vector collection to search.
// Default is vector.DefaultCollection.
func WithCollection(name string) Option {
	return func(s *Searcher) error {
		s.collection = name
		return nil
	}
}

// WithWeights sets the blend weights for the vector and keyword signals.
func WithWeights(vectorWeight, keywordWeight float32) Option {
	return func(s *Searcher) error {
		if vectorWeight < 0 || keywordWeight < 0 || vectorWeight+keywordWeight == 0 {
			return ErrInvalidWeights
		}
		s.vectorWeight = vectorWeight
		s.keywordWeight = keywordWeight
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	vectors vector.Store,
	embedder ai.Embedder,
	opts ...Option,
) (*Searcher, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		documents:     documents,
		chunks:        chunks,
		vectors:       vectors,
		embedder:      embedder,
		collection:    vector.DefaultCollection,
		vectorWeight:  DefaultVectorWeight,
		keywordWeight: DefaultKeywordWeight,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search performs hybrid search for the query.
// Returns ranked results, most relevant first.
func (s *Searcher) Search(ctx context.Context, query string, options Options) ([]*Result, error) {
	return s.SearchWithMonitor(ctx, query, options, nil)
}

// SearchWithMonitor performs hybrid search with monitoring.
// The monitor receives callbacks at each stage of the search process.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, options Options, monitor SearchMonitor) ([]*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	maxHits := options.MaxHits
	if maxHits <= 0 {
		maxHits = DefaultMaxHits
	}
	minSimilarity := options.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}

	monitor.Start(query)

	// 1. Semantic search over chunk embeddings.
	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	filter := vector.Filter{MinScore: minSimilarity}
	if options.Category != "" {
		filter.Payload = map[string]string{"category": options.Category}
	}
	// Over-fetch so keyword re-scoring can reorder before truncation.
	matches, err := s.vectors.Search(ctx, s.collection, embedding, maxHits*2, filter)
	if err != nil {
		s.logger.Error("error querying vector store", "err", err)
		return nil, err
	}

	vectorScores := make(map[core.ID]float32, len(matches))
	vectorIds := make([]uint64, 0, len(matches))
	for _, match := range matches {
		vectorScores[match.Point.Id] = match.Score
		vectorIds = append(vectorIds, uint64(match.Point.Id))
	}
	monitor.AfterVectorSearch(vectorIds)

	// 2. Keyword scan. One pass both finds verbatim matches and
	// resolves chunk records for the vector hits.
	keywordSet := make(map[core.ID]bool)
	keywordIds := make([]uint64, 0)
	chunkById := make(map[core.ID]*core.DocumentChunk)

	err = s.chunks.ScanAll(ctx, func(chunk *core.DocumentChunk) error {
		if _, hit := vectorScores[chunk.Id]; hit {
			chunkById[chunk.Id] = chunk
		}
		if !containsAllQueryWords(chunk.Text, query) {
			return nil
		}
		if options.Category != "" && chunk.Metadata["category"] != options.Category {
			return nil
		}
		keywordSet[chunk.Id] = true
		keywordIds = append(keywordIds, uint64(chunk.Id))
		chunkById[chunk.Id] = chunk
		return nil
	})
	if err != nil {
		s.logger.Error("error scanning chunks for keywords", "err", err)
		return nil, err
	}
	monitor.AfterKeywordScan(keywordIds)

	if len(chunkById) == 0 {
		return []*Result{}, nil
	}

	// 3. Blend the two signals.
	documentById := make(map[core.ID]*core.Document)
	results := make([]*Result, 0, len(chunkById))

	for id, chunk := range chunkById {
		similarity, inVector := vectorScores[id]
		inKeyword := keywordSet[id]

		var score float32
		if inVector {
			score = s.vectorWeight * clamp01(similarity)
		}
		if inKeyword {
			score += s.keywordWeight
		}

		switch {
		case inVector && inKeyword:
			monitor.HybridHit(chunk)
		case inVector:
			monitor.VectorHit(chunk)
		default:
			monitor.KeywordHit(chunk)
		}

		document, ok := documentById[chunk.DocumentId]
		if !ok {
			document, err = s.documents.GetDocument(ctx, chunk.DocumentId)
			if err != nil {
				s.logger.Warn("error retrieving document for hit", "documentId", chunk.DocumentId, "err", err)
				continue
			}
			documentById[chunk.DocumentId] = document
		}
		if document == nil {
			// Chunk outlived its document; skip the orphan.
			continue
		}

		results = append(results, &Result{
			Chunk:    chunk,
			Document: document,
			Score:    score,
		})
	}

	// Sort by score descending, ties broken by document recency.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.UpdatedAt.After(results[j].Document.UpdatedAt)
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)

	return results, nil
}

// FindSimilar performs plain vector similarity search without the
// keyword signal.
func (s *Searcher) FindSimilar(ctx context.Context, query string, maxHits int) ([]*Result, error) {
	if maxHits <= 0 {
		maxHits = DefaultMaxHits
	}

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	matches, err := s.vectors.Search(ctx, s.collection, embedding, maxHits, vector.Filter{
		MinScore: DefaultMinSimilarity,
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []*Result{}, nil
	}

	results := make([]*Result, 0, len(matches))
	chunksByDocument := make(map[core.ID]map[core.ID]*core.DocumentChunk)
	documentById := make(map[core.ID]*core.Document)

	for _, match := range matches {
		docId := match.Point.DocumentId

		byId, ok := chunksByDocument[docId]
		if !ok {
			chunks, err := s.chunks.GetChunks(ctx, docId)
			if err != nil {
				return nil, err
			}
			byId = make(map[core.ID]*core.DocumentChunk, len(chunks))
			for _, c := range chunks {
				byId[c.Id] = c
			}
			chunksByDocument[docId] = byId
		}
		chunk := byId[match.Point.Id]
		if chunk == nil {
			continue
		}

		document, ok := documentById[docId]
		if !ok {
			document, err = s.documents.GetDocument(ctx, docId)
			if err != nil {
				return nil, err
			}
			documentById[docId] = document
		}
		if document == nil {
			continue
		}

		results = append(results, &Result{
			Chunk:    chunk,
			Document: document,
			Score:    match.Score,
		})
	}

	return results, nil
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

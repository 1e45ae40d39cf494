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


package docflow

import (
	"log/slog"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/ai/openai"
	"github.com/poiesic/docflow/pipeline"
	"github.com/poiesic/docflow/search"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/storage/badger"
	"github.com/poiesic/docflow/vector"
	vectorbadger "github.com/poiesic/docflow/vector/badger"
)

// Database bundles the storage backend, repositories, vector store and
// AI provider behind one handle. It is the entry point for embedding
// docflow in another program and for the CLI.
type Database struct {
	backend   *badger.Backend
	documents storage.DocumentRepository
	jobs      storage.JobRepository
	chunks    storage.ChunkRepository
	vectors   vector.Store
	provider  ai.Provider
	logger    *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	provider ai.Provider
}

// WithAIConfig sets the configuration for the OpenAI-compatible
// provider.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = config
	}
}

// WithProvider supplies a ready-made AI provider instead of building
// one from configuration.
func WithProvider(provider ai.Provider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// NewDatabase opens (or creates) a docflow database at filePath.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, false)
	if err != nil {
		return nil, err
	}

	documents, err := badger.NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	jobs, err := badger.NewJobRepository(backend)
	if err != nil {
		documents.Close()
		backend.Close()
		return nil, err
	}

	chunks, err := badger.NewChunkRepository(backend)
	if err != nil {
		jobs.Close()
		documents.Close()
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			chunks.Close()
			jobs.Close()
			documents.Close()
			backend.Close()
			return nil, err
		}
	}

	return &Database{
		backend:   backend,
		documents: documents,
		jobs:      jobs,
		chunks:    chunks,
		vectors:   vectorbadger.NewStore(backend),
		provider:  provider,
		logger:    slog.Default(),
	}, nil
}

func (db *Database) Close() error {
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}
	if err := db.vectors.Close(); err != nil {
		db.logger.Error("error closing vector store", "err", err)
	}

	if err := db.chunks.Close(); err != nil {
		db.logger.Error("error closing chunk repository", "err", err)
		return err
	}
	if err := db.jobs.Close(); err != nil {
		db.logger.Error("error closing job repository", "err", err)
		return err
	}
	if err := db.documents.Close(); err != nil {
		db.logger.Error("error closing document repository", "err", err)
		return err
	}

	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) DocumentRepository() storage.DocumentRepository {
	return db.documents
}

func (db *Database) JobRepository() storage.JobRepository {
	return db.jobs
}

func (db *Database) ChunkRepository() storage.ChunkRepository {
	return db.chunks
}

func (db *Database) VectorStore() vector.Store {
	return db.vectors
}

func (db *Database) Provider() ai.Provider {
	return db.provider
}

func (db *Database) NewPipeline(opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	return pipeline.NewPipeline(db.documents, db.jobs, db.chunks, db.vectors, db.provider, opts...)
}

func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(db.documents, db.chunks, db.vectors, db.provider.Embedder(), opts...)
}

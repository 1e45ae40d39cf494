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
	"fmt"
	"time"

	"github.com/poiesic/docflow/ai/local"
	"github.com/poiesic/docflow/chunk"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/vector"
)

// Config is the pipeline's immutable configuration. A snapshot is taken
// at construction; running jobs never observe later changes.
type Config struct {
	// ChunkSize and ChunkOverlap configure the chunker, in bytes.
	ChunkSize    int
	ChunkOverlap int

	// MaxAttempts bounds retries per stage, counting the first try.
	MaxAttempts int

	// RetryBaseDelay seeds the exponential backoff between attempts;
	// MaxRetryDelay caps it.
	RetryBaseDelay time.Duration
	MaxRetryDelay  time.Duration

	// StageTimeout bounds each stage execution.
	StageTimeout time.Duration

	// EmbedBatchSize caps how many chunk texts go to the embedder in
	// one call.
	EmbedBatchSize int

	// Collection is the vector collection chunk embeddings go to.
	Collection string

	// LocalDimensions is the vector width of the fallback embedder. It
	// must match the primary provider's width or fallback upserts will
	// be rejected by the collection.
	LocalDimensions int

	// ProcessedDir and FailedDir are where source files move after a
	// terminal job. Empty disables relocation.
	ProcessedDir string
	FailedDir    string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithChunking sets the chunker's window size and overlap.
func WithChunking(size, overlap int) ConfigOption {
	return func(c *Config) {
		c.ChunkSize = size
		c.ChunkOverlap = overlap
	}
}

// WithMaxAttempts sets the per-stage attempt budget.
func WithMaxAttempts(n int) ConfigOption {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithRetryDelays sets the backoff seed and cap.
func WithRetryDelays(base, max time.Duration) ConfigOption {
	return func(c *Config) {
		c.RetryBaseDelay = base
		c.MaxRetryDelay = max
	}
}

// WithStageTimeout sets the per-stage execution deadline.
func WithStageTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.StageTimeout = d
	}
}

// WithEmbedBatchSize sets the embedding sub-batch size.
func WithEmbedBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.EmbedBatchSize = n
	}
}

// WithCollection sets the vector collection name.
func WithCollection(name string) ConfigOption {
	return func(c *Config) {
		c.Collection = name
	}
}

// WithLocalDimensions sets the fallback embedder's vector width.
func WithLocalDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.LocalDimensions = dims
	}
}

// WithRelocation sets the directories terminal jobs move source files
// to.
func WithRelocation(processedDir, failedDir string) ConfigOption {
	return func(c *Config) {
		c.ProcessedDir = processedDir
		c.FailedDir = failedDir
	}
}

// DefaultConfig returns a config with production defaults.
func DefaultConfig(opts ...ConfigOption) Config {
	c := Config{
		ChunkSize:       chunk.DefaultSize,
		ChunkOverlap:    chunk.DefaultOverlap,
		MaxAttempts:     3,
		RetryBaseDelay:  500 * time.Millisecond,
		MaxRetryDelay:   30 * time.Second,
		StageTimeout:    2 * time.Minute,
		EmbedBatchSize:  16,
		Collection:      vector.DefaultCollection,
		LocalDimensions: local.DefaultDimensions,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", core.ErrConfiguration)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, size)", core.ErrConfiguration)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1", core.ErrConfiguration)
	}
	if c.RetryBaseDelay < 0 || c.MaxRetryDelay < 0 {
		return fmt.Errorf("%w: retry delays must be non-negative", core.ErrConfiguration)
	}
	if c.StageTimeout <= 0 {
		return fmt.Errorf("%w: stage timeout must be positive", core.ErrConfiguration)
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("%w: embed batch size must be at least 1", core.ErrConfiguration)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name is empty", core.ErrConfiguration)
	}
	if c.LocalDimensions < 1 {
		return fmt.Errorf("%w: local dimensions must be at least 1", core.ErrConfiguration)
	}
	return nil
}

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


// Package local provides an in-process fallback embedder.
//
// The embedder needs no network and never fails, which makes it the
// fallback of last resort when the primary embedding service is down.
// Its vectors are derived from token hashes: identical text always maps
// to the same unit vector and texts sharing vocabulary land near each
// other, so similarity search stays usable, just coarser than with a
// real model. Vectors carry a distinct provider name so mixed-provider
// collections remain distinguishable.
package local

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"unicode"
)

// ProviderName tags vectors produced by this embedder.
const ProviderName = "local"

// DefaultDimensions matches the dimensionality of the small
// sentence-embedding models commonly served locally.
const DefaultDimensions = 384

// Embedder implements ai.Embedder without any external service.
type Embedder struct {
	dims   int
	logger *slog.Logger
}

// NewEmbedder creates a local embedder producing vectors of dim
// components. A dim of 0 selects DefaultDimensions.
func NewEmbedder(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &Embedder{
		dims:   dim,
		logger: slog.Default().With("component", "local-embedder"),
	}
}

// Name identifies the embedding backend.
func (e *Embedder) Name() string {
	return ProviderName
}

// EmbedText generates a deterministic embedding for one text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = e.embed(text)
	}
	e.logger.Debug("generated local embeddings", "count", len(texts), "dims", e.dims)
	return vectors, nil
}

// embed builds a bag-of-tokens vector: each token hashes to a handful
// of components, weighted down for repeats, then the sum is normalized
// to unit length.
func (e *Embedder) embed(text string) []float32 {
	vector := make([]float32, e.dims)
	counts := make(map[string]int)

	for _, token := range tokenize(text) {
		counts[token]++
		weight := 1.0 / float32(counts[token])

		h := fnv.New32a()
		h.Write([]byte(token))
		seed := h.Sum32()

		// Spread each token over four components with LCG steps.
		for k := 0; k < 4; k++ {
			seed = seed*1664525 + 1013904223
			idx := int(seed % uint32(e.dims))
			sign := float32(1)
			if seed&1 == 0 {
				sign = -1
			}
			vector[idx] += sign * weight
		}
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	} else if e.dims > 0 {
		// Empty text still gets a valid unit vector.
		vector[0] = 1
	}
	return vector
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

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


// Package vector defines the vector store abstraction used for chunk
// embeddings.
//
// A store holds named collections. Each collection fixes its dimension
// count on first use and rejects vectors of any other width. Points are
// keyed by chunk ID, so writing the same point twice replaces it, which
// keeps retried embedding stages idempotent.
package vector

import (
	"context"
	"math"
	"time"

	"github.com/poiesic/docflow/core"
)

// DefaultCollection is the collection chunk embeddings go to unless
// configured otherwise.
const DefaultCollection = "documents"

// Point is one stored embedding with its payload.
type Point struct {
	// Id is the chunk ID the vector belongs to.
	Id core.ID

	// DocumentId ties the point to its document for bulk deletion.
	DocumentId core.ID

	// Vector is the embedding, unit-normalized before storage.
	Vector []float32

	// Payload carries filterable metadata: category, provider, filename.
	Payload map[string]string

	// IngestedAt is when the point was stored. Zero means "set on
	// upsert".
	IngestedAt time.Time
}

// Match is a search hit.
type Match struct {
	Point Point
	Score float32
}

// Filter restricts a search. Zero-valued fields are inactive.
type Filter struct {
	// Payload entries must all match a point's payload exactly.
	Payload map[string]string

	// DocumentIds restricts matches to points of these documents.
	DocumentIds []core.ID

	// After and Before bound a point's ingestion time.
	After  time.Time
	Before time.Time

	// MinScore drops matches scoring below it.
	MinScore float32
}

// Store is the embedding persistence interface.
// Implementations must be thread-safe.
type Store interface {
	// EnsureCollection creates a collection with the given dimension
	// count if it doesn't exist. Recreating with the same dims is a
	// no-op; different dims is a configuration error.
	EnsureCollection(ctx context.Context, name string, dims int) error

	// Upsert writes points into a collection, replacing any existing
	// point with the same Id. Vectors whose width disagrees with the
	// collection fail with core.ErrStore.
	Upsert(ctx context.Context, collection string, points ...Point) error

	// Search returns up to limit points most similar to the query
	// vector, ordered by descending score.
	Search(ctx context.Context, collection string, query []float32, limit int, filter Filter) ([]Match, error)

	// DeleteByDocument removes every point belonging to a document.
	DeleteByDocument(ctx context.Context, collection string, documentID core.ID) error

	// Close releases store resources.
	Close() error
}

// Normalize scales a vector to unit length in place and returns it.
// Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// Dot computes the dot product of two vectors, which equals cosine
// similarity for unit vectors. Mismatched lengths compare the shared
// prefix.
func Dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

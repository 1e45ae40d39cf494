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


// Package badger provides a BadgerDB implementation of the vector.Store
// interface. Points live alongside document and job records in the same
// database, so one backend serves the whole pipeline.
package badger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	storagebadger "github.com/poiesic/docflow/storage/badger"
	"github.com/poiesic/docflow/vector"
)

// Store implements vector.Store on a shared BadgerDB backend.
type Store struct {
	backend *storagebadger.Backend
	logger  *slog.Logger
}

var _ vector.Store = (*Store)(nil)

// NewStore creates a vector store on an open backend. The backend's
// lifecycle belongs to the caller; Close here is a no-op.
func NewStore(backend *storagebadger.Backend) *Store {
	return &Store{
		backend: backend,
		logger:  slog.Default().With("component", "vector-store"),
	}
}

// EnsureCollection creates collection metadata if missing. An existing
// collection with different dimensions is a configuration error.
func (s *Store) EnsureCollection(ctx context.Context, name string, dims int) error {
	if name == "" {
		return fmt.Errorf("%w: collection name is empty", core.ErrConfiguration)
	}
	if dims <= 0 {
		return fmt.Errorf("%w: collection dimensions must be positive, got %d", core.ErrConfiguration, dims)
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := s.readCollection(tx, name)
		if err != nil {
			return err
		}
		if existing > 0 {
			if existing != dims {
				return fmt.Errorf("%w: collection %s has %d dimensions, requested %d",
					core.ErrConfiguration, name, existing, dims)
			}
			return nil
		}
		if err := tx.Set(makeCollectionKey(name), marshalCollection(dims)); err != nil {
			return err
		}
		s.logger.Info("created collection", "name", name, "dims", dims)
		return tx.Commit()
	}, true)
}

// Upsert writes points, replacing existing points with the same Id.
// The collection is created lazily from the first vector's width.
// Vectors are unit-normalized before storage so search can use dot
// products.
func (s *Store) Upsert(ctx context.Context, collection string, points ...vector.Point) error {
	if len(points) == 0 {
		return nil
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		dims, err := s.readCollection(tx, collection)
		if err != nil {
			return err
		}
		if dims == 0 {
			dims = len(points[0].Vector)
			if dims == 0 {
				return fmt.Errorf("%w: cannot create collection %s from an empty vector",
					core.ErrStore, collection)
			}
			if err := tx.Set(makeCollectionKey(collection), marshalCollection(dims)); err != nil {
				return err
			}
			s.logger.Info("created collection", "name", collection, "dims", dims)
		}

		for i := range points {
			p := points[i]
			if len(p.Vector) != dims {
				return fmt.Errorf("%w: point %d has %d dimensions, collection %s expects %d",
					core.ErrStore, p.Id, len(p.Vector), collection, dims)
			}
			p.Vector = vector.Normalize(slices.Clone(p.Vector))
			if p.IngestedAt.IsZero() {
				p.IngestedAt = time.Now().UTC()
			}

			if err := tx.Set(makePointKey(collection, p.Id), marshalPoint(&p)); err != nil {
				return err
			}
			if err := tx.Set(makeDocumentIndexKey(collection, p.DocumentId, p.Id), nil); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Search scans the collection and returns up to limit matches ordered
// by descending cosine similarity.
func (s *Store) Search(ctx context.Context, collection string, query []float32, limit int, filter vector.Filter) ([]vector.Match, error) {
	if limit <= 0 {
		limit = 10
	}
	query = vector.Normalize(slices.Clone(query))

	var matches []vector.Match
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		dims, err := s.readCollection(tx, collection)
		if err != nil {
			return err
		}
		if dims == 0 {
			// Unknown collection: nothing stored yet.
			return nil
		}
		if len(query) != dims {
			return fmt.Errorf("%w: query has %d dimensions, collection %s expects %d",
				core.ErrStore, len(query), collection, dims)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialPointKey(collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var point *vector.Point
			err := iter.Item().Value(func(val []byte) error {
				var err error
				point, err = unmarshalPoint(val)
				return err
			})
			if err != nil {
				return err
			}

			if !matchesFilter(point, filter) {
				continue
			}

			score := vector.Dot(query, point.Vector)
			if score < filter.MinScore {
				continue
			}
			matches = append(matches, vector.Match{Point: *point, Score: score})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b vector.Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DeleteByDocument removes every point indexed under a document.
func (s *Store) DeleteByDocument(ctx context.Context, collection string, documentID core.ID) error {
	// Collect point ids under a read transaction first; deleting while
	// iterating invalidates the iterator.
	var pointIDs []core.ID
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialDocumentIndexKey(collection, documentID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			id, err := pointIDFromDocumentIndexKey(iter.Item().Key())
			if err != nil {
				return err
			}
			pointIDs = append(pointIDs, id)
		}
		return nil
	}, false)
	if err != nil {
		return err
	}
	if len(pointIDs) == 0 {
		return nil
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range pointIDs {
			if err := tx.Delete(makePointKey(collection, id)); err != nil {
				return err
			}
			if err := tx.Delete(makeDocumentIndexKey(collection, documentID, id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Close implements vector.Store. The shared backend is closed by its
// owner.
func (s *Store) Close() error {
	return nil
}

// readCollection returns the collection's dimension count, or 0 if the
// collection does not exist.
func (s *Store) readCollection(tx *badger.Txn, name string) (int, error) {
	item, err := tx.Get(makeCollectionKey(name))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var dims int
	err = item.Value(func(val []byte) error {
		var err error
		dims, err = unmarshalCollection(val)
		return err
	})
	return dims, err
}

func matchesFilter(point *vector.Point, filter vector.Filter) bool {
	for k, v := range filter.Payload {
		if point.Payload[k] != v {
			return false
		}
	}
	if len(filter.DocumentIds) > 0 && !slices.Contains(filter.DocumentIds, point.DocumentId) {
		return false
	}
	if !filter.After.IsZero() && point.IngestedAt.Before(filter.After) {
		return false
	}
	if !filter.Before.IsZero() && point.IngestedAt.After(filter.Before) {
		return false
	}
	return true
}

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


package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
type JobRepository struct {
	backend *Backend
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) (*JobRepository, error) {
	return &JobRepository{backend: backend}, nil
}

// Close releases repository resources.
func (r *JobRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *JobRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// CreateOrAttach stores a new job unless the document already has an
// active one. Both the slot check and the insert happen inside one
// transaction; badger aborts the commit on write conflict, so two
// racing submissions cannot both create a job. The loser retries and
// attaches to the job the winner committed.
func (r *JobRepository) CreateOrAttach(ctx context.Context, job *core.ProcessingJob) (*core.ProcessingJob, bool, error) {
	if err := core.ValidateJob(job); err != nil {
		return nil, false, err
	}

	for {
		result, created, err := r.createOrAttachOnce(job)
		if errors.Is(err, badger.ErrConflict) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, false, ctxErr
			}
			continue
		}
		return result, created, err
	}
}

func (r *JobRepository) createOrAttachOnce(job *core.ProcessingJob) (*core.ProcessingJob, bool, error) {
	var (
		result  *core.ProcessingJob
		created bool
	)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		activeKey := makeJobActiveKey(job.DocumentId)

		item, err := tx.Get(activeKey)
		if err == nil {
			// Slot held; return the existing job.
			var existingID string
			if err := item.Value(func(val []byte) error {
				existingID = string(val)
				return nil
			}); err != nil {
				return err
			}
			existing, err := r.readJob(tx, makeJobKey(existingID))
			if err != nil {
				return err
			}
			if existing != nil && !existing.Status.Terminal() {
				result = existing
				created = false
				return nil
			}
			// Stale slot from a job that finished without releasing it.
			if err := tx.Delete(activeKey); err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		now := time.Now().UTC()
		if job.CreatedAt.IsZero() {
			job.CreatedAt = now
		}
		job.UpdatedAt = now

		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}
		if err := tx.Set(activeKey, []byte(job.Id)); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		result = job
		created = true
		return nil
	}, true)

	return result, created, err
}

// UpdateJob atomically replaces a job record. Entering a terminal
// status releases the document's active-job slot.
func (r *JobRepository) UpdateJob(ctx context.Context, job *core.ProcessingJob) (*core.ProcessingJob, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(job.Id)

		old, err := r.readJob(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		job.CreatedAt = old.CreatedAt
		job.UpdatedAt = time.Now().UTC()

		if err := tx.Set(key, storage.MarshalJob(job)); err != nil {
			return err
		}

		if job.Status.Terminal() && !old.Status.Terminal() {
			if err := tx.Delete(makeJobActiveKey(job.DocumentId)); err != nil {
				return err
			}
		}
		// A retry revives a terminal job and reclaims the slot.
		if !job.Status.Terminal() && old.Status.Terminal() {
			if err := tx.Set(makeJobActiveKey(job.DocumentId), []byte(job.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return job, err
}

// GetJob retrieves a job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*core.ProcessingJob, error) {
	var result *core.ProcessingJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetActiveJob returns the non-terminal job for a document.
func (r *JobRepository) GetActiveJob(ctx context.Context, documentID core.ID) (*core.ProcessingJob, error) {
	var result *core.ProcessingJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeJobActiveKey(documentID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}

		var jobID string
		if err := item.Value(func(val []byte) error {
			jobID = string(val)
			return nil
		}); err != nil {
			return err
		}

		result, err = r.readJob(tx, makeJobKey(jobID))
		if err != nil {
			return err
		}
		if result == nil || result.Status.Terminal() {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListJobs returns up to limit jobs.
func (r *JobRepository) ListJobs(ctx context.Context, status core.JobStatus, limit int) ([]*core.ProcessingJob, error) {
	var results []*core.ProcessingJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobPrefix + ":")

		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var job *core.ProcessingJob
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				job, err = storage.UnmarshalJob(val)
				return err
			}); err != nil {
				return err
			}

			if status != 0 && job.Status != status {
				continue
			}
			results = append(results, job)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
		return nil
	}, false)

	return results, err
}

// DeleteJob removes a job record and its active slot if held.
func (r *JobRepository) DeleteJob(ctx context.Context, id string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(id)

		job, err := r.readJob(tx, key)
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}

		activeKey := makeJobActiveKey(job.DocumentId)
		if item, err := tx.Get(activeKey); err == nil {
			var heldBy string
			if err := item.Value(func(val []byte) error {
				heldBy = string(val)
				return nil
			}); err != nil {
				return err
			}
			if heldBy == id {
				if err := tx.Delete(activeKey); err != nil {
					return err
				}
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// readJob reads a job from the transaction. A missing key returns
// (nil, nil).
func (r *JobRepository) readJob(tx *badger.Txn, key []byte) (*core.ProcessingJob, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var job *core.ProcessingJob
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		job, unmarshalErr = storage.UnmarshalJob(val)
		return unmarshalErr
	})
	return job, err
}

// Package storage defines the persistence interfaces for documents,
// processing jobs and chunks, plus the MUS serialization helpers shared
// by backends.
//
// The interfaces are backend-agnostic; the badger subpackage provides
// the embedded BadgerDB implementation used in production and tests.
// Repositories must be safe for concurrent use: the pipeline updates
// jobs from worker goroutines while the CLI reads them.
package storage

// Package reembed provides maintenance operations for rebuilding derived
// document data after a model change.
//
// Reembedder regenerates vector embeddings for every completed document's
// chunks and replaces the stored points, updating each document's provider
// tag. Reclassifier re-runs classification and entity extraction over the
// stored document text. Both report progress to a writer and retry
// transient provider failures with exponential backoff.
package reembed

package core

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// Document IDs are derived from file content, chunk IDs from the
// (document, ordinal) pair, so identical input always maps to the
// same identity.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// HashBytes fingerprints a byte stream. It returns the 64-bit ID used as
// the document identity and the full 256-bit digest in hex, stored as the
// document's content hash for duplicate detection.
func HashBytes(data []byte) (ID, string) {
	h, _ := blake2b.New(32, nil)
	h.Write(data)
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum[:8])), hex.EncodeToString(sum)
}

// DocumentStatus tracks where a document is in its lifecycle.
type DocumentStatus int

const (
	DocumentPending DocumentStatus = iota + 1
	DocumentProcessing
	DocumentCompleted
	DocumentFailed
)

// String returns the lowercase wire name of the status.
func (s DocumentStatus) String() string {
	switch s {
	case DocumentPending:
		return "pending"
	case DocumentProcessing:
		return "processing"
	case DocumentCompleted:
		return "completed"
	case DocumentFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// JobStatus tracks a processing job's lifecycle. Completed and Failed are
// terminal.
type JobStatus int

const (
	JobPending JobStatus = iota + 1
	JobProcessing
	JobCompleted
	JobFailed
)

// String returns the lowercase wire name of the status.
func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobProcessing:
		return "processing"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Terminal reports whether the status is a terminal one.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Stage identifies a pipeline stage. A job's Stage field records the last
// stage whose results were durably persisted, so a restart knows where to
// re-enter.
type Stage int

const (
	StageNone Stage = iota
	StageExtracting
	StageClassifying
	StageExtractingEntities
	StageChunking
	StageEmbedding
	StageStoring
)

// String returns the stage name used in job records and logs.
func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageExtracting:
		return "extracting"
	case StageClassifying:
		return "classifying"
	case StageExtractingEntities:
		return "extracting_entities"
	case StageChunking:
		return "chunking"
	case StageEmbedding:
		return "embedding"
	case StageStoring:
		return "storing"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Classification is the result of categorizing a document.
type Classification struct {
	Category    string
	Subcategory string
	Confidence  float32 // in [0,1]
}

// Entity is a typed value extracted from document text.
// Flagged marks entities whose Type falls outside the configured
// vocabulary; they are kept so downstream consumers can decide filtering.
type Entity struct {
	Type       string
	Value      string
	Confidence float32
	Flagged    bool
}

// Document is the identity and accumulated pipeline state for one source
// file. It is created when a file is first observed and mutated by each
// pipeline stage; results persisted here survive crashes and partial
// failures.
type Document struct {
	Id          ID
	Filename    string
	Path        string // current location on disk
	Size        int64
	MimeType    string
	ContentHash string // full BLAKE2b-256 digest, hex
	Text        string // extracted plain text
	PageCount   int
	Category    string
	Subcategory string
	Confidence  float32
	Entities    []Entity
	ChunkCount  int
	Status      DocumentStatus
	Error       string
	Provider    string // embedding provider that produced the vectors
	InsertedAt  time.Time
	UpdatedAt   time.Time
}

// ProcessingJob is one execution of the pipeline for a document. A retry
// reuses the job id with fresh attempt counters rather than creating a
// second job; at most one non-terminal job exists per document.
type ProcessingJob struct {
	Id           string // uuid
	DocumentId   ID
	Status       JobStatus
	Stage        Stage // last durably completed stage
	Progress     int   // 0-100, non-decreasing within a run
	Error        string
	Attempts     map[string]int // attempts per stage name
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AttemptCount returns the recorded attempt count for a stage.
func (j *ProcessingJob) AttemptCount(stage Stage) int {
	if j.Attempts == nil {
		return 0
	}
	return j.Attempts[stage.String()]
}

// RecordAttempt increments and returns the attempt counter for a stage.
func (j *ProcessingJob) RecordAttempt(stage Stage) int {
	if j.Attempts == nil {
		j.Attempts = make(map[string]int)
	}
	j.Attempts[stage.String()]++
	return j.Attempts[stage.String()]
}

// DocumentChunk is a bounded span of extracted text prepared for
// embedding. The vector itself lives in the vector store under the chunk
// id; chunks are destroyed with their document.
type DocumentChunk struct {
	Id         ID
	DocumentId ID
	Ordinal    int // contiguous from 0 within the document
	Text       string
	Start      int // source span in the extracted text
	End        int
	Metadata   map[string]string
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// ChunkID derives the deterministic id for a chunk of a document. Using
// the (document, ordinal) pair keeps vector upserts idempotent across
// retries.
func ChunkID(documentID ID, ordinal int) ID {
	return IDFromContent(fmt.Sprintf("%d:%d", uint64(documentID), ordinal))
}

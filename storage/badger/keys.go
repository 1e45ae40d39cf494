package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/poiesic/docflow/core"
)

// Key prefixes for different data types
const (
	documentPrefix     = "docrec"
	documentHashPrefix = "dochash"
	documentDatePrefix = "docrecd"
	jobPrefix          = "jobrec"
	jobActivePrefix    = "jobact"
	chunkPrefix        = "chkrec"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentPrefix, id))
}

// makeDocumentHashKey generates a key for the content-hash index.
func makeDocumentHashKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s:%s", documentHashPrefix, hash))
}

// makeDocumentDateKey generates a composite key for the insertion-date
// index. Format: prefix:timestamp:id, BigEndian so lexicographic order
// is chronological order.
func makeDocumentDateKey(timestamp time.Time, id core.ID) []byte {
	prefix := []byte(documentDatePrefix + ":")
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialDocumentDateKey generates a partial key for date seeks.
func makePartialDocumentDateKey(timestamp time.Time) []byte {
	prefix := []byte(documentDatePrefix + ":")
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	return buf
}

// makeJobKey generates a key for a job by its UUID.
func makeJobKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", jobPrefix, id))
}

// makeJobActiveKey generates the active-job slot key for a document.
// At most one non-terminal job per document may hold this slot.
func makeJobActiveKey(documentID core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", jobActivePrefix, documentID))
}

// makeChunkKey generates a composite key for a chunk.
// Format: prefix:documentID:ordinal, BigEndian so a prefix scan over a
// document yields chunks in ordinal order.
func makeChunkKey(documentID core.ID, ordinal int) []byte {
	prefix := []byte(chunkPrefix + ":")
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(ordinal))
	return buf
}

// makePartialChunkKey generates the scan prefix for one document's chunks.
func makePartialChunkKey(documentID core.ID) []byte {
	prefix := []byte(chunkPrefix + ":")
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	return buf
}

package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/docflow/core"
)

const (
	// collectionPrefix keys collection metadata records.
	collectionPrefix = "veccol"

	// pointPrefix keys stored points.
	pointPrefix = "vecpnt"

	// documentPrefix keys the document-to-point index used for
	// bulk deletion.
	documentPrefix = "vecdoc"
)

func makeCollectionKey(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s", collectionPrefix, name))
}

// makePointKey builds "vecpnt:{name}:{id}" with a fixed-width
// big-endian id.
func makePointKey(name string, id core.ID) []byte {
	prefix := fmt.Sprintf("%s:%s:", pointPrefix, name)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(id))
	return key
}

func makePartialPointKey(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", pointPrefix, name))
}

// makeDocumentIndexKey builds "vecdoc:{name}:{docID}:{pointID}".
func makeDocumentIndexKey(name string, documentID, pointID core.ID) []byte {
	prefix := fmt.Sprintf("%s:%s:", documentPrefix, name)
	key := make([]byte, len(prefix)+16)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(documentID))
	binary.BigEndian.PutUint64(key[len(prefix)+8:], uint64(pointID))
	return key
}

func makePartialDocumentIndexKey(name string, documentID core.ID) []byte {
	prefix := fmt.Sprintf("%s:%s:", documentPrefix, name)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(documentID))
	return key
}

// pointIDFromDocumentIndexKey recovers the point id from the tail of a
// document index key.
func pointIDFromDocumentIndexKey(key []byte) (core.ID, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("document index key too short: %d bytes", len(key))
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:])), nil
}

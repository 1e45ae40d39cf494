package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/docflow/core"
)

func newTestChunks(documentID core.ID, n int) []*core.DocumentChunk {
	chunks := make([]*core.DocumentChunk, n)
	for i := 0; i < n; i++ {
		chunks[i] = &core.DocumentChunk{
			Id:         core.ChunkID(documentID, i),
			DocumentId: documentID,
			Ordinal:    i,
			Text:       fmt.Sprintf("chunk %d text", i),
			Start:      i * 100,
			End:        (i + 1) * 100,
		}
	}
	return chunks
}

func TestChunkPutAndGetOrdered(t *testing.T) {
	docRepo, jobRepo, chunkRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { chunkRepo.Close(); jobRepo.Close(); docRepo.Close(); backend.Close() }()

	ctx := context.Background()

	// Insert out of order; the scan must come back by ordinal.
	chunks := newTestChunks(5, 4)
	if _, err := chunkRepo.PutChunks(ctx, chunks[2], chunks[0], chunks[3], chunks[1]); err != nil {
		t.Fatalf("Failed to put chunks: %v", err)
	}

	got, err := chunkRepo.GetChunks(ctx, 5)
	if err != nil {
		t.Fatalf("Failed to get chunks: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Expected 4 chunks, got %d", len(got))
	}
	for i, c := range got {
		if c.Ordinal != i {
			t.Fatalf("Chunk %d has ordinal %d, want %d", i, c.Ordinal, i)
		}
	}
}

func TestChunkPutIsIdempotent(t *testing.T) {
	docRepo, jobRepo, chunkRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { chunkRepo.Close(); jobRepo.Close(); docRepo.Close(); backend.Close() }()

	ctx := context.Background()

	chunks := newTestChunks(6, 3)
	if _, err := chunkRepo.PutChunks(ctx, chunks...); err != nil {
		t.Fatalf("Failed to put chunks: %v", err)
	}
	// Re-running the same stage writes the same keys again.
	if _, err := chunkRepo.PutChunks(ctx, chunks...); err != nil {
		t.Fatalf("Failed to re-put chunks: %v", err)
	}

	got, err := chunkRepo.GetChunks(ctx, 6)
	if err != nil {
		t.Fatalf("Failed to get chunks: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 chunks after re-put, got %d", len(got))
	}
}

func TestChunkDeleteByDocument(t *testing.T) {
	docRepo, jobRepo, chunkRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { chunkRepo.Close(); jobRepo.Close(); docRepo.Close(); backend.Close() }()

	ctx := context.Background()

	if _, err := chunkRepo.PutChunks(ctx, newTestChunks(7, 3)...); err != nil {
		t.Fatalf("Failed to put chunks: %v", err)
	}
	if _, err := chunkRepo.PutChunks(ctx, newTestChunks(8, 2)...); err != nil {
		t.Fatalf("Failed to put chunks: %v", err)
	}

	if err := chunkRepo.DeleteChunks(ctx, 7); err != nil {
		t.Fatalf("Failed to delete chunks: %v", err)
	}

	got, err := chunkRepo.GetChunks(ctx, 7)
	if err != nil {
		t.Fatalf("Failed to get chunks: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Expected no chunks for document 7, got %d", len(got))
	}

	// Neighboring document untouched.
	got, err = chunkRepo.GetChunks(ctx, 8)
	if err != nil {
		t.Fatalf("Failed to get chunks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 chunks for document 8, got %d", len(got))
	}
}

func TestChunkScanAll(t *testing.T) {
	docRepo, jobRepo, chunkRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { chunkRepo.Close(); jobRepo.Close(); docRepo.Close(); backend.Close() }()

	ctx := context.Background()

	if _, err := chunkRepo.PutChunks(ctx, newTestChunks(9, 3)...); err != nil {
		t.Fatalf("Failed to put chunks: %v", err)
	}
	if _, err := chunkRepo.PutChunks(ctx, newTestChunks(10, 2)...); err != nil {
		t.Fatalf("Failed to put chunks: %v", err)
	}

	var count int
	err = chunkRepo.ScanAll(ctx, func(chunk *core.DocumentChunk) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}
	if count != 5 {
		t.Fatalf("Expected to visit 5 chunks, got %d", count)
	}

	// Early stop propagates the error.
	stop := fmt.Errorf("stop")
	err = chunkRepo.ScanAll(ctx, func(chunk *core.DocumentChunk) error {
		return stop
	})
	if err != stop {
		t.Fatalf("Expected stop error, got %v", err)
	}
}

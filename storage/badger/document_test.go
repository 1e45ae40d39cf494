package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

func newTestDocument(content string) *core.Document {
	id, hash := core.HashBytes([]byte(content))
	return &core.Document{
		Id:          id,
		Filename:    "report.pdf",
		Path:        "/data/inbox/report.pdf",
		Size:        int64(len(content)),
		MimeType:    "application/pdf",
		ContentHash: hash,
		Status:      core.DocumentPending,
	}
}

func TestDocumentBasics(t *testing.T) {
	docRepo, jobRepo, chunkRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { chunkRepo.Close(); jobRepo.Close(); docRepo.Close(); backend.Close() }()

	ctx := context.Background()
	doc := newTestDocument("inspection report content")

	stored, err := docRepo.PutDocument(ctx, doc)
	if err != nil {
		t.Fatalf("Failed to put document: %v", err)
	}
	if stored.InsertedAt.IsZero() {
		t.Fatal("Expected InsertedAt to be set")
	}

	retrieved, err := docRepo.GetDocument(ctx, doc.Id)
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if retrieved.Filename != "report.pdf" {
		t.Fatalf("Expected 'report.pdf', got '%s'", retrieved.Filename)
	}
	if retrieved.ContentHash != doc.ContentHash {
		t.Fatalf("Content hash mismatch")
	}
}

func TestDocumentFindByContentHash(t *testing.T) {
	docRepo, jobRepo, chunkRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { chunkRepo.Close(); jobRepo.Close(); docRepo.Close(); backend.Close() }()

	ctx := context.Background()
	doc := newTestDocument("duplicate detection content")

	if _, err := docRepo.PutDocument(ctx, doc); err != nil {
		t.Fatalf("Failed to put document: %v", err)
	}

	found, err := docRepo.FindByContentHash(ctx, doc.ContentHash)
	if err != nil {
		t.Fatalf("Failed to find by hash: %v", err)
	}
	if found.Id != doc.Id {
		t.Fatalf("Expected document %d, got %d", doc.Id, found.Id)
	}

	_, err = docRepo.FindByContentHash(ctx, "nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestDocumentUpdate(t *testing.T) {
	docRepo, jobRepo, chunkRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { chunkRepo.Close(); jobRepo.Close(); docRepo.Close(); backend.Close() }()

	ctx := context.Background()
	doc := newTestDocument("original content")

	if _, err := docRepo.PutDocument(ctx, doc); err != nil {
		t.Fatalf("Failed to put document: %v", err)
	}

	doc.Category = "safety"
	doc.Status = core.DocumentCompleted
	if _, err := docRepo.UpdateDocument(ctx, doc); err != nil {
		t.Fatalf("Failed to update document: %v", err)
	}

	retrieved, err := docRepo.GetDocument(ctx, doc.Id)
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if retrieved.Category != "safety" || retrieved.Status != core.DocumentCompleted {
		t.Fatalf("Update lost fields: %+v", retrieved)
	}

	missing := newTestDocument("never stored")
	if _, err := docRepo.UpdateDocument(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for missing document, got %v", err)
	}
}

func TestDocumentDelete(t *testing.T) {
	docRepo, jobRepo, chunkRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { chunkRepo.Close(); jobRepo.Close(); docRepo.Close(); backend.Close() }()

	ctx := context.Background()
	doc := newTestDocument("to be deleted")

	if _, err := docRepo.PutDocument(ctx, doc); err != nil {
		t.Fatalf("Failed to put document: %v", err)
	}
	if err := docRepo.DeleteDocument(ctx, doc.Id); err != nil {
		t.Fatalf("Failed to delete document: %v", err)
	}

	if _, err := docRepo.GetDocument(ctx, doc.Id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after delete, got %v", err)
	}
	// Hash index must go with the record.
	if _, err := docRepo.FindByContentHash(ctx, doc.ContentHash); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected hash index cleaned up, got %v", err)
	}
	if err := docRepo.DeleteDocument(ctx, doc.Id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound on double delete, got %v", err)
	}
}

func TestDocumentList(t *testing.T) {
	docRepo, jobRepo, chunkRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { chunkRepo.Close(); jobRepo.Close(); docRepo.Close(); backend.Close() }()

	ctx := context.Background()

	contents := []string{"doc one", "doc two", "doc three"}
	for _, c := range contents {
		doc := newTestDocument(c)
		if _, err := docRepo.PutDocument(ctx, doc); err != nil {
			t.Fatalf("Failed to put document: %v", err)
		}
	}
	failed := newTestDocument("doc four")
	failed.Status = core.DocumentFailed
	if _, err := docRepo.PutDocument(ctx, failed); err != nil {
		t.Fatalf("Failed to put document: %v", err)
	}

	all, err := docRepo.ListDocuments(ctx, 0, 0)
	if err != nil {
		t.Fatalf("Failed to list documents: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Expected 4 documents, got %d", len(all))
	}

	failedOnly, err := docRepo.ListDocuments(ctx, core.DocumentFailed, 0)
	if err != nil {
		t.Fatalf("Failed to list failed documents: %v", err)
	}
	if len(failedOnly) != 1 || failedOnly[0].Id != failed.Id {
		t.Fatalf("Status filter broken: %v", failedOnly)
	}

	limited, err := docRepo.ListDocuments(ctx, 0, 2)
	if err != nil {
		t.Fatalf("Failed to list limited documents: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("Expected 2 documents with limit, got %d", len(limited))
	}
}

package core

import (
	"testing"
	"time"
)

func TestDocumentMUS_RoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Microsecond).UTC()
	doc := Document{
		Id:          IDFromContent("roundtrip"),
		Filename:    "inspection-report.pdf",
		Path:        "/data/inbox/inspection-report.pdf",
		Size:        48213,
		MimeType:    "application/pdf",
		ContentHash: "deadbeef",
		Text:        "Tank T-101 passed inspection.",
		PageCount:   3,
		Category:    "safety",
		Subcategory: "inspection",
		Confidence:  0.92,
		Entities: []Entity{
			{Type: "equipment_id", Value: "T-101", Confidence: 0.9},
			{Type: "rumor", Value: "hearsay", Confidence: 0.4, Flagged: true},
		},
		ChunkCount: 2,
		Status:     DocumentCompleted,
		Provider:   "openai",
		InsertedAt: now,
		UpdatedAt:  now,
	}

	bs := make([]byte, DocumentMUS.Size(doc))
	n := DocumentMUS.Marshal(doc, bs)
	if n != len(bs) {
		t.Fatalf("Marshal() wrote %d bytes, Size() said %d", n, len(bs))
	}

	got, n, err := DocumentMUS.Unmarshal(bs)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if n != len(bs) {
		t.Fatalf("Unmarshal() consumed %d bytes, want %d", n, len(bs))
	}

	if got.Id != doc.Id || got.Filename != doc.Filename || got.Text != doc.Text {
		t.Errorf("round trip mangled identity fields: %+v", got)
	}
	if got.Confidence != doc.Confidence || got.Status != doc.Status {
		t.Errorf("round trip mangled status fields: %+v", got)
	}
	if len(got.Entities) != 2 || got.Entities[0].Value != "T-101" || !got.Entities[1].Flagged {
		t.Errorf("round trip mangled entities: %+v", got.Entities)
	}
	if !got.InsertedAt.Equal(doc.InsertedAt) {
		t.Errorf("round trip mangled timestamp: %v vs %v", got.InsertedAt, doc.InsertedAt)
	}
}

func TestProcessingJobMUS_RoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Microsecond).UTC()
	job := ProcessingJob{
		Id:         "f47ac10b-58cc-4372-a567-0e02b2c3d479",
		DocumentId: 7,
		Status:     JobProcessing,
		Stage:      StageChunking,
		Progress:   64,
		Attempts:   map[string]int{"classifying": 2, "embedding": 1},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	bs := make([]byte, ProcessingJobMUS.Size(job))
	ProcessingJobMUS.Marshal(job, bs)

	got, _, err := ProcessingJobMUS.Unmarshal(bs)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Id != job.Id || got.DocumentId != job.DocumentId {
		t.Errorf("round trip mangled identity: %+v", got)
	}
	if got.Stage != StageChunking || got.Progress != 64 {
		t.Errorf("round trip mangled stage state: %+v", got)
	}
	if got.Attempts["classifying"] != 2 || got.Attempts["embedding"] != 1 {
		t.Errorf("round trip mangled attempts: %v", got.Attempts)
	}
}

func TestDocumentChunkMUS_RoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Microsecond).UTC()
	chunk := DocumentChunk{
		Id:         ChunkID(7, 1),
		DocumentId: 7,
		Ordinal:    1,
		Text:       "Pressure relief valves are tested annually.",
		Start:      812,
		End:        855,
		Metadata:   map[string]string{"category": "safety", "provider": "local"},
		InsertedAt: now,
		UpdatedAt:  now,
	}

	bs := make([]byte, DocumentChunkMUS.Size(chunk))
	DocumentChunkMUS.Marshal(chunk, bs)

	got, _, err := DocumentChunkMUS.Unmarshal(bs)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Id != chunk.Id || got.Ordinal != 1 || got.Text != chunk.Text {
		t.Errorf("round trip mangled chunk: %+v", got)
	}
	if got.Start != 812 || got.End != 855 {
		t.Errorf("round trip mangled span: [%d,%d)", got.Start, got.End)
	}
	if got.Metadata["category"] != "safety" {
		t.Errorf("round trip mangled metadata: %v", got.Metadata)
	}
}

func TestVectorMUS_RoundTrip(t *testing.T) {
	vec := []float32{0.1, -0.5, 0.25, 1}

	bs := make([]byte, VectorMUS.Size(vec))
	VectorMUS.Marshal(vec, bs)

	got, _, err := VectorMUS.Unmarshal(bs)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(got) != len(vec) {
		t.Fatalf("round trip changed length: %d vs %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("component %d: %v vs %v", i, got[i], vec[i])
		}
	}
}

func TestDocumentMUS_TruncatedInput(t *testing.T) {
	doc := Document{Id: 1, Filename: "a.txt", ContentHash: "x"}
	bs := make([]byte, DocumentMUS.Size(doc))
	DocumentMUS.Marshal(doc, bs)

	if _, _, err := DocumentMUS.Unmarshal(bs[:len(bs)/2]); err == nil {
		t.Errorf("Unmarshal() of truncated input should fail")
	}
}

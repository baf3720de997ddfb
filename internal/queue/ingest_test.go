package queue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/OFFIS-RIT/lemur/backend/pkg/graph"
	"github.com/OFFIS-RIT/lemur/backend/pkg/index"
)

func newTestStores(t *testing.T) (*index.HierarchicalIndex, *index.FlatIndex, *graph.Store) {
	t.Helper()
	dir := t.TempDir()

	hier, err := index.NewHierarchicalIndex(3, filepath.Join(dir, "hier.gob"))
	if err != nil {
		t.Fatalf("NewHierarchicalIndex: %v", err)
	}
	flat, err := index.NewFlatIndex(3, filepath.Join(dir, "flat.gob"))
	if err != nil {
		t.Fatalf("NewFlatIndex: %v", err)
	}
	store, err := graph.NewStore(filepath.Join(dir, "graph.gob"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return hier, flat, store
}

func testIngestJob() IngestJobMsg {
	return IngestJobMsg{
		Message: "ingest",
		Document: index.Document{
			ID:           "doc-1",
			Filename:     "pump-manual.pdf",
			Type:         "manual",
			SectionCount: 1,
			ChunkCount:   2,
		},
		DocumentEmbedding: []float32{1, 0, 0},
		Sections: []SectionMsg{
			{
				Section: index.Section{
					ID:         "s1",
					DocumentID: "doc-1",
					Title:      "Seal replacement",
					ChunkIDs:   []string{"c1", "c2"},
				},
				Embedding: []float32{1, 0, 0},
			},
		},
		Chunks: []ChunkMsg{
			{
				Chunk:     index.Chunk{ID: "c1", SectionID: "s1", Position: 0, Text: "Drain the casing first."},
				Embedding: []float32{1, 0, 0},
			},
			{
				Chunk:     index.Chunk{ID: "c2", SectionID: "s1", Position: 1, Text: "Torque bolts to 40 Nm."},
				Embedding: []float32{0, 1, 0},
			},
		},
		GraphNodes: []graph.Node{
			{ID: "EQ-12", Type: graph.TypeEquipment, Name: "Pump-12"},
			{ID: "C-1", Type: graph.TypeComponent, Name: "Hydraulic Seal"},
		},
		GraphEdges: []graph.Edge{
			{SourceID: "EQ-12", TargetID: "C-1", Relation: graph.RelHasComponent, Confidence: 0.9},
		},
	}
}

func TestProcessIngestMessage(t *testing.T) {
	hier, flat, store := newTestStores(t)

	raw, err := json.Marshal(testIngestJob())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := ProcessIngestMessage(context.Background(), hier, flat, store, string(raw)); err != nil {
		t.Fatalf("ProcessIngestMessage: %v", err)
	}

	docs, sections, chunks := hier.Counts()
	if docs != 1 || sections != 1 || chunks != 2 {
		t.Fatalf("counts = (%d, %d, %d), want (1, 1, 2)", docs, sections, chunks)
	}
	if flat.Len() != 2 {
		t.Fatalf("flat.Len() = %d, want 2", flat.Len())
	}

	hits, err := flat.Search([]float32{0, 1, 0}, 1, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Meta.SourceDocID != "doc-1" || hits[0].Meta.Fields["chunk_id"] != "c2" {
		t.Fatalf("unexpected flat metadata: %+v", hits[0].Meta)
	}

	nodes, edges := store.Counts()
	if nodes != 2 || edges != 1 {
		t.Fatalf("graph counts = (%d, %d), want (2, 1)", nodes, edges)
	}
}

func TestProcessIngestMessage_SkipsBrokenGraphFacts(t *testing.T) {
	hier, flat, store := newTestStores(t)

	job := testIngestJob()
	job.GraphEdges = append(job.GraphEdges, graph.Edge{
		SourceID: "EQ-12",
		TargetID: "missing",
		Relation: graph.RelFailsWith,
	})
	raw, _ := json.Marshal(job)

	if err := ProcessIngestMessage(context.Background(), hier, flat, store, string(raw)); err != nil {
		t.Fatalf("ProcessIngestMessage: %v", err)
	}

	nodes, edges := store.Counts()
	if nodes != 2 || edges != 1 {
		t.Fatalf("graph counts = (%d, %d), want (2, 1)", nodes, edges)
	}
}

func TestProcessIngestMessage_BadPayload(t *testing.T) {
	hier, flat, store := newTestStores(t)

	if err := ProcessIngestMessage(context.Background(), hier, flat, store, "{not json"); err == nil {
		t.Fatal("expected decode error, got nil")
	}
}

func TestProcessDeleteMessage(t *testing.T) {
	hier, flat, store := newTestStores(t)

	raw, _ := json.Marshal(testIngestJob())
	if err := ProcessIngestMessage(context.Background(), hier, flat, store, string(raw)); err != nil {
		t.Fatalf("ProcessIngestMessage: %v", err)
	}

	del, _ := json.Marshal(DeleteJobMsg{Message: "delete", DocumentID: "doc-1"})
	if err := ProcessDeleteMessage(context.Background(), flat, string(del)); err != nil {
		t.Fatalf("ProcessDeleteMessage: %v", err)
	}

	if flat.Len() != 0 {
		t.Fatalf("flat.Len() = %d after delete, want 0", flat.Len())
	}
}

func TestProcessDeleteMessage_RequiresID(t *testing.T) {
	_, flat, _ := newTestStores(t)

	del, _ := json.Marshal(DeleteJobMsg{Message: "delete"})
	if err := ProcessDeleteMessage(context.Background(), flat, string(del)); err == nil {
		t.Fatal("expected error for empty document id, got nil")
	}
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/lemur/backend/pkg/graph"
	"github.com/OFFIS-RIT/lemur/backend/pkg/index"
	"github.com/OFFIS-RIT/lemur/backend/pkg/logger"
)

// IngestJobMsg is one fully-embedded document plus the graph facts
// extracted from it. Document processing owns parsing, splitting, and
// embedding; the worker only registers the result.
type IngestJobMsg struct {
	Message string `json:"message"`

	Document          index.Document `json:"document"`
	DocumentEmbedding []float32      `json:"document_embedding"`
	Sections          []SectionMsg   `json:"sections"`
	Chunks            []ChunkMsg     `json:"chunks"`

	GraphNodes []graph.Node `json:"graph_nodes,omitempty"`
	GraphEdges []graph.Edge `json:"graph_edges,omitempty"`
}

// SectionMsg pairs a section with its summary embedding on the wire.
type SectionMsg struct {
	Section   index.Section `json:"section"`
	Embedding []float32     `json:"embedding"`
}

// ChunkMsg pairs a chunk with its embedding on the wire.
type ChunkMsg struct {
	Chunk     index.Chunk `json:"chunk"`
	Embedding []float32   `json:"embedding"`
}

// DeleteJobMsg asks for the removal of one document's vectors.
type DeleteJobMsg struct {
	Message    string `json:"message"`
	DocumentID string `json:"document_id"`
}

// ProcessIngestMessage applies one ingest job: the document goes into
// the hierarchical index, chunk vectors additionally into the flat
// index, and extracted facts into the graph store. Graph failures are
// logged but do not fail the job, the document is already searchable.
func ProcessIngestMessage(
	ctx context.Context,
	hier *index.HierarchicalIndex,
	flat *index.FlatIndex,
	store *graph.Store,
	msg string,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data := new(IngestJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("failed to decode ingest job: %w", err)
	}

	sections := make([]index.SectionEntry, len(data.Sections))
	for i, s := range data.Sections {
		sections[i] = index.SectionEntry{Section: s.Section, Embedding: s.Embedding}
	}
	chunks := make([]index.ChunkEntry, len(data.Chunks))
	for i, c := range data.Chunks {
		chunks[i] = index.ChunkEntry{Chunk: c.Chunk, Embedding: c.Embedding}
	}

	docIndexID, err := hier.AddDocument(data.Document, data.DocumentEmbedding, sections, chunks)
	if err != nil {
		return fmt.Errorf("failed to index document %q: %w", data.Document.ID, err)
	}

	if flat != nil && len(chunks) > 0 {
		vectors := make([][]float32, len(chunks))
		metas := make([]index.Metadata, len(chunks))
		for i, c := range chunks {
			vectors[i] = c.Embedding
			metas[i] = index.Metadata{
				SourceDocID: data.Document.ID,
				Text:        c.Chunk.Text,
				Fields:      map[string]string{"chunk_id": c.Chunk.ID},
			}
		}
		if _, err := flat.AddBatch(vectors, metas); err != nil {
			logger.Error("[Queue] Flat index update failed",
				"doc", data.Document.ID, "err", err)
		}
	}

	if store != nil {
		applyGraphFacts(store, data)
	}

	logger.Info("[Queue] Ingest job done",
		"doc", data.Document.ID,
		"doc_index_id", docIndexID,
		"sections", len(sections),
		"chunks", len(chunks),
	)
	return nil
}

func applyGraphFacts(store *graph.Store, data *IngestJobMsg) {
	for _, node := range data.GraphNodes {
		if err := store.AddNode(node); err != nil {
			logger.Warn("[Queue] Skipping graph node",
				"node", node.ID, "err", err)
		}
	}
	for _, edge := range data.GraphEdges {
		if err := store.AddEdge(edge); err != nil {
			logger.Warn("[Queue] Skipping graph edge",
				"source", edge.SourceID, "target", edge.TargetID, "err", err)
		}
	}
	if err := store.Save(); err != nil {
		logger.Error("[Queue] Graph snapshot failed", "err", err)
	}
}

// ProcessDeleteMessage removes a document's vectors from the flat
// index. The hierarchical index keeps old versions; re-indexing
// registers a new document id.
func ProcessDeleteMessage(
	ctx context.Context,
	flat *index.FlatIndex,
	msg string,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data := new(DeleteJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("failed to decode delete job: %w", err)
	}
	if data.DocumentID == "" {
		return fmt.Errorf("delete job without document id")
	}

	removed, err := flat.DeleteBySource(data.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to delete document %q: %w", data.DocumentID, err)
	}

	logger.Info("[Queue] Delete job done", "doc", data.DocumentID, "removed", removed)
	return nil
}

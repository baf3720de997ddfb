package index

// Document describes an indexed document. Documents are owned by the
// ingestion pipeline and immutable once indexed; re-indexing registers a
// new version under a new id.
type Document struct {
	ID           string   `json:"id"`
	Filename     string   `json:"filename"`
	Type         string   `json:"type"`
	Summary      string   `json:"summary"`
	SectionCount int      `json:"section_count"`
	ChunkCount   int      `json:"chunk_count"`
	Equipment    []string `json:"equipment"`
}

// Section is a titled grouping of chunks within a document. Sections nest
// via ParentSectionID; sibling page ranges at the same level do not overlap.
type Section struct {
	ID              string   `json:"id"`
	DocumentID      string   `json:"document_id"`
	Title           string   `json:"title"`
	Level           int      `json:"level"`
	PageStart       int      `json:"page_start"`
	PageEnd         int      `json:"page_end"`
	ChunkIDs        []string `json:"chunk_ids"`
	ParentSectionID string   `json:"parent_section_id,omitempty"`
}

// Chunk is the smallest indexed unit of document text, immutable after
// creation.
type Chunk struct {
	ID         string   `json:"id"`
	SectionID  string   `json:"section_id"`
	Position   int      `json:"position"`
	Text       string   `json:"text"`
	TokenCount int      `json:"token_count"`
	Equipment  []string `json:"equipment"`
	Parts      []string `json:"parts"`
}

// Metadata is the payload stored alongside each vector in the flat index.
type Metadata struct {
	SourceDocID string            `json:"source_doc_id"`
	Text        string            `json:"text"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// FlatResult is one hit from a flat index search.
type FlatResult struct {
	ID    int64    `json:"id"`
	Score float64  `json:"score"`
	Meta  Metadata `json:"meta"`
}

// ChunkResult is one hit from a hierarchical search. Score is the combined
// ranking score; ChunkScore and SectionScore are the stage components.
// SectionScore is zero when the result came from the flat fallback.
type ChunkResult struct {
	ChunkIndexID int64   `json:"chunk_index_id"`
	Chunk        Chunk   `json:"chunk"`
	DocumentID   string  `json:"document_id"`
	SectionID    int64   `json:"section_id"`
	Score        float64 `json:"score"`
	ChunkScore   float64 `json:"chunk_score"`
	SectionScore float64 `json:"section_score"`
	Fallback     bool    `json:"fallback"`
}

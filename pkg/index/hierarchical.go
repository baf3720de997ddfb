package index

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/OFFIS-RIT/lemur/backend/internal/util"
	"github.com/OFFIS-RIT/lemur/backend/pkg/logger"
)

const hierSnapshotVersion = 1

// Stage-2 ranking combines chunk and parent section similarity.
const (
	chunkWeight   = 0.7
	sectionWeight = 0.3
)

// ErrUnknownSection is returned when a chunk references a section id that
// is not part of the same AddDocument call.
var ErrUnknownSection = errors.New("chunk references unknown section")

// SectionEntry pairs a section with its summary embedding for ingestion.
type SectionEntry struct {
	Section   Section
	Embedding []float32
}

// ChunkEntry pairs a chunk with its embedding for ingestion.
type ChunkEntry struct {
	Chunk     Chunk
	Embedding []float32
}

type levelData struct {
	NextID  int64
	IDs     []int64
	Vectors [][]float32
}

func (l *levelData) add(vec []float32) int64 {
	id := l.NextID
	l.NextID++
	l.IDs = append(l.IDs, id)
	l.Vectors = append(l.Vectors, vec)
	return id
}

type hierSnapshot struct {
	Docs     levelData
	Sections levelData
	Chunks   levelData

	DocMeta     map[int64]Document
	SectionMeta map[int64]Section
	ChunkMeta   map[int64]Chunk

	SectionDoc    map[int64]int64
	ChunkSection  map[int64]int64
	SectionChunks map[int64][]int64
	DocIndex      map[string]int64
}

// HierarchicalIndex holds three parallel vector indices (document summary,
// section summary, chunk) plus the cross-level link tables between them.
// AddDocument is the only mutation entrypoint; it validates all cross-links
// before touching any index so a partial failure never leaves links pointing
// at unregistered ids. Unlike the flat index, persistence is batched once
// per ingested document.
type HierarchicalIndex struct {
	mu   sync.RWMutex
	dim  int
	path string

	docs     levelData
	sections levelData
	chunks   levelData

	docMeta     map[int64]Document
	sectionMeta map[int64]Section
	chunkMeta   map[int64]Chunk

	sectionDoc    map[int64]int64
	chunkSection  map[int64]int64
	sectionChunks map[int64][]int64
	docIndex      map[string]int64
}

// NewHierarchicalIndex creates a hierarchical index of the given
// dimensionality, restoring from the snapshot at path when one exists.
func NewHierarchicalIndex(dim int, path string) (*HierarchicalIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}

	idx := &HierarchicalIndex{
		dim:           dim,
		path:          path,
		docMeta:       make(map[int64]Document),
		sectionMeta:   make(map[int64]Section),
		chunkMeta:     make(map[int64]Chunk),
		sectionDoc:    make(map[int64]int64),
		chunkSection:  make(map[int64]int64),
		sectionChunks: make(map[int64][]int64),
		docIndex:      make(map[string]int64),
	}

	if path != "" {
		var snap hierSnapshot
		err := util.LoadSnapshot(path, hierSnapshotVersion, &snap)
		switch {
		case err == nil:
			idx.restore(snap)
			logger.Debug("[Index] Hierarchical index restored", "path", path, "documents", len(idx.docIndex))
		case errors.Is(err, os.ErrNotExist):
			// cold start
		default:
			return nil, fmt.Errorf("failed to restore hierarchical index: %w", err)
		}
	}

	return idx, nil
}

func (h *HierarchicalIndex) restore(snap hierSnapshot) {
	h.docs = snap.Docs
	h.sections = snap.Sections
	h.chunks = snap.Chunks
	if snap.DocMeta != nil {
		h.docMeta = snap.DocMeta
	}
	if snap.SectionMeta != nil {
		h.sectionMeta = snap.SectionMeta
	}
	if snap.ChunkMeta != nil {
		h.chunkMeta = snap.ChunkMeta
	}
	if snap.SectionDoc != nil {
		h.sectionDoc = snap.SectionDoc
	}
	if snap.ChunkSection != nil {
		h.chunkSection = snap.ChunkSection
	}
	if snap.SectionChunks != nil {
		h.sectionChunks = snap.SectionChunks
	}
	if snap.DocIndex != nil {
		h.docIndex = snap.DocIndex
	}
}

// Counts returns the number of indexed documents, sections, and chunks.
func (h *HierarchicalIndex) Counts() (docs, sections, chunks int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.docs.IDs), len(h.sections.IDs), len(h.chunks.IDs)
}

// AddDocument ingests one fully-embedded document: a document-level
// embedding, section summary embeddings, and chunk embeddings. All vectors
// are unit-normalized on insert. The whole document is validated up front
// and inserted atomically under the writer lock; the snapshot is written
// once at the end. Returns the internal document index id.
func (h *HierarchicalIndex) AddDocument(
	doc Document,
	docEmbedding []float32,
	sectionEntries []SectionEntry,
	chunkEntries []ChunkEntry,
) (int64, error) {
	if h == nil {
		return 0, ErrIndexNotInitialized
	}
	if doc.ID == "" {
		return 0, fmt.Errorf("document id must not be empty")
	}
	if len(docEmbedding) != h.dim {
		return 0, fmt.Errorf("%w: document embedding got %d want %d", ErrDimensionMismatch, len(docEmbedding), h.dim)
	}

	sectionByID := make(map[string]int, len(sectionEntries))
	for i, entry := range sectionEntries {
		if len(entry.Embedding) != h.dim {
			return 0, fmt.Errorf("%w: section %q got %d want %d", ErrDimensionMismatch, entry.Section.ID, len(entry.Embedding), h.dim)
		}
		if _, dup := sectionByID[entry.Section.ID]; dup {
			return 0, fmt.Errorf("duplicate section id %q", entry.Section.ID)
		}
		sectionByID[entry.Section.ID] = i
	}
	for _, entry := range chunkEntries {
		if len(entry.Embedding) != h.dim {
			return 0, fmt.Errorf("%w: chunk %q got %d want %d", ErrDimensionMismatch, entry.Chunk.ID, len(entry.Embedding), h.dim)
		}
		if _, ok := sectionByID[entry.Chunk.SectionID]; !ok {
			return 0, fmt.Errorf("%w: chunk %q references section %q", ErrUnknownSection, entry.Chunk.ID, entry.Chunk.SectionID)
		}
	}
	if err := validatePageRanges(sectionEntries); err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	docIndexID := h.docs.add(normalize(append([]float32(nil), docEmbedding...)))
	doc.SectionCount = len(sectionEntries)
	doc.ChunkCount = len(chunkEntries)
	h.docMeta[docIndexID] = doc
	h.docIndex[doc.ID] = docIndexID

	sectionIndexIDs := make(map[string]int64, len(sectionEntries))
	for _, entry := range sectionEntries {
		sid := h.sections.add(normalize(append([]float32(nil), entry.Embedding...)))
		entry.Section.DocumentID = doc.ID
		h.sectionMeta[sid] = entry.Section
		h.sectionDoc[sid] = docIndexID
		sectionIndexIDs[entry.Section.ID] = sid
	}

	for _, entry := range chunkEntries {
		cid := h.chunks.add(normalize(append([]float32(nil), entry.Embedding...)))
		h.chunkMeta[cid] = entry.Chunk
		sid := sectionIndexIDs[entry.Chunk.SectionID]
		h.chunkSection[cid] = sid
		h.sectionChunks[sid] = append(h.sectionChunks[sid], cid)
	}

	if err := h.persistLocked(); err != nil {
		return 0, err
	}

	logger.Info("[Index] Document indexed",
		"doc", doc.ID,
		"sections", len(sectionEntries),
		"chunks", len(chunkEntries),
	)
	return docIndexID, nil
}

func validatePageRanges(entries []SectionEntry) error {
	type key struct {
		parent string
		level  int
	}
	byGroup := make(map[key][]Section)
	for _, e := range entries {
		k := key{parent: e.Section.ParentSectionID, level: e.Section.Level}
		byGroup[k] = append(byGroup[k], e.Section)
	}
	for _, group := range byGroup {
		sort.Slice(group, func(i, j int) bool { return group[i].PageStart < group[j].PageStart })
		for i := 1; i < len(group); i++ {
			if group[i].PageStart < group[i-1].PageEnd {
				return fmt.Errorf("section %q page range overlaps sibling %q", group[i].ID, group[i-1].ID)
			}
		}
	}
	return nil
}

// SearchHierarchical runs the two-stage retrieval: stage 1 selects sections
// scoring at or above sectionThreshold, stage 2 ranks each retained
// section's child chunks by a combined chunk/section score. When stage 1
// retains nothing the search falls back to a flat scan over the whole
// chunk index with the same result budget, so a cold index still answers.
// Results are sorted by combined score, descending.
func (h *HierarchicalIndex) SearchHierarchical(
	query []float32,
	topSections int,
	chunksPerSection int,
	sectionThreshold float64,
) ([]ChunkResult, error) {
	return h.SearchScoped(query, topSections, chunksPerSection, sectionThreshold, nil)
}

// SearchScoped is SearchHierarchical narrowed to the given document ids.
// An empty scope searches everything.
func (h *HierarchicalIndex) SearchScoped(
	query []float32,
	topSections int,
	chunksPerSection int,
	sectionThreshold float64,
	docScope []string,
) ([]ChunkResult, error) {
	if h == nil {
		return nil, ErrIndexNotInitialized
	}
	if len(query) != h.dim {
		return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(query), h.dim)
	}
	if topSections <= 0 || chunksPerSection <= 0 {
		return nil, nil
	}

	q := normalize(append([]float32(nil), query...))

	var scope map[string]bool
	if len(docScope) > 0 {
		scope = make(map[string]bool, len(docScope))
		for _, id := range docScope {
			scope[id] = true
		}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	type sectionHit struct {
		indexID int64
		score   float64
	}
	sectionHits := make([]sectionHit, 0, len(h.sections.IDs))
	for i, sid := range h.sections.IDs {
		if scope != nil && !scope[h.sectionMeta[sid].DocumentID] {
			continue
		}
		score := similarityScore(squaredDistance(q, h.sections.Vectors[i]))
		if score < sectionThreshold {
			continue
		}
		sectionHits = append(sectionHits, sectionHit{indexID: sid, score: score})
	}
	sort.Slice(sectionHits, func(i, j int) bool { return sectionHits[i].score > sectionHits[j].score })
	if len(sectionHits) > topSections {
		sectionHits = sectionHits[:topSections]
	}

	if len(sectionHits) == 0 {
		return h.flatChunkSearchLocked(q, topSections*chunksPerSection, scope), nil
	}

	results := make([]ChunkResult, 0, len(sectionHits)*chunksPerSection)
	for _, hit := range sectionHits {
		section := h.sectionMeta[hit.indexID]
		sectionResults := make([]ChunkResult, 0, len(h.sectionChunks[hit.indexID]))
		for _, cid := range h.sectionChunks[hit.indexID] {
			chunkScore := similarityScore(squaredDistance(q, h.chunkVectorLocked(cid)))
			sectionResults = append(sectionResults, ChunkResult{
				ChunkIndexID: cid,
				Chunk:        h.chunkMeta[cid],
				DocumentID:   section.DocumentID,
				SectionID:    hit.indexID,
				Score:        chunkWeight*chunkScore + sectionWeight*hit.score,
				ChunkScore:   chunkScore,
				SectionScore: hit.score,
			})
		}
		sort.Slice(sectionResults, func(i, j int) bool { return sectionResults[i].Score > sectionResults[j].Score })
		if len(sectionResults) > chunksPerSection {
			sectionResults = sectionResults[:chunksPerSection]
		}
		results = append(results, sectionResults...)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

func (h *HierarchicalIndex) chunkVectorLocked(chunkIndexID int64) []float32 {
	// chunk index ids are assigned densely from 0, so the id doubles as
	// the slice position
	return h.chunks.Vectors[chunkIndexID]
}

func (h *HierarchicalIndex) flatChunkSearchLocked(q []float32, budget int, scope map[string]bool) []ChunkResult {
	results := make([]ChunkResult, 0, len(h.chunks.IDs))
	for i, cid := range h.chunks.IDs {
		sid := h.chunkSection[cid]
		docID := h.sectionMeta[sid].DocumentID
		if scope != nil && !scope[docID] {
			continue
		}
		score := similarityScore(squaredDistance(q, h.chunks.Vectors[i]))
		results = append(results, ChunkResult{
			ChunkIndexID: cid,
			Chunk:        h.chunkMeta[cid],
			DocumentID:   docID,
			SectionID:    sid,
			Score:        score,
			ChunkScore:   score,
			Fallback:     true,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > budget {
		results = results[:budget]
	}
	return results
}

// Document returns the metadata for an ingested document by external id.
func (h *HierarchicalIndex) Document(docID string) (Document, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	indexID, ok := h.docIndex[docID]
	if !ok {
		return Document{}, false
	}
	return h.docMeta[indexID], true
}

func (h *HierarchicalIndex) persistLocked() error {
	if h.path == "" {
		return nil
	}
	snap := hierSnapshot{
		Docs:          h.docs,
		Sections:      h.sections,
		Chunks:        h.chunks,
		DocMeta:       h.docMeta,
		SectionMeta:   h.sectionMeta,
		ChunkMeta:     h.chunkMeta,
		SectionDoc:    h.sectionDoc,
		ChunkSection:  h.chunkSection,
		SectionChunks: h.sectionChunks,
		DocIndex:      h.docIndex,
	}
	if err := util.SaveSnapshot(h.path, hierSnapshotVersion, &snap); err != nil {
		return fmt.Errorf("failed to persist hierarchical index: %w", err)
	}
	return nil
}

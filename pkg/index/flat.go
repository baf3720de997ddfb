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

var (
	// ErrIndexNotInitialized is returned when an index is used before it
	// has been created or loaded.
	ErrIndexNotInitialized = errors.New("index not initialized")
	// ErrDimensionMismatch is returned when a vector's length does not
	// match the index dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

const flatSnapshotVersion = 1

type flatSnapshot struct {
	NextID  int64
	IDs     []int64
	Vectors [][]float32
	Meta    map[int64]Metadata
}

// FlatIndex stores unit-normalized vectors with metadata under
// monotonically increasing integer ids. Every mutation persists a snapshot
// before returning, so a crash after a successful add cannot lose data.
// Concurrent reads are safe; mutations serialize behind a single writer
// lock.
type FlatIndex struct {
	mu   sync.RWMutex
	dim  int
	path string

	nextID  int64
	ids     []int64
	vectors [][]float32
	meta    map[int64]Metadata
}

// NewFlatIndex creates a flat index of the given dimensionality. If path
// is non-empty and a snapshot exists there, the index is restored from it;
// otherwise mutations will persist to that path.
func NewFlatIndex(dim int, path string) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}

	idx := &FlatIndex{
		dim:  dim,
		path: path,
		meta: make(map[int64]Metadata),
	}

	if path != "" {
		var snap flatSnapshot
		err := util.LoadSnapshot(path, flatSnapshotVersion, &snap)
		switch {
		case err == nil:
			idx.nextID = snap.NextID
			idx.ids = snap.IDs
			idx.vectors = snap.Vectors
			if snap.Meta != nil {
				idx.meta = snap.Meta
			}
			logger.Debug("[Index] Flat index restored", "path", path, "vectors", len(idx.ids))
		case errors.Is(err, os.ErrNotExist):
			// cold start
		default:
			return nil, fmt.Errorf("failed to restore flat index: %w", err)
		}
	}

	return idx, nil
}

// Dim returns the index dimensionality.
func (f *FlatIndex) Dim() int {
	return f.dim
}

// Len returns the number of stored vectors.
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// AddBatch normalizes and appends the given vectors with their metadata
// and returns the assigned ids. The snapshot is written before returning
// success; on a persistence failure the in-memory insert is rolled back.
func (f *FlatIndex) AddBatch(vectors [][]float32, metas []Metadata) ([]int64, error) {
	if f == nil {
		return nil, ErrIndexNotInitialized
	}
	if len(vectors) != len(metas) {
		return nil, fmt.Errorf("vector/metadata count mismatch: %d != %d", len(vectors), len(metas))
	}
	for _, v := range vectors {
		if len(v) != f.dim {
			return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(v), f.dim)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prevLen := len(f.ids)
	prevNext := f.nextID

	assigned := make([]int64, 0, len(vectors))
	for i, v := range vectors {
		id := f.nextID
		f.nextID++
		f.ids = append(f.ids, id)
		f.vectors = append(f.vectors, normalize(append([]float32(nil), v...)))
		f.meta[id] = metas[i]
		assigned = append(assigned, id)
	}

	if err := f.persistLocked(); err != nil {
		f.ids = f.ids[:prevLen]
		f.vectors = f.vectors[:prevLen]
		for _, id := range assigned {
			delete(f.meta, id)
		}
		f.nextID = prevNext
		return nil, err
	}

	return assigned, nil
}

// Search returns up to topK results ranked by similarity, dropping hits
// below minScore. The query is normalized before comparison.
func (f *FlatIndex) Search(query []float32, topK int, minScore float64) ([]FlatResult, error) {
	if f == nil {
		return nil, ErrIndexNotInitialized
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(query), f.dim)
	}
	if topK <= 0 {
		return nil, nil
	}

	q := normalize(append([]float32(nil), query...))

	f.mu.RLock()
	defer f.mu.RUnlock()

	results := make([]FlatResult, 0, len(f.ids))
	for i, id := range f.ids {
		score := similarityScore(squaredDistance(q, f.vectors[i]))
		if score < minScore {
			continue
		}
		results = append(results, FlatResult{
			ID:    id,
			Score: score,
			Meta:  f.meta[id],
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteBySource removes all vectors whose metadata references the given
// source document, compacts the index, and persists. Returns the number
// of vectors removed.
func (f *FlatIndex) DeleteBySource(docID string) (int, error) {
	if f == nil {
		return 0, ErrIndexNotInitialized
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	keptIDs := f.ids[:0:0]
	keptVectors := f.vectors[:0:0]
	removed := 0
	for i, id := range f.ids {
		if f.meta[id].SourceDocID == docID {
			delete(f.meta, id)
			removed++
			continue
		}
		keptIDs = append(keptIDs, id)
		keptVectors = append(keptVectors, f.vectors[i])
	}
	if removed == 0 {
		return 0, nil
	}

	f.ids = keptIDs
	f.vectors = keptVectors

	if err := f.persistLocked(); err != nil {
		return 0, err
	}
	return removed, nil
}

// Rebuild recreates the backing storage from the retained entries. It is
// intended after large deletions to reclaim space in the snapshot.
func (f *FlatIndex) Rebuild() error {
	if f == nil {
		return ErrIndexNotInitialized
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]int64, len(f.ids))
	copy(ids, f.ids)
	vectors := make([][]float32, len(f.vectors))
	for i, v := range f.vectors {
		vectors[i] = append([]float32(nil), v...)
	}
	f.ids = ids
	f.vectors = vectors

	return f.persistLocked()
}

func (f *FlatIndex) persistLocked() error {
	if f.path == "" {
		return nil
	}
	snap := flatSnapshot{
		NextID:  f.nextID,
		IDs:     f.ids,
		Vectors: f.vectors,
		Meta:    f.meta,
	}
	if err := util.SaveSnapshot(f.path, flatSnapshotVersion, &snap); err != nil {
		return fmt.Errorf("failed to persist flat index: %w", err)
	}
	return nil
}

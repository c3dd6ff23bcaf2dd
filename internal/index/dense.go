package index

import (
	"bufio"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/fingerprint"
)

// CompactionThreshold is the orphan ratio above which a DenseIndex should
// be rebuilt from the primary store.
const CompactionThreshold = 0.2

// DenseIndex is one HNSW graph for a single embedder slot (an embedder
// index plus, for asymmetric embedders, a direction variant). coder/hnsw
// does not support true deletion without risking graph corruption on the
// last node, so Remove and re-Insert use lazy deletion: the vector stays
// in the graph, but the id<->key mapping is dropped, and Search filters
// against the live mapping (HNSWStore pattern).
type DenseIndex struct {
	mu        sync.RWMutex
	graph     *hnsw.Graph[uint64]
	dimension int

	idMap   map[fingerprint.ID]uint64
	keyMap  map[uint64]fingerprint.ID
	nextKey uint64

	closed bool
}

type denseMetadata struct {
	IDMap     map[fingerprint.ID]uint64
	NextKey   uint64
	Dimension int
}

// NewDenseIndex creates an empty HNSW-backed index for vectors of the
// given dimension, using cosine distance (the sole dense metric besides
// asymmetric cosine and MaxSim, which are applied by the caller before
// vectors reach this substrate).
func NewDenseIndex(dimension int) *DenseIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &DenseIndex{
		graph:     graph,
		dimension: dimension,
		idMap:     make(map[fingerprint.ID]uint64),
		keyMap:    make(map[uint64]fingerprint.ID),
	}
}

// Insert adds or replaces the vector for id.
func (d *DenseIndex) Insert(id fingerprint.ID, vec []float32) error {
	if len(vec) != d.dimension {
		return cerrors.New(cerrors.ErrCodeDimensionMismatch, "dense index dimension mismatch", nil)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return cerrors.New(cerrors.ErrCodeInternal, "dense index is closed", nil)
	}

	if existingKey, exists := d.idMap[id]; exists {
		// Lazy delete: orphan the old key rather than calling graph.Delete,
		// which can corrupt the graph when it removes the last live node.
		delete(d.keyMap, existingKey)
		delete(d.idMap, id)
	}

	key := d.nextKey
	d.nextKey++

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeInPlace(normalized)

	d.graph.Add(hnsw.MakeNode(key, normalized))
	d.idMap[id] = key
	d.keyMap[key] = id

	return nil
}

// Remove orphans id's vector. The vector remains in the graph (ghost
// vector) until the next compaction.
func (d *DenseIndex) Remove(id fingerprint.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if key, exists := d.idMap[id]; exists {
		delete(d.keyMap, key)
		delete(d.idMap, id)
	}
}

// Search returns up to k live candidates nearest to query, ranked 1-based.
func (d *DenseIndex) Search(query []float32, k int) ([]Candidate, error) {
	if len(query) != d.dimension {
		return nil, cerrors.New(cerrors.ErrCodeDimensionMismatch, "dense index query dimension mismatch", nil)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, cerrors.New(cerrors.ErrCodeInternal, "dense index is closed", nil)
	}
	if d.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	// Over-fetch since some of the graph's top matches may be orphaned
	// ghost vectors with no live id mapping.
	nodes := d.graph.Search(normalized, k*4+16)

	candidates := make([]Candidate, 0, k)
	rank := 0
	for _, node := range nodes {
		id, live := d.keyMap[node.Key]
		if !live {
			continue
		}
		dist := d.graph.Distance(normalized, node.Value)
		rank++
		candidates = append(candidates, Candidate{
			ID:       id,
			Rank:     rank,
			RawScore: cosineScoreFromDistance(dist),
		})
		if rank >= k {
			break
		}
	}

	return candidates, nil
}

// Stats reports live-id and total-node counts for compaction decisions.
func (d *DenseIndex) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Stats{LiveIDs: len(d.idMap), TotalNodes: d.graph.Len()}
}

// NeedsCompaction reports whether the ghost-vector ratio exceeds
// CompactionThreshold.
func (d *DenseIndex) NeedsCompaction() bool {
	return d.Stats().OrphanRatio() > CompactionThreshold
}

// Rebuild discards the graph and re-inserts every (id, vec) pair that
// fetch supplies, clearing all ghosts. Callers (internal/ingest or a
// maintenance routine) source fetch from the primary store.
func (d *DenseIndex) Rebuild(fetch func() (map[fingerprint.ID][]float32, error)) error {
	live, err := fetch()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	idMap := make(map[fingerprint.ID]uint64, len(live))
	keyMap := make(map[uint64]fingerprint.ID, len(live))
	var nextKey uint64

	for id, vec := range live {
		normalized := make([]float32, len(vec))
		copy(normalized, vec)
		normalizeInPlace(normalized)
		key := nextKey
		nextKey++
		graph.Add(hnsw.MakeNode(key, normalized))
		idMap[id] = key
		keyMap[key] = id
	}

	d.graph = graph
	d.idMap = idMap
	d.keyMap = keyMap
	d.nextKey = nextKey

	return nil
}

// Save persists the graph and its id mapping with an atomic temp-file
// plus rename, matching HNSWStore.Save pattern.
func (d *DenseIndex) Save(path string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmpIndex := path + ".tmp"
	f, err := os.Create(tmpIndex)
	if err != nil {
		return err
	}
	if err := d.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpIndex)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpIndex)
		return err
	}
	if err := os.Rename(tmpIndex, path); err != nil {
		os.Remove(tmpIndex)
		return err
	}

	return d.saveMetadata(path + ".meta")
}

func (d *DenseIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	meta := denseMetadata{IDMap: d.idMap, NextKey: d.nextKey, Dimension: d.dimension}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Load restores a DenseIndex previously written by Save.
func (d *DenseIndex) Load(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.loadMetadata(path + ".meta"); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	if err := graph.Import(bufio.NewReader(f)); err != nil {
		return err
	}
	d.graph = graph
	return nil
}

func (d *DenseIndex) loadMetadata(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var meta denseMetadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return err
	}

	d.idMap = meta.IDMap
	d.dimension = meta.Dimension
	d.keyMap = make(map[uint64]fingerprint.ID, len(meta.IDMap))
	for id, key := range meta.IDMap {
		d.keyMap[key] = id
	}
	d.nextKey = meta.NextKey
	return nil
}

// Close releases the graph. coder/hnsw needs no explicit teardown.
func (d *DenseIndex) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.graph = nil
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// cosineScoreFromDistance converts coder/hnsw's cosine distance (0 for
// identical vectors, 2 for opposite) into a raw similarity in [-1,1],
// matching the normalization contract of step 3 which
// expects cosine-shaped raw scores before (r+1)/2 conversion upstream.
func cosineScoreFromDistance(dist float32) float64 {
	return 1.0 - float64(dist)
}

package kb

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// vectorHit is one similarity search hit.
type vectorHit struct {
	ID    string
	Score float64
}

// vectorIndex is an in-memory brute-force cosine index over unit vectors.
type vectorIndex struct {
	dimensions int
	pos        map[string]int
	ids        []string
	vectors    [][]float32
	mu         sync.RWMutex
}

func newVectorIndex(dimensions int) (*vectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &vectorIndex{dimensions: dimensions, pos: make(map[string]int)}, nil
}

// Add stores a copy of vec under id, replacing any previous vector.
func (v *vectorIndex) Add(id string, vec []float32) error {
	if len(vec) != v.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), v.dimensions)
	}
	cp := make([]float32, v.dimensions)
	copy(cp, vec)
	v.mu.Lock()
	defer v.mu.Unlock()
	if i, ok := v.pos[id]; ok {
		v.vectors[i] = cp
		return nil
	}
	v.pos[id] = len(v.ids)
	v.ids = append(v.ids, id)
	v.vectors = append(v.vectors, cp)
	return nil
}

// Remove deletes id by moving the last entry into its slot.
func (v *vectorIndex) Remove(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i, ok := v.pos[id]
	if !ok {
		return
	}
	last := len(v.ids) - 1
	if i != last {
		v.ids[i] = v.ids[last]
		v.vectors[i] = v.vectors[last]
		v.pos[v.ids[i]] = i
	}
	v.ids = v.ids[:last]
	v.vectors = v.vectors[:last]
	delete(v.pos, id)
}

// Search returns the top k vectors by cosine similarity, clamped to [0,1].
// k <= 0 returns every vector.
func (v *vectorIndex) Search(query []float32, k int) ([]vectorHit, error) {
	if len(query) != v.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), v.dimensions)
	}
	v.mu.RLock()
	hits := make([]vectorHit, len(v.ids))
	for i, vec := range v.vectors {
		hits[i] = vectorHit{ID: v.ids[i], Score: cosine(query, vec)}
	}
	v.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Size returns the number of stored vectors.
func (v *vectorIndex) Size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.ids)
}

// cosine returns the inner product of two unit vectors clamped to [0,1].
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return math.Max(0, math.Min(1, dot))
}

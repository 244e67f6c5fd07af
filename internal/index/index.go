// Package index is the persisted vector index behind the fast knowledge lookup.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrEmpty is returned when an index has no chunks to search.
var ErrEmpty = errors.New("index is empty")

// Chunk is an embedded slice of a source document.
type Chunk struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

// Index is a flat list of embedded chunks.
type Index struct {
	Model   string    `json:"model"`
	Dim     int       `json:"dim"`
	BuiltAt time.Time `json:"built_at"`
	Chunks  []Chunk   `json:"chunks"`
}

// Hit is a search result.
type Hit struct {
	Chunk
	Score float64 `json:"score"`
}

// CosineSimilarity returns the cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := 0; i < len(a); i++ {
		vA := float64(a[i])
		vB := float64(b[i])
		dot += vA * vB
		magA += vA * vA
		magB += vB * vB
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Search returns the k chunks most similar to query, best first.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(ix.Chunks) == 0 {
		return nil, ErrEmpty
	}
	if ix.Dim != 0 && len(query) != ix.Dim {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(query), ix.Dim)
	}

	hits := make([]Hit, 0, len(ix.Chunks))
	for _, c := range ix.Chunks {
		hits = append(hits, Hit{Chunk: c, Score: CosineSimilarity(query, c.Vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Load reads an index written by Save.
func Load(path string) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var ix Index
	if err := json.Unmarshal(raw, &ix); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return &ix, nil
}

// Save writes the index atomically.
func (ix *Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	raw, err := json.Marshal(ix)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

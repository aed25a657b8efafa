// Package index answers "which images look like this one" queries over an
// in-memory HNSW graph built from one pipeline run. Nothing is persisted.
package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/dejaview/internal/cluster"
	"github.com/kozaktomas/dejaview/internal/model"
)

const (
	// maxNeighbors (M) is the maximum number of neighbors per node.
	maxNeighbors = 16
	// searchMultiplier widens the candidate set before exact re-ranking.
	searchMultiplier = 3
	// minCandidates is the smallest candidate set requested from the graph.
	minCandidates = 100
)

var errNotBuilt = errors.New("index not initialized")

// Match is one search hit with its exact cosine similarity to the query.
// Distance is 1 - Similarity clamped to [0, 2].
type Match struct {
	Path       string  `json:"path"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// Index wraps the HNSW graph keyed by image path.
type Index struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	vectors model.EmbeddingMap
	dim     int
}

// New creates an empty index.
func New() *Index {
	return &Index{vectors: model.EmbeddingMap{}}
}

// Build replaces the index contents with embeddings. Zero vectors are left
// out since they have no direction to compare. All vectors must share one
// dimension.
func (x *Index) Build(embeddings model.EmbeddingMap) error {
	paths := embeddings.Paths()
	sort.Strings(paths)

	dim := 0
	for _, p := range paths {
		v := embeddings[p]
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return fmt.Errorf("%w: %s has %d values, expected %d", model.ErrDimensionMismatch, p, len(v), dim)
		}
	}

	g := hnsw.NewGraph[string]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors)
	g.Distance = hnsw.CosineDistance

	vectors := make(model.EmbeddingMap, len(paths))
	for _, p := range paths {
		v := embeddings[p]
		if isZero(v) {
			continue
		}
		g.Add(hnsw.MakeNode(p, v))
		vectors[p] = v
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if len(vectors) == 0 {
		x.graph = nil
		x.vectors = vectors
		x.dim = 0
		return nil
	}
	x.graph = g
	x.vectors = vectors
	x.dim = dim
	return nil
}

// Len returns the number of indexed images.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Search returns up to k images whose similarity to query is at least
// minSimilarity, most similar first. Candidates from the graph are
// re-ranked by exact cosine similarity.
func (x *Index) Search(query []float32, k int, minSimilarity float64) ([]Match, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil {
		return nil, errNotBuilt
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", model.ErrDimensionMismatch, len(query), x.dim)
	}
	if k <= 0 || isZero(query) {
		return []Match{}, nil
	}

	searchK := max(k*searchMultiplier, minCandidates)
	neighbors := x.graph.Search(query, searchK)

	matches := make([]Match, 0, min(k, len(neighbors)))
	for _, n := range neighbors {
		v, ok := x.vectors[n.Key]
		if !ok {
			continue
		}
		sim := cluster.CosineSimilarity(query, v)
		if sim < minSimilarity {
			continue
		}
		matches = append(matches, Match{
			Path:       n.Key,
			Distance:   cluster.CosineDistance(query, v),
			Similarity: sim,
		})
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Similarity != matches[b].Similarity {
			return matches[a].Similarity > matches[b].Similarity
		}
		return matches[a].Path < matches[b].Path
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

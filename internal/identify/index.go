package identify

import (
	"math"
	"slices"
	"sync"

	"github.com/coder/hnsw"
)

const (
	// indexMaxNeighbors is the HNSW M parameter.
	indexMaxNeighbors = 16
	// indexCandidates is how many nearest references the index hands to exact re-ranking.
	indexCandidates = 10
)

// EuclideanDistance returns the L2 distance between two descriptors.
// Descriptors of different length are infinitely far apart.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// BestMatch returns the position of the reference closest to query and its distance.
// Only a strictly smaller distance replaces the current best, so on ties the reference
// seen first wins. Returns -1 when refs is empty.
func BestMatch(query []float32, refs []Reference) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, ref := range refs {
		d := EuclideanDistance(query, ref.Descriptor)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// candidateIndex is an HNSW graph over reference positions. Its nearest candidates give an
// upper bound on the best distance; the graph is approximate, so the bound may be loose.
type candidateIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[int]
	key   string
	dim   int
}

// rebuild indexes refs unless the same reference set is already indexed.
func (x *candidateIndex) rebuild(refs []Reference, key string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.graph != nil && x.key == key {
		return
	}

	g := hnsw.NewGraph[int]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance

	x.dim = 0
	for i, ref := range refs {
		if len(ref.Descriptor) == 0 {
			continue
		}
		if x.dim == 0 {
			x.dim = len(ref.Descriptor)
		}
		if len(ref.Descriptor) != x.dim {
			continue
		}
		g.Add(hnsw.MakeNode(i, ref.Descriptor))
	}

	x.graph = g
	x.key = key
}

// candidates returns reference positions near query, in reference order.
func (x *candidateIndex) candidates(query []float32, k int) []int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || x.graph.Len() == 0 || len(query) != x.dim {
		return nil
	}

	neighbors := x.graph.Search(query, k)
	positions := make([]int, 0, len(neighbors))
	for _, n := range neighbors {
		positions = append(positions, n.Key)
	}
	slices.Sort(positions)
	return positions
}

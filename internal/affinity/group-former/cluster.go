// internal/affinity/group-former/cluster.go
package groupformer

import (
	"container/heap"
	"math"
	"sort"
	"strings"
)

// scoreEpsilon absorbs float summation-order noise when comparing scores.
const scoreEpsilon = 1e-12

// cluster is a working group during a pass. members are indices into the
// id-sorted profile slice, in join order.
type cluster struct {
	members []int
	pairSum float64 // sum of pairwise scores inside the cluster
	version int
	alive   bool
}

// key is the sorted, comma-joined member ids of a cluster set. It is the
// deterministic tie-break between equally scored merges.
func mergeKey(ids []string, a, b []int) string {
	idx := make([]int, 0, len(a)+len(b))
	idx = append(idx, a...)
	idx = append(idx, b...)
	sort.Ints(idx)
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = ids[v]
	}
	return strings.Join(parts, ",")
}

// mergedScore is the mean pairwise score of the union of two clusters.
func mergedScore(a, b *cluster, cross float64) float64 {
	n := len(a.members) + len(b.members)
	pairs := n * (n - 1) / 2
	if pairs == 0 {
		return 1.0
	}
	return (a.pairSum + b.pairSum + cross) / float64(pairs)
}

type candidate struct {
	a, b       int
	score      float64
	key        string
	verA, verB int
}

// better orders candidates: higher score first, then lower key.
func better(x, y candidate) bool {
	if math.Abs(x.score-y.score) > scoreEpsilon {
		return x.score > y.score
	}
	return x.key < y.key
}

type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return better(h[i], h[j]) }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

var _ heap.Interface = (*candidateHeap)(nil)

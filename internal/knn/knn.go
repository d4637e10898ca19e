// Package knn provides k-nearest-neighbour queries over a bounded
// point buffer, typically one chunk's worth of cloud points. The index
// is pluggable: any structure answering Nearest satisfies the passes'
// needs.
package knn

import (
	"math"

	"github.com/banshee-data/raynoise/internal/geom"
)

// Index answers k-nearest-neighbour queries over a fixed point buffer.
// Nearest returns the indices of the up-to-k closest points to p in
// ascending distance order; a point at p's exact position (including
// the query point itself when it is in the buffer) is returned like any
// other.
type Index interface {
	Nearest(p geom.Vec3, k int) []int
}

// New builds an index suited to the buffer size: brute force for small
// buffers, a hash grid otherwise.
func New(pts []geom.Vec3) Index {
	if len(pts) < 64 {
		return NewBrute(pts)
	}
	return NewGrid(pts, 0)
}

// result is a bounded best-k set kept in ascending distance order.
// Insertion sort wins over a heap at the small k these passes use.
type result struct {
	idx  []int
	dist []float64
	k    int
}

func newResult(k int) *result {
	return &result{idx: make([]int, 0, k), dist: make([]float64, 0, k), k: k}
}

func (r *result) worst() float64 {
	if len(r.idx) < r.k {
		return math.Inf(1)
	}
	return r.dist[len(r.dist)-1]
}

func (r *result) add(i int, d float64) {
	if d >= r.worst() {
		return
	}
	pos := len(r.dist)
	for pos > 0 && r.dist[pos-1] > d {
		pos--
	}
	if len(r.idx) < r.k {
		r.idx = append(r.idx, 0)
		r.dist = append(r.dist, 0)
	}
	copy(r.idx[pos+1:], r.idx[pos:])
	copy(r.dist[pos+1:], r.dist[pos:])
	r.idx[pos] = i
	r.dist[pos] = d
}

// Brute is the reference implementation: a linear scan over the buffer.
type Brute struct {
	pts []geom.Vec3
}

// NewBrute wraps pts without copying.
func NewBrute(pts []geom.Vec3) *Brute { return &Brute{pts: pts} }

// Nearest scans every point.
func (b *Brute) Nearest(p geom.Vec3, k int) []int {
	if k < 1 {
		return nil
	}
	res := newResult(k)
	for i, q := range b.pts {
		res.add(i, q.DistSq(p))
	}
	return res.idx
}

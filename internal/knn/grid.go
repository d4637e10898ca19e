package knn

import (
	"math"

	"github.com/banshee-data/raynoise/internal/geom"
)

type cellKey struct {
	x, y, z int32
}

// Grid is a uniform hash-grid spatial index. Points are binned into
// cubic cells; queries expand outward shell by shell until the best-k
// set cannot improve.
type Grid struct {
	pts   []geom.Vec3
	cell  float64
	cells map[cellKey][]int32
	lo    cellKey
	hi    cellKey
}

// NewGrid indexes pts with the given cell edge length. A size of zero
// picks a cell edge from the bounding box so that cells hold a handful
// of points on average.
func NewGrid(pts []geom.Vec3, cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = autoCellSize(pts)
	}
	g := &Grid{
		pts:   pts,
		cell:  cellSize,
		cells: make(map[cellKey][]int32, len(pts)/4+1),
	}
	for i, p := range pts {
		k := g.keyFor(p)
		if i == 0 {
			g.lo, g.hi = k, k
		} else {
			g.lo = cellKey{min32(g.lo.x, k.x), min32(g.lo.y, k.y), min32(g.lo.z, k.z)}
			g.hi = cellKey{max32(g.hi.x, k.x), max32(g.hi.y, k.y), max32(g.hi.z, k.z)}
		}
		g.cells[k] = append(g.cells[k], int32(i))
	}
	return g
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

// autoCellSize aims for roughly 4 points per occupied cell assuming a
// uniform spread over the bounding box volume.
func autoCellSize(pts []geom.Vec3) float64 {
	if len(pts) == 0 {
		return 1
	}
	lo, hi := pts[0], pts[0]
	for _, p := range pts[1:] {
		lo.X = math.Min(lo.X, p.X)
		lo.Y = math.Min(lo.Y, p.Y)
		lo.Z = math.Min(lo.Z, p.Z)
		hi.X = math.Max(hi.X, p.X)
		hi.Y = math.Max(hi.Y, p.Y)
		hi.Z = math.Max(hi.Z, p.Z)
	}
	ext := hi.Sub(lo)
	vol := math.Max(ext.X, 1e-9) * math.Max(ext.Y, 1e-9) * math.Max(ext.Z, 1e-9)
	edge := math.Cbrt(vol * 4 / float64(len(pts)))
	if edge <= 0 || math.IsNaN(edge) || math.IsInf(edge, 0) {
		return 1
	}
	return edge
}

func (g *Grid) keyFor(p geom.Vec3) cellKey {
	return cellKey{
		x: int32(math.Floor(p.X / g.cell)),
		y: int32(math.Floor(p.Y / g.cell)),
		z: int32(math.Floor(p.Z / g.cell)),
	}
}

// Nearest expands cube shells around p's cell. A shell at ring r can
// only contain points at distance >= (r-1)*cell from p, so the search
// stops once that bound exceeds the current k'th best distance.
func (g *Grid) Nearest(p geom.Vec3, k int) []int {
	if k < 1 || len(g.pts) == 0 {
		return nil
	}
	res := newResult(k)
	center := g.keyFor(p)
	// Worst case the buffer sits entirely in far cells; bound the ring
	// scan by the grid's occupied extent.
	maxRing := ringOf(center, g.lo)
	if r := ringOf(center, g.hi); r > maxRing {
		maxRing = r
	}
	for ring := int32(0); ring <= maxRing; ring++ {
		if len(res.idx) == k {
			bound := float64(ring-1) * g.cell
			if bound > 0 && bound*bound > res.worst() {
				break
			}
		}
		g.scanShell(center, ring, p, res)
	}
	return res.idx
}

func ringOf(a, b cellKey) int32 {
	r := abs32(a.x - b.x)
	if d := abs32(a.y - b.y); d > r {
		r = d
	}
	if d := abs32(a.z - b.z); d > r {
		r = d
	}
	return r
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// scanShell visits every cell whose Chebyshev ring distance from the
// centre equals ring.
func (g *Grid) scanShell(center cellKey, ring int32, p geom.Vec3, res *result) {
	if ring == 0 {
		g.scanCell(center, p, res)
		return
	}
	for dx := -ring; dx <= ring; dx++ {
		for dy := -ring; dy <= ring; dy++ {
			for dz := -ring; dz <= ring; dz++ {
				if abs32(dx) != ring && abs32(dy) != ring && abs32(dz) != ring {
					continue
				}
				g.scanCell(cellKey{center.x + dx, center.y + dy, center.z + dz}, p, res)
			}
		}
	}
}

func (g *Grid) scanCell(key cellKey, p geom.Vec3, res *result) {
	for _, i := range g.cells[key] {
		res.add(int(i), g.pts[i].DistSq(p))
	}
}

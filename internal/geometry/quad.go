package geometry

import (
	"math"
	"sort"
)

// Corner indexes into a Quad.
const (
	TopLeft = iota
	TopRight
	BottomRight
	BottomLeft
)

// Quad is four ordered points: top-left, top-right, bottom-right, bottom-left.
type Quad [4]Point

// Points returns the corners as a slice.
func (q Quad) Points() []Point { return q[:] }

// Bounds returns the bounding box of the four corners.
func (q Quad) Bounds() Box { return BoundingBox(q[:]) }

// Area returns the absolute shoelace area of the quad.
func (q Quad) Area() float64 { return PolygonArea(q[:]) }

// QuadFromSlice converts a 4-point slice into a Quad.
func QuadFromSlice(pts []Point) (Quad, bool) {
	if len(pts) != 4 {
		return Quad{}, false
	}
	return Quad{pts[0], pts[1], pts[2], pts[3]}, true
}

// OrderQuad canonicalises four points into TL, TR, BR, BL order.
//
// Points are sorted by their angle around the centroid and rotated so the
// point with the smallest x+y comes first. The result is only meaningful
// for convex, roughly axis-aligned quadrilaterals; self-intersecting input
// is reordered without complaint.
func OrderQuad(pts []Point) (Quad, bool) {
	if len(pts) != 4 {
		return Quad{}, false
	}
	c := Centroid(pts)
	sorted := append([]Point(nil), pts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ai := math.Atan2(sorted[i].Y-c.Y, sorted[i].X-c.X)
		aj := math.Atan2(sorted[j].Y-c.Y, sorted[j].X-c.X)
		return ai < aj
	})

	start := 0
	minSum := math.MaxFloat64
	for i, p := range sorted {
		if s := p.X + p.Y; s < minSum {
			minSum = s
			start = i
		}
	}

	var out Quad
	for i := range 4 {
		out[i] = sorted[(start+i)%4]
	}
	return out, true
}

// OutermostPoints picks, for each corner of the bounding box of pts, the
// point closest to it. The result is TL, TR, BR, BL. Points may repeat when
// the set is degenerate.
func OutermostPoints(pts []Point) (Quad, bool) {
	if len(pts) == 0 {
		return Quad{}, false
	}
	box := BoundingBox(pts)
	targets := box.Corners()
	var out Quad
	for i, t := range targets {
		best := pts[0]
		bestDist := Distance(best, t)
		for _, p := range pts[1:] {
			if d := Distance(p, t); d < bestDist {
				best, bestDist = p, d
			}
		}
		out[i] = best
	}
	return out, true
}

// Nearest returns the point in candidates closest to p together with its
// distance. ok is false when candidates is empty.
func Nearest(p Point, candidates []Point) (Point, float64, bool) {
	if len(candidates) == 0 {
		return Point{}, 0, false
	}
	best := candidates[0]
	bestDist := Distance(p, best)
	for _, c := range candidates[1:] {
		if d := Distance(p, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist, true
}

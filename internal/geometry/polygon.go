package geometry

import (
	"math"
	"sort"
)

// SimplifyPolygon reduces the number of points in a closed polygon using
// the Douglas-Peucker algorithm with tolerance epsilon.
func SimplifyPolygon(pts []Point, epsilon float64) []Point {
	if len(pts) <= 3 || epsilon <= 0 {
		return append([]Point(nil), pts...)
	}
	// Split the ring at the point farthest from the first one so both
	// halves are simplified as open chains.
	far := 0
	maxDist := -1.0
	for i, p := range pts {
		if d := Distance(pts[0], p); d > maxDist {
			maxDist, far = d, i
		}
	}
	ring := append(append([]Point(nil), pts...), pts[0])
	keep := make([]bool, len(ring))
	keep[0], keep[far], keep[len(ring)-1] = true, true, true
	dpSimplify(ring, 0, far, epsilon, keep)
	dpSimplify(ring, far, len(ring)-1, epsilon, keep)

	out := make([]Point, 0, len(pts))
	for i := range len(ring) - 1 {
		if keep[i] {
			out = append(out, ring[i])
		}
	}
	return out
}

func dpSimplify(pts []Point, start, end int, eps float64, keep []bool) {
	if end <= start+1 {
		return
	}
	maxDist := -1.0
	index := -1
	a := pts[start]
	b := pts[end]
	for i := start + 1; i < end; i++ {
		if d := perpendicularDistance(pts[i], a, b); d > maxDist {
			maxDist = d
			index = i
		}
	}
	if maxDist > eps {
		dpSimplify(pts, start, index, eps, keep)
		keep[index] = true
		dpSimplify(pts, index, end, eps, keep)
	}
}

func perpendicularDistance(p, a, b Point) float64 {
	vx, vy := b.X-a.X, b.Y-a.Y
	if vx == 0 && vy == 0 {
		return Distance(p, a)
	}
	num := math.Abs((p.X-a.X)*vy - (p.Y-a.Y)*vx)
	return num / math.Hypot(vx, vy)
}

// ConvexHull computes the convex hull of pts with the monotone chain
// algorithm. The hull is returned counter-clockwise (in a y-up frame)
// without repeating the first point.
func ConvexHull(pts []Point) []Point {
	if len(pts) <= 1 {
		return append([]Point(nil), pts...)
	}
	p := append([]Point(nil), pts...)
	sort.Slice(p, func(i, j int) bool {
		if p[i].X != p[j].X {
			return p[i].X < p[j].X
		}
		return p[i].Y < p[j].Y
	})
	p = removeDuplicatePoints(p)
	if len(p) <= 2 {
		return p
	}

	lower := make([]Point, 0, len(p))
	for _, pt := range p {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], pt) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, pt)
	}
	upper := make([]Point, 0, len(p))
	for i := len(p) - 1; i >= 0; i-- {
		pt := p[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], pt) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, pt)
	}

	hull := make([]Point, 0, len(lower)+len(upper)-2)
	hull = append(hull, lower[:len(lower)-1]...)
	hull = append(hull, upper[:len(upper)-1]...)
	return hull
}

func removeDuplicatePoints(p []Point) []Point {
	q := p[:0]
	for i, pt := range p {
		if i == 0 || pt != q[len(q)-1] {
			q = append(q, pt)
		}
	}
	return q
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// PolygonArea returns the absolute area of a simple polygon.
func PolygonArea(pts []Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	sum := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(sum) / 2
}

// Perimeter returns the length of the closed polygon outline.
func Perimeter(pts []Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	return PolylineLength(pts) + Distance(pts[len(pts)-1], pts[0])
}

// IsConvex reports whether the closed polygon turns consistently in one
// direction. Collinear triples are tolerated; fewer than 3 points is not convex.
func IsConvex(pts []Point) bool {
	n := len(pts)
	if n < 3 {
		return false
	}
	sign := 0
	for i := range n {
		c := cross(pts[i], pts[(i+1)%n], pts[(i+2)%n])
		switch {
		case c > 0:
			if sign < 0 {
				return false
			}
			sign = 1
		case c < 0:
			if sign > 0 {
				return false
			}
			sign = -1
		}
	}
	return sign != 0
}

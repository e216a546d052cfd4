package corners

import (
	"github.com/MeKo-Tech/pocrop/internal/geometry"
)

// Snap moves p onto the nearest detected point when that point is strictly
// closer than maxDist. The second result reports whether snapping happened.
func Snap(p geometry.Point, detected []geometry.Point, maxDist float64) (geometry.Point, bool) {
	nearest, d, ok := geometry.Nearest(p, detected)
	if !ok || d >= maxDist {
		return p, false
	}
	return nearest, true
}

// SnapToRectangleCorner is Snap against the corners of detected rectangles.
// A corner exactly maxDist away still snaps.
func SnapToRectangleCorner(p geometry.Point, rects []geometry.Quad, maxDist float64) (geometry.Point, bool) {
	var pts []geometry.Point
	for _, r := range rects {
		pts = append(pts, r[:]...)
	}
	nearest, d, ok := geometry.Nearest(p, pts)
	if !ok || d > maxDist {
		return p, false
	}
	return nearest, true
}

// MainRectangle returns the largest rectangle by area.
func MainRectangle(rects []geometry.Quad) (geometry.Quad, bool) {
	if len(rects) == 0 {
		return geometry.Quad{}, false
	}
	best := rects[0]
	for _, r := range rects[1:] {
		if r.Area() > best.Area() {
			best = r
		}
	}
	return best, true
}

// SeedQuad proposes an initial correction quad from detected clusters.
//
// With four or more clusters, their centroids supply the corners. Otherwise
// the points of the largest cluster are used when it has at least four. The
// proposal is rejected when two of its corners coincide.
func SeedQuad(clusters []Cluster) (geometry.Quad, bool) {
	var pts []geometry.Point
	switch {
	case len(clusters) >= 4:
		// One point per cluster: a corner blob spanning several pixels
		// yields a single candidate corner.
		pts = Centroids(clusters)
	case len(clusters) > 0 && len(clusters[0]) >= 4:
		pts = clusters[0]
	default:
		return geometry.Quad{}, false
	}

	var (
		q  geometry.Quad
		ok bool
	)
	if len(pts) == 4 {
		q, ok = geometry.OrderQuad(pts)
	} else {
		q, ok = geometry.OutermostPoints(pts)
	}
	if !ok {
		return geometry.Quad{}, false
	}
	for i := range 4 {
		for j := i + 1; j < 4; j++ {
			if q[i] == q[j] {
				return geometry.Quad{}, false
			}
		}
	}
	return q, true
}

package corners

import (
	"container/list"
	"errors"
	"image"
	"log/slog"
	"math"
	"sort"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/MeKo-Tech/pocrop/internal/mempool"
)

// minComponentPixels drops edge fragments too small to outline a rectangle.
const minComponentPixels = 16

// DetectRectangles finds convex four-sided outlines in img. Each result is
// ordered TL, TR, BR, BL; the slice is sorted by area, largest first.
func (d *Detector) DetectRectangles(img image.Image) ([]geometry.Quad, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return nil, nil
	}

	gray := blurredGray(img, d.cfg.BlurSigma)
	edges := dilate(cannyEdges(gray, d.cfg.EdgeLow, d.cfg.EdgeHigh), gray.w, gray.h)
	gray.release()
	defer mempool.PutBool(edges)

	var rects []geometry.Quad
	for _, comp := range edgeComponents(edges, gray.w, gray.h) {
		if len(comp) < minComponentPixels {
			continue
		}
		hull := geometry.ConvexHull(comp)
		if len(hull) < 4 {
			continue
		}
		approx := geometry.SimplifyPolygon(hull, 0.02*geometry.Perimeter(hull))
		if len(approx) != 4 || !geometry.IsConvex(approx) {
			continue
		}
		if geometry.PolygonArea(approx) < d.cfg.MinRectangleArea {
			continue
		}
		if q, ok := geometry.OrderQuad(approx); ok {
			rects = append(rects, q)
		}
	}

	sort.SliceStable(rects, func(i, j int) bool { return rects[i].Area() > rects[j].Area() })
	slog.Debug("Rectangle detection complete", "rectangles", len(rects))
	return rects, nil
}

// cannyEdges returns an edge mask using 3x3 Sobel gradients with L1
// magnitude, non-maximum suppression and hysteresis between low and high.
// The mask comes from the pool and must be returned with mempool.PutBool.
func cannyEdges(gray plane, low, high float64) []bool {
	w, h := gray.w, gray.h
	deriv, smooth := sobelKernels(3)

	gx := newPlane(w, h)
	gy := newPlane(w, h)
	tmp := newPlane(w, h)
	defer gx.release()
	defer gy.release()
	defer tmp.release()
	sepFilter(gray, gx, tmp, deriv, smooth)
	sepFilter(gray, gy, tmp, smooth, deriv)

	mag := tmp
	for i := range mag.pix {
		mag.pix[i] = math.Abs(gx.pix[i]) + math.Abs(gy.pix[i])
	}

	// 0 = suppressed, 1 = weak, 2 = strong
	state := make([]uint8, w*h)
	stack := make([]int, 0, 256)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag.pix[i]
			if m <= low {
				continue
			}
			n1, n2 := nmsNeighbors(gx.pix[i], gy.pix[i], w)
			if m <= mag.pix[i+n1] || m < mag.pix[i+n2] {
				continue
			}
			if m > high {
				state[i] = 2
				stack = append(stack, i)
			} else {
				state[i] = 1
			}
		}
	}

	edges := mempool.GetBool(w * h)
	for _, i := range stack {
		edges[i] = true
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cx, cy := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := cx+dx, cy+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if state[ni] == 1 && !edges[ni] {
					edges[ni] = true
					stack = append(stack, ni)
				}
			}
		}
	}
	return edges
}

// dilate grows the mask by one pixel in every direction so that contours
// broken at sharp corners join up again. src is returned to the pool.
func dilate(src []bool, w, h int) []bool {
	dst := mempool.GetBool(w * h)
	for y := range h {
		for x := range w {
			if !src[y*w+x] {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx >= 0 && ny >= 0 && nx < w && ny < h {
						dst[ny*w+nx] = true
					}
				}
			}
		}
	}
	mempool.PutBool(src)
	return dst
}

// nmsNeighbors returns the index offsets of the two neighbours along the
// gradient direction.
func nmsNeighbors(gx, gy float64, w int) (int, int) {
	const tan22 = 0.4142135623730951
	ax, ay := math.Abs(gx), math.Abs(gy)
	switch {
	case ay <= ax*tan22:
		return -1, 1
	case ay > ax/tan22:
		return -w, w
	case (gx < 0) == (gy < 0):
		return -w - 1, w + 1
	default:
		return -w + 1, w - 1
	}
}

// edgeComponents groups 8-connected edge pixels.
func edgeComponents(edges []bool, w, h int) [][]geometry.Point {
	visited := mempool.GetBool(w * h)
	defer mempool.PutBool(visited)

	var comps [][]geometry.Point
	for y := range h {
		for x := range w {
			idx := y*w + x
			if edges[idx] && !visited[idx] {
				comps = append(comps, componentBFS(edges, visited, w, h, x, y))
			}
		}
	}
	return comps
}

func componentBFS(edges, visited []bool, w, h, startX, startY int) []geometry.Point {
	var pts []geometry.Point
	q := list.New()
	start := startY*w + startX
	q.PushBack(start)
	visited[start] = true

	for q.Len() > 0 {
		e := q.Front()
		q.Remove(e)
		ci, ok := e.Value.(int)
		if !ok {
			continue
		}
		cx, cy := ci%w, ci/w
		pts = append(pts, geometry.Pt(float64(cx), float64(cy)))
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := cx+dx, cy+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if edges[ni] && !visited[ni] {
					visited[ni] = true
					q.PushBack(ni)
				}
			}
		}
	}
	return pts
}

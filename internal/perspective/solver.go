// Package perspective turns four corner points and a target aspect ratio
// into the point correspondences a projective warp needs.
package perspective

import (
	"github.com/MeKo-Tech/pocrop/internal/geometry"
)

// WarpArguments holds four (srcX, srcY, dstX, dstY) tuples ordered
// top-left, bottom-left, bottom-right, top-right.
type WarpArguments [16]float64

// Slice returns the arguments as a slice for the warp primitive.
func (w WarpArguments) Slice() []float64 { return w[:] }

// Source returns the i-th source point.
func (w WarpArguments) Source(i int) geometry.Point {
	return geometry.Pt(w[i*4], w[i*4+1])
}

// Destination returns the i-th destination point.
func (w WarpArguments) Destination(i int) geometry.Point {
	return geometry.Pt(w[i*4+2], w[i*4+3])
}

// OutputSize returns the destination rectangle size.
func (w WarpArguments) OutputSize() geometry.Size {
	br := w.Destination(2)
	return geometry.Size{Width: br.X, Height: br.Y}
}

// ScaleFactor converts display coordinates to image pixels. A
// non-positive display width yields 1.
func ScaleFactor(imageWidth, displayWidth float64) float64 {
	if displayWidth <= 0 || imageWidth <= 0 {
		return 1
	}
	return imageWidth / displayWidth
}

// Solve builds warp arguments for quad, given in display coordinates.
//
// The output width is the quad's bounding-box width scaled to image pixels
// and the height follows from the ratio. An empty bounding box falls back to
// the display size. Degenerate quads are not rejected.
func Solve(quad geometry.Quad, spec Spec, scale float64, display geometry.Size) (WarpArguments, error) {
	ratio, err := spec.Value()
	if err != nil {
		return WarpArguments{}, err
	}

	var w, h float64
	if box := geometry.BoundingBox(quad[:]); box.Width() > 0 {
		w = float64(int(box.Width() * scale))
		h = float64(int(w * ratio))
	} else {
		w, h = display.Width, display.Height
	}

	order := [4]struct {
		src        geometry.Point
		dstX, dstY float64
	}{
		{quad[geometry.TopLeft], 0, 0},
		{quad[geometry.BottomLeft], 0, h},
		{quad[geometry.BottomRight], w, h},
		{quad[geometry.TopRight], w, 0},
	}

	var args WarpArguments
	for i, o := range order {
		args[i*4] = o.src.X * scale
		args[i*4+1] = o.src.Y * scale
		args[i*4+2] = o.dstX
		args[i*4+3] = o.dstY
	}
	return args, nil
}

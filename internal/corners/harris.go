package corners

import (
	"image"
	"math"

	"github.com/MeKo-Tech/pocrop/internal/mempool"
	"github.com/disintegration/imaging"
)

// plane is a row-major single-channel float image.
type plane struct {
	pix  []float64
	w, h int
}

func newPlane(w, h int) plane {
	return plane{pix: mempool.GetFloat64(w * h), w: w, h: h}
}

func (p plane) release() { mempool.PutFloat64(p.pix) }

// blurredGray converts img to luminance and applies a Gaussian blur.
func blurredGray(img image.Image, sigma float64) plane {
	g := imaging.Grayscale(img)
	if sigma > 0 {
		g = imaging.Blur(g, sigma)
	}
	b := g.Bounds()
	out := newPlane(b.Dx(), b.Dy())
	for y := range out.h {
		row := g.Pix[y*g.Stride:]
		for x := range out.w {
			out.pix[y*out.w+x] = float64(row[x*4])
		}
	}
	return out
}

// sobelKernels returns the 1D derivative and smoothing kernels of an odd
// aperture: binomial smoothing of length ksize, and a binomial of length
// ksize-1 convolved with [-1, 1].
func sobelKernels(ksize int) (deriv, smooth []float64) {
	smooth = []float64{1}
	for range ksize - 1 {
		smooth = convolve1D(smooth, []float64{1, 1})
	}
	deriv = []float64{1}
	for range ksize - 2 {
		deriv = convolve1D(deriv, []float64{1, 1})
	}
	deriv = convolve1D(deriv, []float64{-1, 1})
	return deriv, smooth
}

func convolve1D(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, av := range a {
		for j, bv := range b {
			out[i+j] += av * bv
		}
	}
	return out
}

// reflect101 maps an out-of-range index back into [0,n) mirroring around
// the edge pixel without repeating it.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// sepFilter correlates src with kx along rows and ky along columns. dst may
// alias src; tmp must not alias either.
func sepFilter(src, dst, tmp plane, kx, ky []float64) {
	w, h := src.w, src.h
	rx, ry := len(kx)/2, len(ky)/2
	for y := range h {
		row := src.pix[y*w : (y+1)*w]
		for x := range w {
			s := 0.0
			for i, k := range kx {
				s += k * row[reflect101(x+i-rx, w)]
			}
			tmp.pix[y*w+x] = s
		}
	}
	for y := range h {
		for x := range w {
			s := 0.0
			for i, k := range ky {
				s += k * tmp.pix[reflect101(y+i-ry, h)*w+x]
			}
			dst.pix[y*w+x] = s
		}
	}
}

// harrisResponse computes det(M) - k*trace(M)^2 per pixel, where M is the
// gradient covariance summed over a blockSize square.
func harrisResponse(gray plane, blockSize, aperture int, k float64) plane {
	w, h := gray.w, gray.h
	deriv, smooth := sobelKernels(aperture)
	scale := 1.0 / (float64(int(1)<<(aperture-1)) * float64(blockSize) * 255)
	for i := range deriv {
		deriv[i] *= scale
	}

	n := w * h
	scratch := mempool.GetFloat64Multiple([]int{n, n, n, n})
	defer mempool.PutFloat64Multiple(scratch)
	dx := plane{pix: scratch[0], w: w, h: h}
	dy := plane{pix: scratch[1], w: w, h: h}
	dxy := plane{pix: scratch[2], w: w, h: h}
	tmp := plane{pix: scratch[3], w: w, h: h}

	sepFilter(gray, dx, tmp, deriv, smooth)
	sepFilter(gray, dy, tmp, smooth, deriv)

	for i := range dx.pix {
		gx, gy := dx.pix[i], dy.pix[i]
		dxy.pix[i] = gx * gy
		dx.pix[i] = gx * gx
		dy.pix[i] = gy * gy
	}

	box := make([]float64, blockSize)
	for i := range box {
		box[i] = 1
	}
	sepFilter(dx, dx, tmp, box, box)
	sepFilter(dy, dy, tmp, box, box)
	sepFilter(dxy, dxy, tmp, box, box)

	resp := newPlane(w, h)
	for i := range resp.pix {
		a, b, c := dx.pix[i], dxy.pix[i], dy.pix[i]
		resp.pix[i] = a*c - b*b - k*(a+c)*(a+c)
	}
	return resp
}

// normalizeToBytes min-max scales the plane to 0..255 and converts each
// value to a saturated byte.
func normalizeToBytes(p plane) []uint8 {
	out := make([]uint8, len(p.pix))
	if len(p.pix) == 0 {
		return out
	}
	lo, hi := p.pix[0], p.pix[0]
	for _, v := range p.pix[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, v := range p.pix {
		n := math.RoundToEven(math.Abs((v - lo) * 255 / span))
		if n > 255 {
			n = 255
		}
		out[i] = uint8(n)
	}
	return out
}

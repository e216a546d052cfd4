package warp

import (
	"errors"
	"math"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"gonum.org/v1/gonum/mat"
)

// Homography is a row-major 3x3 projective matrix.
type Homography [9]float64

// Apply maps (x, y). ok is false when the point maps to infinity.
func (h Homography) Apply(x, y float64) (float64, float64, bool) {
	denom := h[6]*x + h[7]*y + h[8]
	if denom == 0 {
		return 0, 0, false
	}
	return (h[0]*x + h[1]*y + h[2]) / denom, (h[3]*x + h[4]*y + h[5]) / denom, true
}

// Inverse returns the inverse mapping via the adjugate.
func (h Homography) Inverse() (Homography, bool) {
	a, b, c := h[0], h[1], h[2]
	d, e, f := h[3], h[4], h[5]
	g, hh, i := h[6], h[7], h[8]

	det := a*(e*i-f*hh) - b*(d*i-f*g) + c*(d*hh-e*g)
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Homography{}, false
	}
	inv := Homography{
		e*i - f*hh, c*hh - b*i, b*f - c*e,
		f*g - d*i, a*i - c*g, c*d - a*f,
		d*hh - e*g, b*g - a*hh, a*e - b*d,
	}
	for k := range inv {
		inv[k] /= det
	}
	return inv, true
}

func (h Homography) finite() bool {
	for _, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

var errSingular = errors.New("singular point configuration")

// Estimate computes the homography mapping src[i] to dst[i]. Four pairs are
// solved exactly; more pairs are fitted by least squares.
func Estimate(src, dst []geometry.Point) (Homography, error) {
	if len(src) != len(dst) || len(src) < 4 {
		return Homography{}, errors.New("need at least 4 point pairs")
	}
	var (
		h  Homography
		ok bool
	)
	if len(src) == 4 {
		h, ok = exactHomography([4]geometry.Point(src), [4]geometry.Point(dst))
		if !ok {
			return Homography{}, errSingular
		}
	} else {
		var err error
		if h, err = leastSquaresHomography(src, dst); err != nil {
			return Homography{}, err
		}
	}
	if !h.finite() {
		return Homography{}, errors.New("non-finite homography")
	}
	return h, nil
}

// fillRows writes the two equations of one correspondence, with h22 fixed to 1:
// x' = (h00 X + h01 Y + h02)/(h20 X + h21 Y + 1) and likewise for y'.
func fillRows(set func(r, c int, v float64), r int, p, q geometry.Point) {
	X, Y := p.X, p.Y
	x, y := q.X, q.Y
	set(r, 0, X)
	set(r, 1, Y)
	set(r, 2, 1)
	set(r, 6, -X*x)
	set(r, 7, -Y*x)
	set(r+1, 3, X)
	set(r+1, 4, Y)
	set(r+1, 5, 1)
	set(r+1, 6, -X*y)
	set(r+1, 7, -Y*y)
}

func exactHomography(p, q [4]geometry.Point) (Homography, bool) {
	var A [8][8]float64
	var b [8]float64
	for i := range 4 {
		fillRows(func(r, c int, v float64) { A[r][c] = v }, 2*i, p[i], q[i])
		b[2*i] = q[i].X
		b[2*i+1] = q[i].Y
	}
	h, ok := solve8x8(A, b)
	if !ok {
		return Homography{}, false
	}
	return Homography{h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], 1}, true
}

func leastSquaresHomography(src, dst []geometry.Point) (Homography, error) {
	n := len(src)
	A := mat.NewDense(n*2, 8, nil)
	B := mat.NewVecDense(n*2, nil)
	for i := range n {
		fillRows(A.Set, 2*i, src[i], dst[i])
		B.SetVec(2*i, dst[i].X)
		B.SetVec(2*i+1, dst[i].Y)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return Homography{}, err
	}
	var h Homography
	for k := range 8 {
		h[k] = params.AtVec(k)
	}
	h[8] = 1
	return h, nil
}

// solve8x8 runs Gauss-Jordan elimination with partial pivoting.
func solve8x8(a [8][8]float64, b [8]float64) ([8]float64, bool) {
	for col := range 8 {
		pivot := findPivotRow(&a, col)
		if pivot < 0 {
			return [8]float64{}, false
		}
		if pivot != col {
			a[col], a[pivot] = a[pivot], a[col]
			b[col], b[pivot] = b[pivot], b[col]
		}
		div := a[col][col]
		for c := col; c < 8; c++ {
			a[col][c] /= div
		}
		b[col] /= div
		eliminateColumn(&a, &b, col)
	}
	return b, true
}

func findPivotRow(a *[8][8]float64, col int) int {
	maxAbs := math.Abs(a[col][col])
	pivot := col
	for r := col + 1; r < 8; r++ {
		if v := math.Abs(a[r][col]); v > maxAbs {
			maxAbs, pivot = v, r
		}
	}
	if maxAbs < 1e-12 {
		return -1
	}
	return pivot
}

func eliminateColumn(a *[8][8]float64, b *[8]float64, col int) {
	for r := range 8 {
		if r == col {
			continue
		}
		factor := a[r][col]
		if factor == 0 {
			continue
		}
		for c := col; c < 8; c++ {
			a[r][c] -= factor * a[col][c]
		}
		b[r] -= factor * b[col]
	}
}

package geometry

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genPoint generates a random point.
func genPoint() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(-1000, 1000),
		gen.Float64Range(-1000, 1000),
	).Map(func(vals []interface{}) Point {
		return Point{X: vals[0].(float64), Y: vals[1].(float64)}
	})
}

// TestAngleDegrees_InRange verifies the angle is always finite and in [0,180].
func TestAngleDegrees_InRange(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("angle within [0,180]", prop.ForAll(
		func(a, v, b Point) bool {
			got := AngleDegrees(a, v, b)
			return !math.IsNaN(got) && got >= 0 && got <= 180
		},
		genPoint(), genPoint(), genPoint(),
	))

	properties.Property("collinear arms give 0 or 180", prop.ForAll(
		func(v, dir Point, s1, s2 float64) bool {
			if dir.Len() < 1e-6 {
				return true
			}
			a := v.Add(dir.Scale(s1))
			b := v.Add(dir.Scale(s2))
			got := AngleDegrees(a, v, b)
			return math.Abs(got) < 1e-6 || math.Abs(got-180) < 1e-6
		},
		genPoint(), genPoint(),
		gen.Float64Range(-5, 5), gen.Float64Range(-5, 5),
	))

	properties.TestingRun(t)
}

// TestOrderQuad_AxisAlignedRectangles verifies axis-aligned rectangles are
// canonicalised regardless of input order.
func TestOrderQuad_AxisAlignedRectangles(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("rectangle corners come back TL,TR,BR,BL", prop.ForAll(
		func(x, y, w, h float64, shift int) bool {
			want := Quad{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}
			in := make([]Point, 4)
			for i := range 4 {
				in[i] = want[(i+shift)%4]
			}
			got, ok := OrderQuad(in)
			return ok && got == want
		},
		gen.Float64Range(0, 500),
		gen.Float64Range(0, 500),
		gen.Float64Range(10, 500),
		gen.Float64Range(10, 500),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}

// TestConvexHull_ContainsAllPoints verifies every input lies inside or on the hull.
func TestConvexHull_ContainsAllPoints(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("hull contains all points", prop.ForAll(
		func(pts []Point) bool {
			hull := ConvexHull(pts)
			if len(hull) < 3 {
				return true
			}
			for _, p := range pts {
				for i := range hull {
					if cross(hull[i], hull[(i+1)%len(hull)], p) < -1e-6 {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOfN(12, genPoint()),
	))

	properties.TestingRun(t)
}

// TestBoundingBox_ContainsAllPoints verifies the box encloses its inputs.
func TestBoundingBox_ContainsAllPoints(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("box contains all points", prop.ForAll(
		func(pts []Point) bool {
			b := BoundingBox(pts)
			for _, p := range pts {
				if p.X < b.MinX || p.X > b.MaxX || p.Y < b.MinY || p.Y > b.MaxY {
					return false
				}
			}
			return b.Width() >= 0 && b.Height() >= 0
		},
		gen.SliceOfN(8, genPoint()),
	))

	properties.TestingRun(t)
}

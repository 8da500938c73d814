// Package geometry provides the basic geometric types shared by the
// correspondence, alignment and image packages.
package geometry

import (
	"fmt"
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Add returns the sum of two points.
func (p Point2D) Add(other Point2D) Point2D {
	return Point2D{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Scale returns the point scaled by a factor.
func (p Point2D) Scale(factor float64) Point2D {
	return Point2D{X: p.X * factor, Y: p.Y * factor}
}

// IsZero reports whether both coordinates are exactly zero.
func (p Point2D) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

func (p Point2D) String() string {
	return fmt.Sprintf("(%.2f,%.2f)", p.X, p.Y)
}

// RectInt represents a rectangle with integer coordinates. X and Y may be
// negative; Width and Height are never negative for a valid rectangle.
type RectInt struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewRectInt creates a new RectInt.
func NewRectInt(x, y, width, height int) RectInt {
	return RectInt{X: x, Y: y, Width: width, Height: height}
}

// Empty reports whether the rectangle covers no pixels.
func (r RectInt) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Intersect returns the overlap of two rectangles. The result is empty
// (zero width or height) when they do not overlap.
func (r RectInt) Intersect(other RectInt) RectInt {
	x0 := max(r.X, other.X)
	y0 := max(r.Y, other.Y)
	x1 := min(r.X+r.Width, other.X+other.Width)
	y1 := min(r.Y+r.Height, other.Y+other.Height)
	if x1 <= x0 || y1 <= y0 {
		return RectInt{X: x0, Y: y0}
	}
	return RectInt{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// AffineTransform represents a 2x3 affine transformation matrix.
// [a b tx]
// [c d ty]
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// Identity returns the identity transform.
func Identity() AffineTransform {
	return AffineTransform{A: 1, D: 1}
}

// Translation returns a translation transform.
func Translation(tx, ty float64) AffineTransform {
	return AffineTransform{A: 1, D: 1, TX: tx, TY: ty}
}

// Rotation returns a rotation transform around the origin.
func Rotation(radians float64) AffineTransform {
	cos := math.Cos(radians)
	sin := math.Sin(radians)
	return AffineTransform{A: cos, B: -sin, C: sin, D: cos}
}

// Scale returns a scaling transform.
func Scale(sx, sy float64) AffineTransform {
	return AffineTransform{A: sx, D: sy}
}

// Similarity returns the transform that scales uniformly, then rotates,
// then translates.
func Similarity(scale, radians, tx, ty float64) AffineTransform {
	return Translation(tx, ty).Compose(Rotation(radians)).Compose(Scale(scale, scale))
}

// Apply applies the transform to a point.
func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// Compose returns this transform composed with another (this * other),
// so other is applied first.
func (t AffineTransform) Compose(other AffineTransform) AffineTransform {
	return AffineTransform{
		A:  t.A*other.A + t.B*other.C,
		B:  t.A*other.B + t.B*other.D,
		TX: t.A*other.TX + t.B*other.TY + t.TX,
		C:  t.C*other.A + t.D*other.C,
		D:  t.C*other.B + t.D*other.D,
		TY: t.C*other.TX + t.D*other.TY + t.TY,
	}
}

// Det returns the determinant of the linear part.
func (t AffineTransform) Det() float64 {
	return t.A*t.D - t.B*t.C
}

// Inverse returns the inverse transform, if it exists.
func (t AffineTransform) Inverse() (AffineTransform, bool) {
	det := t.Det()
	if math.Abs(det) < 1e-10 {
		return AffineTransform{}, false
	}

	invDet := 1.0 / det
	return AffineTransform{
		A:  t.D * invDet,
		B:  -t.B * invDet,
		TX: (t.B*t.TY - t.D*t.TX) * invDet,
		C:  -t.C * invDet,
		D:  t.A * invDet,
		TY: (t.C*t.TX - t.A*t.TY) * invDet,
	}, true
}

// RotationDegrees returns the rotation of the x axis under the transform.
func (t AffineTransform) RotationDegrees() float64 {
	return math.Atan2(t.C, t.A) * 180 / math.Pi
}

// ScaleFactor returns the length the unit x vector has after the transform.
// For a similarity transform this is its uniform scale.
func (t AffineTransform) ScaleFactor() float64 {
	return math.Sqrt(t.A*t.A + t.C*t.C)
}

// ApproxEqual reports whether every coefficient of the two transforms
// differs by at most tol.
func (t AffineTransform) ApproxEqual(other AffineTransform, tol float64) bool {
	a := t.ToMatrix()
	b := other.ToMatrix()
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			if math.Abs(a[r][c]-b[r][c]) > tol {
				return false
			}
		}
	}
	return true
}

// ToMatrix returns the transform as a [2][3]float64 array.
func (t AffineTransform) ToMatrix() [2][3]float64 {
	return [2][3]float64{
		{t.A, t.B, t.TX},
		{t.C, t.D, t.TY},
	}
}

// FromMatrix creates an AffineTransform from a [2][3]float64 array.
func FromMatrix(m [2][3]float64) AffineTransform {
	return AffineTransform{
		A: m[0][0], B: m[0][1], TX: m[0][2],
		C: m[1][0], D: m[1][1], TY: m[1][2],
	}
}

func (t AffineTransform) String() string {
	return fmt.Sprintf("[%.6f %.6f %.3f; %.6f %.6f %.3f]", t.A, t.B, t.TX, t.C, t.D, t.TY)
}

// Centroid computes the centroid (average position) of a set of points.
func Centroid(points []Point2D) Point2D {
	if len(points) == 0 {
		return Point2D{}
	}
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(points))
	return Point2D{X: sumX / n, Y: sumY / n}
}

// Package alignment fits the transform that maps raw-image coordinates onto
// the reference image from manually picked point pairs.
package alignment

import (
	"errors"
	"fmt"
	"math"

	"manual-align/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInsufficientPoints is returned when fewer than two pairs overlap.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrDegenerateCorrespondence is returned when the pairs are coincident
	// or collinear and cannot determine a transform.
	ErrDegenerateCorrespondence = errors.New("degenerate correspondence")
)

// Point spreads below this (in pixels) are treated as coincident.
const minSpread = 1e-6

// Relative singular value below which a point set counts as collinear.
const collinearTolerance = 1e-9

// Kind names the transform model that was fitted.
type Kind int

const (
	KindSimilarity Kind = iota + 1
	KindAffine
)

func (k Kind) String() string {
	switch k {
	case KindSimilarity:
		return "similarity"
	case KindAffine:
		return "affine"
	default:
		return "unknown"
	}
}

// Result holds a fitted transform and how well it reproduces the pairs.
type Result struct {
	Transform geometry.AffineTransform // raw -> reference
	Kind      Kind
	// Suboptimal is set for two-pair fits, which are exact but have no
	// redundancy to average out picking error.
	Suboptimal bool
	Pairs      int
	Residuals  []float64 // per pair, in reference pixels
	MeanError  float64
	MaxError   float64
}

// Estimate fits a transform mapping raw points onto reference points.
// Two pairs give a similarity transform; three or more give a least-squares
// affine transform. Neither slice is modified.
func Estimate(ref, raw []geometry.Point2D) (*Result, error) {
	if len(ref) != len(raw) {
		return nil, fmt.Errorf("point count mismatch: %d vs %d", len(ref), len(raw))
	}
	if len(ref) < 2 {
		return nil, fmt.Errorf("need at least 2 overlapping points, got %d: %w", len(ref), ErrInsufficientPoints)
	}

	var (
		transform geometry.AffineTransform
		kind      Kind
		err       error
	)
	if len(ref) == 2 {
		kind = KindSimilarity
		transform, err = computeSimilarityFrom2(raw[0], raw[1], ref[0], ref[1])
	} else {
		kind = KindAffine
		transform, err = computeAffineLeastSquares(raw, ref)
	}
	if err != nil {
		return nil, err
	}

	residuals := make([]float64, len(raw))
	var worst float64
	for i := range raw {
		d := transform.Apply(raw[i]).Distance(ref[i])
		residuals[i] = d
		worst = math.Max(worst, d)
	}

	return &Result{
		Transform:  transform,
		Kind:       kind,
		Suboptimal: kind == KindSimilarity,
		Pairs:      len(ref),
		Residuals:  residuals,
		MeanError:  CalculateAlignmentError(raw, ref, transform),
		MaxError:   worst,
	}, nil
}

// computeSimilarityFrom2 computes the similarity transform (uniform scale,
// rotation, translation) taking s0->d0 and s1->d1 exactly.
func computeSimilarityFrom2(s0, s1, d0, d1 geometry.Point2D) (geometry.AffineTransform, error) {
	// Vector in source
	sx, sy := s1.X-s0.X, s1.Y-s0.Y
	// Vector in destination
	dx, dy := d1.X-d0.X, d1.Y-d0.Y

	srcLen := math.Sqrt(sx*sx + sy*sy)
	dstLen := math.Sqrt(dx*dx + dy*dy)
	if srcLen < minSpread || dstLen < minSpread {
		return geometry.AffineTransform{}, fmt.Errorf("coincident points: %w", ErrDegenerateCorrespondence)
	}

	scale := dstLen / srcLen

	// Rotation angle = angle(dst) - angle(src)
	theta := math.Atan2(dy, dx) - math.Atan2(sy, sx)
	a := scale * math.Cos(theta)
	c := scale * math.Sin(theta)

	// Translation: d0 = sR * s0 + t  =>  t = d0 - sR * s0
	tx := d0.X - (a*s0.X - c*s0.Y)
	ty := d0.Y - (c*s0.X + a*s0.Y)

	return geometry.AffineTransform{
		A: a, B: -c, TX: tx,
		C: c, D: a, TY: ty,
	}, nil
}

// computeAffineLeastSquares computes the affine transform minimizing the
// squared reprojection error of src onto dst.
func computeAffineLeastSquares(src, dst []geometry.Point2D) (geometry.AffineTransform, error) {
	n := len(src)
	if n < 3 {
		return geometry.AffineTransform{}, fmt.Errorf("need at least 3 points, got %d: %w", n, ErrInsufficientPoints)
	}
	if collinear(src) {
		return geometry.AffineTransform{}, fmt.Errorf("raw points are collinear: %w", ErrDegenerateCorrespondence)
	}
	if collinear(dst) {
		return geometry.AffineTransform{}, fmt.Errorf("reference points are collinear: %w", ErrDegenerateCorrespondence)
	}

	// Build overdetermined system
	A := mat.NewDense(n*2, 6, nil)
	B := mat.NewVecDense(n*2, nil)

	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y
		xp, yp := dst[i].X, dst[i].Y

		// x' = a*x + b*y + tx
		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, xp)

		// y' = c*x + d*y + ty
		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, yp)
	}

	// Solve using QR decomposition
	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return geometry.AffineTransform{}, fmt.Errorf("least squares: %v: %w", err, ErrDegenerateCorrespondence)
	}

	return geometry.AffineTransform{
		A:  params.AtVec(0),
		B:  params.AtVec(1),
		TX: params.AtVec(2),
		C:  params.AtVec(3),
		D:  params.AtVec(4),
		TY: params.AtVec(5),
	}, nil
}

// collinear reports whether the points lie on a single line (or a single
// spot), judged by the singular values of the centered coordinates.
func collinear(points []geometry.Point2D) bool {
	c := geometry.Centroid(points)
	m := mat.NewDense(len(points), 2, nil)
	for i, p := range points {
		m.Set(i, 0, p.X-c.X)
		m.Set(i, 1, p.Y-c.Y)
	}

	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDNone) {
		return true
	}
	vals := svd.Values(nil)
	if vals[0] < minSpread {
		return true
	}
	return vals[1]/vals[0] < collinearTolerance
}

// CalculateAlignmentError calculates the mean alignment error after transformation.
func CalculateAlignmentError(srcPoints, dstPoints []geometry.Point2D, transform geometry.AffineTransform) float64 {
	if len(srcPoints) != len(dstPoints) || len(srcPoints) == 0 {
		return math.Inf(1)
	}

	var totalError float64
	for i := range srcPoints {
		totalError += transform.Apply(srcPoints[i]).Distance(dstPoints[i])
	}

	return totalError / float64(len(srcPoints))
}

// Package cvwarp provides an OpenCV backed image warper.
package cvwarp

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	imgpkg "manual-align/internal/image"
	"manual-align/pkg/geometry"

	"gocv.io/x/gocv"
)

// Warper resamples through gocv.WarpAffineWithParams. It satisfies
// image.Warper.
type Warper struct {
	Interp imgpkg.Interpolation
}

var _ imgpkg.Warper = Warper{}

// Warp resamples src through t into a width x height gray image. Pixels
// mapped from outside src are black.
func (w Warper) Warp(src image.Image, t geometry.AffineTransform, width, height int) (*image.Gray, error) {
	if src == nil {
		return nil, errors.New("warp: nil source image")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("warp: invalid output size %dx%d", width, height)
	}
	if _, ok := t.Inverse(); !ok {
		return nil, fmt.Errorf("warp %s: %w", t, imgpkg.ErrSingularTransform)
	}

	mat, err := grayToMat(imgpkg.ToGray8(src))
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	dst := warpAffine(mat, t, width, height, w.flags())
	defer dst.Close()

	return matToGray(dst)
}

func (w Warper) flags() gocv.InterpolationFlags {
	switch w.Interp {
	case imgpkg.InterpNearest:
		return gocv.InterpolationNearestNeighbor
	case imgpkg.InterpCatmullRom:
		return gocv.InterpolationCubic
	default:
		return gocv.InterpolationLinear
	}
}

// warpAffine applies an affine transform to a Mat with a constant black
// border.
func warpAffine(src gocv.Mat, transform geometry.AffineTransform, width, height int, flags gocv.InterpolationFlags) gocv.Mat {
	transformMat := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	transformMat.SetDoubleAt(0, 0, transform.A)
	transformMat.SetDoubleAt(0, 1, transform.B)
	transformMat.SetDoubleAt(0, 2, transform.TX)
	transformMat.SetDoubleAt(1, 0, transform.C)
	transformMat.SetDoubleAt(1, 1, transform.D)
	transformMat.SetDoubleAt(1, 2, transform.TY)
	defer transformMat.Close()

	dst := gocv.NewMat()
	gocv.WarpAffineWithParams(src, &dst, transformMat, image.Point{X: width, Y: height},
		flags, gocv.BorderConstant, color.RGBA{R: 0, G: 0, B: 0, A: 0})
	return dst
}

// grayToMat wraps a packed gray image in a single channel Mat.
func grayToMat(img *image.Gray) (gocv.Mat, error) {
	b := img.Bounds()
	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, img.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("gray to mat: %w", err)
	}
	return mat, nil
}

// matToGray copies a single channel 8-bit Mat into an image.Gray.
func matToGray(mat gocv.Mat) (*image.Gray, error) {
	if mat.Empty() {
		return nil, errors.New("mat to gray: empty mat")
	}
	if mat.Type() != gocv.MatTypeCV8UC1 {
		return nil, fmt.Errorf("mat to gray: unexpected mat type %v", mat.Type())
	}

	h, w := mat.Rows(), mat.Cols()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x := range row {
			row[x] = mat.GetUCharAt(y, x)
		}
	}
	return img, nil
}

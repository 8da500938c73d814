package image

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"manual-align/pkg/geometry"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// ErrSingularTransform is returned when a transform has no inverse and so
// cannot be used to resample an image.
var ErrSingularTransform = errors.New("singular transform")

// warpPad is the black border added around the source before resampling.
// It keeps samples just outside the source from picking up edge pixels.
const warpPad = 2

// Interpolation selects the resampling kernel used by Warp.
type Interpolation int

const (
	InterpBilinear Interpolation = iota
	InterpNearest
	InterpCatmullRom
)

func (i Interpolation) String() string {
	switch i {
	case InterpBilinear:
		return "bilinear"
	case InterpNearest:
		return "nearest"
	case InterpCatmullRom:
		return "catmullrom"
	default:
		return "unknown"
	}
}

// ParseInterpolation maps a kernel name to an Interpolation. The empty
// string selects bilinear.
func ParseInterpolation(name string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bilinear", "linear":
		return InterpBilinear, nil
	case "nearest", "nn":
		return InterpNearest, nil
	case "catmullrom", "cubic":
		return InterpCatmullRom, nil
	default:
		return InterpBilinear, fmt.Errorf("unknown interpolation %q", name)
	}
}

func (i Interpolation) interpolator() draw.Interpolator {
	switch i {
	case InterpNearest:
		return draw.NearestNeighbor
	case InterpCatmullRom:
		return draw.CatmullRom
	default:
		return draw.BiLinear
	}
}

// Warper resamples a source image through a raw->reference transform into
// a width x height grid in the reference frame.
type Warper interface {
	Warp(src image.Image, t geometry.AffineTransform, width, height int) (*image.Gray, error)
}

// DrawWarper is the pure Go Warper built on golang.org/x/image/draw.
type DrawWarper struct {
	Interp Interpolation
}

// Warp implements Warper.
func (w DrawWarper) Warp(src image.Image, t geometry.AffineTransform, width, height int) (*image.Gray, error) {
	return Warp(src, t, width, height, w.Interp)
}

// Warp resamples src through t (source pixel -> output pixel, pixel centers
// at integer coordinates) into a width x height 8-bit gray image. Output
// pixels whose source location falls outside the source pixel footprint
// [-0.5, size-0.5) are 0.
func Warp(src image.Image, t geometry.AffineTransform, width, height int, interp Interpolation) (*image.Gray, error) {
	if src == nil {
		return nil, errors.New("warp: nil source image")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("warp: invalid output size %dx%d", width, height)
	}
	inv, ok := t.Inverse()
	if !ok {
		return nil, fmt.Errorf("warp %s: %w", t, ErrSingularTransform)
	}

	sb := src.Bounds()
	padded := image.NewGray(image.Rect(0, 0, sb.Dx()+2*warpPad, sb.Dy()+2*warpPad))
	draw.Draw(padded, image.Rect(warpPad, warpPad, warpPad+sb.Dx(), warpPad+sb.Dy()), src, sb.Min, draw.Src)

	// x/image/draw samples at pixel centers (x+0.5); shift in and out of
	// that convention around t, and account for the padding offset.
	half := geometry.Translation(0.5, 0.5)
	unhalf := geometry.Translation(-0.5, -0.5)
	unpad := geometry.Translation(-warpPad, -warpPad)
	s2d := half.Compose(t).Compose(unpad).Compose(unhalf)

	dst := image.NewGray(image.Rect(0, 0, width, height))
	interp.interpolator().Transform(dst, f64.Aff3{s2d.A, s2d.B, s2d.TX, s2d.C, s2d.D, s2d.TY}, padded, padded.Bounds(), draw.Src, nil)

	maskOutside(dst, inv, sb.Dx(), sb.Dy())
	return dst, nil
}

// maskOutside zeroes every pixel of dst whose source location under inv lies
// outside a srcW x srcH image.
func maskOutside(dst *image.Gray, inv geometry.AffineTransform, srcW, srcH int) {
	maxX := float64(srcW) - 0.5
	maxY := float64(srcH) - 0.5
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := dst.Pix[dst.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			p := inv.Apply(geometry.NewPoint2D(float64(b.Min.X+x), float64(y)))
			if p.X < -0.5 || p.Y < -0.5 || p.X >= maxX || p.Y >= maxY {
				row[x] = 0
			}
		}
	}
}

package image

import (
	"errors"
	"fmt"
	"image"

	"manual-align/pkg/colorutil"
)

// ErrSizeMismatch is returned when two images that must share a frame have
// different dimensions.
var ErrSizeMismatch = errors.New("image size mismatch")

// Fuse builds the red/gray diagnostic overlay. Every output pixel is the
// gray level of gray replicated across R, G and B, except where mask is
// black (luminance 0), which is painted pure red. Both images must already
// be in the same frame.
func Fuse(gray, mask image.Image) (*image.RGBA, error) {
	if gray == nil || mask == nil {
		return nil, errors.New("fuse: nil image")
	}
	gb := gray.Bounds()
	mb := mask.Bounds()
	if gb.Dx() != mb.Dx() || gb.Dy() != mb.Dy() {
		return nil, fmt.Errorf("fuse %dx%d with mask %dx%d: %w", gb.Dx(), gb.Dy(), mb.Dx(), mb.Dy(), ErrSizeMismatch)
	}

	result := image.NewRGBA(image.Rect(0, 0, gb.Dx(), gb.Dy()))
	red := colorutil.Red

	for y := 0; y < gb.Dy(); y++ {
		for x := 0; x < gb.Dx(); x++ {
			off := result.PixOffset(x, y)
			if grayAt(mask, mb.Min.X+x, mb.Min.Y+y) == 0 {
				result.Pix[off+0] = red.R
				result.Pix[off+1] = red.G
				result.Pix[off+2] = red.B
				result.Pix[off+3] = 255
				continue
			}
			v := grayAt(gray, gb.Min.X+x, gb.Min.Y+y)
			result.Pix[off+0] = v
			result.Pix[off+1] = v
			result.Pix[off+2] = v
			result.Pix[off+3] = 255
		}
	}

	return result, nil
}

// grayAt returns the 8-bit luminance of img at (x, y).
func grayAt(img image.Image, x, y int) uint8 {
	if g, ok := img.(*image.Gray); ok {
		return g.GrayAt(x, y).Y
	}
	return colorutil.Luminance8(img.At(x, y))
}

// Package image provides image loading and saving, warping into the
// reference frame, overlay compositing and padded cropping.
package image

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff"
)

var (
	// ErrUnreadablePath is returned when an image file cannot be opened or decoded.
	ErrUnreadablePath = errors.New("unreadable image")
	// ErrWriteFailure is returned when an image file cannot be encoded or written.
	ErrWriteFailure = errors.New("image write failed")
)

// Layer is one loaded image together with the file it came from.
type Layer struct {
	Path  string      // Original file path
	Image *image.Gray // 8-bit grayscale pixels, origin at (0,0)
}

// Load decodes the image at path and normalizes it to 8-bit grayscale.
func Load(path string) (*Layer, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", path, err, ErrUnreadablePath)
	}

	return &Layer{
		Path:  path,
		Image: ToGray8(img),
	}, nil
}

// Width returns the image width in pixels.
func (l *Layer) Width() int {
	if l == nil || l.Image == nil {
		return 0
	}
	return l.Image.Bounds().Dx()
}

// Height returns the image height in pixels.
func (l *Layer) Height() int {
	if l == nil || l.Image == nil {
		return 0
	}
	return l.Image.Bounds().Dy()
}

// Save encodes img to path; the format follows the file extension.
func Save(img image.Image, path string) error {
	if img == nil {
		return fmt.Errorf("save %s: nil image: %w", path, ErrWriteFailure)
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("save %s: %v: %w", path, err, ErrWriteFailure)
	}
	return nil
}

// ToGray8 converts img to an 8-bit grayscale image with its origin at (0,0).
// An 8-bit gray source is copied unchanged. Any other source is converted to
// luminance and stretched so its brightest pixel becomes 255.
func ToGray8(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			src := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], src[:b.Dx()])
		}
		return out
	}

	lum := make([]uint16, b.Dx()*b.Dy())
	var peak uint16
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y
			lum[y*b.Dx()+x] = v
			if v > peak {
				peak = v
			}
		}
	}
	if peak == 0 {
		return out
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Pix[y*out.Stride+x] = uint8(uint32(lum[y*b.Dx()+x]) * 255 / uint32(peak))
		}
	}
	return out
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg", ".gif", ".bmp"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

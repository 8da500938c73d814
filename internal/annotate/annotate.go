// Package annotate renders correspondence slot markers and the crop outline
// over an image, for checking picked points outside the interactive viewer.
package annotate

import (
	"image"
	"strconv"

	"manual-align/internal/correspondence"
	"manual-align/pkg/colorutil"
	"manual-align/pkg/geometry"

	"github.com/fogleman/gg"
)

// Options controls marker rendering.
type Options struct {
	MarkerSize float64           // half length of each cross arm, in pixels
	LineWidth  float64           // stroke width, in pixels
	Labels     bool              // draw the slot number next to each marker
	Crop       *geometry.RectInt // outline drawn in white when non-nil
}

// DefaultOptions returns the options used by the preview command.
func DefaultOptions() Options {
	return Options{
		MarkerSize: 6,
		LineWidth:  2,
		Labels:     true,
	}
}

// Markers draws a '+' in the slot color at every set point of points and
// returns the result as a new RGBA image. img is not modified.
func Markers(img image.Image, points correspondence.PointSet, opts Options) *image.RGBA {
	dc := gg.NewContextForImage(img)
	dc.SetLineWidth(opts.LineWidth)
	dc.SetLineCapButt()

	if opts.Crop != nil && !opts.Crop.Empty() {
		c := opts.Crop
		dc.SetColor(colorutil.White)
		dc.SetLineWidth(1)
		dc.DrawRectangle(float64(c.X)+0.5, float64(c.Y)+0.5, float64(c.Width-1), float64(c.Height-1))
		dc.Stroke()
		dc.SetLineWidth(opts.LineWidth)
	}

	for i, p := range points {
		if !p.Set {
			continue
		}
		slot := i + 1
		// Pixel (x, y) is centered at (x+0.5, y+0.5) in context space.
		x, y := p.X+0.5, p.Y+0.5
		s := opts.MarkerSize

		dc.SetColor(colorutil.SlotColor(slot))
		dc.DrawLine(x-s, y, x+s, y)
		dc.DrawLine(x, y-s, x, y+s)
		dc.Stroke()

		if opts.Labels {
			dc.DrawStringAnchored(strconv.Itoa(slot), x+s+2, y-s-2, 0, 0)
		}
	}

	return dc.Image().(*image.RGBA)
}

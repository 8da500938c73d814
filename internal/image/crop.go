package image

import (
	"image"
	"image/color"

	"manual-align/pkg/geometry"

	"golang.org/x/image/draw"
)

// Extract returns the part of img covered by crop, as a new image of exactly
// crop.Width x crop.Height. Any part of the crop outside img, on any side, is
// black. Crop coordinates are relative to the image origin and may be
// negative. A nil crop returns img itself.
//
// Gray sources produce *image.Gray; anything else produces opaque *image.RGBA.
func Extract(img image.Image, crop *geometry.RectInt) image.Image {
	if crop == nil {
		return img
	}

	w := max(crop.Width, 0)
	h := max(crop.Height, 0)
	outRect := image.Rect(0, 0, w, h)

	var dst draw.Image
	if _, ok := img.(*image.Gray); ok {
		dst = image.NewGray(outRect)
	} else {
		rgba := image.NewRGBA(outRect)
		draw.Draw(rgba, outRect, image.NewUniform(color.Black), image.Point{}, draw.Src)
		dst = rgba
	}

	b := img.Bounds()
	want := geometry.NewRectInt(crop.X, crop.Y, w, h)
	visible := want.Intersect(geometry.NewRectInt(0, 0, b.Dx(), b.Dy()))
	if visible.Empty() {
		return dst
	}

	target := image.Rect(
		visible.X-crop.X,
		visible.Y-crop.Y,
		visible.X-crop.X+visible.Width,
		visible.Y-crop.Y+visible.Height,
	)
	draw.Draw(dst, target, img, image.Pt(b.Min.X+visible.X, b.Min.Y+visible.Y), draw.Src)
	return dst
}

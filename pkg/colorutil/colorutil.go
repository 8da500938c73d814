// Package colorutil provides the colors used for overlays and slot markers.
package colorutil

import (
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Overlay colors.
var (
	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// slotHex lists the marker color of each correspondence slot, slot 1 first:
// red, green, blue, purple, yellow.
var slotHex = [...]string{"#ff0000", "#00ff00", "#0000ff", "#ff00ff", "#ffff00"}

// SlotCount is the number of colored slots.
const SlotCount = len(slotHex)

// SlotColor returns the marker color for a 1-based slot number. Out of range
// slots get white.
func SlotColor(slot int) color.RGBA {
	if slot < 1 || slot > len(slotHex) {
		return White
	}
	c, err := colorful.Hex(slotHex[slot-1])
	if err != nil {
		return White
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Luminance8 returns the 8-bit gray level of c using the standard library's
// gray model.
func Luminance8(c color.Color) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}

package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorWhite  = lipgloss.Color("255")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("240")
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
	styleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleKey     = lipgloss.NewStyle().Foreground(colorGray).Width(12)
)

const (
	iconSuccess = "✓"
	iconWarning = "!"
	iconArrow   = "→"
)

func printTitle(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleTitle.Render(fmt.Sprintf(format, args...)))
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleWarning.Render(iconWarning)+" "+styleWarning.Render(fmt.Sprintf(format, args...)))
}

func printFile(w io.Writer, path string) {
	fmt.Fprintln(w, "  "+styleDim.Render(iconArrow)+" "+styleValue.Render(path))
}

func printKeyValue(w io.Writer, key, value string) {
	fmt.Fprintln(w, styleKey.Render(key)+" "+styleValue.Render(value))
}

func printDetail(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, "  "+styleDim.Render(fmt.Sprintf(format, args...)))
}

package cli

import (
	"fmt"
	"os"
	"strings"
)

const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	White  = "\033[37m"
)

// RGB represents a TrueColor
type RGB struct {
	R, G, B float64
}

var (
	BrandBlue   = RGB{0, 120, 255}
	BrandPurple = RGB{189, 52, 235}

	scoreLow  = RGB{220, 60, 60}
	scoreHigh = RGB{40, 200, 120}
)

// disableColor is a cached check for the environment variable
var disableColor = checkNoColor()

func checkNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// Enabled reports whether ANSI colors are written.
func Enabled() bool {
	return !disableColor
}

// SetEnabled overrides the NO_COLOR detection, e.g. for a --no-color flag.
func SetEnabled(on bool) {
	disableColor = !on
}

// Style wraps text in a specific color code
func Style(text string, colorCode string) string {
	if disableColor {
		return text
	}
	return fmt.Sprintf("%s%s%s", colorCode, text, Reset)
}

// ColorizeRGB returns text wrapped in ANSI TrueColor escape codes
func ColorizeRGB(text string, c RGB) string {
	if disableColor {
		return text
	}
	return fmt.Sprintf("\033[38;2;%d;%d;%dm%s%s", int(c.R), int(c.G), int(c.B), text, Reset)
}

// Gradient colors text by linear interpolation between start and end at
// progress in [0, 1].
func Gradient(text string, start, end RGB, progress float64) string {
	if disableColor {
		return text
	}
	progress = clamp01(progress)
	r := start.R + (end.R-start.R)*progress
	g := start.G + (end.G-start.G)*progress
	b := start.B + (end.B-start.B)*progress

	return ColorizeRGB(text, RGB{r, g, b})
}

// ScoreBar renders a score in [0, 1] as a fixed-width bar, red to green.
func ScoreBar(score float64, width int) string {
	if width <= 0 {
		return ""
	}
	score = clamp01(score)
	filled := int(score*float64(width) + 0.5)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return Gradient(bar, scoreLow, scoreHigh, score)
}

func CheckMark() string {
	return Style("✔", Green)
}

func Arrow() string {
	return Style("➜", Blue)
}

func CrossMark() string {
	return Style("✘", Red)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/v0xg/pagepilot/internal/executor"
)

// CursorSize is the height of the arrow sprite
const CursorSize = 16

const rippleRadius = 15

var (
	outline    = color.RGBA{0, 0, 0, 255}
	fill       = color.RGBA{255, 255, 255, 255}
	rippleBlue = color.RGBA{66, 133, 244, 160}
)

// DrawCursor returns a copy of frame with the pointer at pos and a ripple where it clicked.
// A position at the origin was never resolved and draws nothing.
func DrawCursor(frame image.Image, pos executor.CursorPosition) *image.RGBA {
	out := toRGBA(frame)
	if pos.X == 0 && pos.Y == 0 {
		return out
	}
	if pos.Click {
		drawRipple(out, pos.X, pos.Y)
	}
	if pos.State == executor.CursorText {
		drawIBeam(out, pos.X, pos.Y)
	} else {
		drawArrow(out, pos.X, pos.Y)
	}
	return out
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}

// drawArrow draws the classic pointer with its tip at (x, y)
func drawArrow(img *image.RGBA, x, y int) {
	for dy := 0; dy <= CursorSize; dy++ {
		for dx := 0; dx <= CursorSize; dx++ {
			if insideArrow(dx, dy) {
				setPixelSafe(img, x+dx, y+dy, fill)
			}
		}
	}
	points := [][2]int{{0, 0}, {0, 16}, {4, 12}, {7, 18}, {10, 17}, {7, 11}, {12, 11}}
	for i, p := range points {
		q := points[(i+1)%len(points)]
		drawLine(img, x+p[0], y+p[1], x+q[0], y+q[1], outline)
	}
}

func insideArrow(dx, dy int) bool {
	switch {
	case dx < 0 || dy < 0 || dy > CursorSize:
		return false
	case dy <= 11:
		return dx <= dy*12/16
	default:
		return dx <= 4
	}
}

// drawIBeam draws a text cursor centered on (x, y)
func drawIBeam(img *image.RGBA, x, y int) {
	half := CursorSize / 2
	for _, dx := range []int{-1, 1} {
		drawLine(img, x+dx, y-half, x+dx, y+half, fill)
	}
	drawLine(img, x, y-half, x, y+half, outline)
	drawLine(img, x-3, y-half, x+3, y-half, outline)
	drawLine(img, x-3, y+half, x+3, y+half, outline)
}

// drawRipple draws a two pixel ring around (x, y)
func drawRipple(img *image.RGBA, x, y int) {
	inner := (rippleRadius - 1) * (rippleRadius - 1)
	outer := (rippleRadius + 1) * (rippleRadius + 1)
	for dy := -rippleRadius - 1; dy <= rippleRadius+1; dy++ {
		for dx := -rippleRadius - 1; dx <= rippleRadius+1; dx++ {
			if d := dx*dx + dy*dy; d >= inner && d <= outer {
				blendPixel(img, x+dx, y+dy, rippleBlue)
			}
		}
	}
}

// drawLine is Bresenham's algorithm
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx, dy := abs(x2-x1), abs(y2-y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		setPixelSafe(img, x1, y1, c)
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func setPixelSafe(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// blendPixel composites c over the existing pixel
func blendPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if !image.Pt(x, y).In(img.Bounds()) {
		return
	}
	dst := img.RGBAAt(x, y)
	a := uint32(c.A)
	mix := func(s, d uint8) uint8 { return uint8((uint32(s)*a + uint32(d)*(255-a)) / 255) }
	img.SetRGBA(x, y, color.RGBA{mix(c.R, dst.R), mix(c.G, dst.G), mix(c.B, dst.B), 255})
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

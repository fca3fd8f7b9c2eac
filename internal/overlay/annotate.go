// Package overlay draws on screenshots: numbered candidate boxes for the oracle and the
// pointer for trace frames.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"strconv"

	"github.com/nfnt/resize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/v0xg/pagepilot/internal/dom"
)

// Label is one numbered box in image pixels
type Label struct {
	Index int
	Rect  image.Rectangle
}

var boxColors = []color.RGBA{
	{230, 25, 75, 255},
	{60, 180, 75, 255},
	{67, 99, 216, 255},
	{245, 130, 49, 255},
	{145, 30, 180, 255},
	{0, 128, 128, 255},
}

// LabelsFor turns snapshot entries into labels. With fullPage, boxes are moved to document
// coordinates to match a full-page screenshot, and entries captured while a scroll panel was
// scrolled away from its top are dropped: the panel is back at the top when the screenshot is
// taken, so they are not on it. Entries without area are skipped.
func LabelsFor(entries []dom.Entry, fullPage bool) []Label {
	labels := make([]Label, 0, len(entries))
	for _, e := range entries {
		if e.Box.Width <= 0 || e.Box.Height <= 0 {
			continue
		}
		if fullPage && e.PanelOffset > 0 {
			continue
		}
		y := e.Box.Y
		if fullPage {
			y += e.ScrollTop
		}
		labels = append(labels, Label{
			Index: e.Index,
			Rect:  image.Rect(int(e.Box.X), int(y), int(e.Box.X+e.Box.Width), int(y+e.Box.Height)),
		})
	}
	return labels
}

// Annotate returns a copy of img with every label outlined and numbered
func Annotate(img image.Image, labels []Label) *image.RGBA {
	out := toRGBA(img)
	face := basicfont.Face7x13
	for _, l := range labels {
		c := boxColors[l.Index%len(boxColors)]
		r := l.Rect.Intersect(out.Bounds())
		if r.Empty() {
			continue
		}
		strokeRect(out, r, c)

		text := strconv.Itoa(l.Index)
		w := font.MeasureString(face, text).Ceil() + 4
		h := face.Metrics().Height.Ceil() + 2
		tag := image.Rect(r.Min.X, r.Min.Y-h, r.Min.X+w, r.Min.Y)
		if tag.Min.Y < out.Bounds().Min.Y {
			tag = tag.Add(image.Pt(0, h))
		}
		draw.Draw(out, tag, image.NewUniform(c), image.Point{}, draw.Src)
		d := &font.Drawer{
			Dst:  out,
			Src:  image.White,
			Face: face,
			Dot:  fixed.P(tag.Min.X+2, tag.Max.Y-face.Metrics().Descent.Ceil()-1),
		}
		d.DrawString(text)
	}
	return out
}

func strokeRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	x2, y2 := r.Max.X-1, r.Max.Y-1
	for _, off := range []int{0, 1} {
		drawLine(img, r.Min.X+off, r.Min.Y+off, x2-off, r.Min.Y+off, c)
		drawLine(img, r.Min.X+off, y2-off, x2-off, y2-off, c)
		drawLine(img, r.Min.X+off, r.Min.Y+off, r.Min.X+off, y2-off, c)
		drawLine(img, x2-off, r.Min.Y+off, x2-off, y2-off, c)
	}
}

// Downscale shrinks img to maxWidth keeping the aspect ratio. Narrower images and a zero
// maxWidth return img unchanged.
func Downscale(img image.Image, maxWidth uint) image.Image {
	if maxWidth == 0 || uint(img.Bounds().Dx()) <= maxWidth {
		return img
	}
	return resize.Resize(maxWidth, 0, img, resize.Lanczos3)
}

// AnnotateScreenshot decodes a PNG or JPEG screenshot, numbers the labels on it, downscales it
// and encodes the result as PNG.
func AnnotateScreenshot(data []byte, labels []Label, maxWidth uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, Downscale(Annotate(img, labels), maxWidth)); err != nil {
		return nil, fmt.Errorf("encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

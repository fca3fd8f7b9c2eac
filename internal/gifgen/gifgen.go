// Package gifgen records a screenshot per executed step and encodes the trace as a GIF.
package gifgen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/nfnt/resize"

	"github.com/v0xg/pagepilot/internal/executor"
	"github.com/v0xg/pagepilot/internal/overlay"
)

// Options configures GIF generation
type Options struct {
	// FPS is how many trace frames play per second
	FPS      int
	MaxWidth uint
	// NoCursor skips the pointer overlay
	NoCursor bool
}

// Recorder collects step frames. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	opts    Options
	frames  []image.Image
	cursors []executor.CursorPosition
}

// NewRecorder returns an empty recorder
func NewRecorder(opts Options) *Recorder {
	if opts.FPS <= 0 {
		opts.FPS = 1
	}
	if opts.MaxWidth == 0 {
		opts.MaxWidth = 800
	}
	return &Recorder{opts: opts}
}

// Add decodes a screenshot and appends it with the pointer position of its step
func (r *Recorder) Add(screenshot []byte, cursor executor.CursorPosition) error {
	img, _, err := image.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, img)
	r.cursors = append(r.cursors, cursor)
	return nil
}

// Len is the number of recorded frames
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Save writes the trace to outputPath and returns the file size
func (r *Recorder) Save(outputPath string) (int64, error) {
	f, err := os.Create(outputPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := r.Encode(f); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Encode writes the trace as a looping GIF
func (r *Recorder) Encode(w io.Writer) error {
	r.mu.Lock()
	frames := make([]image.Image, len(r.frames))
	for i, f := range r.frames {
		if r.opts.NoCursor {
			frames[i] = f
		} else {
			frames[i] = overlay.DrawCursor(f, r.cursors[i])
		}
	}
	r.mu.Unlock()
	return Generate(w, frames, r.opts)
}

// Generate encodes frames as a GIF scaled to opts.MaxWidth
func Generate(w io.Writer, frames []image.Image, opts Options) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames recorded")
	}
	fps := opts.FPS
	if fps <= 0 {
		fps = 1
	}
	// GIF delays are in 100ths of a second
	delay := 100 / fps

	bounds := frames[0].Bounds()
	width := opts.MaxWidth
	if width == 0 || width > uint(bounds.Dx()) {
		width = uint(bounds.Dx())
	}
	height := uint(float64(width) * float64(bounds.Dy()) / float64(bounds.Dx()))

	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(frames)),
		Delay:     make([]int, len(frames)),
		LoopCount: 0,
	}
	palette := generatePalette(frames[0])
	for i, frame := range frames {
		resized := resize.Resize(width, height, frame, resize.Lanczos3)
		paletted := image.NewPaletted(resized.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, resized.Bounds(), resized, image.Point{})
		g.Image[i] = paletted
		g.Delay[i] = delay
	}
	if err := gif.EncodeAll(w, g); err != nil {
		return fmt.Errorf("encode gif: %w", err)
	}
	return nil
}

// generatePalette takes the 255 most frequent colors of a sampled frame plus transparent,
// padding with grays.
func generatePalette(img image.Image) color.Palette {
	bounds := img.Bounds()
	counts := make(map[color.RGBA]int)
	const step = 4
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, a := img.At(x, y).RGBA()
			counts[color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}]++
		}
	}

	colors := make([]color.RGBA, 0, len(counts))
	for c := range counts {
		colors = append(colors, c)
	}
	sort.Slice(colors, func(i, j int) bool {
		if counts[colors[i]] != counts[colors[j]] {
			return counts[colors[i]] > counts[colors[j]]
		}
		a, b := colors[i], colors[j]
		return uint32(a.R)<<24|uint32(a.G)<<16|uint32(a.B)<<8|uint32(a.A) <
			uint32(b.R)<<24|uint32(b.G)<<16|uint32(b.B)<<8|uint32(b.A)
	})

	palette := make(color.Palette, 0, 256)
	palette = append(palette, color.RGBA{0, 0, 0, 0})
	for _, c := range colors {
		if len(palette) == 256 {
			break
		}
		palette = append(palette, c)
	}
	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}
	return palette
}

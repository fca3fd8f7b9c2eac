package dom

import (
	"errors"
	"fmt"
	"math"
)

// ErrExhaustedChunks is returned when every chunk of a region has already been seen
var ErrExhaustedChunks = errors.New("no chunks remaining to check")

// ChunkCount is ceil(contentHeight / viewportHeight); a region always has at least one chunk.
func ChunkCount(r Region) int {
	if r.ViewportHeight <= 0 {
		return 1
	}
	n := int(math.Ceil(r.ScrollHeight / r.ViewportHeight))
	if n < 1 {
		return 1
	}
	return n
}

// Chunks lists every chunk index of the region in order
func Chunks(r Region) []int {
	n := ChunkCount(r)
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// ChunkOffset is the scroll offset of chunk k, clamped so the last chunk never over-scrolls.
func ChunkOffset(chunk int, r Region) float64 {
	offset := float64(chunk) * r.ViewportHeight
	if maxTop := r.ScrollHeight - r.ViewportHeight; offset > maxTop {
		offset = maxTop
	}
	if offset < 0 {
		return 0
	}
	return offset
}

// PlanNextChunk picks, among the chunks not in seen, the one whose top is physically closest to
// the region's current scroll position. Ties keep the lower index.
func PlanNextChunk(seen []int, r Region) (int, []int, error) {
	all := Chunks(r)
	visited := make(map[int]bool, len(seen))
	for _, c := range seen {
		visited[c] = true
	}

	best := -1
	bestDist := math.Inf(1)
	for _, c := range all {
		if visited[c] {
			continue
		}
		d := math.Abs(r.ScrollTop - float64(c)*r.ViewportHeight)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	if best < 0 {
		return 0, all, fmt.Errorf("%w (seen %v of %d)", ErrExhaustedChunks, seen, len(all))
	}
	return best, all, nil
}

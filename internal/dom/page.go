package dom

import "context"

// Page is the slice of the browser capability the snapshot engine needs.
// Implementations run every call serially against one live page.
type Page interface {
	// Capture walks the live document once and returns every node with geometry,
	// visibility and probe hits measured at the current scroll position.
	Capture(ctx context.Context) (*Capture, error)
	// Regions measures scroll containers. With scan false only the document root is reported.
	Regions(ctx context.Context, scan bool) ([]RegionMetrics, error)
	// ScrollTo moves the region to offset and waits for the next painted frame.
	ScrollTo(ctx context.Context, region Region, offset float64) error
}

package dom

import "sort"

// RegionMetrics describes one potential scroll container as measured in the page.
// The document root is reported with Root set and Handle 0.
type RegionMetrics struct {
	Handle       Handle  `json:"h"`
	Root         bool    `json:"root,omitempty"`
	OverflowY    string  `json:"oy"`
	ScrollHeight float64 `json:"sh"`
	ClientHeight float64 `json:"ch"`
	ScrollTop    float64 `json:"st"`
	// CanScroll is the result of a real scroll attempt moving the offset.
	CanScroll bool `json:"cs"`
}

// Region is a scrolling surface chunks are planned against
type Region struct {
	Handle         Handle
	Root           bool
	ViewportHeight float64
	ScrollHeight   float64
	ScrollTop      float64
}

func regionOf(m RegionMetrics) Region {
	return Region{
		Handle:         m.Handle,
		Root:           m.Root,
		ViewportHeight: m.ClientHeight,
		ScrollHeight:   m.ScrollHeight,
		ScrollTop:      m.ScrollTop,
	}
}

func scrollableOverflow(v string) bool {
	switch v {
	case "auto", "scroll", "overlay":
		return true
	}
	return false
}

// FindScrollableRegions keeps the document root plus every container whose overflow style,
// extra content height and real scroll attempt all mark it as scrollable. Results are sorted by
// content height, largest first, and truncated to limit when limit > 0.
func FindScrollableRegions(metrics []RegionMetrics, limit int) []Region {
	var regions []Region
	hasRoot := false
	for _, m := range metrics {
		if m.Root {
			if !hasRoot {
				regions = append(regions, regionOf(m))
				hasRoot = true
			}
			continue
		}
		if !scrollableOverflow(m.OverflowY) {
			continue
		}
		if m.ScrollHeight-m.ClientHeight <= 0 || !m.CanScroll {
			continue
		}
		regions = append(regions, regionOf(m))
	}

	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].ScrollHeight > regions[j].ScrollHeight
	})
	if limit > 0 && len(regions) > limit {
		regions = regions[:limit]
	}
	return regions
}

// RootRegion picks the document root out of measured metrics
func RootRegion(metrics []RegionMetrics) (Region, bool) {
	for _, m := range metrics {
		if m.Root {
			return regionOf(m), true
		}
	}
	return Region{}, false
}

// Package domtest provides an in-memory page for exercising the snapshot engine without a browser.
package domtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/v0xg/pagepilot/internal/dom"
)

// Node is one node of a laid-out fake document. Boxes are in document coordinates.
type Node struct {
	Tag      string
	Attrs    [][2]string
	Text     string
	Box      dom.Rect
	Hidden   bool
	Foreign  bool
	Children []*Node

	handle dom.Handle
	isText bool
}

// El builds an element
func El(tag string, box dom.Rect, attrs [][2]string, children ...*Node) *Node {
	return &Node{Tag: tag, Box: box, Attrs: attrs, Children: children}
}

// Text builds a text node
func Text(s string, box dom.Rect) *Node {
	return &Node{Text: s, Box: box, isText: true}
}

// Box is shorthand for a rect
func Box(x, y, w, h float64) dom.Rect {
	return dom.Rect{X: x, Y: y, Width: w, Height: h}
}

// Attrs builds an attribute list from name/value pairs
func Attrs(kv ...string) [][2]string {
	out := make([][2]string, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, [2]string{kv[i], kv[i+1]})
	}
	return out
}

// Page is a fake dom.Page over a static layout. Scrolling only moves the viewport.
type Page struct {
	mu sync.Mutex

	Document       string
	ViewportWidth  float64
	ViewportHeight float64
	ContentHeight  float64
	// Extra is reported next to the root when regions are scanned.
	Extra []dom.RegionMetrics

	html      *Node
	scrollY   float64
	next      dom.Handle
	order     []*Node
	parents   map[*Node]*Node
	scrolls   []float64
	captures  int
	CaptureFn func(*dom.Capture)
}

// NewPage lays out body children inside an html/head/body skeleton
func NewPage(viewportHeight, contentHeight float64, body ...*Node) *Page {
	html := El("html", Box(0, 0, 1280, contentHeight), nil,
		El("head", dom.Rect{}, nil),
		El("body", Box(0, 0, 1280, contentHeight), nil, body...),
	)
	p := &Page{
		Document:       "doc-1",
		ViewportWidth:  1280,
		ViewportHeight: viewportHeight,
		ContentHeight:  contentHeight,
		html:           html,
		parents:        make(map[*Node]*Node),
	}
	p.index(html, nil)
	return p
}

func (p *Page) index(n, parent *Node) {
	p.next++
	n.handle = p.next
	p.order = append(p.order, n)
	p.parents[n] = parent
	for _, c := range n.Children {
		p.index(c, n)
	}
}

// Navigate swaps in a new document id, invalidating handles
func (p *Page) Navigate(document string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Document = document
	p.scrollY = 0
}

// ScrollY is the current root scroll offset
func (p *Page) ScrollY() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollY
}

// Scrolls returns every offset passed to ScrollTo
func (p *Page) Scrolls() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.scrolls...)
}

// Captures counts Capture calls
func (p *Page) Captures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captures
}

// Handle returns the handle assigned to n
func (p *Page) Handle(n *Node) dom.Handle { return n.handle }

// Capture implements dom.Page
func (p *Page) Capture(ctx context.Context) (*dom.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captures++

	c := &dom.Capture{
		Document:       p.Document,
		ViewportWidth:  p.ViewportWidth,
		ViewportHeight: p.ViewportHeight,
		ScrollY:        p.scrollY,
	}
	for _, n := range p.order {
		raw := dom.RawNode{Handle: n.handle}
		if parent := p.parents[n]; parent != nil {
			raw.Parent = parent.handle
		}
		if n.isText {
			raw.Kind = dom.KindText
			raw.Data = n.Text
		} else {
			raw.Kind = dom.KindElement
			raw.Tag = n.Tag
			raw.Attrs = n.Attrs
			raw.Foreign = n.Foreign
			raw.Visible = !p.hidden(n)
		}
		r := p.viewportRect(n)
		raw.Rect = &r
		if !n.isText && inViewport(r, p.ViewportHeight) {
			raw.TopProbes = p.probe(r)
		}
		c.Nodes = append(c.Nodes, raw)
	}
	if p.CaptureFn != nil {
		p.CaptureFn(c)
	}
	return c, nil
}

func (p *Page) hidden(n *Node) bool {
	for cur := n; cur != nil; cur = p.parents[cur] {
		if cur.Hidden {
			return true
		}
	}
	return false
}

func (p *Page) viewportRect(n *Node) dom.Rect {
	r := n.Box
	if r.Width == 0 || r.Height == 0 {
		return dom.Rect{}
	}
	r.Y -= p.scrollY
	return r
}

func inViewport(r dom.Rect, vh float64) bool {
	return r.Width != 0 && r.Height != 0 && r.Y >= 0 && r.Y <= vh
}

// probe hit-tests the four quadrant centers and the center of r; the last painted
// element in document order wins.
func (p *Page) probe(r dom.Rect) []dom.Handle {
	points := [][2]float64{
		{r.X + r.Width/4, r.Y + r.Height/4},
		{r.X + 3*r.Width/4, r.Y + r.Height/4},
		{r.X + r.Width/4, r.Y + 3*r.Height/4},
		{r.X + 3*r.Width/4, r.Y + 3*r.Height/4},
		{r.X + r.Width/2, r.Y + r.Height/2},
	}
	var hits []dom.Handle
	for _, pt := range points {
		if pt[1] < 0 || pt[1] > p.ViewportHeight {
			continue
		}
		if h := p.hitTest(pt[0], pt[1]); h != 0 {
			hits = append(hits, h)
		}
	}
	return hits
}

func (p *Page) hitTest(x, y float64) dom.Handle {
	var top dom.Handle
	for _, n := range p.order {
		if n.isText || p.hidden(n) {
			continue
		}
		r := p.viewportRect(n)
		if r.Width == 0 || r.Height == 0 {
			continue
		}
		if x >= r.X && x <= r.X+r.Width && y >= r.Y && y <= r.Y+r.Height {
			top = n.handle
		}
	}
	return top
}

// Regions implements dom.Page
func (p *Page) Regions(ctx context.Context, scan bool) ([]dom.RegionMetrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []dom.RegionMetrics{{
		Root:         true,
		OverflowY:    "visible",
		ScrollHeight: p.ContentHeight,
		ClientHeight: p.ViewportHeight,
		ScrollTop:    p.scrollY,
		CanScroll:    p.ContentHeight > p.ViewportHeight,
	}}
	if scan {
		out = append(out, p.Extra...)
	}
	return out, nil
}

// ScrollTo implements dom.Page. Only the root region moves the fake viewport.
func (p *Page) ScrollTo(ctx context.Context, region dom.Region, offset float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls = append(p.scrolls, offset)
	if !region.Root {
		return nil
	}
	if maxTop := p.ContentHeight - p.ViewportHeight; offset > maxTop {
		offset = maxTop
	}
	if offset < 0 {
		offset = 0
	}
	p.scrollY = offset
	return nil
}

// Resolve evaluates a location path against a fresh capture and returns the single matching node.
func (p *Page) Resolve(ctx context.Context, path string) (*dom.Node, error) {
	c, err := p.Capture(ctx)
	if err != nil {
		return nil, err
	}
	t, err := dom.NewTree(c)
	if err != nil {
		return nil, err
	}
	nodes, err := t.Find(path)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, fmt.Errorf("path %s matched %d nodes", path, len(nodes))
	}
	return nodes[0], nil
}

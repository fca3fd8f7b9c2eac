package dom

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EssentialAttributes are rendered on element lines, in this order, when non-empty.
// Every non-empty data-* attribute follows them.
var EssentialAttributes = []string{
	"id", "class", "href", "src",
	"aria-label", "aria-name", "aria-role", "aria-description",
	"aria-expanded", "aria-haspopup", "type", "value",
}

// EntryKind distinguishes element and text candidates
type EntryKind string

const (
	EntryElement EntryKind = "element"
	EntryText    EntryKind = "text"
)

// Entry is one serialized candidate
type Entry struct {
	Index  int
	Kind   EntryKind
	Handle Handle
	Tag    string
	Line   string
	Paths  []string
	// Box is viewport-relative at capture time. Add ScrollTop for document coordinates
	// when the chunk scrolled the root.
	Box       Rect
	ScrollTop float64
	// PanelOffset is how far a non-root scroll container was scrolled for this chunk.
	PanelOffset float64
}

// Text returns the line content after the index prefix
func (e Entry) Text() string {
	if i := strings.IndexByte(e.Line, ':'); i >= 0 {
		return e.Line[i+1:]
	}
	return e.Line
}

// Snapshot is the indexed text block and selector map for one chunk, or for a whole page
// when produced by BuildAll.
type Snapshot struct {
	Text      string
	Selectors map[int][]string
	Entries   []Entry
	Chunk     int
	Chunks    []int
	ScrollTop float64
	Document  string
}

// Len is the number of candidates in the snapshot
func (s *Snapshot) Len() int { return len(s.Entries) }

// Entry returns the candidate at index i
func (s *Snapshot) Entry(i int) (Entry, bool) {
	for _, e := range s.Entries {
		if e.Index == i {
			return e, true
		}
	}
	return Entry{}, false
}

// Option configures a Builder
type Option func(*Builder)

// WithClassifier replaces the default classifier
func WithClassifier(c *Classifier) Option {
	return func(b *Builder) { b.classifier = c }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l.Named("dom") }
}

// WithWorkers bounds parallel path resolution
func WithWorkers(n int) Option {
	return func(b *Builder) { b.workers = n }
}

// Builder produces snapshots from a live page
type Builder struct {
	page       Page
	cache      *PathCache
	classifier *Classifier
	logger     *zap.Logger
	workers    int
}

// NewBuilder wires a builder to a page and a session-owned path cache
func NewBuilder(page Page, cache *PathCache, opts ...Option) *Builder {
	b := &Builder{
		page:       page,
		cache:      cache,
		classifier: NewClassifier(),
		logger:     zap.NewNop(),
		workers:    runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.cache == nil {
		b.cache = NewPathCache()
	}
	return b
}

// Classifier returns the classifier in use
func (b *Builder) Classifier() *Classifier { return b.classifier }

// RootRegion measures the document root
func (b *Builder) RootRegion(ctx context.Context) (Region, error) {
	metrics, err := b.page.Regions(ctx, false)
	if err != nil {
		return Region{}, fmt.Errorf("measure root region: %w", err)
	}
	r, ok := RootRegion(metrics)
	if !ok {
		return Region{}, fmt.Errorf("page reported no root region")
	}
	return r, nil
}

// ScrollableRegions measures every scroll container and ranks them
func (b *Builder) ScrollableRegions(ctx context.Context, limit int) ([]Region, error) {
	metrics, err := b.page.Regions(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("scan scrollable regions: %w", err)
	}
	return FindScrollableRegions(metrics, limit), nil
}

// Next picks the closest unseen chunk of the document root and snapshots it.
// It returns ErrExhaustedChunks when every chunk is in seen.
func (b *Builder) Next(ctx context.Context, seen []int) (*Snapshot, error) {
	region, err := b.RootRegion(ctx)
	if err != nil {
		return nil, err
	}
	chunk, chunks, err := PlanNextChunk(seen, region)
	if err != nil {
		return nil, err
	}
	snap, err := b.Build(ctx, chunk, true, 0, region)
	if err != nil {
		return nil, err
	}
	snap.Chunks = chunks
	return snap, nil
}

// Build snapshots one chunk of region. Indices start at indexOffset.
func (b *Builder) Build(ctx context.Context, chunk int, shouldScroll bool, indexOffset int, region Region) (*Snapshot, error) {
	offset := ChunkOffset(chunk, region)
	if shouldScroll {
		if err := b.page.ScrollTo(ctx, region, offset); err != nil {
			return nil, fmt.Errorf("scroll to chunk %d: %w", chunk, err)
		}
	}

	capture, err := b.page.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture chunk %d: %w", chunk, err)
	}
	tree, err := NewTree(capture)
	if err != nil {
		return nil, fmt.Errorf("link capture: %w", err)
	}
	if b.cache.Sync(tree.Document) {
		b.logger.Debug("document changed, path cache reset", zap.String("document", tree.Document))
	}

	candidates := b.classifier.Candidates(tree)
	paths, err := b.resolvePaths(ctx, candidates)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Selectors: make(map[int][]string, len(candidates)),
		Entries:   make([]Entry, 0, len(candidates)),
		Chunk:     chunk,
		Chunks:    Chunks(region),
		ScrollTop: offset,
		Document:  tree.Document,
	}
	var sb strings.Builder
	for i, n := range candidates {
		idx := indexOffset + i
		e := Entry{
			Index:  idx,
			Handle: n.Handle,
			Tag:    n.Tag,
			Paths:  paths[i],
			Line:   fmt.Sprintf("%d:%s", idx, Serialize(n)),
		}
		if region.Root {
			e.ScrollTop = offset
		} else {
			e.PanelOffset = offset
		}
		if n.Kind == KindText {
			e.Kind = EntryText
		} else {
			e.Kind = EntryElement
		}
		if n.Rect != nil {
			e.Box = *n.Rect
		}
		snap.Entries = append(snap.Entries, e)
		snap.Selectors[idx] = e.Paths
		sb.WriteString(e.Line)
		sb.WriteByte('\n')
	}
	snap.Text = sb.String()

	b.logger.Debug("chunk processed",
		zap.Int("chunk", chunk),
		zap.Int("candidates", len(candidates)),
		zap.Int("nodes", tree.Len()),
		zap.Float64("offset", offset))
	return snap, nil
}

// resolvePaths computes location paths for all candidates in parallel, keeping order.
func (b *Builder) resolvePaths(ctx context.Context, nodes []*Node) ([][]string, error) {
	out := make([][]string, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	if b.workers > 0 {
		g.SetLimit(b.workers)
	}
	for i, n := range nodes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if cached, ok := b.cache.Get(n.Handle); ok {
				out[i] = cached
				return nil
			}
			p := LocationPaths(n)
			b.cache.Put(n.Handle, p)
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve location paths: %w", err)
	}
	return out, nil
}

// Serialize renders a candidate without its index prefix. Whitespace runs collapse to a
// single space so every candidate stays on one line.
func Serialize(n *Node) string {
	text := collapse(n.TextContent())
	if n.Kind == KindText {
		return text
	}
	var sb strings.Builder
	sb.WriteByte('<')
	sb.WriteString(n.Tag)
	if attrs := essentialAttributes(n); attrs != "" {
		sb.WriteByte(' ')
		sb.WriteString(attrs)
	}
	sb.WriteByte('>')
	sb.WriteString(text)
	sb.WriteString("</")
	sb.WriteString(n.Tag)
	sb.WriteByte('>')
	return sb.String()
}

func essentialAttributes(n *Node) string {
	var attrs []string
	for _, name := range EssentialAttributes {
		if v := n.Attr(name); v != "" {
			attrs = append(attrs, renderAttr(name, v))
		}
	}
	for _, a := range n.Attrs {
		if strings.HasPrefix(a[0], "data-") && a[1] != "" {
			attrs = append(attrs, renderAttr(a[0], a[1]))
		}
	}
	return strings.Join(attrs, " ")
}

func renderAttr(name, value string) string {
	value = strings.ReplaceAll(collapse(value), `"`, "&quot;")
	return name + `="` + value + `"`
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

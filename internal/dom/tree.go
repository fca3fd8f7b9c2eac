package dom

import (
	"fmt"
	"strings"
)

// Handle is an opaque, per-document node id assigned by the in-page capture script.
// Handles stay stable across captures of the same document and are meaningless after navigation.
type Handle uint64

// NodeKind mirrors the DOM nodeType of a captured node
type NodeKind int

const (
	KindDocument NodeKind = 0
	KindElement  NodeKind = 1
	KindText     NodeKind = 3
	KindComment  NodeKind = 8
)

// Rect is a viewport-relative bounding box in CSS pixels
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// RawNode is one captured node as delivered by the page, in document pre-order.
type RawNode struct {
	Handle    Handle      `json:"h"`
	Parent    Handle      `json:"p"`
	Kind      NodeKind    `json:"k"`
	Tag       string      `json:"t,omitempty"`
	Attrs     [][2]string `json:"a,omitempty"`
	Data      string      `json:"x,omitempty"`
	Rect      *Rect       `json:"r,omitempty"`
	Visible   bool        `json:"v,omitempty"`
	Foreign   bool        `json:"ns,omitempty"`
	TopProbes []Handle    `json:"pr,omitempty"`
}

// Capture is the whole-document capture taken at the current scroll position.
type Capture struct {
	Document       string    `json:"doc"`
	ViewportWidth  float64   `json:"vw"`
	ViewportHeight float64   `json:"vh"`
	ScrollX        float64   `json:"sx"`
	ScrollY        float64   `json:"sy"`
	Nodes          []RawNode `json:"nodes"`
}

// Node is a captured node linked into a Tree
type Node struct {
	Handle  Handle
	Kind    NodeKind
	Tag     string
	Attrs   [][2]string
	Data    string
	Rect    *Rect
	Foreign bool

	// Visible is the platform visibility check (opacity + CSS visibility) at capture time.
	Visible bool
	// TopProbes holds the elementFromPoint hits of the five probe points; empty when the
	// node's box was outside the viewport at capture time.
	TopProbes []Handle

	Parent   *Node
	Children []*Node

	tree    *Tree
	index   int
	text    string
	hasText bool
}

// Tree is the arena of captured nodes for one capture. The synthetic document node is its root.
type Tree struct {
	Document       string
	ViewportWidth  float64
	ViewportHeight float64
	ScrollY        float64

	root     *Node
	body     *Node
	byHandle map[Handle]*Node
	ids      map[string]int
}

// NewTree links a capture into a Tree. Nodes must arrive parent-first.
func NewTree(c *Capture) (*Tree, error) {
	t := &Tree{
		Document:       c.Document,
		ViewportWidth:  c.ViewportWidth,
		ViewportHeight: c.ViewportHeight,
		ScrollY:        c.ScrollY,
		byHandle:       make(map[Handle]*Node, len(c.Nodes)),
		ids:            make(map[string]int),
	}
	t.root = &Node{Kind: KindDocument, tree: t}

	for i := range c.Nodes {
		raw := &c.Nodes[i]
		if raw.Handle == 0 {
			return nil, fmt.Errorf("node %d has no handle", i)
		}
		if _, dup := t.byHandle[raw.Handle]; dup {
			return nil, fmt.Errorf("duplicate handle %d", raw.Handle)
		}

		parent := t.root
		if raw.Parent != 0 {
			p, ok := t.byHandle[raw.Parent]
			if !ok {
				return nil, fmt.Errorf("node %d references unknown parent %d", raw.Handle, raw.Parent)
			}
			parent = p
		}

		n := &Node{
			Handle:    raw.Handle,
			Kind:      raw.Kind,
			Tag:       strings.ToLower(raw.Tag),
			Attrs:     raw.Attrs,
			Data:      raw.Data,
			Rect:      raw.Rect,
			Foreign:   raw.Foreign,
			Visible:   raw.Visible,
			TopProbes: raw.TopProbes,
			Parent:    parent,
			tree:      t,
			index:     len(parent.Children),
		}
		parent.Children = append(parent.Children, n)
		t.byHandle[n.Handle] = n

		if n.Kind == KindElement {
			if n.Tag == "body" && t.body == nil {
				t.body = n
			}
			if id := n.Attr("id"); id != "" {
				t.ids[id]++
			}
		}
	}
	return t, nil
}

// Root returns the synthetic document node
func (t *Tree) Root() *Node { return t.root }

// Body returns the <body> element, or nil when the document has none.
func (t *Tree) Body() *Node { return t.body }

// Node returns the node captured under h
func (t *Tree) Node(h Handle) (*Node, bool) {
	n, ok := t.byHandle[h]
	return n, ok
}

// Len is the number of captured nodes
func (t *Tree) Len() int { return len(t.byHandle) }

// Attr returns the value of the named attribute, or "" when absent.
func (n *Node) Attr(name string) string {
	v, _ := n.LookupAttr(name)
	return v
}

// LookupAttr reports whether the named attribute is present
func (n *Node) LookupAttr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a[0] == name {
			return a[1], true
		}
	}
	return "", false
}

// TextContent matches the DOM textContent: the concatenated data of all descendant text nodes.
func (n *Node) TextContent() string {
	switch n.Kind {
	case KindText, KindComment:
		return n.Data
	}
	if n.hasText {
		return n.text
	}
	var sb strings.Builder
	var walk func(*Node)
	walk = func(c *Node) {
		for _, child := range c.Children {
			switch child.Kind {
			case KindText:
				sb.WriteString(child.Data)
			case KindElement:
				walk(child)
			}
		}
	}
	walk(n)
	n.text, n.hasText = sb.String(), true
	return n.text
}

// IsTextNode reports whether n is a text node with non-blank content
func IsTextNode(n *Node) bool {
	return n.Kind == KindText && strings.TrimSpace(n.Data) != ""
}

func (n *Node) isElement() bool { return n.Kind == KindElement }

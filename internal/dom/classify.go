package dom

import "strings"

// DefaultInteractiveTags lists the tags that are always interactive
var DefaultInteractiveTags = []string{
	"a", "button", "details", "embed", "input", "label", "menu",
	"menuitem", "object", "select", "textarea", "summary",
}

// DefaultInteractiveRoles lists role attribute values that mark an interactive element
var DefaultInteractiveRoles = []string{
	"button", "menu", "menuitem", "link", "checkbox", "radio", "slider",
	"tab", "tabpanel", "textbox", "combobox", "grid", "listbox", "option",
	"progressbar", "scrollbar", "searchbox", "switch", "tree", "treeitem",
	"spinbutton", "tooltip",
}

// DefaultInteractiveAriaRoles lists aria-role attribute values that mark an interactive element
var DefaultInteractiveAriaRoles = []string{"menu", "menuitem", "button"}

// DefaultLeafDenyList lists childless tags never treated as leaf content
var DefaultLeafDenyList = []string{"svg", "iframe", "script", "style", "link"}

// Classifier holds the allow-lists used to select snapshot candidates.
// The zero value is not usable; start from NewClassifier.
type Classifier struct {
	InteractiveTags      map[string]bool
	InteractiveRoles     map[string]bool
	InteractiveAriaRoles map[string]bool
	LeafDenyList         map[string]bool
}

// NewClassifier returns a classifier over the default allow-lists
func NewClassifier() *Classifier {
	return &Classifier{
		InteractiveTags:      set(DefaultInteractiveTags),
		InteractiveRoles:     set(DefaultInteractiveRoles),
		InteractiveAriaRoles: set(DefaultInteractiveAriaRoles),
		LeafDenyList:         set(DefaultLeafDenyList),
	}
}

func set(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[strings.ToLower(it)] = true
	}
	return m
}

// inViewport is the viewport-relative bound shared by element and text visibility.
// Content below the fold fails on purpose so callers chunk by scrolling.
func inViewport(r *Rect, viewportHeight float64) bool {
	if r == nil || r.Width == 0 || r.Height == 0 {
		return false
	}
	return r.Y >= 0 && r.Y <= viewportHeight
}

// IsVisible reports whether an element is inside the viewport, top-most at one of its
// probe points, and passes the platform visibility check.
func (c *Classifier) IsVisible(n *Node) bool {
	if !n.isElement() || !inViewport(n.Rect, n.tree.ViewportHeight) {
		return false
	}
	if !IsTopElement(n) {
		return false
	}
	return n.Visible
}

// IsTopElement reports whether any probe hit is n or one of its descendants
func IsTopElement(n *Node) bool {
	body := n.tree.body
	for _, h := range n.TopProbes {
		hit, ok := n.tree.byHandle[h]
		if !ok {
			continue
		}
		for cur := hit; cur != nil && cur != body && cur.Kind != KindDocument; cur = cur.Parent {
			if cur == n {
				return true
			}
		}
	}
	return false
}

// IsTextVisible reports whether a text node's rendered range is inside the viewport and
// its parent element passes the platform visibility check.
func (c *Classifier) IsTextVisible(n *Node) bool {
	if n.Kind != KindText || !inViewport(n.Rect, n.tree.ViewportHeight) {
		return false
	}
	if n.Parent == nil || !n.Parent.isElement() {
		return false
	}
	return n.Parent.Visible
}

// IsActive is false for disabled, hidden or aria-disabled elements
func (c *Classifier) IsActive(n *Node) bool {
	if _, ok := n.LookupAttr("disabled"); ok {
		return false
	}
	if _, ok := n.LookupAttr("hidden"); ok {
		return false
	}
	return n.Attr("aria-disabled") != "true"
}

// IsInteractiveElement checks the tag, role and aria-role allow-lists
func (c *Classifier) IsInteractiveElement(n *Node) bool {
	if !n.isElement() {
		return false
	}
	if c.InteractiveTags[n.Tag] {
		return true
	}
	if role := n.Attr("role"); role != "" && c.InteractiveRoles[role] {
		return true
	}
	if role := n.Attr("aria-role"); role != "" && c.InteractiveAriaRoles[role] {
		return true
	}
	return false
}

// IsLeafElement reports whether an element carries text on its own: either it has no
// children and is not deny-listed, or its only child is a visible text node.
func (c *Classifier) IsLeafElement(n *Node) bool {
	if !n.isElement() || n.TextContent() == "" {
		return false
	}
	switch len(n.Children) {
	case 0:
		return !c.LeafDenyList[n.Tag]
	case 1:
		child := n.Children[0]
		return IsTextNode(child) && c.IsTextVisible(child)
	}
	return false
}

// IsCandidate composes the predicates into the snapshot selection rule
func (c *Classifier) IsCandidate(n *Node) bool {
	switch n.Kind {
	case KindElement:
		if !c.IsInteractiveElement(n) && !c.IsLeafElement(n) {
			return false
		}
		return c.IsActive(n) && c.IsVisible(n)
	case KindText:
		return IsTextNode(n) && c.IsTextVisible(n)
	}
	return false
}

// Candidates walks the subtree under <body> depth-first in source order and returns every
// node selected by IsCandidate. The walk covers the whole body, not only the current chunk.
func (c *Classifier) Candidates(t *Tree) []*Node {
	body := t.Body()
	if body == nil {
		return nil
	}

	stack := make([]*Node, 0, len(body.Children))
	for i := len(body.Children) - 1; i >= 0; i-- {
		stack = append(stack, body.Children[i])
	}

	var out []*Node
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.isElement() {
			for i := len(n.Children) - 1; i >= 0; i-- {
				stack = append(stack, n.Children[i])
			}
		}
		if c.IsCandidate(n) {
			out = append(out, n)
		}
	}
	return out
}

package dom

import (
	"fmt"
	"strings"

	"github.com/antchfx/xpath"
)

// LocationPaths returns the XPaths that re-locate n in the live document, primary first.
// When an ancestor-or-self carries an id that is unique in the capture, the id-anchored path
// is primary and the absolute path follows as the alternate.
func LocationPaths(n *Node) []string {
	abs := absolutePath(n)
	if anchored, ok := idAnchoredPath(n); ok && anchored != abs {
		return []string{anchored, abs}
	}
	return []string{abs}
}

func absolutePath(n *Node) string {
	var steps []string
	for cur := n; cur != nil && cur.Kind != KindDocument; cur = cur.Parent {
		if s := step(cur); s != "" {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		return "/"
	}
	reverse(steps)
	return "/" + strings.Join(steps, "/")
}

func idAnchoredPath(n *Node) (string, bool) {
	var steps []string
	for cur := n; cur != nil && cur.Kind != KindDocument; cur = cur.Parent {
		if cur.isElement() {
			if anchor, ok := uniqueIDStep(cur); ok {
				reverse(steps)
				if len(steps) == 0 {
					return anchor, true
				}
				return anchor + "/" + strings.Join(steps, "/"), true
			}
		}
		if s := step(cur); s != "" {
			steps = append(steps, s)
		}
	}
	return "", false
}

func uniqueIDStep(n *Node) (string, bool) {
	id := n.Attr("id")
	if id == "" || n.tree.ids[id] != 1 {
		return "", false
	}
	switch {
	case !strings.Contains(id, "'"):
		return fmt.Sprintf("//*[@id='%s']", id), true
	case !strings.Contains(id, `"`):
		return fmt.Sprintf(`//*[@id="%s"]`, id), true
	}
	return "", false
}

// step renders one location step with a 1-based position among same-named siblings.
func step(n *Node) string {
	switch n.Kind {
	case KindElement:
		pos := 1
		for _, sib := range n.Parent.Children[:n.index] {
			if sib.isElement() && sib.Tag == n.Tag {
				pos++
			}
		}
		if n.Foreign {
			return fmt.Sprintf("*[name()='%s'][%d]", n.Tag, pos)
		}
		return fmt.Sprintf("%s[%d]", n.Tag, pos)
	case KindText:
		pos := 1
		for _, sib := range n.Parent.Children[:n.index] {
			if sib.Kind == KindText {
				pos++
			}
		}
		return fmt.Sprintf("text()[%d]", pos)
	}
	return ""
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Find evaluates an XPath expression against the captured tree
func (t *Tree) Find(expr string) ([]*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile xpath %q: %w", expr, err)
	}
	var out []*Node
	iter := compiled.Select(&navigator{root: t.root, curr: t.root, attr: -1})
	for iter.MoveNext() {
		nav, ok := iter.Current().(*navigator)
		if !ok || nav.attr >= 0 {
			continue
		}
		out = append(out, nav.curr)
	}
	return out, nil
}

// FindOne returns the first node matching expr, or nil
func (t *Tree) FindOne(expr string) (*Node, error) {
	nodes, err := t.Find(expr)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// navigator implements xpath.NodeNavigator over a Tree
type navigator struct {
	root, curr *Node
	attr       int
}

func (x *navigator) NodeType() xpath.NodeType {
	switch x.curr.Kind {
	case KindDocument:
		return xpath.RootNode
	case KindElement:
		if x.attr >= 0 {
			return xpath.AttributeNode
		}
		return xpath.ElementNode
	case KindText:
		return xpath.TextNode
	}
	return xpath.CommentNode
}

func (x *navigator) LocalName() string {
	if x.attr >= 0 {
		return x.curr.Attrs[x.attr][0]
	}
	if x.curr.isElement() {
		return x.curr.Tag
	}
	return ""
}

func (x *navigator) Prefix() string { return "" }

func (x *navigator) Value() string {
	if x.attr >= 0 {
		return x.curr.Attrs[x.attr][1]
	}
	if x.curr.Kind == KindDocument {
		var sb strings.Builder
		for _, c := range x.curr.Children {
			sb.WriteString(c.TextContent())
		}
		return sb.String()
	}
	return x.curr.TextContent()
}

func (x *navigator) Copy() xpath.NodeNavigator {
	c := *x
	return &c
}

func (x *navigator) MoveToRoot() {
	x.curr, x.attr = x.root, -1
}

func (x *navigator) MoveToParent() bool {
	if x.attr >= 0 {
		x.attr = -1
		return true
	}
	if x.curr.Parent == nil {
		return false
	}
	x.curr = x.curr.Parent
	return true
}

func (x *navigator) MoveToNextAttribute() bool {
	if !x.curr.isElement() || x.attr >= len(x.curr.Attrs)-1 {
		return false
	}
	x.attr++
	return true
}

func (x *navigator) MoveToChild() bool {
	if x.attr >= 0 || len(x.curr.Children) == 0 {
		return false
	}
	x.curr = x.curr.Children[0]
	return true
}

func (x *navigator) MoveToFirst() bool {
	if x.attr >= 0 || x.curr.Parent == nil || x.curr.index == 0 {
		return false
	}
	x.curr = x.curr.Parent.Children[0]
	return true
}

func (x *navigator) MoveToNext() bool {
	if x.attr >= 0 || x.curr.Parent == nil {
		return false
	}
	siblings := x.curr.Parent.Children
	if x.curr.index+1 >= len(siblings) {
		return false
	}
	x.curr = siblings[x.curr.index+1]
	return true
}

func (x *navigator) MoveToPrevious() bool {
	if x.attr >= 0 || x.curr.Parent == nil || x.curr.index == 0 {
		return false
	}
	x.curr = x.curr.Parent.Children[x.curr.index-1]
	return true
}

func (x *navigator) MoveTo(other xpath.NodeNavigator) bool {
	o, ok := other.(*navigator)
	if !ok || o.root != x.root {
		return false
	}
	x.curr, x.attr = o.curr, o.attr
	return true
}

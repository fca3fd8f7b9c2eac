package dom_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/pagepilot/internal/dom"
	"github.com/v0xg/pagepilot/internal/dom/domtest"
)

func capture(t *testing.T, p *domtest.Page) *dom.Tree {
	t.Helper()
	c, err := p.Capture(context.Background())
	require.NoError(t, err)
	tree, err := dom.NewTree(c)
	require.NoError(t, err)
	return tree
}

func find(t *testing.T, tree *dom.Tree, expr string) *dom.Node {
	t.Helper()
	n, err := tree.FindOne(expr)
	require.NoError(t, err)
	require.NotNil(t, n, "no node for %s", expr)
	return n
}

func TestClassifierPredicates(t *testing.T) {
	faded := domtest.El("details", domtest.Box(10, 300, 100, 30), domtest.Attrs("id", "faded"), domtest.Text("More", domtest.Box(20, 305, 20, 20)))
	faded.Hidden = true
	p := domtest.NewPage(1000, 1000,
		domtest.El("button", domtest.Box(10, 10, 100, 30), domtest.Attrs("id", "go"), domtest.Text("Go", domtest.Box(20, 15, 20, 20))),
		domtest.El("button", domtest.Box(0, 0, 0, 0), domtest.Attrs("id", "none"), domtest.Text("Gone", domtest.Box(0, 0, 0, 0))),
		domtest.El("button", domtest.Box(10, 60, 100, 30), domtest.Attrs("id", "off", "disabled", ""), domtest.Text("Off", domtest.Box(20, 65, 20, 20))),
		domtest.El("div", domtest.Box(10, 100, 100, 30), domtest.Attrs("role", "checkbox", "aria-disabled", "true")),
		domtest.El("input", domtest.Box(10, 150, 100, 30), domtest.Attrs("id", "covered")),
		domtest.El("div", domtest.Box(0, 140, 300, 60), domtest.Attrs("id", "overlay")),
		faded,
		domtest.El("span", domtest.Box(10, 400, 100, 20), domtest.Attrs("id", "leaf"), domtest.Text("hello", domtest.Box(10, 400, 40, 20))),
		domtest.El("div", domtest.Box(10, 1200, 100, 30), domtest.Attrs("id", "below"), domtest.Text("later", domtest.Box(10, 1200, 40, 20))),
		domtest.El("svg", domtest.Box(10, 500, 20, 20), nil),
	)
	tree := capture(t, p)
	c := dom.NewClassifier()

	t.Run("visible", func(t *testing.T) {
		assert.True(t, c.IsVisible(find(t, tree, "//*[@id='go']")))
		assert.False(t, c.IsVisible(find(t, tree, "//*[@id='none']")), "zero box")
		assert.False(t, c.IsVisible(find(t, tree, "//*[@id='covered']")), "behind overlay")
		assert.True(t, c.IsVisible(find(t, tree, "//*[@id='overlay']")))
		assert.False(t, c.IsVisible(find(t, tree, "//*[@id='faded']")), "css hidden")
		assert.False(t, c.IsVisible(find(t, tree, "//*[@id='below']")), "below the fold")
	})

	t.Run("text visible", func(t *testing.T) {
		assert.True(t, c.IsTextVisible(find(t, tree, "//*[@id='go']/text()")))
		assert.False(t, c.IsTextVisible(find(t, tree, "//*[@id='faded']/text()")))
		assert.False(t, c.IsTextVisible(find(t, tree, "//*[@id='below']/text()")))
	})

	t.Run("active", func(t *testing.T) {
		assert.True(t, c.IsActive(find(t, tree, "//*[@id='go']")))
		assert.False(t, c.IsActive(find(t, tree, "//*[@id='off']")))
		assert.False(t, c.IsActive(find(t, tree, "//div[@role='checkbox']")))
	})

	t.Run("interactive", func(t *testing.T) {
		assert.True(t, c.IsInteractiveElement(find(t, tree, "//*[@id='go']")))
		assert.True(t, c.IsInteractiveElement(find(t, tree, "//div[@role='checkbox']")))
		assert.False(t, c.IsInteractiveElement(find(t, tree, "//*[@id='overlay']")))
	})

	t.Run("leaf", func(t *testing.T) {
		assert.True(t, c.IsLeafElement(find(t, tree, "//*[@id='leaf']")))
		assert.False(t, c.IsLeafElement(find(t, tree, "//*[@id='overlay']")), "no text")
		assert.False(t, c.IsLeafElement(find(t, tree, "//*[@id='below']")), "text child not visible")
		assert.False(t, c.IsLeafElement(find(t, tree, "//*[name()='svg']")))
	})
}

func TestZeroBoxNeverCandidate(t *testing.T) {
	for _, tag := range dom.DefaultInteractiveTags {
		t.Run(tag, func(t *testing.T) {
			p := domtest.NewPage(1000, 1000,
				domtest.El(tag, domtest.Box(0, 0, 0, 0), domtest.Attrs("id", "x"), domtest.Text("label", domtest.Box(0, 0, 0, 0))),
				domtest.El(tag, domtest.Box(10, 10, 50, 0), domtest.Attrs("id", "flat"), domtest.Text("flat", domtest.Box(10, 10, 20, 0))),
			)
			tree := capture(t, p)
			assert.Empty(t, dom.NewClassifier().Candidates(tree))
		})
	}
}

func TestCandidatesSourceOrderAndIdempotent(t *testing.T) {
	p := domtest.NewPage(1000, 1000,
		domtest.El("div", domtest.Box(0, 0, 400, 200), nil,
			domtest.El("a", domtest.Box(10, 10, 100, 20), domtest.Attrs("href", "/one"), domtest.Text("one", domtest.Box(10, 10, 30, 20))),
			domtest.El("a", domtest.Box(10, 40, 100, 20), domtest.Attrs("href", "/two"), domtest.Text("two", domtest.Box(10, 40, 30, 20))),
		),
		domtest.El("button", domtest.Box(10, 300, 100, 30), nil, domtest.Text("three", domtest.Box(20, 305, 30, 20))),
	)
	tree := capture(t, p)
	c := dom.NewClassifier()

	first := c.Candidates(tree)
	second := c.Candidates(tree)
	require.Len(t, first, 6)
	assert.Equal(t, first, second)

	var got []string
	for _, n := range first {
		got = append(got, dom.Serialize(n))
	}
	assert.Equal(t, []string{
		`<a href="/one">one</a>`, "one",
		`<a href="/two">two</a>`, "two",
		"<button>three</button>", "three",
	}, got)
}

func TestClassifierOverride(t *testing.T) {
	p := domtest.NewPage(1000, 1000,
		domtest.El("div", domtest.Box(0, 0, 100, 100), domtest.Attrs("role", "widget")),
	)
	tree := capture(t, p)
	c := dom.NewClassifier()
	assert.Empty(t, c.Candidates(tree))

	c.InteractiveRoles["widget"] = true
	assert.Len(t, c.Candidates(tree), 1)
}

package crawler

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/v0xg/pagepilot/internal/executor"
)

// genericMethods are the element operations the oracle may name besides fill, type,
// click and scrollIntoView.
var genericMethods = map[string]func(b *Browser, el *rod.Element, args []string) error{
	"dblclick": func(_ *Browser, el *rod.Element, _ []string) error {
		return el.Click(proto.InputMouseButtonLeft, 2)
	},
	"hover": func(_ *Browser, el *rod.Element, _ []string) error {
		return el.Hover()
	},
	"focus": func(_ *Browser, el *rod.Element, _ []string) error {
		return el.Focus()
	},
	"press": func(_ *Browser, el *rod.Element, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("press needs a key")
		}
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		return el.Type(key)
	},
	"selectOption": func(_ *Browser, el *rod.Element, args []string) error {
		return el.Select(args, true, rod.SelectorTypeText)
	},
	"check": func(_ *Browser, el *rod.Element, _ []string) error {
		return setChecked(el, true)
	},
	"uncheck": func(_ *Browser, el *rod.Element, _ []string) error {
		return setChecked(el, false)
	},
}

var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"Space":      input.Space,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
}

func parseKey(name string) (input.Key, error) {
	if k, ok := namedKeys[name]; ok {
		return k, nil
	}
	if r, size := utf8.DecodeRuneInString(name); size == len(name) && r < utf8.RuneSelf {
		return input.Key(r), nil
	}
	return 0, fmt.Errorf("unsupported key %q", name)
}

func setChecked(el *rod.Element, want bool) error {
	checked, err := el.Property("checked")
	if err != nil {
		return err
	}
	if checked.Bool() == want {
		return nil
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// element locates the first node matching an XPath on the live page
func (b *Browser) element(ctx context.Context, path string) (*rod.Element, error) {
	els, err := b.page.Context(ctx).ElementsX(path)
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", path, err)
	}
	el := els.First()
	if el == nil {
		return nil, fmt.Errorf("%s: %w", path, executor.ErrElementNotFound)
	}
	return el, nil
}

// Has implements executor.Page
func (b *Browser) Has(method string) bool {
	_, ok := genericMethods[method]
	return ok
}

// Invoke implements executor.Page
func (b *Browser) Invoke(ctx context.Context, path, method string, args []string) error {
	fn, ok := genericMethods[method]
	if !ok {
		return fmt.Errorf("%s: %w", method, executor.ErrInvalidMethod)
	}
	el, err := b.element(ctx, path)
	if err != nil {
		return err
	}
	return fn(b, el, args)
}

// Clear empties an input or textarea
func (b *Browser) Clear(ctx context.Context, path string) error {
	el, err := b.element(ctx, path)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select text: %w", err)
	}
	return el.Input("")
}

// Click performs a left click in the element's center
func (b *Browser) Click(ctx context.Context, path string) error {
	el, err := b.element(ctx, path)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// TypeRune sends one character to the focused element. Characters without a key
// mapping are inserted as text.
func (b *Browser) TypeRune(ctx context.Context, r rune) error {
	page := b.page.Context(ctx)
	if r < utf8.RuneSelf {
		return page.Keyboard.Type(input.Key(r))
	}
	return page.InsertText(string(r))
}

// IsLink reports whether the element is an anchor with an href
func (b *Browser) IsLink(ctx context.Context, path string) (bool, error) {
	el, err := b.element(ctx, path)
	if err != nil {
		return false, err
	}
	res, err := el.Eval(isLinkJS)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// ScrollIntoView centers the element in the viewport
func (b *Browser) ScrollIntoView(ctx context.Context, path string) error {
	el, err := b.element(ctx, path)
	if err != nil {
		return err
	}
	_, err = el.Eval(`() => this.scrollIntoView({ behavior: 'smooth', block: 'center' })`)
	return err
}

// Center returns the center of the element's first content quad
func (b *Browser) Center(ctx context.Context, path string) (float64, float64, error) {
	el, err := b.element(ctx, path)
	if err != nil {
		return 0, 0, err
	}
	box, err := el.Shape()
	if err != nil {
		return 0, 0, err
	}
	if len(box.Quads) == 0 {
		return 0, 0, fmt.Errorf("element has no shape: %s", path)
	}
	quad := box.Quads[0]
	x := (quad[0] + quad[2] + quad[4] + quad[6]) / 4
	y := (quad[1] + quad[3] + quad[5] + quad[7]) / 4
	return x, y, nil
}

var _ executor.Page = (*Browser)(nil)

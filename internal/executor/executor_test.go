package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	url       string
	links     map[string]bool
	methods   map[string]bool
	opens     string
	navigates string
	failOn    string
	scrollErr error
	idleErr   error
	calls     []string
	typed     strings.Builder
}

func newFakePage() *fakePage {
	return &fakePage{
		url:     "https://example.com/",
		links:   map[string]bool{},
		methods: map[string]bool{"hover": true, "press": true, "selectOption": true},
	}
}

func (f *fakePage) record(format string, args ...any) error {
	call := fmt.Sprintf(format, args...)
	f.calls = append(f.calls, call)
	if f.failOn != "" && strings.HasPrefix(call, f.failOn) {
		return errors.New("element is detached")
	}
	return nil
}

func (f *fakePage) URL(context.Context) (string, error) { return f.url, nil }

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.url = url
	return f.record("navigate %s", url)
}

func (f *fakePage) Has(method string) bool { return f.methods[method] }

func (f *fakePage) Invoke(_ context.Context, path, method string, args []string) error {
	return f.record("%s %s %v", method, path, args)
}

func (f *fakePage) Clear(_ context.Context, path string) error { return f.record("clear %s", path) }

func (f *fakePage) Click(_ context.Context, path string) error {
	if err := f.record("click %s", path); err != nil {
		return err
	}
	if f.navigates != "" {
		f.url = f.navigates
	}
	return nil
}

func (f *fakePage) TypeRune(_ context.Context, r rune) error {
	f.typed.WriteRune(r)
	return nil
}

func (f *fakePage) IsLink(_ context.Context, path string) (bool, error) { return f.links[path], nil }

func (f *fakePage) ScrollIntoView(_ context.Context, path string) error {
	_ = f.record("scrollIntoView %s", path)
	return f.scrollErr
}

func (f *fakePage) Center(context.Context, string) (float64, float64, error) { return 120, 48, nil }

func (f *fakePage) ArmNewPage(context.Context, time.Duration) func() (string, bool) {
	_ = f.record("arm")
	return func() (string, bool) { return f.opens, f.opens != "" }
}

func (f *fakePage) ArmNetworkIdle(context.Context, time.Duration) func() error {
	_ = f.record("arm idle")
	return func() error {
		_ = f.record("idle")
		return f.idleErr
	}
}

func newTestExecutor(p *fakePage, delays *[]time.Duration) *Executor {
	opts := DefaultOptions()
	opts.Rand = rand.New(rand.NewSource(1))
	opts.Sleep = func(d time.Duration) { *delays = append(*delays, d) }
	return New(p, opts)
}

func TestExecuteFillTypesEachRune(t *testing.T) {
	p := newFakePage()
	var delays []time.Duration
	e := newTestExecutor(p, &delays)

	res, err := e.Execute(context.Background(), Action{Method: "fill", Element: 3, Path: "//input", Args: []string{"héllo"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"clear //input", "click //input"}, p.calls)
	assert.Equal(t, "héllo", p.typed.String())
	require.Len(t, delays, 5)
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, 25*time.Millisecond)
		assert.Less(t, d, 75*time.Millisecond)
	}
	assert.False(t, res.Navigated())
	assert.Equal(t, CursorPosition{X: 120, Y: 48, State: CursorText}, res.Cursor)
}

func TestCursorFor(t *testing.T) {
	tests := []struct {
		method string
		state  CursorState
		click  bool
	}{
		{"fill", CursorText, false},
		{"type", CursorText, false},
		{"click", CursorPointer, true},
		{"hover", CursorPointer, false},
		{"scrollIntoView", CursorDefault, false},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			state, click := cursorFor(tt.method)
			assert.Equal(t, tt.state, state)
			assert.Equal(t, tt.click, click)
		})
	}
}

func TestExecuteScrollIntoViewIsBestEffort(t *testing.T) {
	p := newFakePage()
	p.scrollErr = errors.New("not attached")
	var delays []time.Duration
	e := newTestExecutor(p, &delays)

	_, err := e.Execute(context.Background(), Action{Method: "scrollIntoView", Path: "//div"})
	require.NoError(t, err)
	assert.Equal(t, []string{"scrollIntoView //div"}, p.calls)
}

func TestExecuteInvalidMethod(t *testing.T) {
	p := newFakePage()
	var delays []time.Duration
	e := newTestExecutor(p, &delays)

	_, err := e.Execute(context.Background(), Action{Method: "teleport", Path: "//div"})
	assert.ErrorIs(t, err, ErrInvalidMethod)
	assert.Empty(t, p.calls)

	_, err = e.Execute(context.Background(), Action{Method: "click"})
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestExecuteGenericMethod(t *testing.T) {
	p := newFakePage()
	var delays []time.Duration
	e := newTestExecutor(p, &delays)

	_, err := e.Execute(context.Background(), Action{Method: "press", Path: "//input", Args: []string{"Enter"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"press //input [Enter]"}, p.calls)
}

func TestExecuteClick(t *testing.T) {
	tests := []struct {
		name      string
		link      bool
		opens     string
		navigates string
		wantCalls []string
		wantURL   string
		newPage   string
	}{
		{
			name:      "button waits for network idle armed before the click",
			wantCalls: []string{"arm idle", "click //button", "idle"},
			wantURL:   "https://example.com/",
		},
		{
			name:      "same tab link",
			link:      true,
			navigates: "https://example.com/docs",
			wantCalls: []string{"arm", "click //a"},
			wantURL:   "https://example.com/docs",
		},
		{
			name:      "new tab link is absorbed",
			link:      true,
			opens:     "https://other.example/",
			wantCalls: []string{"arm", "click //a", "navigate https://other.example/"},
			wantURL:   "https://other.example/",
			newPage:   "https://other.example/",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePage()
			p.opens = tt.opens
			p.navigates = tt.navigates
			path := "//button"
			if tt.link {
				path = "//a"
				p.links[path] = true
			}
			var delays []time.Duration
			e := newTestExecutor(p, &delays)

			res, err := e.Execute(context.Background(), Action{Method: "click", Path: path})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, p.calls)
			assert.Equal(t, tt.wantURL, res.URLAfter)
			assert.Equal(t, tt.wantURL != res.URLBefore, res.Navigated())
			assert.Equal(t, tt.newPage, res.NewPage)
			assert.True(t, res.Cursor.Click)
		})
	}
}

func TestExecuteNetworkIdleTimeoutIsIgnored(t *testing.T) {
	p := newFakePage()
	p.idleErr = context.DeadlineExceeded
	var delays []time.Duration
	e := newTestExecutor(p, &delays)

	_, err := e.Execute(context.Background(), Action{Method: "click", Path: "//button"})
	assert.NoError(t, err)
}

func TestExecuteSurfacesPageErrors(t *testing.T) {
	p := newFakePage()
	p.failOn = "click"
	var delays []time.Duration
	e := newTestExecutor(p, &delays)

	_, err := e.Execute(context.Background(), Action{Method: "click", Path: "//button"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element is detached")
	assert.NotErrorIs(t, err, ErrInvalidMethod)
}

package agent

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/v0xg/pagepilot/internal/ai"
	"github.com/v0xg/pagepilot/internal/dom"
	"github.com/v0xg/pagepilot/internal/dom/domtest"
	"github.com/v0xg/pagepilot/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBrowser struct {
	*domtest.Page

	mu         sync.Mutex
	url        string
	clickTo    string
	clickErr   error
	calls      []string
	typed      strings.Builder
	settled    int
	shots      []bool
	highlights int
	clears     int
}

func newFakeBrowser(p *domtest.Page) *fakeBrowser {
	return &fakeBrowser{Page: p, url: "https://example.com/"}
}

func (f *fakeBrowser) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBrowser) URL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeBrowser) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	f.url = url
	f.mu.Unlock()
	f.Page.Navigate(url)
	f.record("navigate " + url)
	return nil
}

func (f *fakeBrowser) Has(method string) bool { return method == "hover" }

func (f *fakeBrowser) Invoke(_ context.Context, path, method string, _ []string) error {
	f.record(method + " " + path)
	return nil
}

func (f *fakeBrowser) Clear(_ context.Context, path string) error {
	f.record("clear " + path)
	return nil
}

func (f *fakeBrowser) Click(_ context.Context, path string) error {
	f.record("click " + path)
	if f.clickErr != nil {
		return f.clickErr
	}
	if f.clickTo != "" {
		f.mu.Lock()
		f.url = f.clickTo
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeBrowser) TypeRune(_ context.Context, r rune) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed.WriteRune(r)
	return nil
}

func (f *fakeBrowser) IsLink(context.Context, string) (bool, error) { return false, nil }

func (f *fakeBrowser) ScrollIntoView(_ context.Context, path string) error {
	f.record("scrollIntoView " + path)
	return nil
}

func (f *fakeBrowser) Center(context.Context, string) (float64, float64, error) { return 50, 50, nil }

func (f *fakeBrowser) ArmNewPage(context.Context, time.Duration) func() (string, bool) {
	return func() (string, bool) { return "", false }
}

func (f *fakeBrowser) ArmNetworkIdle(context.Context, time.Duration) func() error {
	return func() error { return nil }
}

func (f *fakeBrowser) WaitSettled(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled++
}

func (f *fakeBrowser) Screenshot(_ context.Context, fullPage bool, _ int) ([]byte, error) {
	f.mu.Lock()
	f.shots = append(f.shots, fullPage)
	f.mu.Unlock()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 320, 240))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *fakeBrowser) Highlight(context.Context, *dom.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.highlights++
	return nil
}

func (f *fakeBrowser) ClearHighlight(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

// scriptedOracle replays queued answers. An exhausted act queue skips every chunk and an
// exhausted verify queue agrees.
type scriptedOracle struct {
	vision bool

	acts     []*ai.ActResponse
	actErr   error
	verifies []bool
	extracts []*ai.ExtractResponse
	observed []ai.Observation
	answer   string

	actReqs     []ai.ActRequest
	verifyReqs  []ai.VerifyRequest
	extractReqs []ai.ExtractRequest
	observeReqs []ai.ObserveRequest
}

func (o *scriptedOracle) Act(_ context.Context, req ai.ActRequest) (*ai.ActResponse, error) {
	o.actReqs = append(o.actReqs, req)
	if o.actErr != nil {
		return nil, o.actErr
	}
	if len(o.acts) == 0 {
		return nil, nil
	}
	resp := o.acts[0]
	o.acts = o.acts[1:]
	return resp, nil
}

func (o *scriptedOracle) Verify(_ context.Context, req ai.VerifyRequest) (bool, error) {
	o.verifyReqs = append(o.verifyReqs, req)
	if len(o.verifies) == 0 {
		return true, nil
	}
	ok := o.verifies[0]
	o.verifies = o.verifies[1:]
	return ok, nil
}

func (o *scriptedOracle) Extract(_ context.Context, req ai.ExtractRequest) (*ai.ExtractResponse, error) {
	o.extractReqs = append(o.extractReqs, req)
	if len(o.extracts) == 0 {
		return &ai.ExtractResponse{Completed: true}, nil
	}
	resp := o.extracts[0]
	o.extracts = o.extracts[1:]
	return resp, nil
}

func (o *scriptedOracle) Observe(_ context.Context, req ai.ObserveRequest) ([]ai.Observation, error) {
	o.observeReqs = append(o.observeReqs, req)
	return o.observed, nil
}

func (o *scriptedOracle) Ask(context.Context, string) (string, error) { return o.answer, nil }

func (o *scriptedOracle) SupportsVision() bool { return o.vision }

func (o *scriptedOracle) Model() string { return "test-model" }

// twoChunkPage has a button in the first viewport and an input in the second
func twoChunkPage() *domtest.Page {
	return domtest.NewPage(1000, 2000,
		domtest.El("button", domtest.Box(10, 100, 100, 30), domtest.Attrs("id", "first")),
		domtest.El("input", domtest.Box(10, 1100, 200, 30), domtest.Attrs("id", "email", "type", "text")),
	)
}

func newTestSession(t *testing.T, b *fakeBrowser, o *scriptedOracle, mutate ...func(*Options)) *Session {
	t.Helper()
	opts := DefaultOptions()
	opts.Executor.Sleep = func(time.Duration) {}
	for _, m := range mutate {
		m(&opts)
	}
	return NewSession(b, o, opts)
}

func TestParseVisionMode(t *testing.T) {
	for in, want := range map[string]VisionMode{"true": VisionOn, "FALSE": VisionOff, "fallback": VisionFallback} {
		got, err := ParseVisionMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseVisionMode("sometimes")
	assert.Error(t, err)
}

func TestAppendStep(t *testing.T) {
	assert.Equal(t, "a\n", appendStep("", "a\n"))
	assert.Equal(t, "x\na\n", appendStep("x", "a\n"))
	assert.Equal(t, "x\na\n", appendStep("x\n", "a\n"))
}

func TestActSkipsChunkThenFills(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{acts: []*ai.ActResponse{
		nil,
		{Method: "fill", Element: 0, Args: []string{"me@example.com"}, Step: "Fill the email", Why: "asked to", Completed: true},
	}}
	s := newTestSession(t, b, o)
	ctx := context.Background()

	const action = "fill the email field with me@example.com"
	out, err := s.Act(ctx, action)
	require.NoError(t, err)
	require.True(t, out.Success, out.Message)
	assert.Equal(t, ReasonNone, out.Reason)
	assert.Equal(t, 2, out.Steps)

	require.Len(t, o.actReqs, 2)
	assert.Empty(t, o.actReqs[0].Steps)
	assert.Equal(t, 1, strings.Count(o.actReqs[1].Steps, "Scrolled to another section"))
	assert.Contains(t, o.actReqs[1].DOM, `id="email"`)
	assert.Nil(t, o.actReqs[0].Image)

	require.Len(t, o.verifyReqs, 1)
	assert.Nil(t, o.verifyReqs[0].Image)
	assert.Contains(t, o.verifyReqs[0].DOM, `id="first"`)
	assert.Contains(t, o.verifyReqs[0].DOM, `id="email"`)
	assert.Contains(t, o.verifyReqs[0].Steps, "## Step: Fill the email\n")

	assert.Equal(t, "me@example.com", b.typed.String())
	assert.True(t, strings.HasPrefix(out.Message, "Action completed successfully: ## Step: Scrolled to another section\nFill the email\nElement: "))
	assert.Contains(t, out.Message, `id="email"`)

	rec, err := s.Store().Action(ctx, store.Key(action))
	require.NoError(t, err)
	assert.Equal(t, out.Message, rec.Result)
	assert.Equal(t, s.ID(), rec.Session)
}

func TestActVerifierRejectionContinues(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	b.clickTo = "https://example.com/next"
	o := &scriptedOracle{
		acts: []*ai.ActResponse{
			{Method: "click", Element: 0, Step: "Open next", Why: "link", Completed: true},
			{Method: "click", Element: 0, Step: "Open again", Why: "retry", Completed: true},
		},
		verifies: []bool{false, true},
	}
	s := newTestSession(t, b, o)

	out, err := s.Act(context.Background(), "go to the next page")
	require.NoError(t, err)
	require.True(t, out.Success, out.Message)
	require.Len(t, o.verifyReqs, 2)
	require.Len(t, o.actReqs, 2)
	assert.Contains(t, o.actReqs[1].Steps, "## Step: Open next\n")
	assert.Contains(t, o.actReqs[1].Steps, "  Result (Important): Page url changed to https://example.com/next after this step\n\n")
	assert.True(t, strings.HasPrefix(out.Message, "Action completed successfully: ## Step: Open next\n"))
}

func TestActVisionFallback(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{
		vision: true,
		acts:   []*ai.ActResponse{nil, nil, {Method: "click", Element: 0, Step: "Click first", Completed: true}},
	}
	s := newTestSession(t, b, o)

	out, err := s.Act(context.Background(), "click the first button")
	require.NoError(t, err)
	require.True(t, out.Success, out.Message)
	assert.Equal(t, 3, out.Steps)

	require.Len(t, o.actReqs, 3)
	assert.Nil(t, o.actReqs[0].Image)
	assert.Nil(t, o.actReqs[1].Image)
	assert.NotEmpty(t, o.actReqs[2].Image)
	assert.Contains(t, o.actReqs[2].DOM, `id="first"`)

	require.Len(t, o.verifyReqs, 1)
	assert.Nil(t, o.verifyReqs[0].Image, "fallback sessions verify from text")
	assert.Contains(t, b.calls, "click //*[@id='first']")
}

func TestActVisionOnVerifiesWithScreenshot(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{
		vision: true,
		acts:   []*ai.ActResponse{{Method: "hover", Element: 0, Step: "Hover", Completed: true}},
	}
	s := newTestSession(t, b, o, func(opts *Options) { opts.Vision = VisionOn })

	out, err := s.Act(context.Background(), "hover the first button")
	require.NoError(t, err)
	require.True(t, out.Success, out.Message)
	require.Len(t, o.verifyReqs, 1)
	assert.NotEmpty(t, o.verifyReqs[0].Image)
	assert.Empty(t, o.verifyReqs[0].DOM)
	assert.Equal(t, []bool{false, true}, b.shots)
	assert.Contains(t, b.calls, "hover //*[@id='first']")
}

func TestActNonVisionModelNotFound(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{}
	s := newTestSession(t, b, o)
	ctx := context.Background()

	const action = "press the missing button"
	out, err := s.ActWith(ctx, action, VisionOn)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, ReasonNoActionFound, out.Reason)
	assert.Equal(t, msgNotFound, out.Message)
	assert.Equal(t, 2, out.Steps)
	for _, req := range o.actReqs {
		assert.Nil(t, req.Image)
	}
	assert.Empty(t, b.shots)

	rec, err := s.Store().Action(ctx, store.Key(action))
	require.NoError(t, err)
	assert.Empty(t, rec.Result)
}

func TestActInvalidMethodRetries(t *testing.T) {
	teleport := &ai.ActResponse{Method: "teleport", Element: 0}
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{acts: []*ai.ActResponse{teleport, teleport, teleport, teleport}}
	s := newTestSession(t, b, o)

	out, err := s.Act(context.Background(), "teleport away")
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, ReasonInvalidMethod, out.Reason)
	assert.Equal(t, "Internal error: Chosen method teleport is invalid", out.Message)
	assert.Len(t, o.actReqs, 3)
	assert.Empty(t, b.calls)
}

func TestActUnknownElement(t *testing.T) {
	ghost := &ai.ActResponse{Method: "click", Element: 42}
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{acts: []*ai.ActResponse{ghost, ghost, ghost}}
	s := newTestSession(t, b, o)

	out, err := s.Act(context.Background(), "click element 42")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidMethod, out.Reason)
	assert.Equal(t, "Internal error: Chosen element 42 is not on the page", out.Message)
}

func TestActExecutionError(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	b.clickErr = errors.New("element is detached")
	o := &scriptedOracle{acts: []*ai.ActResponse{{Method: "click", Element: 0, Completed: true}}}
	s := newTestSession(t, b, o)

	out, err := s.Act(context.Background(), "click the first button")
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, ReasonExecutionError, out.Reason)
	assert.True(t, strings.HasPrefix(out.Message, "Error performing action: "))
	assert.Contains(t, out.Message, "element is detached")
	assert.Equal(t, 1, out.Steps)
	assert.Empty(t, o.verifyReqs)
}

func TestActOracleError(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{actErr: errors.New("rate limited")}
	s := newTestSession(t, b, o)

	out, err := s.Act(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, ReasonOracleError, out.Reason)
	assert.Equal(t, "Error performing action: rate limited", out.Message)
}

func TestActMaxSteps(t *testing.T) {
	step := &ai.ActResponse{Method: "scrollIntoView", Element: 0, Step: "Scroll"}
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{acts: []*ai.ActResponse{step, step, step, step}}
	s := newTestSession(t, b, o, func(opts *Options) { opts.MaxSteps = 3 })

	out, err := s.Act(context.Background(), "scroll forever")
	require.NoError(t, err)
	assert.Equal(t, ReasonMaxSteps, out.Reason)
	assert.Equal(t, "Action not completed after 3 steps", out.Message)
	assert.Equal(t, 3, out.Steps)
	assert.Len(t, o.actReqs, 3)
	assert.Empty(t, o.verifyReqs)
}

func TestActCanceled(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	s := newTestSession(t, b, &scriptedOracle{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := s.Act(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
}

func TestActDebugHighlights(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{acts: []*ai.ActResponse{{Method: "click", Element: 0, Completed: true}}}
	s := newTestSession(t, b, o, func(opts *Options) { opts.Debug = true })

	_, err := s.Act(context.Background(), "click the first button")
	require.NoError(t, err)
	assert.Equal(t, 1, b.highlights)
	assert.Equal(t, 1, b.clears)
}

func TestExtractMergesChunks(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{extracts: []*ai.ExtractResponse{
		{Content: map[string]any{"title": "Shoes", "items": []any{"a"}}, Progress: "found title"},
		{Content: map[string]any{"items": []any{"b"}, "price": "10"}, Progress: "found price"},
	}}
	s := newTestSession(t, b, o)

	content, err := s.Extract(context.Background(), "extract the product", map[string]any{"type": "object"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Shoes", "items": []any{"a", "b"}, "price": "10"}, content)

	require.Len(t, o.extractReqs, 2)
	assert.Empty(t, o.extractReqs[0].Progress)
	assert.Equal(t, "found title, ", o.extractReqs[1].Progress)
	assert.Contains(t, o.extractReqs[0].DOM, `id="first"`)
	assert.Contains(t, o.extractReqs[1].DOM, `id="email"`)
}

func TestExtractEmptyValuesKeepEarlierContent(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{extracts: []*ai.ExtractResponse{
		{Content: map[string]any{"title": "Shoes", "price": "10", "product": map[string]any{"name": "A"}}},
		{Content: map[string]any{"title": "", "price": nil, "tags": []any{}, "product": map[string]any{"sku": "1", "name": ""}}},
	}}
	s := newTestSession(t, b, o)

	content, err := s.Extract(context.Background(), "extract the product", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"title":   "Shoes",
		"price":   "10",
		"product": map[string]any{"name": "A", "sku": "1"},
	}, content)
}

func TestPruneEmpty(t *testing.T) {
	got := pruneEmpty(map[string]any{
		"nil":    nil,
		"empty":  "",
		"list":   []any{},
		"nested": map[string]any{"gone": nil},
		"zero":   0.0,
		"false":  false,
		"kept":   "x",
	})
	assert.Equal(t, map[string]any{"zero": 0.0, "false": false, "kept": "x"}, got)
}

func TestExtractStopsWhenCompleted(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{extracts: []*ai.ExtractResponse{
		{Content: map[string]any{"title": "Shoes"}, Completed: true},
	}}
	s := newTestSession(t, b, o)

	content, err := s.Extract(context.Background(), "extract the title", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Shoes"}, content)
	assert.Len(t, o.extractReqs, 1)
}

func TestObserveMapsLocators(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{observed: []ai.Observation{
		{ElementID: 1, Description: "email field"},
		{ElementID: 99, Description: "hallucinated"},
	}}
	s := newTestSession(t, b, o)
	ctx := context.Background()

	els, err := s.Observe(ctx, ObserveOptions{})
	require.NoError(t, err)
	require.Len(t, els, 1)
	assert.Equal(t, 1, els[0].Index)
	assert.Equal(t, "email field", els[0].Description)
	require.NotEmpty(t, els[0].Locator)
	assert.Equal(t, "//*[@id='email']", els[0].Locator[0])
	assert.Equal(t, store.Key(strings.Join(els[0].Locator, ",")), els[0].ID)

	require.Len(t, o.observeReqs, 1)
	assert.Equal(t, ai.DefaultObservation, o.observeReqs[0].Instruction)
	assert.Contains(t, o.observeReqs[0].DOM, `id="first"`)
	assert.Contains(t, o.observeReqs[0].DOM, `id="email"`)
	assert.Nil(t, o.observeReqs[0].Image)

	recs, err := s.Store().Observations(ctx, s.ID())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, els[0].ID, recs[0].ID)
	assert.Equal(t, ai.DefaultObservation, recs[0].Instruction)
}

func TestObserveWithVision(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	o := &scriptedOracle{vision: true, observed: []ai.Observation{{ElementID: 0, Description: "button"}}}
	s := newTestSession(t, b, o)

	els, err := s.Observe(context.Background(), ObserveOptions{Instruction: "find buttons", Vision: true})
	require.NoError(t, err)
	require.Len(t, els, 1)
	require.Len(t, o.observeReqs, 1)
	assert.Equal(t, ai.NoDOMWithImage, o.observeReqs[0].DOM)
	assert.NotEmpty(t, o.observeReqs[0].Image)
	assert.Equal(t, []bool{true}, b.shots)
}

func TestNavigateResetsPathCache(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	s := newTestSession(t, b, &scriptedOracle{})
	ctx := context.Background()

	_, err := s.Snapshot(ctx, false)
	require.NoError(t, err)
	require.Positive(t, s.cache.Len())

	require.NoError(t, s.Navigate(ctx, "https://example.com/other"))
	assert.Zero(t, s.cache.Len())
	assert.Contains(t, b.calls, "navigate https://example.com/other")
}

func TestQueryAndAsk(t *testing.T) {
	b := newFakeBrowser(twoChunkPage())
	s := newTestSession(t, b, &scriptedOracle{answer: "42"})
	ctx := context.Background()

	nodes, err := s.Query(ctx, "//input[@type='text']")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "input", nodes[0].Tag)

	answer, err := s.Ask(ctx, "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "42", answer)
}

// Package agent drives a page on behalf of natural-language instructions: it acts, extracts,
// observes and answers questions by consulting an oracle over chunked snapshots.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/v0xg/pagepilot/internal/ai"
	"github.com/v0xg/pagepilot/internal/dom"
	"github.com/v0xg/pagepilot/internal/executor"
	"github.com/v0xg/pagepilot/internal/gifgen"
	"github.com/v0xg/pagepilot/internal/overlay"
	"github.com/v0xg/pagepilot/internal/store"
)

// Browser is the page capability a session drives
type Browser interface {
	dom.Page
	executor.Page
	// WaitSettled blocks until the page is loaded and stable, or its own timeout passes.
	WaitSettled(ctx context.Context)
	Screenshot(ctx context.Context, fullPage bool, quality int) ([]byte, error)
	Highlight(ctx context.Context, snap *dom.Snapshot) error
	ClearHighlight(ctx context.Context) error
}

// VisionMode controls when the oracle sees an annotated screenshot
type VisionMode string

const (
	VisionOff      VisionMode = "false"
	VisionOn       VisionMode = "true"
	VisionFallback VisionMode = "fallback"
)

// ParseVisionMode accepts true, false or fallback
func ParseVisionMode(s string) (VisionMode, error) {
	switch m := VisionMode(strings.ToLower(s)); m {
	case VisionOff, VisionOn, VisionFallback:
		return m, nil
	}
	return "", fmt.Errorf("unknown vision mode %q (supported: true, false, fallback)", s)
}

// Options configures a session
type Options struct {
	Vision          VisionMode
	MaxSteps        int
	MethodRetries   int
	VisionFallbacks int
	// Debug highlights snapshot candidates on the live page while the oracle decides
	Debug bool
	// ScreenshotWidth downscales annotated screenshots; zero keeps their size
	ScreenshotWidth uint
	Workers         int
	Classifier      *dom.Classifier
	Executor        executor.Options
	Store           store.Store
	Trace           *gifgen.Recorder
	Logger          *zap.Logger
}

// DefaultOptions returns the loop bounds used by the CLI
func DefaultOptions() Options {
	return Options{
		Vision:          VisionFallback,
		MaxSteps:        20,
		MethodRetries:   2,
		VisionFallbacks: 1,
		ScreenshotWidth: 1280,
		Executor:        executor.DefaultOptions(),
	}
}

// Session owns one page, its path cache and its records. It is not safe for concurrent use:
// every operation mutates the shared page.
type Session struct {
	id      string
	browser Browser
	oracle  ai.Oracle
	cache   *dom.PathCache
	builder *dom.Builder
	exec    *executor.Executor
	store   store.Store
	trace   *gifgen.Recorder
	opts    Options
	logger  *zap.Logger
}

// NewSession wires a session to a browser and an oracle
func NewSession(b Browser, o ai.Oracle, opts Options) *Session {
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session", id))
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultOptions().MaxSteps
	}
	if opts.Vision == "" {
		opts.Vision = VisionFallback
	}

	cache := dom.NewPathCache()
	domOpts := []dom.Option{dom.WithLogger(logger)}
	if opts.Classifier != nil {
		domOpts = append(domOpts, dom.WithClassifier(opts.Classifier))
	}
	if opts.Workers > 0 {
		domOpts = append(domOpts, dom.WithWorkers(opts.Workers))
	}
	execOpts := opts.Executor
	execOpts.Logger = logger

	st := opts.Store
	if st == nil {
		st = store.NewMemory()
	}

	return &Session{
		id:      id,
		browser: b,
		oracle:  o,
		cache:   cache,
		builder: dom.NewBuilder(b, cache, domOpts...),
		exec:    executor.New(b, execOpts),
		store:   st,
		trace:   opts.Trace,
		opts:    opts,
		logger:  logger,
	}
}

// ID is the session's unique id
func (s *Session) ID() string { return s.id }

// Store returns the session's record store
func (s *Session) Store() store.Store { return s.store }

// Navigate loads url, waits for it to settle and forgets every cached location path.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.browser.Navigate(ctx, url); err != nil {
		return err
	}
	s.cache.Reset()
	s.browser.WaitSettled(ctx)
	return nil
}

// Snapshot returns the whole page, or only the chunk at the current scroll position.
func (s *Session) Snapshot(ctx context.Context, fullPage bool) (*dom.Snapshot, error) {
	s.browser.WaitSettled(ctx)
	if fullPage {
		return s.builder.BuildAll(ctx)
	}
	return s.builder.Next(ctx, nil)
}

// Query evaluates an XPath expression against a fresh capture of the page
func (s *Session) Query(ctx context.Context, expr string) ([]*dom.Node, error) {
	c, err := s.browser.Capture(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := dom.NewTree(c)
	if err != nil {
		return nil, err
	}
	return tree.Find(expr)
}

// Ask answers a plain question once the page has settled
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	s.browser.WaitSettled(ctx)
	return s.oracle.Ask(ctx, question)
}

// vision drops to VisionOff when the model cannot take images
func (s *Session) vision(mode VisionMode, logger *zap.Logger) VisionMode {
	if mode != VisionOff && !s.oracle.SupportsVision() {
		logger.Warn(fmt.Sprintf("%s does not support vision, but vision was set to %s. Defaulting to false.", s.oracle.Model(), mode))
		return VisionOff
	}
	return mode
}

// annotated screenshots the viewport, or the whole page, with the snapshot's indices drawn on.
func (s *Session) annotated(ctx context.Context, snap *dom.Snapshot, fullPage bool) ([]byte, error) {
	shot, err := s.browser.Screenshot(ctx, fullPage, 0)
	if err != nil {
		return nil, err
	}
	return overlay.AnnotateScreenshot(shot, overlay.LabelsFor(snap.Entries, fullPage), s.opts.ScreenshotWidth)
}

func (s *Session) startDebug(ctx context.Context, snap *dom.Snapshot) {
	if !s.opts.Debug {
		return
	}
	if err := s.browser.Highlight(ctx, snap); err != nil {
		s.logger.Debug("error in dom debug", zap.Error(err))
	}
}

func (s *Session) cleanupDebug(ctx context.Context) {
	if !s.opts.Debug {
		return
	}
	if err := s.browser.ClearHighlight(ctx); err != nil {
		s.logger.Debug("error cleaning up dom debug", zap.Error(err))
	}
}

// recordFrame adds the page as it looks after a step to the trace
func (s *Session) recordFrame(ctx context.Context, cursor executor.CursorPosition) {
	if s.trace == nil {
		return
	}
	shot, err := s.browser.Screenshot(ctx, false, 0)
	if err == nil {
		err = s.trace.Add(shot, cursor)
	}
	if err != nil {
		s.logger.Debug("error recording trace frame", zap.Error(err))
	}
}

func (s *Session) currentURL(ctx context.Context) string {
	url, err := s.browser.URL(ctx)
	if err != nil {
		return ""
	}
	return url
}

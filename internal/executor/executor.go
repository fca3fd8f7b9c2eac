package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrInvalidMethod is returned when the page cannot perform the requested method
	ErrInvalidMethod = errors.New("invalid method")
	// ErrElementNotFound is returned when a location path matches nothing on the live page
	ErrElementNotFound = errors.New("element not found")
)

// Page is the browser capability needed to execute primitive operations by location path.
type Page interface {
	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	// Has reports whether method is a generic element operation this page supports.
	Has(method string) bool
	Invoke(ctx context.Context, path, method string, args []string) error
	Clear(ctx context.Context, path string) error
	Click(ctx context.Context, path string) error
	// TypeRune presses one character on whatever element has focus.
	TypeRune(ctx context.Context, r rune) error
	IsLink(ctx context.Context, path string) (bool, error)
	ScrollIntoView(ctx context.Context, path string) error
	Center(ctx context.Context, path string) (x, y float64, err error)
	// ArmNewPage starts listening for a page opened by the next action. The returned wait
	// blocks until one appears or timeout passes, and reports its URL after closing it.
	// The listener stops on its own after timeout when wait is never called.
	ArmNewPage(ctx context.Context, timeout time.Duration) func() (string, bool)
	// ArmNetworkIdle starts tracking requests. The returned wait blocks until none has been
	// in flight for a short quiet period, or timeout passes since arming.
	ArmNetworkIdle(ctx context.Context, timeout time.Duration) func() error
}

// Options configures execution behavior
type Options struct {
	TypingMinDelay     time.Duration
	TypingMaxDelay     time.Duration
	NewPageTimeout     time.Duration
	NetworkIdleTimeout time.Duration
	Logger             *zap.Logger
	// Rand drives the typing delay; nil seeds from the clock.
	Rand *rand.Rand
	// Sleep replaces time.Sleep between keystrokes.
	Sleep func(time.Duration)
}

// DefaultOptions mirror a human typing 25-75ms per key and a 1.5s window for new tabs
func DefaultOptions() Options {
	return Options{
		TypingMinDelay:     25 * time.Millisecond,
		TypingMaxDelay:     75 * time.Millisecond,
		NewPageTimeout:     1500 * time.Millisecond,
		NetworkIdleTimeout: 5 * time.Second,
	}
}

// Executor runs oracle-chosen actions against one page
type Executor struct {
	page   Page
	opts   Options
	logger *zap.Logger
	rng    *rand.Rand
	sleep  func(time.Duration)
}

// New creates an executor for page
func New(page Page, opts Options) *Executor {
	e := &Executor{page: page, opts: opts, logger: opts.Logger, rng: opts.Rand, sleep: opts.Sleep}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.Named("action")
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.sleep == nil {
		e.sleep = time.Sleep
	}
	if e.opts.TypingMaxDelay < e.opts.TypingMinDelay {
		e.opts.TypingMaxDelay = e.opts.TypingMinDelay
	}
	return e
}

// Valid reports whether method can be executed at all
func (e *Executor) Valid(method string) bool {
	switch method {
	case "scrollIntoView", "fill", "type", "click":
		return true
	}
	return e.page.Has(method)
}

// Execute performs one action. Invalid methods fail with ErrInvalidMethod before the page is
// touched; every other error comes from the page itself.
func (e *Executor) Execute(ctx context.Context, a Action) (*Result, error) {
	if a.Path == "" {
		return nil, fmt.Errorf("element %d: %w", a.Element, ErrElementNotFound)
	}
	if !e.Valid(a.Method) {
		return nil, fmt.Errorf("chosen method %s: %w", a.Method, ErrInvalidMethod)
	}

	e.logger.Info("executing method",
		zap.String("method", a.Method),
		zap.Int("element", a.Element),
		zap.String("path", a.Path),
		zap.Strings("args", a.Args))

	before, err := e.page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("read url: %w", err)
	}
	res := &Result{URLBefore: before}

	switch a.Method {
	case "scrollIntoView":
		if err := e.page.ScrollIntoView(ctx, a.Path); err != nil {
			e.logger.Warn("error scrolling element into view", zap.Error(err))
		}
		res.Cursor = e.cursor(ctx, a)
	case "fill", "type":
		res.Cursor = e.cursor(ctx, a)
		if err := e.fill(ctx, a); err != nil {
			return nil, err
		}
	default:
		res.Cursor = e.cursor(ctx, a)
		if err := e.invoke(ctx, a, res); err != nil {
			return nil, err
		}
	}

	after, err := e.page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("read url: %w", err)
	}
	res.URLAfter = after
	if res.Navigated() {
		e.logger.Info("navigation detected", zap.String("url", after))
	}
	return res, nil
}

// fill clears the field, focuses it with a click, then types one key at a time
func (e *Executor) fill(ctx context.Context, a Action) error {
	if err := e.page.Clear(ctx, a.Path); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	if err := e.page.Click(ctx, a.Path); err != nil {
		return fmt.Errorf("focus: %w", err)
	}
	text := ""
	if len(a.Args) > 0 {
		text = a.Args[0]
	}
	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.page.TypeRune(ctx, r); err != nil {
			return fmt.Errorf("type %q: %w", r, err)
		}
		e.sleep(e.typingDelay())
	}
	return nil
}

func (e *Executor) typingDelay() time.Duration {
	spread := e.opts.TypingMaxDelay - e.opts.TypingMinDelay
	if spread <= 0 {
		return e.opts.TypingMinDelay
	}
	return e.opts.TypingMinDelay + time.Duration(e.rng.Int63n(int64(spread)))
}

// invoke runs click or a generic method. Link clicks absorb any page they open; other
// clicks wait for the network to go quiet.
func (e *Executor) invoke(ctx context.Context, a Action, res *Result) error {
	isLink := false
	if a.Method == "click" {
		var err error
		isLink, err = e.page.IsLink(ctx, a.Path)
		if err != nil {
			e.logger.Debug("error checking if element is a link", zap.Error(err))
		}
	}

	var (
		waitNewPage func() (string, bool)
		waitIdle    func() error
	)
	switch {
	case isLink:
		waitNewPage = e.page.ArmNewPage(ctx, e.opts.NewPageTimeout)
	case a.Method == "click":
		waitIdle = e.page.ArmNetworkIdle(ctx, e.opts.NetworkIdleTimeout)
	}

	var err error
	if a.Method == "click" {
		err = e.page.Click(ctx, a.Path)
	} else {
		err = e.page.Invoke(ctx, a.Path, a.Method, a.Args)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", a.Method, err)
	}

	if a.Method != "click" {
		return nil
	}
	if isLink {
		e.logger.Debug("clicking link, checking for new page")
		if url, ok := waitNewPage(); ok {
			e.logger.Info("new page detected", zap.String("url", url))
			res.NewPage = url
			if err := e.page.Navigate(ctx, url); err != nil {
				return fmt.Errorf("follow new page: %w", err)
			}
		} else {
			e.logger.Debug("no new page opened after clicking link")
		}
		return nil
	}

	e.logger.Debug("clicking element, waiting for network to be idle")
	if err := waitIdle(); err != nil {
		e.logger.Debug("network idle timeout", zap.Error(err))
	}
	return nil
}

func (e *Executor) cursor(ctx context.Context, a Action) CursorPosition {
	state, click := cursorFor(a.Method)
	x, y, err := e.page.Center(ctx, a.Path)
	if err != nil {
		return CursorPosition{State: state}
	}
	return CursorPosition{X: int(x), Y: int(y), State: state, Click: click}
}

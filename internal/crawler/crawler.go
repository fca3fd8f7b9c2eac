package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/v0xg/pagepilot/internal/dom"
)

// Options configures the browser session
type Options struct {
	Width              int
	Height             int
	Headless           bool
	Stealth            bool
	ProfileDir         string // Chrome/Chromium profile directory for authenticated sessions
	NavigationTimeout  time.Duration
	SettleTimeout      time.Duration
	NetworkIdleTimeout time.Duration
	Logger             *zap.Logger
}

// Browser wraps the Rod browser and its single live page
type Browser struct {
	browser *rod.Browser
	page    *rod.Page
	opts    Options
	logger  *zap.Logger
}

// Launch starts a browser and opens one blank page sized to the viewport
func Launch(opts Options) (*Browser, error) {
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.SettleTimeout == 0 {
		opts.SettleTimeout = 5 * time.Second
	}
	if opts.NetworkIdleTimeout == 0 {
		opts.NetworkIdleTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("browser")

	path, _ := launcher.LookPath()
	l := launcher.New().Bin(path).Headless(opts.Headless)
	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	var page *rod.Page
	if opts.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	logger.Debug("browser ready",
		zap.Bool("headless", opts.Headless),
		zap.Bool("stealth", opts.Stealth),
		zap.Int("width", opts.Width),
		zap.Int("height", opts.Height))
	return &Browser{browser: browser, page: page, opts: opts, logger: logger}, nil
}

// Close cleans up browser resources
func (b *Browser) Close() {
	if b.page != nil {
		_ = b.page.Close()
	}
	if b.browser != nil {
		_ = b.browser.Close()
	}
}

// Page returns the underlying Rod page
func (b *Browser) Page() *rod.Page {
	return b.page
}

// Navigate loads url and waits for the document to load
func (b *Browser) Navigate(ctx context.Context, url string) error {
	page := b.page.Context(ctx).Timeout(b.opts.NavigationTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// URL returns the current page URL
func (b *Browser) URL(ctx context.Context) (string, error) {
	res, err := b.page.Context(ctx).Eval(`() => window.location.href`)
	if err != nil {
		return "", fmt.Errorf("read url: %w", err)
	}
	return res.Value.Str(), nil
}

// Title returns the document title
func (b *Browser) Title(ctx context.Context) (string, error) {
	res, err := b.page.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return res.Value.Str(), nil
}

// WaitSettled waits for <body>, the load event and a stable DOM, each bounded by the settle
// timeout. Timeouts are logged and ignored.
func (b *Browser) WaitSettled(ctx context.Context) {
	page := b.page.Context(ctx)
	if _, err := page.Timeout(b.opts.SettleTimeout).Element("body"); err != nil {
		b.logger.Debug("body not ready", zap.Error(err))
	}
	if err := page.Timeout(b.opts.SettleTimeout).WaitLoad(); err != nil {
		b.logger.Debug("load state not reached", zap.Error(err))
	}
	if err := page.Timeout(b.opts.SettleTimeout).WaitDOMStable(300*time.Millisecond, 0); err != nil {
		b.logger.Debug("dom did not stabilize", zap.Error(err))
	}
}

// ArmNetworkIdle starts listening for requests now, so ones fired by the next action are
// counted. The returned wait blocks until none has been in flight for 500ms, bounded by
// timeout from arming.
func (b *Browser) ArmNetworkIdle(ctx context.Context, timeout time.Duration) func() error {
	start := time.Now()
	wait := b.page.Context(ctx).Timeout(timeout).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)
	return func() error {
		wait()
		if time.Since(start) >= timeout {
			return context.DeadlineExceeded
		}
		return ctx.Err()
	}
}

// ArmNewPage listens for a page opened by this one, such as a target=_blank link.
func (b *Browser) ArmNewPage(ctx context.Context, timeout time.Duration) func() (string, bool) {
	wait := b.page.Context(ctx).Timeout(timeout).WaitOpen()
	return func() (string, bool) {
		opened, err := wait()
		if err != nil || opened == nil {
			return "", false
		}
		defer func() { _ = opened.Close() }()
		if err := opened.Timeout(timeout).WaitLoad(); err != nil {
			b.logger.Debug("new page did not load", zap.Error(err))
		}
		info, err := opened.Info()
		if err != nil || info.URL == "" || info.URL == "about:blank" {
			return "", false
		}
		return info.URL, true
	}
}

// Capture implements dom.Page
func (b *Browser) Capture(ctx context.Context) (*dom.Capture, error) {
	res, err := b.page.Context(ctx).Eval(captureJS)
	if err != nil {
		return nil, fmt.Errorf("capture document: %w", err)
	}
	var c dom.Capture
	if err := json.Unmarshal([]byte(res.Value.Str()), &c); err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	return &c, nil
}

// Regions implements dom.Page
func (b *Browser) Regions(ctx context.Context, scan bool) ([]dom.RegionMetrics, error) {
	res, err := b.page.Context(ctx).Eval(regionsJS, scan)
	if err != nil {
		return nil, fmt.Errorf("measure regions: %w", err)
	}
	var metrics []dom.RegionMetrics
	if err := json.Unmarshal([]byte(res.Value.Str()), &metrics); err != nil {
		return nil, fmt.Errorf("decode regions: %w", err)
	}
	return metrics, nil
}

// ScrollTo implements dom.Page
func (b *Browser) ScrollTo(ctx context.Context, region dom.Region, offset float64) error {
	h := region.Handle
	if region.Root {
		h = 0
	}
	if _, err := b.page.Context(ctx).Eval(scrollJS, uint64(h), offset); err != nil {
		return fmt.Errorf("scroll region %d to %.0f: %w", h, offset, err)
	}
	return nil
}

// Screenshot captures the viewport or the full page. quality applies to JPEG only.
func (b *Browser) Screenshot(ctx context.Context, fullPage bool, quality int) ([]byte, error) {
	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	if quality > 0 {
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		req.Quality = &quality
	}
	data, err := b.page.Context(ctx).Screenshot(fullPage, req)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return data, nil
}

// HighlightBox is one debug overlay box in viewport pixels
type HighlightBox struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Color string  `json:"color"`
}

var highlightColors = []string{"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4", "#008080"}

// Highlight overlays the snapshot's candidates on the live page
func (b *Browser) Highlight(ctx context.Context, snap *dom.Snapshot) error {
	boxes := make([]HighlightBox, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		if e.Box.Width == 0 || e.Box.Height == 0 {
			continue
		}
		boxes = append(boxes, HighlightBox{
			Index: e.Index,
			X:     e.Box.X,
			Y:     e.Box.Y,
			W:     e.Box.Width,
			H:     e.Box.Height,
			Color: highlightColors[e.Index%len(highlightColors)],
		})
	}
	if _, err := b.page.Context(ctx).Eval(highlightJS, boxes); err != nil {
		return fmt.Errorf("highlight: %w", err)
	}
	return nil
}

// ClearHighlight removes the debug overlay
func (b *Browser) ClearHighlight(ctx context.Context) error {
	if _, err := b.page.Context(ctx).Eval(clearHighlightJS); err != nil {
		return fmt.Errorf("clear highlight: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/v0xg/pagepilot/internal/agent"
	"github.com/v0xg/pagepilot/internal/ai"
	"github.com/v0xg/pagepilot/internal/config"
	"github.com/v0xg/pagepilot/internal/crawler"
	"github.com/v0xg/pagepilot/internal/gifgen"
	"github.com/v0xg/pagepilot/internal/observability"
	"github.com/v0xg/pagepilot/internal/store"
)

var (
	configFile string
	provider   string
	model      string
	vision     string
	headless   bool
	profile    string
	output     string
	storePath  string
	debug      bool
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pagepilot",
		Short: "Drive web pages with natural-language instructions",
		Long: `pagepilot opens a page in a real browser, splits it into viewport-sized chunks
and asks a language model to act on it, extract data from it or describe it.

Example:
  pagepilot act "https://myapp.com" "click login" "fill email with test@example.com"
  pagepilot extract "https://shop.com/item/1" "get the product" --schema product.json`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file (default: ./pagepilot.yaml if present)")
	flags.StringVar(&provider, "provider", "", "AI provider: claude, openai")
	flags.StringVar(&model, "model", "", "Specific model override")
	flags.StringVar(&vision, "vision", "", "Screenshot use: true, false, fallback")
	flags.BoolVar(&headless, "headless", true, "Run the browser without a window")
	flags.StringVar(&profile, "profile", "", "Chrome/Chromium profile directory for authenticated sessions (close browser first)")
	flags.StringVarP(&output, "output", "o", "", "Record a GIF of every executed step to this file")
	flags.StringVar(&storePath, "store", "", "SQLite file for action and observation records (default: in memory)")
	flags.BoolVar(&debug, "debug", false, "Highlight snapshot candidates on the page")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")

	rootCmd.AddCommand(actCmd(), extractCmd(), observeCmd(), snapshotCmd(), askCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var _ agent.Browser = (*crawler.Browser)(nil)

// app is everything one command run needs
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	browser *crawler.Browser
	store   store.Store
	trace   *gifgen.Recorder
	session *agent.Session
}

// loadConfig reads the configuration and applies explicitly set flags on top
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	changed := cmd.Flags().Changed
	if changed("provider") {
		cfg.Oracle.Provider = provider
	}
	if changed("model") {
		cfg.Oracle.Model = model
	}
	if changed("vision") {
		cfg.Act.Vision = vision
	}
	if changed("headless") {
		cfg.Browser.Headless = headless
	}
	if changed("profile") {
		cfg.Browser.ProfileDir = profile
	}
	if changed("output") {
		cfg.Trace.Output = output
	}
	if changed("store") {
		cfg.Store.Path = storePath
	}
	if changed("debug") {
		cfg.DOM.Debug = debug
	}
	if verbose {
		cfg.Logger.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// start launches the browser, connects the oracle and opens url
func start(ctx context.Context, cmd *cobra.Command, url string) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := observability.NewStderrLogger(cfg.Logger)
	a := &app{cfg: cfg, logger: logger}

	fmt.Printf("→ Connecting to %s... ", cfg.Oracle.Provider)
	oracle, err := ai.NewProvider(cfg.Oracle.Provider, cfg.Oracle.Model, ai.Options{
		MaxTokens: cfg.Oracle.MaxTokens,
		Logger:    logger,
	})
	if err != nil {
		fmt.Println("failed")
		return nil, fmt.Errorf("AI provider init failed: %w", err)
	}
	oracle = ai.NewRateLimited(ai.NewTokenCounter(oracle, cfg.Oracle.MaxChunkTokens, logger), cfg.Oracle.RequestsPerMinute)
	fmt.Printf("done (%s)\n", oracle.Model())

	a.store, err = store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	fmt.Printf("→ Launching browser... ")
	a.browser, err = crawler.Launch(crawler.Options{
		Width:              cfg.Browser.Width,
		Height:             cfg.Browser.Height,
		Headless:           cfg.Browser.Headless,
		Stealth:            cfg.Browser.Stealth,
		ProfileDir:         cfg.Browser.ProfileDir,
		NavigationTimeout:  cfg.Browser.NavigationTimeout,
		SettleTimeout:      cfg.Browser.SettleTimeout,
		NetworkIdleTimeout: cfg.Browser.NetworkIdleTimeout,
		Logger:             logger,
	})
	if err != nil {
		fmt.Println("failed")
		a.close()
		return nil, err
	}
	fmt.Println("done")

	if cfg.Trace.Output != "" {
		a.trace = gifgen.NewRecorder(gifgen.Options{
			FPS:      cfg.Trace.FPS,
			MaxWidth: cfg.Trace.MaxWidth,
			NoCursor: cfg.Trace.NoCursor,
		})
	}

	mode, err := agent.ParseVisionMode(cfg.Act.Vision)
	if err != nil {
		a.close()
		return nil, err
	}
	opts := agent.DefaultOptions()
	opts.Vision = mode
	opts.MaxSteps = cfg.Act.MaxSteps
	opts.MethodRetries = cfg.Act.MethodRetries
	opts.VisionFallbacks = cfg.Act.VisionFallbacks
	opts.Debug = cfg.DOM.Debug
	opts.Workers = cfg.DOM.Workers
	opts.ScreenshotWidth = uint(cfg.Browser.Width)
	opts.Executor.TypingMinDelay = cfg.Act.TypingMinDelay
	opts.Executor.TypingMaxDelay = cfg.Act.TypingMaxDelay
	opts.Executor.NewPageTimeout = cfg.Browser.NewPageTimeout
	opts.Executor.NetworkIdleTimeout = cfg.Browser.NetworkIdleTimeout
	opts.Store = a.store
	opts.Trace = a.trace
	opts.Logger = logger
	a.session = agent.NewSession(a.browser, oracle, opts)

	fmt.Printf("→ Opening %s... ", url)
	if err := a.session.Navigate(ctx, url); err != nil {
		fmt.Println("failed")
		a.close()
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	fmt.Println("done")
	return a, nil
}

// close saves the trace and releases the browser and store
func (a *app) close() {
	if a.trace != nil && a.trace.Len() > 0 {
		fmt.Printf("→ Generating GIF (%d frames)... ", a.trace.Len())
		size, err := a.trace.Save(a.cfg.Trace.Output)
		if err != nil {
			fmt.Println("failed")
			a.logger.Error("GIF generation failed", zap.Error(err))
		} else {
			fmt.Println("done")
			fmt.Printf("✓ Saved to %s (%.1f MB)\n", a.cfg.Trace.Output, float64(size)/(1024*1024))
		}
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("error closing store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// run gives fn a started app and tears it down afterwards. Interrupts cancel the context.
func run(cmd *cobra.Command, url string, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := start(ctx, cmd, url)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

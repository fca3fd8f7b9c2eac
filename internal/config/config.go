package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the whole application configuration
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Oracle  OracleConfig  `mapstructure:"oracle" yaml:"oracle"`
	Act     ActConfig     `mapstructure:"act" yaml:"act"`
	DOM     DOMConfig     `mapstructure:"dom" yaml:"dom"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Trace   TraceConfig   `mapstructure:"trace" yaml:"trace"`
}

// LoggerConfig configures the zap logger and optional rotating file
type LoggerConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig configures the launched browser
type BrowserConfig struct {
	Headless           bool          `mapstructure:"headless" yaml:"headless"`
	Width              int           `mapstructure:"width" yaml:"width"`
	Height             int           `mapstructure:"height" yaml:"height"`
	ProfileDir         string        `mapstructure:"profile_dir" yaml:"profile_dir"`
	Stealth            bool          `mapstructure:"stealth" yaml:"stealth"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SettleTimeout      time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
	NetworkIdleTimeout time.Duration `mapstructure:"network_idle_timeout" yaml:"network_idle_timeout"`
	NewPageTimeout     time.Duration `mapstructure:"new_page_timeout" yaml:"new_page_timeout"`
}

// OracleConfig selects the language model
type OracleConfig struct {
	Provider          string `mapstructure:"provider" yaml:"provider"`
	Model             string `mapstructure:"model" yaml:"model"`
	MaxTokens         int64  `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxChunkTokens    int    `mapstructure:"max_chunk_tokens" yaml:"max_chunk_tokens"`
}

// ActConfig bounds the action loop
type ActConfig struct {
	// Vision is "true", "false" or "fallback"
	Vision          string        `mapstructure:"vision" yaml:"vision"`
	MaxSteps        int           `mapstructure:"max_steps" yaml:"max_steps"`
	MethodRetries   int           `mapstructure:"method_retries" yaml:"method_retries"`
	VisionFallbacks int           `mapstructure:"vision_fallbacks" yaml:"vision_fallbacks"`
	TypingMinDelay  time.Duration `mapstructure:"typing_min_delay" yaml:"typing_min_delay"`
	TypingMaxDelay  time.Duration `mapstructure:"typing_max_delay" yaml:"typing_max_delay"`
}

// DOMConfig configures snapshotting
type DOMConfig struct {
	// Debug overlays candidate boxes on the live page while the oracle decides
	Debug bool `mapstructure:"debug" yaml:"debug"`
	// Workers bounds parallel path resolution; zero means one per CPU
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// StoreConfig locates the record database. An empty path keeps records in memory.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// TraceConfig enables the step GIF
type TraceConfig struct {
	Output   string `mapstructure:"output" yaml:"output"`
	FPS      int    `mapstructure:"fps" yaml:"fps"`
	MaxWidth uint   `mapstructure:"max_width" yaml:"max_width"`
	NoCursor bool   `mapstructure:"no_cursor" yaml:"no_cursor"`
}

// NewDefaultConfig returns the configuration with every default applied
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 720)
	v.SetDefault("browser.profile_dir", "")
	v.SetDefault("browser.stealth", false)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.settle_timeout", "10s")
	v.SetDefault("browser.network_idle_timeout", "5s")
	v.SetDefault("browser.new_page_timeout", "1500ms")

	// -- Oracle --
	v.SetDefault("oracle.provider", "claude")
	v.SetDefault("oracle.model", "")
	v.SetDefault("oracle.max_tokens", 1024)
	v.SetDefault("oracle.requests_per_minute", 0)
	v.SetDefault("oracle.max_chunk_tokens", 0)

	// -- Act --
	v.SetDefault("act.vision", "fallback")
	v.SetDefault("act.max_steps", 20)
	v.SetDefault("act.method_retries", 2)
	v.SetDefault("act.vision_fallbacks", 1)
	v.SetDefault("act.typing_min_delay", "25ms")
	v.SetDefault("act.typing_max_delay", "75ms")

	// -- DOM --
	v.SetDefault("dom.debug", false)
	v.SetDefault("dom.workers", 0)

	// -- Store --
	v.SetDefault("store.path", "")

	// -- Trace --
	v.SetDefault("trace.output", "")
	v.SetDefault("trace.fps", 1)
	v.SetDefault("trace.max_width", 800)
	v.SetDefault("trace.no_cursor", false)
}

// Load reads .env (if present), the optional config file and PAGEPILOT_* environment
// overrides, then validates the result.
func Load(configFile string) (*Config, error) {
	// A missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("PAGEPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("pagepilot")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		// Without an explicit file, pagepilot.yaml is optional
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper unmarshals and validates v
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values
func (c *Config) Validate() error {
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser.width and browser.height must be positive")
	}
	switch c.Act.Vision {
	case "true", "false", "fallback":
	default:
		return fmt.Errorf("act.vision must be true, false or fallback, got %q", c.Act.Vision)
	}
	if c.Act.MaxSteps <= 0 {
		return fmt.Errorf("act.max_steps must be a positive integer")
	}
	if c.Act.MethodRetries < 0 || c.Act.VisionFallbacks < 0 {
		return fmt.Errorf("act.method_retries and act.vision_fallbacks cannot be negative")
	}
	if c.Act.TypingMaxDelay < c.Act.TypingMinDelay {
		return fmt.Errorf("act.typing_max_delay must not be below act.typing_min_delay")
	}
	if c.Oracle.Provider == "" {
		return fmt.Errorf("oracle.provider is required")
	}
	if c.Trace.FPS <= 0 {
		return fmt.Errorf("trace.fps must be a positive integer")
	}
	return nil
}

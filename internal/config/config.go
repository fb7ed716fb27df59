// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Values come from the
// config file, environment variables and CLI flags, merged through viper.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Scroll  ScrollConfig  `mapstructure:"scroll" yaml:"scroll"`
	Diff    DiffConfig    `mapstructure:"diff" yaml:"diff"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ViewportConfig is the fixed emulated viewport applied to every page.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width" json:"width"`
	Height int `mapstructure:"height" yaml:"height" json:"height"`
}

// BrowserConfig holds settings for the headless browser process. The locale,
// timezone and user agent are pinned so repeated captures of the same content
// render identically across runs.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	Locale          string         `mapstructure:"locale" yaml:"locale"`
	Timezone        string         `mapstructure:"timezone" yaml:"timezone"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
}

// CaptureConfig tunes the per-URL capture pipeline.
type CaptureConfig struct {
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	StabilizationDelay time.Duration `mapstructure:"stabilization_delay" yaml:"stabilization_delay"`
	// ConsentSettle is how long to wait after clicking a consent banner away
	// before continuing. The dismissal itself is single-shot.
	ConsentSettle time.Duration `mapstructure:"consent_settle" yaml:"consent_settle"`
	FullPage      bool          `mapstructure:"full_page" yaml:"full_page"`
}

// ScrollConfig tunes the lazy-content convergence loop. These are tunable
// operational constants, not invariants; the loop terminates on whichever
// bound is hit first.
type ScrollConfig struct {
	// StepFraction sizes each scroll step as a fraction of the current
	// document height, floored at MinStepPx.
	StepFraction      float64       `mapstructure:"step_fraction" yaml:"step_fraction"`
	MinStepPx         int           `mapstructure:"min_step_px" yaml:"min_step_px"`
	SettleInterval    time.Duration `mapstructure:"settle_interval" yaml:"settle_interval"`
	FinalSettle       time.Duration `mapstructure:"final_settle" yaml:"final_settle"`
	NoChangeThreshold int           `mapstructure:"no_change_threshold" yaml:"no_change_threshold"`
	MaxSteps          int           `mapstructure:"max_steps" yaml:"max_steps"`
	HeightCeilingPx   int           `mapstructure:"height_ceiling_px" yaml:"height_ceiling_px"`
}

// DiffConfig holds the default pixel-comparison parameters. Per-comparison
// options may override both within their documented clamping rules.
type DiffConfig struct {
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
	IncludeAA bool    `mapstructure:"include_aa" yaml:"include_aa"`
	MaxWidth  int     `mapstructure:"max_width" yaml:"max_width"`
	MaxHeight int     `mapstructure:"max_height" yaml:"max_height"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "vizdiff")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 vizdiff/1.0")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "UTC")
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)

	// -- Capture --
	v.SetDefault("capture.navigation_timeout", "30s")
	v.SetDefault("capture.stabilization_delay", "1s")
	v.SetDefault("capture.consent_settle", "500ms")
	v.SetDefault("capture.full_page", true)

	// -- Scroll convergence --
	v.SetDefault("scroll.step_fraction", 0.25)
	v.SetDefault("scroll.min_step_px", 400)
	v.SetDefault("scroll.settle_interval", "250ms")
	v.SetDefault("scroll.final_settle", "500ms")
	v.SetDefault("scroll.no_change_threshold", 3)
	v.SetDefault("scroll.max_steps", 50)
	v.SetDefault("scroll.height_ceiling_px", 60000)

	// -- Diff --
	v.SetDefault("diff.threshold", 0.1)
	v.SetDefault("diff.include_aa", true)
	v.SetDefault("diff.max_width", 10000)
	v.SetDefault("diff.max_height", 10000)
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a validated configuration from a viper object.
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

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport dimensions must be positive")
	}
	if c.Capture.NavigationTimeout <= 0 {
		return fmt.Errorf("capture.navigation_timeout must be a positive duration")
	}
	if c.Scroll.StepFraction <= 0 || c.Scroll.StepFraction > 1 {
		return fmt.Errorf("scroll.step_fraction must be in (0, 1]")
	}
	if c.Scroll.MinStepPx <= 0 {
		return fmt.Errorf("scroll.min_step_px must be positive")
	}
	if c.Scroll.NoChangeThreshold <= 0 {
		return fmt.Errorf("scroll.no_change_threshold must be positive")
	}
	if c.Scroll.MaxSteps <= 0 {
		return fmt.Errorf("scroll.max_steps must be positive")
	}
	if c.Scroll.HeightCeilingPx <= 0 {
		return fmt.Errorf("scroll.height_ceiling_px must be positive")
	}
	if c.Diff.Threshold < 0 || c.Diff.Threshold > 1 {
		return fmt.Errorf("diff.threshold must be within [0, 1]")
	}
	if c.Diff.MaxWidth <= 0 || c.Diff.MaxHeight <= 0 {
		return fmt.Errorf("diff.max_width and diff.max_height must be positive")
	}
	return nil
}

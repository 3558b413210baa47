// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Screenshots() ScreenshotsConfig
	Diff() DiffConfig
	Report() ReportConfig

	// Screenshot Setters
	SetScreenshotsBaseURL(string)
	SetScreenshotsPrintLogs(bool)
	SetScreenshotsStoreInUITestsRepo(bool)

	// Browser Setters
	SetBrowserHeadless(bool)

	// Report Setters
	SetReportFormat(string)
	SetReportOutput(string)

	// Validate re-checks the configuration after setters changed it.
	Validate() error
}

// Config holds the entire application configuration.
// Fields are exported for viper's mapstructure decoding; callers should go
// through the Interface getters.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	ScreenshotsCfg ScreenshotsConfig `mapstructure:"screenshots" yaml:"screenshots"`
	DiffCfg        DiffConfig        `mapstructure:"diff" yaml:"diff"`
	ReportCfg      ReportConfig      `mapstructure:"report" yaml:"report"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Screenshots() ScreenshotsConfig { return c.ScreenshotsCfg }
func (c *Config) Diff() DiffConfig               { return c.DiffCfg }
func (c *Config) Report() ReportConfig           { return c.ReportCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetScreenshotsBaseURL(u string) { c.ScreenshotsCfg.BaseURL = u }
func (c *Config) SetScreenshotsPrintLogs(b bool) { c.ScreenshotsCfg.PrintLogs = b }
func (c *Config) SetScreenshotsStoreInUITestsRepo(b bool) {
	c.ScreenshotsCfg.StoreInUITestsRepo = b
}
func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetReportFormat(f string)  { c.ReportCfg.Format = f }
func (c *Config) SetReportOutput(o string)  { c.ReportCfg.Output = o }

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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ViewportConfig is the browser window size screenshots are taken at.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration  `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	// CaptureTimeout bounds a single verification. The core itself has no
	// timeout; this is the runner's policy.
	CaptureTimeout time.Duration `mapstructure:"capture_timeout" yaml:"capture_timeout"`
}

// ScreenshotsConfig describes where screenshots live and how pages are addressed.
type ScreenshotsConfig struct {
	BaseURL            string `mapstructure:"base_url" yaml:"base_url"`
	BaseDirectory      string `mapstructure:"base_directory" yaml:"base_directory"`
	ExpectedDir        string `mapstructure:"expected_dir" yaml:"expected_dir"`
	ProcessedDir       string `mapstructure:"processed_dir" yaml:"processed_dir"`
	DiffDir            string `mapstructure:"diff_dir" yaml:"diff_dir"`
	PrintLogs          bool   `mapstructure:"print_logs" yaml:"print_logs"`
	StoreInUITestsRepo bool   `mapstructure:"store_in_ui_tests_repo" yaml:"store_in_ui_tests_repo"`
	UITestsDir         string `mapstructure:"ui_tests_dir" yaml:"ui_tests_dir"`
}

// DiffConfig tunes the perceptual comparison and diff image generation.
type DiffConfig struct {
	// PixelThreshold is the per-pixel colour distance (0..1) under which two
	// pixels are considered equal. It is not a mismatch tolerance.
	PixelThreshold float64 `mapstructure:"pixel_threshold" yaml:"pixel_threshold"`
	GenerateImages bool    `mapstructure:"generate_images" yaml:"generate_images"`
	Concurrency    int     `mapstructure:"concurrency" yaml:"concurrency"`
}

// ReportConfig selects the run report format and destination.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "shotcheck")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport.width", 1350)
	v.SetDefault("browser.viewport.height", 768)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.post_load_wait", "250ms")
	v.SetDefault("browser.capture_timeout", "2m")

	// -- Screenshots --
	v.SetDefault("screenshots.base_url", "http://localhost/")
	v.SetDefault("screenshots.base_directory", ".")
	v.SetDefault("screenshots.expected_dir", "expected-screenshots")
	v.SetDefault("screenshots.processed_dir", "processed-screenshots")
	v.SetDefault("screenshots.diff_dir", "screenshot-diffs")
	v.SetDefault("screenshots.print_logs", false)
	v.SetDefault("screenshots.store_in_ui_tests_repo", false)

	// -- Diff --
	v.SetDefault("diff.pixel_threshold", 0.1)
	v.SetDefault("diff.generate_images", true)
	v.SetDefault("diff.concurrency", 4)

	// -- Report --
	v.SetDefault("report.format", "text")
	v.SetDefault("report.output", "stdout")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.BindEnv("screenshots.base_url", "SHOTCHECK_BASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in the directory settings.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.ScreenshotsCfg.BaseDirectory, &c.ScreenshotsCfg.UITestsDir, &c.LoggerCfg.LogFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.ScreenshotsCfg.Validate(); err != nil {
		return fmt.Errorf("screenshots configuration invalid: %w", err)
	}
	if err := c.DiffCfg.Validate(); err != nil {
		return fmt.Errorf("diff configuration invalid: %w", err)
	}
	if c.BrowserCfg.Viewport.Width <= 0 || c.BrowserCfg.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport width and height must be positive integers")
	}
	return nil
}

// Validate checks the Screenshots configuration.
func (s *ScreenshotsConfig) Validate() error {
	if s.ExpectedDir == "" || s.ProcessedDir == "" || s.DiffDir == "" {
		return fmt.Errorf("expected_dir, processed_dir, and diff_dir are required")
	}
	if s.StoreInUITestsRepo && s.UITestsDir == "" {
		return fmt.Errorf("ui_tests_dir is required when store_in_ui_tests_repo is enabled")
	}
	return nil
}

// Validate checks the DiffConfig settings.
func (d *DiffConfig) Validate() error {
	if d.PixelThreshold < 0.0 || d.PixelThreshold > 1.0 {
		return fmt.Errorf("pixel_threshold must be between 0.0 and 1.0")
	}
	if d.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer")
	}
	return nil
}

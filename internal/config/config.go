// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the root configuration of postpilot.
type Config struct {
	Logger      LoggerConfig              `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig             `mapstructure:"browser" yaml:"browser"`
	Humanoid    HumanoidConfig            `mapstructure:"humanoid" yaml:"humanoid"`
	Session     SessionConfig             `mapstructure:"session" yaml:"session"`
	Publish     PublishConfig             `mapstructure:"publish" yaml:"publish"`
	Platforms   map[string]PlatformConfig `mapstructure:"platforms" yaml:"platforms"`
	Diagnostics DiagnosticsConfig         `mapstructure:"diagnostics" yaml:"diagnostics"`
	Report      ReportConfig              `mapstructure:"report" yaml:"report"`
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

// ColorConfig names the terminal color of each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls how the Chromium instance is launched or attached.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// RemoteURL attaches to an already running Chrome started with
	// --remote-debugging-port instead of launching one.
	RemoteURL         string        `mapstructure:"remote_url" yaml:"remote_url"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	Locale            string        `mapstructure:"locale" yaml:"locale"`
	KeepOpen          bool          `mapstructure:"keep_open" yaml:"keep_open"`
	OperationTimeout  time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	Debug             bool          `mapstructure:"debug" yaml:"debug"`
}

// SessionConfig configures the session artifact store and the login gate.
type SessionConfig struct {
	AuthDir        string        `mapstructure:"auth_dir" yaml:"auth_dir"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	LoginTimeout   time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
	SaveAfterLogin bool          `mapstructure:"save_after_login" yaml:"save_after_login"`
}

// PublishConfig tunes the fill pipeline.
type PublishConfig struct {
	Platform          string        `mapstructure:"platform" yaml:"platform"`
	InputMethod       string        `mapstructure:"input_method" yaml:"input_method"`
	TitleFromFilename bool          `mapstructure:"title_from_filename" yaml:"title_from_filename"`
	VerifyMinRatio    float64       `mapstructure:"verify_min_ratio" yaml:"verify_min_ratio"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// MarkerConfig names a cookie that must exist for a session to count as
// authenticated. Domain is matched as a substring of the cookie domain.
type MarkerConfig struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Domain string `mapstructure:"domain" yaml:"domain"`
}

// PlatformConfig holds the per-platform settings a user is expected to edit.
type PlatformConfig struct {
	BlogID           string         `mapstructure:"blog_id" yaml:"blog_id"`
	AuthFile         string         `mapstructure:"auth_file" yaml:"auth_file"`
	SessionMarkers   []MarkerConfig `mapstructure:"session_markers" yaml:"session_markers"`
	LoginURLPatterns []string       `mapstructure:"login_url_patterns" yaml:"login_url_patterns"`
	DefaultCategory  string         `mapstructure:"default_category" yaml:"default_category"`
}

// DiagnosticsConfig controls snapshot capture.
type DiagnosticsConfig struct {
	Dir                string `mapstructure:"dir" yaml:"dir"`
	Screenshots        bool   `mapstructure:"screenshots" yaml:"screenshots"`
	ActiveElementLimit int    `mapstructure:"active_element_limit" yaml:"active_element_limit"`
}

// ReportConfig selects where the run report goes.
type ReportConfig struct {
	Output      string `mapstructure:"output" yaml:"output"`
	Format      string `mapstructure:"format" yaml:"format"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
}

// Platform returns the settings of the named platform.
func (c *Config) Platform(name string) (PlatformConfig, bool) {
	p, ok := c.Platforms[strings.ToLower(name)]
	return p, ok
}

// NewDefaultConfig returns a Config populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "postpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.locale", "ko-KR")
	v.SetDefault("browser.keep_open", true)
	v.SetDefault("browser.operation_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.debug", false)

	setHumanoidDefaults(v)

	// -- Session --
	v.SetDefault("session.auth_dir", ".")
	v.SetDefault("session.poll_interval", "1s")
	v.SetDefault("session.login_timeout", "30m")
	v.SetDefault("session.save_after_login", true)

	// -- Publish --
	v.SetDefault("publish.platform", "naver")
	v.SetDefault("publish.input_method", "clipboard")
	v.SetDefault("publish.title_from_filename", false)
	v.SetDefault("publish.verify_min_ratio", 0.8)
	v.SetDefault("publish.settle_delay", "150ms")

	// -- Platforms --
	v.SetDefault("platforms.naver.auth_file", "auth_naver.json")
	v.SetDefault("platforms.naver.session_markers", []map[string]any{
		{"name": "NID_AUT", "domain": "naver.com"},
		{"name": "NID_SES", "domain": "naver.com"},
	})
	v.SetDefault("platforms.naver.login_url_patterns", []string{"nid.naver.com", "nidlogin", "login.naver"})
	v.SetDefault("platforms.tistory.auth_file", "auth.json")
	v.SetDefault("platforms.tistory.session_markers", []map[string]any{
		{"name": "TSSESSION", "domain": "tistory.com"},
	})
	v.SetDefault("platforms.tistory.login_url_patterns", []string{"/auth/login", "accounts.kakao.com"})
	v.SetDefault("platforms.tistory.default_category", "카테고리 없음")

	// -- Diagnostics --
	v.SetDefault("diagnostics.dir", ".")
	v.SetDefault("diagnostics.screenshots", true)
	v.SetDefault("diagnostics.active_element_limit", 260)

	// -- Report --
	v.SetDefault("report.output", "")
	v.SetDefault("report.format", "json")
	v.SetDefault("report.database_url", "")
}

// NewConfigFromViper unmarshals, expands and validates the configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	_ = v.BindEnv("report.database_url", "POSTPILOT_DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves a leading "~" in every filesystem path.
func (c *Config) ExpandPaths() error {
	paths := []*string{
		&c.Session.AuthDir,
		&c.Diagnostics.Dir,
		&c.Report.Output,
		&c.Browser.UserDataDir,
		&c.Browser.ExecPath,
		&c.Logger.LogFile,
	}
	for _, p := range paths {
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
	if c.Publish.Platform == "" {
		return fmt.Errorf("publish.platform is required")
	}
	if _, ok := c.Platform(c.Publish.Platform); !ok {
		return fmt.Errorf("publish.platform %q has no platforms.%s section", c.Publish.Platform, c.Publish.Platform)
	}
	switch c.Publish.InputMethod {
	case "clipboard", "keystroke", "insert":
	default:
		return fmt.Errorf("publish.input_method must be one of clipboard, keystroke, insert; got %q", c.Publish.InputMethod)
	}
	if c.Publish.VerifyMinRatio <= 0 || c.Publish.VerifyMinRatio > 1 {
		return fmt.Errorf("publish.verify_min_ratio must be in (0, 1]")
	}
	if c.Session.PollInterval <= 0 {
		return fmt.Errorf("session.poll_interval must be positive")
	}
	if c.Session.LoginTimeout < 0 {
		return fmt.Errorf("session.login_timeout must not be negative")
	}
	if c.Browser.OperationTimeout <= 0 {
		return fmt.Errorf("browser.operation_timeout must be positive")
	}
	for name, p := range c.Platforms {
		if len(p.SessionMarkers) == 0 {
			return fmt.Errorf("platforms.%s.session_markers must name at least one cookie", name)
		}
		for _, m := range p.SessionMarkers {
			if m.Name == "" {
				return fmt.Errorf("platforms.%s.session_markers contains an unnamed marker", name)
			}
		}
	}
	switch c.Report.Format {
	case "json", "yaml", "yml", "text":
	default:
		return fmt.Errorf("report.format must be json, yaml or text; got %q", c.Report.Format)
	}
	if err := c.Humanoid.Validate(); err != nil {
		return fmt.Errorf("humanoid configuration invalid: %w", err)
	}
	return nil
}

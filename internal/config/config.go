// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Network     NetworkConfig     `mapstructure:"network" yaml:"network"`
	Classifier  ClassifierConfig  `mapstructure:"classifier" yaml:"classifier"`
	Search      SearchConfig      `mapstructure:"search" yaml:"search"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Run         RunConfig         `mapstructure:"run" yaml:"run"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
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
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// Browser engines.
const (
	EngineChromedp   = "chromedp"
	EnginePlaywright = "playwright"
)

// BrowserConfig holds settings for the browser instance driven during a run.
type BrowserConfig struct {
	Engine          string   `mapstructure:"engine" yaml:"engine"`
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	DisableGPU      bool     `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	Debug           bool     `mapstructure:"debug" yaml:"debug"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string `mapstructure:"args" yaml:"args"`
	// InstallDrivers lets the playwright engine download its browsers on first use.
	InstallDrivers bool `mapstructure:"install_drivers" yaml:"install_drivers"`
}

// NetworkConfig holds the per-operation browser timeouts.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ClickTimeout      time.Duration `mapstructure:"click_timeout" yaml:"click_timeout"`
	FillTimeout       time.Duration `mapstructure:"fill_timeout" yaml:"fill_timeout"`
	LoadTimeout       time.Duration `mapstructure:"load_timeout" yaml:"load_timeout"`
	SubmitLoadTimeout time.Duration `mapstructure:"submit_load_timeout" yaml:"submit_load_timeout"`
	ModalSettle       time.Duration `mapstructure:"modal_settle" yaml:"modal_settle"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

// Classifier providers.
const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderMistral = "mistral"
	ProviderStub    = "stub"
)

// ClassifierConfig selects and configures the page classifier.
type ClassifierConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	// MaxRetryElapsed bounds transport-level retries of transient API errors.
	MaxRetryElapsed time.Duration `mapstructure:"max_retry_elapsed" yaml:"max_retry_elapsed"`
}

// Search providers.
const (
	SearchBrave  = "brave"
	SearchStatic = "static"
)

// SearchConfig configures homepage discovery.
type SearchConfig struct {
	Provider      string        `mapstructure:"provider" yaml:"provider"`
	APIKey        string        `mapstructure:"api_key" yaml:"-"`
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	Results       int           `mapstructure:"results" yaml:"results"`
	RateLimit     float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	StaticResults []string      `mapstructure:"static_results" yaml:"static_results"`
}

// CredentialsConfig holds the account used for the login phase.
type CredentialsConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
}

// Present reports whether both halves of the credential pair are set.
func (c CredentialsConfig) Present() bool {
	return c.Username != "" && c.Password != ""
}

// Run goals.
const (
	GoalChangeEmail = "change-email"
	GoalLoginPage   = "login-page"
)

// RunConfig shapes the navigation flow itself.
type RunConfig struct {
	Goal         string `mapstructure:"goal" yaml:"goal"`
	RetryCeiling int    `mapstructure:"retry_ceiling" yaml:"retry_ceiling"`
	MaxElements  int    `mapstructure:"max_elements" yaml:"max_elements"`
}

// DatabaseConfig holds the database connection details. Persistence is off when URL is empty.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// OutputConfig controls where the final run record is written.
type OutputConfig struct {
	Path   string `mapstructure:"path" yaml:"path"`
	Format string `mapstructure:"format" yaml:"format"`
}

// NewDefaultConfig creates a new configuration populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Defaults are static; failing here is a programming error.
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "waypoint")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.engine", EngineChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.install_drivers", false)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "15s")
	v.SetDefault("network.click_timeout", "10s")
	v.SetDefault("network.fill_timeout", "10s")
	v.SetDefault("network.load_timeout", "5s")
	v.SetDefault("network.submit_load_timeout", "15s")
	v.SetDefault("network.modal_settle", "2s")
	v.SetDefault("network.idle_timeout", "3s")
	v.SetDefault("network.probe_timeout", "2s")

	// -- Classifier --
	v.SetDefault("classifier.provider", ProviderMistral)
	v.SetDefault("classifier.model", "mistral-small-latest")
	v.SetDefault("classifier.temperature", 0.0)
	v.SetDefault("classifier.api_timeout", "60s")
	v.SetDefault("classifier.max_retry_elapsed", "90s")

	// -- Search --
	v.SetDefault("search.provider", SearchBrave)
	v.SetDefault("search.endpoint", "https://api.search.brave.com/res/v1/web/search")
	v.SetDefault("search.results", 5)
	v.SetDefault("search.rate_limit", 1.0)
	v.SetDefault("search.timeout", "15s")

	// -- Run --
	v.SetDefault("run.goal", GoalChangeEmail)
	v.SetDefault("run.retry_ceiling", 3)
	v.SetDefault("run.max_elements", 50)

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")

	// -- Output --
	v.SetDefault("output.format", "json")
}

// NewConfigFromViper unmarshals a viper instance into a validated Config.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the cross-field invariants viper cannot express.
func (c *Config) Validate() error {
	switch c.Browser.Engine {
	case EngineChromedp, EnginePlaywright:
	default:
		return fmt.Errorf("browser.engine must be one of [%s, %s], got %q", EngineChromedp, EnginePlaywright, c.Browser.Engine)
	}

	switch c.Classifier.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderMistral:
		if c.Classifier.Model == "" {
			return fmt.Errorf("classifier.model is required for provider %q", c.Classifier.Provider)
		}
	case ProviderStub:
	default:
		return fmt.Errorf("unknown classifier.provider %q", c.Classifier.Provider)
	}

	switch c.Search.Provider {
	case SearchBrave, SearchStatic:
	default:
		return fmt.Errorf("unknown search.provider %q", c.Search.Provider)
	}
	if c.Search.Results <= 0 {
		return fmt.Errorf("search.results must be positive")
	}

	switch c.Run.Goal {
	case GoalChangeEmail, GoalLoginPage:
	default:
		return fmt.Errorf("run.goal must be one of [%s, %s], got %q", GoalChangeEmail, GoalLoginPage, c.Run.Goal)
	}
	if c.Run.RetryCeiling <= 0 {
		return fmt.Errorf("run.retry_ceiling must be positive")
	}
	if c.Run.MaxElements <= 0 {
		return fmt.Errorf("run.max_elements must be positive")
	}

	switch strings.ToLower(c.Output.Format) {
	case "json", "yaml", "text":
	default:
		return fmt.Errorf("output.format must be json, yaml or text, got %q", c.Output.Format)
	}
	return nil
}
